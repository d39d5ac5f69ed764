package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/podium/internal/domain/dispatch"
	"github.com/okian/podium/internal/domain/notify"
	"github.com/okian/podium/pkg/logger"
)

// FieldBody carries the rendered text of a simulated message.
const FieldBody = "Body"

var bodies = map[notify.Template]string{
	notify.TemplateEntrySuccess: "Hi {name}! You're on the leaderboard in {rank_label} with a time of {score}. Hold on to that spot!",
	notify.TemplateEntryFailure: "Hi {name}! Your time of {score} puts you in {rank_label}, just outside the podium. Give it another go!",
	notify.TemplateDethrone: "Hi {name}! Uh oh, looks like {new_name} just took {rank_label} on the leaderboard" +
		" with a time of {new_score}! Don't worry, you can still reclaim your glory. Head back and improve your time!",
}

// Render fills a template body with variables. Unknown placeholders are kept.
func Render(t notify.Template, vars map[string]string) (string, error) {
	body, ok := bodies[t]
	if !ok {
		return "", fmt.Errorf("%w: unknown template %s", dispatch.ErrConfiguration, t)
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(body), nil
}

// SimulatedSender renders messages locally and never calls a provider.
// Sent messages are retained for inspection.
type SimulatedSender struct {
	log   logger.Logger
	newID func() string

	mu   sync.Mutex
	sent []dispatch.Payload
}

// NewSimulatedSender creates a simulated sender.
func NewSimulatedSender(opts ...Option) *SimulatedSender {
	o := buildOptions("whatsapp.simulated", opts)
	newID := o.newID
	if newID == nil {
		newID = func() string { return "SM" + strings.ReplaceAll(uuid.NewString(), "-", "") }
	}
	return &SimulatedSender{log: o.log, newID: newID}
}

// Prepare implements dispatch.Sender.
func (s *SimulatedSender) Prepare(msg dispatch.Message) (dispatch.Payload, error) {
	body, err := Render(msg.Template, msg.Variables)
	if err != nil {
		return dispatch.Payload{}, err
	}
	return dispatch.Payload{
		Message:          msg,
		ProviderTemplate: fmt.Sprintf("%s (simulated)", msg.Template),
		Fields: map[string]string{
			FieldTo:   withChannel(msg.To),
			FieldBody: body,
		},
	}, nil
}

// Send implements dispatch.Sender.
func (s *SimulatedSender) Send(ctx context.Context, p dispatch.Payload) (dispatch.Result, error) {
	if err := ctx.Err(); err != nil {
		return dispatch.Result{}, fmt.Errorf("%w: %v", dispatch.ErrDelivery, err)
	}
	id := s.newID()
	s.mu.Lock()
	s.sent = append(s.sent, p)
	s.mu.Unlock()

	s.log.Info(ctx, "simulated whatsapp message",
		logger.String("sid", id),
		logger.String("to", p.Message.To),
		logger.String("template", string(p.Message.Template)),
		logger.String("body", p.Fields[FieldBody]))
	return dispatch.Result{ProviderMessageID: id, Status: "delivered"}, nil
}

// Sent returns a copy of every payload sent so far.
func (s *SimulatedSender) Sent() []dispatch.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dispatch.Payload(nil), s.sent...)
}

var _ dispatch.Sender = (*SimulatedSender)(nil)
