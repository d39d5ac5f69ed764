package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"github.com/okian/podium/internal/domain/dispatch"
	"github.com/okian/podium/internal/domain/notify"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

const channelPrefix = "whatsapp:"

// Outbound payload field names, as stored with each delivery record.
const (
	FieldTo               = "To"
	FieldFrom             = "From"
	FieldContentSid       = "ContentSid"
	FieldContentVariables = "ContentVariables"
)

// messageCreator is the slice of the Twilio API the sender uses.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioConfig holds account credentials and template content SIDs.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string // WhatsApp-enabled sender number, with or without the whatsapp: prefix
	Templates  map[notify.Template]string

	// Placeholders lists, per template, the variable names bound to the
	// numbered placeholders {{1}}, {{2}}, ... of the approved content.
	// Templates without an entry receive the variables under their names.
	Placeholders map[notify.Template][]string
}

// TwilioSender sends approved content templates through the Twilio Messages API.
type TwilioSender struct {
	cfg     TwilioConfig
	creator messageCreator
	limiter *rate.Limiter
	timeout time.Duration
	log     logger.Logger
}

// NewTwilioSender builds a sender. Missing credentials are reported per
// message by Prepare, not here, so the service can start unconfigured.
func NewTwilioSender(cfg TwilioConfig, opts ...Option) *TwilioSender {
	o := buildOptions("whatsapp.twilio", opts)
	creator := o.creator
	if creator == nil {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
		creator = client.Api
	}
	return &TwilioSender{cfg: cfg, creator: creator, limiter: o.limiter, timeout: o.timeout, log: o.log}
}

func withChannel(number string) string {
	if strings.HasPrefix(number, channelPrefix) {
		return number
	}
	return channelPrefix + number
}

// Prepare implements dispatch.Sender.
func (s *TwilioSender) Prepare(msg dispatch.Message) (dispatch.Payload, error) {
	var missing []string
	if s.cfg.AccountSID == "" {
		missing = append(missing, "account sid")
	}
	if s.cfg.AuthToken == "" {
		missing = append(missing, "auth token")
	}
	if s.cfg.From == "" {
		missing = append(missing, "whatsapp number")
	}
	if len(missing) > 0 {
		return dispatch.Payload{}, fmt.Errorf("%w: twilio %s not configured", dispatch.ErrConfiguration, strings.Join(missing, ", "))
	}

	sid := s.cfg.Templates[msg.Template]
	if sid == "" {
		return dispatch.Payload{}, fmt.Errorf("%w: no content sid for template %s", dispatch.ErrConfiguration, msg.Template)
	}

	contentVars, err := s.contentVariables(msg)
	if err != nil {
		return dispatch.Payload{}, err
	}
	vars, err := json.Marshal(contentVars)
	if err != nil {
		return dispatch.Payload{}, fmt.Errorf("%w: encode variables: %v", dispatch.ErrConfiguration, err)
	}

	return dispatch.Payload{
		Message:          msg,
		ProviderTemplate: fmt.Sprintf("%s (SID: %s)", msg.Template, sid),
		Fields: map[string]string{
			FieldTo:               withChannel(msg.To),
			FieldFrom:             withChannel(s.cfg.From),
			FieldContentSid:       sid,
			FieldContentVariables: string(vars),
		},
	}, nil
}

// contentVariables maps the message variables onto the template's numbered
// placeholders when a mapping is configured.
func (s *TwilioSender) contentVariables(msg dispatch.Message) (map[string]string, error) {
	names, ok := s.cfg.Placeholders[msg.Template]
	if !ok || len(names) == 0 {
		return msg.Variables, nil
	}
	out := make(map[string]string, len(names))
	for i, name := range names {
		v, ok := msg.Variables[name]
		if !ok {
			return nil, fmt.Errorf("%w: template %s placeholder %d wants unknown variable %q",
				dispatch.ErrConfiguration, msg.Template, i+1, name)
		}
		out[strconv.Itoa(i+1)] = v
	}
	return out, nil
}

type createResult struct {
	msg *openapi.ApiV2010Message
	err error
}

// Send implements dispatch.Sender. The call waits for the rate limiter and
// is abandoned after the configured timeout.
func (s *TwilioSender) Send(ctx context.Context, p dispatch.Payload) (dispatch.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return dispatch.Result{}, fmt.Errorf("%w: rate limiter: %v", dispatch.ErrDelivery, err)
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(p.Fields[FieldTo])
	params.SetFrom(p.Fields[FieldFrom])
	params.SetContentSid(p.Fields[FieldContentSid])
	params.SetContentVariables(p.Fields[FieldContentVariables])

	// The Twilio client takes no context; the buffered channel lets the
	// call finish in the background after a timeout.
	done := make(chan createResult, 1)
	go func() {
		msg, err := s.creator.CreateMessage(params)
		done <- createResult{msg: msg, err: err}
	}()

	var res createResult
	select {
	case res = <-done:
	case <-ctx.Done():
		metrics.RecordErrorByComponent("whatsapp", "timeout")
		return dispatch.Result{}, fmt.Errorf("%w: twilio call: %v", dispatch.ErrDelivery, ctx.Err())
	}

	if res.err != nil {
		metrics.RecordErrorByComponent("whatsapp", "provider")
		var restErr *twilioclient.TwilioRestError
		if errors.As(res.err, &restErr) {
			s.log.Warn(ctx, "twilio rejected message",
				logger.String("to", p.Message.To),
				logger.Int("code", restErr.Code),
				logger.Int("http_status", restErr.Status),
				logger.String("more_info", restErr.MoreInfo))
			return dispatch.Result{}, fmt.Errorf("%w: twilio error %d: %s", dispatch.ErrDelivery, restErr.Code, restErr.Message)
		}
		return dispatch.Result{}, fmt.Errorf("%w: %v", dispatch.ErrDelivery, res.err)
	}

	out := dispatch.Result{}
	if res.msg != nil {
		if res.msg.Sid != nil {
			out.ProviderMessageID = *res.msg.Sid
		}
		if res.msg.Status != nil {
			out.Status = *res.msg.Status
		}
	}
	switch out.Status {
	case "queued", "accepted", "scheduled", "sending":
		out.Queued = true
	}
	return out, nil
}

var _ dispatch.Sender = (*TwilioSender)(nil)
