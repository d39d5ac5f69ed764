// Package dispatch executes notification intents against a sender and keeps
// the delivery log.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/okian/podium/internal/domain/dedupe"
	"github.com/okian/podium/internal/domain/deliverylog"
	"github.com/okian/podium/internal/domain/notify"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// QueuedNote marks a success the provider has not confirmed yet.
const QueuedNote = "queued by provider, delivery not yet confirmed"

// Outcome is the coordinator's verdict for one intent.
type Outcome string

// Outcomes.
const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// IntentResult reports what happened to one intent.
type IntentResult struct {
	Intent   notify.Intent
	Outcome  Outcome
	RecordID string
	Err      error
}

// Report summarizes a dispatch run.
type Report struct {
	Results []IntentResult
	Sent    int
	Failed  int
	Skipped int
}

func (r *Report) add(res IntentResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeSent:
		r.Sent++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDeduper replaces the default in-memory deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(c *Coordinator) {
		if d != nil {
			c.dedupe = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator runs intents one at a time, in order.
type Coordinator struct {
	sender Sender
	sink   deliverylog.Sink
	dedupe dedupe.Deduper
	log    logger.Logger
	now    func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(sender Sender, sink deliverylog.Sink, opts ...Option) *Coordinator {
	c := &Coordinator{
		sender: sender,
		sink:   sink,
		dedupe: dedupe.NewInMemoryDeduper(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("dispatch")
	}
	return c
}

// Dispatch attempts every intent. It never returns an error: each failure is
// recorded in the report and the delivery log, and the batch continues.
func (c *Coordinator) Dispatch(ctx context.Context, intents []notify.Intent) Report {
	var report Report
	for _, in := range intents {
		report.add(c.dispatchOne(ctx, in))
	}
	return report
}

func (c *Coordinator) dispatchOne(ctx context.Context, in notify.Intent) (res IntentResult) {
	res = IntentResult{Intent: in}
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("%w: panic: %v", ErrDelivery, r)
			c.log.Error(ctx, "dispatch panicked", logger.String("key", in.DedupeKey()), logger.Any("panic", r))
			metrics.RecordErrorByComponent("dispatch", "panic")
		}
	}()

	key := in.DedupeKey()
	if c.dedupe.SeenAndRecord(ctx, key) {
		metrics.RecordDispatchDuplicate()
		c.log.Debug(ctx, "intent already attempted", logger.String("key", key))
		res.Outcome = OutcomeSkipped
		return res
	}

	msg := Message{TransitionID: in.TransitionID, To: in.Phone, Template: in.Template, Variables: maps.Clone(in.Variables)}
	record := deliverylog.Record{
		DedupeKey:    key,
		TransitionID: in.TransitionID,
		To:           in.Phone,
		Template:     string(in.Template),
		Payload:      msg.Variables,
		CreatedAt:    c.now().UTC(),
	}

	payload, err := c.prepare(msg)
	if err != nil {
		record.Status = deliverylog.StatusFailure
		record.ErrorKind = deliverylog.ErrorKindConfiguration
		record.Error = err.Error()
		res.RecordID = c.append(ctx, record)
		res.Outcome = OutcomeFailed
		res.Err = err
		c.log.Error(ctx, "delivery not configured", logger.String("key", key), logger.Error(err))
		metrics.RecordDelivery(string(deliverylog.StatusFailure), string(in.Template))
		metrics.RecordErrorByComponent("dispatch", string(deliverylog.ErrorKindConfiguration))
		return res
	}

	record.Status = deliverylog.StatusPending
	record.ProviderTemplate = payload.ProviderTemplate
	record.Payload = maps.Clone(payload.Fields)
	res.RecordID = c.append(ctx, record)

	start := c.now()
	result, err := c.send(ctx, payload)
	metrics.RecordDeliveryLatency(float64(c.now().Sub(start).Microseconds()) / 1000)

	var update deliverylog.Update
	if err != nil {
		update = deliverylog.Update{Status: deliverylog.StatusFailure, Error: err.Error(), ErrorKind: deliverylog.ErrorKindDelivery}
		res.Outcome = OutcomeFailed
		res.Err = err
		c.log.Error(ctx, "delivery failed",
			logger.String("key", key),
			logger.Any("payload", payload.Fields),
			logger.Error(err))
		metrics.RecordErrorByComponent("dispatch", string(deliverylog.ErrorKindDelivery))
	} else {
		update = deliverylog.Update{Status: deliverylog.StatusSuccess, ProviderMessageID: result.ProviderMessageID}
		if result.Queued {
			update.Note = QueuedNote
		}
		res.Outcome = OutcomeSent
		c.log.Info(ctx, "delivery sent",
			logger.String("key", key),
			logger.String("provider_id", result.ProviderMessageID),
			logger.Bool("queued", result.Queued))
	}
	metrics.RecordDelivery(string(update.Status), string(in.Template))
	c.update(ctx, res.RecordID, update)
	return res
}

func (c *Coordinator) prepare(msg Message) (p Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: prepare panicked: %v", ErrConfiguration, r)
		}
	}()
	p, err = c.sender.Prepare(msg)
	if err != nil && !errors.Is(err, ErrConfiguration) {
		err = fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return p, err
}

func (c *Coordinator) send(ctx context.Context, p Payload) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: sender panicked: %v", ErrDelivery, r)
		}
	}()
	res, err = c.sender.Send(ctx, p)
	if err != nil && !errors.Is(err, ErrDelivery) {
		err = fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return res, err
}

func (c *Coordinator) append(ctx context.Context, r deliverylog.Record) string {
	id, err := c.sink.Append(ctx, r)
	if err != nil {
		metrics.RecordLogSinkError("append")
		c.log.Error(ctx, "failed to append delivery record", logger.String("key", r.DedupeKey), logger.Error(err))
		return ""
	}
	return id
}

func (c *Coordinator) update(ctx context.Context, id string, u deliverylog.Update) {
	if id == "" {
		return
	}
	if err := c.sink.Update(ctx, id, u); err != nil {
		metrics.RecordLogSinkError("update")
		c.log.Error(ctx, "failed to finalize delivery record", logger.String("id", id), logger.Error(err))
	}
}
