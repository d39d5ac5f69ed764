// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/podium/internal/adapters/http/api"
	"github.com/okian/podium/internal/adapters/http/feed"
	"github.com/okian/podium/internal/adapters/logsink"
	eventqueue "github.com/okian/podium/internal/adapters/mq/queue"
	"github.com/okian/podium/internal/adapters/mq/worker"
	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/adapters/whatsapp"
	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/internal/domain/dedupe"
	"github.com/okian/podium/internal/domain/delta"
	"github.com/okian/podium/internal/domain/deliverylog"
	"github.com/okian/podium/internal/domain/dispatch"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/notify"
	"github.com/okian/podium/internal/domain/pipeline"
	"github.com/okian/podium/internal/domain/scoring"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// ErrNotStarted is returned by roster operations before Start.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for the leaderboard system.
type Service struct {
	mu sync.RWMutex

	cfg config.Config
	now func() time.Time

	// Core components
	store    repository.Store
	sink     deliverylog.Sink
	sender   dispatch.Sender
	deduper  *dedupe.DurableDeduper
	pipeline *pipeline.Pipeline
	queue    *eventqueue.InMemoryQueue
	worker   *worker.InMemoryWorker
	hub      *feed.Hub

	// Injected components are not closed by Stop.
	ownStore bool
	ownSink  bool
	ownHub   bool

	// State
	seq         atomic.Uint64
	started     bool
	startedAt   time.Time
	unsubscribe func()
	cancel      context.CancelFunc

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore replaces the configured roster store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithSink replaces the configured delivery log.
func WithSink(sink deliverylog.Sink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// WithSender replaces the configured WhatsApp sender.
func WithSender(sender dispatch.Sender) Option {
	return func(s *Service) {
		s.sender = sender
	}
}

// WithFeed publishes leaderboard and transition frames to hub.
func WithFeed(hub *feed.Hub) Option {
	return func(s *Service) {
		s.hub = hub
	}
}

// WithClock overrides time.Now for observation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service. A nil cfg uses the config defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New(context.Background())
	}
	s := &Service{cfg: *cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the backends, primes the pipeline with the current roster and
// starts consuming roster changes.
func (s *Service) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting leaderboard service...", logger.String("event", s.cfg.EventID))

	policy, err := notify.ParsePolicy(s.cfg.ScoreUpdatePolicy)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			s.closeBackends(ctx)
		}
	}()
	if s.store == nil {
		if s.store, err = s.openStore(ctx); err != nil {
			return fmt.Errorf("open %s store: %w", s.cfg.Store, err)
		}
		s.ownStore = true
	}
	if s.sink == nil {
		if s.sink, err = s.openSink(ctx); err != nil {
			return fmt.Errorf("open %s log sink: %w", s.cfg.LogSink, err)
		}
		s.ownSink = true
	}
	if s.sender == nil {
		s.sender = s.newSender()
	}
	if s.hub == nil || s.ownHub {
		s.hub = feed.NewHub(
			feed.WithLogger(s.logger.Named("feed")),
			feed.WithSendBuffer(s.cfg.FeedSendBuffer),
			feed.WithAllowedOrigins(s.cfg.AllowedOrigins()...),
		)
		s.ownHub = true
	}

	s.deduper = dedupe.NewDurableDeduper(s.sink,
		dedupe.WithMaxSize(s.cfg.DedupeSize),
		dedupe.WithLogger(s.logger.Named("dedupe")),
	)
	if err = s.warmDeduper(ctx); err != nil {
		return err
	}

	coordinator := dispatch.NewCoordinator(s.sender, s.sink,
		dispatch.WithDeduper(s.deduper),
		dispatch.WithLogger(s.logger.Named("dispatch")),
	)
	planner := notify.NewPlanner(
		notify.WithTopN(s.cfg.TopN),
		notify.WithScoreUpdatePolicy(policy),
		notify.WithLogger(s.logger.Named("notify")),
	)
	s.pipeline = pipeline.New(delta.NewClassifier(delta.WithTopN(s.cfg.TopN)), planner, coordinator,
		pipeline.WithLogger(s.logger.Named("pipeline")),
		pipeline.WithActivity(s.sink),
		pipeline.WithObserver(s.publishOutcome),
	)

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.ObservationQueueSize))
	s.worker = worker.NewInMemoryWorker(s.queue, s.pipeline, worker.WithLogger(s.logger.Named("worker")))

	// The worker outlives the Start context.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.worker.Run(runCtx)

	if s.unsubscribe, err = s.store.Subscribe(runCtx, s.onRoster); err != nil {
		cancel()
		_ = s.queue.Close()
		return fmt.Errorf("subscribe to roster: %w", err)
	}

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "leaderboard service started",
		logger.String("store", s.cfg.Store),
		logger.String("logSink", s.cfg.LogSink),
		logger.String("whatsapp", s.cfg.WhatsAppMode),
		logger.Int("topN", s.cfg.TopN),
		logger.String("scoreUpdatePolicy", string(policy)),
		logger.Int("queueSize", s.cfg.ObservationQueueSize),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	opts := []repository.Option{repository.WithLogger(s.logger.Named("repository"))}
	switch s.cfg.Store {
	case config.StorePostgres:
		return repository.NewPostgresStore(ctx, s.cfg.PostgresDSN, s.cfg.EventID, opts...)
	case config.StoreMemory, "":
		return repository.NewTreapStore(opts...), nil
	default:
		return nil, fmt.Errorf("%w: unknown store %q", config.ErrInvalidConfig, s.cfg.Store)
	}
}

func (s *Service) openSink(ctx context.Context) (deliverylog.Sink, error) {
	switch s.cfg.LogSink {
	case config.LogSinkSQLite:
		return logsink.NewSQLiteSink(ctx, s.cfg.SQLitePath)
	case config.LogSinkMongo:
		return logsink.NewMongoSink(ctx, s.cfg.MongoURI, s.cfg.MongoDatabase)
	case config.LogSinkMemory, "":
		return deliverylog.NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("%w: unknown log_sink %q", config.ErrInvalidConfig, s.cfg.LogSink)
	}
}

func (s *Service) newSender() dispatch.Sender {
	opts := []whatsapp.Option{
		whatsapp.WithLogger(s.logger.Named("whatsapp")),
		whatsapp.WithRateLimit(s.cfg.TwilioRatePerSecond, s.cfg.TwilioRateBurst),
		whatsapp.WithTimeout(time.Duration(s.cfg.TwilioTimeoutMS) * time.Millisecond),
	}
	if s.cfg.WhatsAppMode == config.WhatsAppTwilio {
		return whatsapp.NewTwilioSender(whatsapp.TwilioConfig{
			AccountSID: s.cfg.TwilioAccountSID,
			AuthToken:  s.cfg.TwilioAuthToken,
			From:       s.cfg.TwilioWhatsAppNumber,
			Templates: map[notify.Template]string{
				notify.TemplateEntrySuccess: s.cfg.TemplateEntrySuccess,
				notify.TemplateEntryFailure: s.cfg.TemplateEntryFailure,
				notify.TemplateDethrone:     s.cfg.TemplateDethrone,
			},
			Placeholders: map[notify.Template][]string{
				notify.TemplateEntrySuccess: config.SplitList(s.cfg.TemplateVarsEntrySuccess),
				notify.TemplateEntryFailure: config.SplitList(s.cfg.TemplateVarsEntryFailure),
				notify.TemplateDethrone:     config.SplitList(s.cfg.TemplateVarsDethrone),
			},
		}, opts...)
	}
	return whatsapp.NewSimulatedSender(opts...)
}

// warmDeduper loads the most recent dedupe keys so a restart does not resend
// what the log already holds.
func (s *Service) warmDeduper(ctx context.Context) error {
	records, err := s.sink.List(ctx, s.cfg.DedupeSize)
	if err != nil {
		return fmt.Errorf("load delivery keys: %w", err)
	}
	keys := make([]string, 0, len(records))
	for _, r := range records {
		if r.DedupeKey != "" {
			keys = append(keys, r.DedupeKey)
		}
	}
	s.deduper.Warm(keys...)
	s.logger.Debug(ctx, "dedupe warmed", logger.Int("keys", len(keys)))
	return nil
}

// onRoster runs synchronously inside the store's notification and must not
// call back into the store.
func (s *Service) onRoster(players []model.Participant) {
	obs := model.Observation{Seq: s.seq.Add(1), Players: players, At: s.now().UTC()}
	s.hub.PublishLeaderboard(types.Entries(players))

	if err := s.queue.Enqueue(context.Background(), obs); err != nil {
		s.logger.Warn(context.Background(), "dropping roster observation",
			logger.Any("seq", obs.Seq),
			logger.Int("players", len(players)),
			logger.Error(err),
		)
	}
}

func (s *Service) publishOutcome(_ context.Context, out pipeline.Outcome) {
	t := out.Transition
	if t.Empty() {
		return
	}
	frame := feed.Transition{
		ID:      t.ID,
		Sent:    out.Report.Sent,
		Failed:  out.Report.Failed,
		Skipped: out.Report.Skipped,
	}
	at := s.now().UTC()
	appendEvents := func(events []delta.Event, primary bool) {
		for _, ev := range events {
			a := pipeline.ActivityFromEvent(t.ID, ev, primary, at)
			frame.Events = append(frame.Events, feed.TransitionEvent{
				Kind:          a.Kind,
				Primary:       a.Primary,
				PlayerID:      a.PlayerID,
				PlayerName:    a.PlayerName,
				NewPlayerName: a.NewPlayerName,
				Rank:          a.Rank,
				NewRank:       a.NewRank,
			})
		}
	}
	appendEvents(t.Primary, true)
	appendEvents(t.Secondary, false)
	s.hub.PublishTransition(frame)
}

// Stop unsubscribes from the roster, lets the worker drain what is queued
// and closes the backends it opened.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping leaderboard service...")

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	_ = s.queue.Close()

	var err error
	select {
	case <-s.worker.Done():
	case <-ctx.Done():
		err = s.worker.Shutdown(ctx)
	}
	s.cancel()
	s.closeBackends(ctx)

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped", logger.Any("observations", s.seq.Load()))
	return err
}

func (s *Service) closeBackends(ctx context.Context) {
	// The hub stays assigned; a late store notification may still publish.
	if s.ownHub && s.hub != nil {
		s.hub.Close()
	}
	if s.ownStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "failed to close store", logger.Error(err))
		}
		s.store, s.ownStore = nil, false
	}
	if s.ownSink && s.sink != nil {
		if err := s.sink.Close(ctx); err != nil {
			s.logger.Error(ctx, "failed to close log sink", logger.Error(err))
		}
		s.sink, s.ownSink = nil, false
	}
}

func (s *Service) running() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// Feed returns the live feed hub, or nil before Start.
func (s *Service) Feed() *feed.Hub {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hub
}

// AddParticipant registers a racer with their first time.
func (s *Service) AddParticipant(ctx context.Context, in api.ParticipantInput) (types.Profile, error) {
	store, err := s.running()
	if err != nil {
		return types.Profile{}, err
	}
	score, err := scoring.Encode(in.Time)
	if err != nil {
		return types.Profile{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	p := model.Participant{
		Name:    in.Name,
		Surname: in.Surname,
		Phone:   in.Phone,
		Email:   in.Email,
		Company: in.Company,
		Score:   score,
	}
	if err := model.ValidateParticipant(&p, s.cfg.PhonePrefix); err != nil {
		return types.Profile{}, err
	}
	added, err := store.Add(ctx, p)
	if err != nil {
		return types.Profile{}, err
	}
	return s.profile(ctx, store, added)
}

// SubmitTime records another attempt. The score is kept only when faster.
func (s *Service) SubmitTime(ctx context.Context, id, raceTime string) (api.SubmitResult, error) {
	store, err := s.running()
	if err != nil {
		return api.SubmitResult{}, err
	}
	score, err := scoring.Encode(raceTime)
	if err != nil {
		return api.SubmitResult{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	p, improved, err := store.UpdateBest(ctx, id, score)
	if err != nil {
		return api.SubmitResult{}, err
	}
	profile, err := s.profile(ctx, store, p)
	if err != nil {
		return api.SubmitResult{}, err
	}
	return api.SubmitResult{Participant: profile, Improved: improved}, nil
}

func (s *Service) profile(ctx context.Context, store repository.Store, p model.Participant) (types.Profile, error) {
	rank, current, err := store.Rank(ctx, p.ID)
	if err != nil {
		return types.Profile{}, err
	}
	return types.NewProfile(rank, current), nil
}

// RemoveParticipant deletes a racer from the roster.
func (s *Service) RemoveParticipant(ctx context.Context, id string) error {
	store, err := s.running()
	if err != nil {
		return err
	}
	return store.Delete(ctx, id)
}

// Participant returns the operator view of one racer.
func (s *Service) Participant(ctx context.Context, id string) (types.Profile, error) {
	store, err := s.running()
	if err != nil {
		return types.Profile{}, err
	}
	rank, p, err := store.Rank(ctx, id)
	if err != nil {
		return types.Profile{}, err
	}
	return types.NewProfile(rank, p), nil
}

// TopN returns the top N leaderboard entries.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	store, err := s.running()
	if err != nil {
		return nil, err
	}
	players, err := store.TopN(ctx, n)
	if err != nil {
		return nil, err
	}
	return types.Entries(players), nil
}

// Rank returns the rank and time for a given participant id.
func (s *Service) Rank(ctx context.Context, id string) (types.Entry, error) {
	store, err := s.running()
	if err != nil {
		return types.Entry{}, err
	}
	rank, p, err := store.Rank(ctx, id)
	if err != nil {
		return types.Entry{}, err
	}
	return types.NewEntry(rank, p), nil
}

func (s *Service) logSink() (deliverylog.Sink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.sink, nil
}

// Deliveries lists delivery records, newest first.
func (s *Service) Deliveries(ctx context.Context, limit int) ([]deliverylog.Record, error) {
	sink, err := s.logSink()
	if err != nil {
		return nil, err
	}
	return sink.List(ctx, limit)
}

// Activity lists classified roster events, newest first.
func (s *Service) Activity(ctx context.Context, limit int) ([]deliverylog.Activity, error) {
	sink, err := s.logSink()
	if err != nil {
		return nil, err
	}
	return sink.ListActivity(ctx, limit)
}

// PurgeDeliveries clears the delivery log. Keys already held by the deduper
// stay suppressed until restart.
func (s *Service) PurgeDeliveries(ctx context.Context) (int64, error) {
	sink, err := s.logSink()
	if err != nil {
		return 0, err
	}
	n, err := sink.Purge(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Warn(ctx, "delivery log purged", logger.Int64("deleted", n))
	return n, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":           s.started,
		"eventId":           s.cfg.EventID,
		"store":             s.cfg.Store,
		"logSink":           s.cfg.LogSink,
		"whatsappMode":      s.cfg.WhatsAppMode,
		"topN":              s.cfg.TopN,
		"scoreUpdatePolicy": s.cfg.ScoreUpdatePolicy,
		"queueCapacity":     s.cfg.ObservationQueueSize,
		"observations":      s.seq.Load(),
	}

	if s.started {
		participants := s.store.Count(ctx)
		stats["queueLength"] = s.queue.Len(ctx)
		stats["participants"] = participants
		stats["dedupeEntries"] = s.deduper.Size()
		stats["feedClients"] = s.hub.Clients()
		stats["uptimeSeconds"] = int64(s.now().Sub(s.startedAt).Seconds())

		metrics.UpdateRosterSize(participants)
	}

	return stats
}

var (
	_ api.Dependencies  = (*Service)(nil)
	_ api.StatsProvider = (*Service)(nil)
)
