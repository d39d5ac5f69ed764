package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

const (
	defaultNotifyChannel = "podium_roster"
	uniqueViolation      = "23505"
)

const schema = `
CREATE TABLE IF NOT EXISTS participants (
	event_id   TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	seq        BIGSERIAL,
	name       TEXT        NOT NULL,
	surname    TEXT        NOT NULL,
	phone      TEXT        NOT NULL DEFAULT '',
	email      TEXT        NOT NULL DEFAULT '',
	company    TEXT        NOT NULL DEFAULT '',
	score      BIGINT      NOT NULL CHECK (score >= 0),
	attempts   INTEGER     NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (event_id, id)
);
CREATE INDEX IF NOT EXISTS participants_rank_idx ON participants (event_id, score, seq);
`

const columns = `id, seq, name, surname, phone, email, company, score, attempts, created_at, updated_at`

// PostgresStore keeps one event's roster in Postgres. Every write issues a
// NOTIFY carrying the event id so subscribers in any process observe it.
type PostgresStore struct {
	pool    *pgxpool.Pool
	eventID string
	channel string
	now     func() time.Time
	newID   func() string
	log     logger.Logger

	mu     sync.Mutex
	subs   map[int]context.CancelFunc
	nextID int
	wg     sync.WaitGroup
}

// NewPostgresStore connects to dsn, verifies the connection and applies the schema.
func NewPostgresStore(ctx context.Context, dsn, eventID string, opts ...Option) (*PostgresStore, error) {
	cfg := settings{now: time.Now, newID: uuid.NewString, channel: defaultNotifyChannel}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.Get().Named("repository")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStore{
		pool:    pool,
		eventID: eventID,
		channel: cfg.channel,
		now:     cfg.now,
		newID:   cfg.newID,
		log:     cfg.log,
		subs:    make(map[int]context.CancelFunc),
	}, nil
}

func scanParticipant(row pgx.Row) (model.Participant, error) {
	var p model.Participant
	err := row.Scan(&p.ID, &p.Seq, &p.Name, &p.Surname, &p.Phone, &p.Email, &p.Company,
		&p.Score, &p.Attempts, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) notify(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.channel, s.eventID)
	return err
}

// Add implements Store.Add.
func (s *PostgresStore) Add(ctx context.Context, p model.Participant) (model.Participant, error) {
	defer observeLatency("add", time.Now())
	if p.Score < 0 {
		return model.Participant{}, ErrInvalidScore
	}
	if p.ID == "" {
		p.ID = s.newID()
	}
	now := s.now().UTC()
	p.Attempts = 1
	p.CreatedAt, p.UpdatedAt = now, now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Participant{}, fmt.Errorf("begin add: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO participants (event_id, id, name, surname, phone, email, company, score, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING seq`,
		s.eventID, p.ID, p.Name, p.Surname, p.Phone, p.Email, p.Company, p.Score, p.Attempts, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.Seq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.Participant{}, fmt.Errorf("%w: %s", ErrDuplicate, p.ID)
		}
		metrics.RecordErrorByComponent("repository", "database")
		return model.Participant{}, fmt.Errorf("insert participant: %w", err)
	}
	if err := s.notify(ctx, tx); err != nil {
		return model.Participant{}, fmt.Errorf("notify: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Participant{}, fmt.Errorf("commit add: %w", err)
	}
	metrics.RecordRosterMutation("add")
	return p, nil
}

// UpdateBest implements Store.UpdateBest.
func (s *PostgresStore) UpdateBest(ctx context.Context, id string, score int64) (model.Participant, bool, error) {
	defer observeLatency("update", time.Now())
	if score < 0 {
		return model.Participant{}, false, ErrInvalidScore
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Participant{}, false, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := scanParticipant(tx.QueryRow(ctx,
		`SELECT `+columns+` FROM participants WHERE event_id = $1 AND id = $2 FOR UPDATE`, s.eventID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Participant{}, false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Participant{}, false, fmt.Errorf("load participant: %w", err)
	}

	improved := score < p.Score
	if improved {
		p.Score = score
	}
	p.Attempts++
	p.UpdatedAt = s.now().UTC()

	if _, err := tx.Exec(ctx,
		`UPDATE participants SET score = $3, attempts = $4, updated_at = $5 WHERE event_id = $1 AND id = $2`,
		s.eventID, id, p.Score, p.Attempts, p.UpdatedAt); err != nil {
		metrics.RecordErrorByComponent("repository", "database")
		return model.Participant{}, false, fmt.Errorf("update participant: %w", err)
	}
	if err := s.notify(ctx, tx); err != nil {
		return model.Participant{}, false, fmt.Errorf("notify: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Participant{}, false, fmt.Errorf("commit update: %w", err)
	}
	metrics.RecordRosterMutation("update")
	return p, improved, nil
}

// Delete implements Store.Delete.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	defer observeLatency("delete", time.Now())
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM participants WHERE event_id = $1 AND id = $2`, s.eventID, id)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.notify(ctx, tx); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	metrics.RecordRosterMutation("delete")
	return nil
}

// Get implements Store.Get.
func (s *PostgresStore) Get(ctx context.Context, id string) (model.Participant, error) {
	p, err := scanParticipant(s.pool.QueryRow(ctx,
		`SELECT `+columns+` FROM participants WHERE event_id = $1 AND id = $2`, s.eventID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Participant{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// Rank implements Store.Rank.
func (s *PostgresStore) Rank(ctx context.Context, id string) (int, model.Participant, error) {
	defer observeLatency("rank", time.Now())
	p, err := s.Get(ctx, id)
	if err != nil {
		return 0, model.Participant{}, err
	}
	var ahead int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM participants WHERE event_id = $1 AND (score, seq) < ($2, $3)`,
		s.eventID, p.Score, p.Seq).Scan(&ahead); err != nil {
		return 0, model.Participant{}, fmt.Errorf("rank participant: %w", err)
	}
	return ahead + 1, p, nil
}

// TopN implements Store.TopN.
func (s *PostgresStore) TopN(ctx context.Context, n int) ([]model.Participant, error) {
	defer observeLatency("top_n", time.Now())
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	return s.query(ctx, `SELECT `+columns+` FROM participants WHERE event_id = $1 ORDER BY score, seq LIMIT $2`, s.eventID, n)
}

// Ranked implements Store.Ranked.
func (s *PostgresStore) Ranked(ctx context.Context) ([]model.Participant, error) {
	return s.query(ctx, `SELECT `+columns+` FROM participants WHERE event_id = $1 ORDER BY score, seq`, s.eventID)
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]model.Participant, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var players []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// Count implements Store.Count. Errors are logged and reported as zero.
func (s *PostgresStore) Count(ctx context.Context) int {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM participants WHERE event_id = $1`, s.eventID).Scan(&n); err != nil {
		s.log.Error(ctx, "count participants failed", logger.Error(err))
		return 0
	}
	metrics.UpdateRosterSize(n)
	return n
}

// Subscribe implements Store.Subscribe. A dedicated connection LISTENs on the
// notify channel; each notification for this event reloads the roster.
func (s *PostgresStore) Subscribe(ctx context.Context, fn Listener) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}
	roster, err := s.Ranked(ctx)
	if err != nil {
		conn.Release()
		return nil, err
	}
	fn(roster)

	subCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer conn.Release()
		s.listen(subCtx, conn.Conn(), fn)
	}()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		cancel()
	}, nil
}

func (s *PostgresStore) listen(ctx context.Context, conn *pgx.Conn, fn Listener) {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Error(ctx, "roster listener stopped", logger.Error(err))
				metrics.RecordErrorByComponent("repository", "listen")
			}
			return
		}
		if n.Payload != s.eventID {
			continue
		}
		roster, err := s.Ranked(ctx)
		if err != nil {
			s.log.Warn(ctx, "reload roster failed", logger.Error(err))
			continue
		}
		fn(roster)
	}
}

// Close stops subscriptions and closes the pool.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	for id, cancel := range s.subs {
		cancel()
		delete(s.subs, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
