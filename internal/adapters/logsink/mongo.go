package logsink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/okian/podium/internal/domain/deliverylog"
)

const (
	deliveriesCollection = "deliveries"
	activityCollection   = "activity"
)

type deliveryDoc struct {
	ID                string            `bson:"_id"`
	DedupeKey         string            `bson:"dedupe_key"`
	TransitionID      string            `bson:"transition_id"`
	To                string            `bson:"to"`
	Template          string            `bson:"template"`
	ProviderTemplate  string            `bson:"provider_template,omitempty"`
	Status            string            `bson:"status"`
	ProviderMessageID string            `bson:"provider_message_id,omitempty"`
	Error             string            `bson:"error,omitempty"`
	ErrorKind         string            `bson:"error_kind,omitempty"`
	Note              string            `bson:"note,omitempty"`
	Payload           map[string]string `bson:"payload,omitempty"`
	CreatedAt         time.Time         `bson:"created_at"`
	UpdatedAt         time.Time         `bson:"updated_at"`
}

func (d deliveryDoc) record() deliverylog.Record {
	return deliverylog.Record{
		ID: d.ID, DedupeKey: d.DedupeKey, TransitionID: d.TransitionID, To: d.To,
		Template: d.Template, ProviderTemplate: d.ProviderTemplate,
		Status: deliverylog.Status(d.Status), ProviderMessageID: d.ProviderMessageID,
		Error: d.Error, ErrorKind: deliverylog.ErrorKind(d.ErrorKind), Note: d.Note,
		Payload: d.Payload, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type activityDoc struct {
	ID            string    `bson:"_id"`
	TransitionID  string    `bson:"transition_id"`
	Kind          string    `bson:"kind"`
	Primary       bool      `bson:"primary"`
	PlayerID      string    `bson:"player_id"`
	PlayerName    string    `bson:"player_name"`
	NewPlayerID   string    `bson:"new_player_id,omitempty"`
	NewPlayerName string    `bson:"new_player_name,omitempty"`
	Rank          int       `bson:"rank"`
	NewRank       int       `bson:"new_rank,omitempty"`
	ScoreDelta    int64     `bson:"score_delta,omitempty"`
	Timestamp     time.Time `bson:"ts"`
}

// MongoSink stores records in two MongoDB collections.
type MongoSink struct {
	client     *mongo.Client
	deliveries *mongo.Collection
	activity   *mongo.Collection
	now        func() time.Time
}

// NewMongoSink connects to uri and uses database dbName.
func NewMongoSink(ctx context.Context, uri, dbName string) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	db := client.Database(dbName)
	s := &MongoSink{
		client:     client,
		deliveries: db.Collection(deliveriesCollection),
		activity:   db.Collection(activityCollection),
		now:        time.Now,
	}
	_, err = s.deliveries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "dedupe_key", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoSink) Append(ctx context.Context, r deliverylog.Record) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	doc := deliveryDoc{
		ID: r.ID, DedupeKey: r.DedupeKey, TransitionID: r.TransitionID, To: r.To,
		Template: r.Template, ProviderTemplate: r.ProviderTemplate, Status: string(r.Status),
		ProviderMessageID: r.ProviderMessageID, Error: r.Error, ErrorKind: string(r.ErrorKind),
		Note: r.Note, Payload: r.Payload, CreatedAt: r.CreatedAt, UpdatedAt: r.CreatedAt,
	}
	if _, err := s.deliveries.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert delivery: %w", err)
	}
	return r.ID, nil
}

func (s *MongoSink) Update(ctx context.Context, id string, u deliverylog.Update) error {
	res, err := s.deliveries.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"status":              string(u.Status),
		"provider_message_id": u.ProviderMessageID,
		"error":               u.Error,
		"error_kind":          string(u.ErrorKind),
		"note":                u.Note,
		"updated_at":          s.now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", deliverylog.ErrNotFound, id)
	}
	return nil
}

func (s *MongoSink) AppendActivity(ctx context.Context, a deliverylog.Activity) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now().UTC()
	}
	doc := activityDoc{
		ID: a.ID, TransitionID: a.TransitionID, Kind: a.Kind, Primary: a.Primary,
		PlayerID: a.PlayerID, PlayerName: a.PlayerName, NewPlayerID: a.NewPlayerID,
		NewPlayerName: a.NewPlayerName, Rank: a.Rank, NewRank: a.NewRank,
		ScoreDelta: a.ScoreDelta, Timestamp: a.Timestamp,
	}
	if _, err := s.activity.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert activity: %w", err)
	}
	return a.ID, nil
}

func newestOptions(field string, limit int) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: field, Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

func (s *MongoSink) List(ctx context.Context, limit int) ([]deliverylog.Record, error) {
	cur, err := s.deliveries.Find(ctx, bson.D{}, newestOptions("created_at", limit))
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	var docs []deliveryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode deliveries: %w", err)
	}
	out := make([]deliverylog.Record, len(docs))
	for i, d := range docs {
		out[i] = d.record()
	}
	return out, nil
}

func (s *MongoSink) ListActivity(ctx context.Context, limit int) ([]deliverylog.Activity, error) {
	cur, err := s.activity.Find(ctx, bson.D{}, newestOptions("ts", limit))
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	var docs []activityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}
	out := make([]deliverylog.Activity, len(docs))
	for i, d := range docs {
		out[i] = deliverylog.Activity{
			ID: d.ID, TransitionID: d.TransitionID, Kind: d.Kind, Primary: d.Primary,
			PlayerID: d.PlayerID, PlayerName: d.PlayerName, NewPlayerID: d.NewPlayerID,
			NewPlayerName: d.NewPlayerName, Rank: d.Rank, NewRank: d.NewRank,
			ScoreDelta: d.ScoreDelta, Timestamp: d.Timestamp.UTC(),
		}
	}
	return out, nil
}

func (s *MongoSink) HasKey(ctx context.Context, dedupeKey string) (bool, error) {
	err := s.deliveries.FindOne(ctx, bson.D{{Key: "dedupe_key", Value: dedupeKey}},
		options.FindOne().SetProjection(bson.D{{Key: "_id", Value: 1}})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup dedupe key: %w", err)
	}
	return true, nil
}

func (s *MongoSink) Purge(ctx context.Context) (int64, error) {
	res, err := s.deliveries.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("purge deliveries: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ deliverylog.Sink = (*MongoSink)(nil)
