package logsink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/podium/internal/domain/deliverylog"
)

// exerciseSink runs the shared contract against any sink.
func exerciseSink(t *testing.T, sink deliverylog.Sink) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	first, err := sink.Append(ctx, deliverylog.Record{
		DedupeKey: "+27820000001|entry_success|t1", TransitionID: "t1", To: "+27820000001",
		Template: "entry_success", Status: deliverylog.StatusPending,
		Payload: map[string]string{"name": "Ada"}, CreatedAt: base,
	})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := sink.Append(ctx, deliverylog.Record{
		ID: "fixed-id", DedupeKey: "+27820000002|dethrone|t1", TransitionID: "t1", To: "+27820000002",
		Template: "dethrone", Status: deliverylog.StatusFailure, ErrorKind: deliverylog.ErrorKindConfiguration,
		Error: "template not configured", CreatedAt: base.Add(time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", second)

	require.NoError(t, sink.Update(ctx, first, deliverylog.Update{
		Status: deliverylog.StatusSuccess, ProviderMessageID: "SM123", Note: "queued by provider",
	}))
	err = sink.Update(ctx, "missing", deliverylog.Update{Status: deliverylog.StatusSuccess})
	assert.True(t, errors.Is(err, deliverylog.ErrNotFound), "got %v", err)

	records, err := sink.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "fixed-id", records[0].ID, "newest first")
	assert.Equal(t, deliverylog.ErrorKindConfiguration, records[0].ErrorKind)
	assert.Equal(t, deliverylog.StatusSuccess, records[1].Status)
	assert.Equal(t, "SM123", records[1].ProviderMessageID)
	assert.Equal(t, "Ada", records[1].Payload["name"])

	limited, err := sink.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	ok, err := sink.HasKey(ctx, "+27820000001|entry_success|t1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = sink.HasKey(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = sink.AppendActivity(ctx, deliverylog.Activity{
		TransitionID: "t1", Kind: "add", Primary: true, PlayerID: "p1", PlayerName: "Ada Lovelace",
		Rank: 1, Timestamp: base,
	})
	require.NoError(t, err)
	_, err = sink.AppendActivity(ctx, deliverylog.Activity{
		TransitionID: "t2", Kind: "dethrone", Primary: true, PlayerID: "p1", PlayerName: "Ada Lovelace",
		NewPlayerID: "p2", NewPlayerName: "Grace Hopper", Rank: 1, NewRank: 2, Timestamp: base.Add(time.Minute),
	})
	require.NoError(t, err)

	activity, err := sink.ListActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, "dethrone", activity[0].Kind)
	assert.Equal(t, "Grace Hopper", activity[0].NewPlayerName)
	assert.True(t, activity[0].Primary)

	n, err := sink.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	records, err = sink.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
	activity, err = sink.ListActivity(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, activity, 2, "purge keeps activity")
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "podium.db")

	sink, err := NewSQLiteSink(ctx, path)
	require.NoError(t, err)
	exerciseSink(t, sink)
	require.NoError(t, sink.Close(ctx))

	// Reopening keeps the schema and data.
	reopened, err := NewSQLiteSink(ctx, path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close(ctx) }()
	activity, err := reopened.ListActivity(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, activity, 2)
}

func TestMongoSink(t *testing.T) {
	uri := os.Getenv("PODIUM_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PODIUM_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sink, err := NewMongoSink(ctx, uri, "podium_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	defer func() {
		_ = sink.deliveries.Database().Drop(ctx)
		_ = sink.Close(ctx)
	}()
	exerciseSink(t, sink)
}

func TestMemorySinkContract(t *testing.T) {
	exerciseSink(t, deliverylog.NewMemorySink())
}
