package journal

import (
	"context"
	"testing"
	"time"

	"github.com/fairdatapoint/fdp-index/app/models"
	"github.com/fairdatapoint/fdp-index/app/repository"
	"github.com/fairdatapoint/fdp-index/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) (*Journal, repository.IndexEventRepository) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	events := repository.NewIndexEventRepository(db)
	return New(events), events
}

func TestJournal_RecordAndComplete(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()

	event, err := j.Record(ctx, models.AdminTrigger{RemoteAddr: "10.0.0.1", TokenName: "ops", ClientURL: "https://fdp.example.org"}, nil)
	require.NoError(t, err)
	assert.False(t, event.IsFinished())

	completed, err := j.Complete(ctx, event)
	require.NoError(t, err)
	require.NotNil(t, completed.FinishedAt)
	assert.False(t, completed.FinishedAt.Before(completed.CreatedAt))

	stored, err := j.Get(ctx, event.UUID)
	require.NoError(t, err)
	assert.True(t, stored.IsFinished())
	assert.Equal(t, models.AdminTrigger{RemoteAddr: "10.0.0.1", TokenName: "ops", ClientURL: "https://fdp.example.org"}, stored.Payload)
}

func TestJournal_CompletedEventIsImmutable(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()

	event, err := j.Record(ctx, models.WebhookPing{WebhookUUID: "hook"}, nil)
	require.NoError(t, err)
	_, err = j.Complete(ctx, event)
	require.NoError(t, err)

	_, err = j.Complete(ctx, event)
	assert.ErrorIs(t, err, ErrEventImmutable)

	// a stale copy that still looks open is rejected by the store
	stale, err := j.Get(ctx, event.UUID)
	require.NoError(t, err)
	stale.FinishedAt = nil
	_, err = j.Complete(ctx, stale)
	assert.ErrorIs(t, err, ErrEventImmutable)
}

func TestJournal_FinishedNeverBeforeCreated(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()

	created := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return created }
	event, err := j.Record(ctx, models.WebhookPing{WebhookUUID: "hook"}, nil)
	require.NoError(t, err)

	j.now = func() time.Time { return created.Add(-time.Minute) }
	completed, err := j.Complete(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, created, *completed.FinishedAt)
}

func TestJournal_RelatedChain(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()

	trigger, err := j.Record(ctx, models.AdminTrigger{ClientURL: "https://fdp.example.org"}, nil)
	require.NoError(t, err)
	retrieval, err := j.Record(ctx, models.MetadataRetrieval{ClientURL: "https://fdp.example.org"}, &trigger.UUID)
	require.NoError(t, err)

	related, err := j.Related(ctx, retrieval)
	require.NoError(t, err)
	require.NotNil(t, related)
	assert.Equal(t, trigger.UUID, related.UUID)

	none, err := j.Related(ctx, trigger)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestJournal_RejectsUnknownRelated(t *testing.T) {
	j, _ := newTestJournal(t)

	missing := uuid.New().String()
	_, err := j.Record(context.Background(), models.WebhookPing{WebhookUUID: "hook"}, &missing)
	assert.ErrorIs(t, err, ErrInvalidEventChain)
}

func TestJournal_RejectsCycle(t *testing.T) {
	j, events := newTestJournal(t)
	ctx := context.Background()

	first := models.NewIndexEvent(models.WebhookPing{WebhookUUID: "a"}, nil)
	second := models.NewIndexEvent(models.WebhookPing{WebhookUUID: "b"}, nil)
	first.RelatedTo = &second.UUID
	second.RelatedTo = &first.UUID
	require.NoError(t, events.Create(ctx, first))
	require.NoError(t, events.Create(ctx, second))

	_, err := j.Record(ctx, models.WebhookPing{WebhookUUID: "c"}, &first.UUID)
	assert.ErrorIs(t, err, ErrInvalidEventChain)
}

func TestJournal_ListByClientURL(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := j.Record(ctx, models.IncomingPing{RemoteAddr: "a", ClientURL: "https://fdp.example.org"}, nil)
		require.NoError(t, err)
	}
	_, err := j.Record(ctx, models.IncomingPing{RemoteAddr: "a", ClientURL: "https://other.example.org"}, nil)
	require.NoError(t, err)

	events, total, err := j.ListByClientURL(ctx, "https://fdp.example.org", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, events, 2)

	all, total, err := j.List(ctx, "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, all, 4)
}
