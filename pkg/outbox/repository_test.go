package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/careforall-backend/pkg/db/dbtest"
	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	client := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(client.DB())
	svc := NewService(repo, logger.Nop())
	aggregateID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventPledgeCreated,
			AggregateType: enums.AggregatePledge,
			AggregateID:   aggregateID,
			Actor:         &ActorRef{UserID: "donor-1", Role: "donor"},
			Data:          map[string]any{"pledgeId": aggregateID.String()},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(context.Background(), aggregateID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.OutboxStatusPending, rows[0].Status)
	assert.Zero(t, rows[0].RetryCount)

	envelope, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, EnvelopeVersion, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, "donor-1", envelope.Actor.UserID)

	var data map[string]string
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, aggregateID.String(), data["pledgeId"])
}

func TestEmitRollsBackWithCallerTransaction(t *testing.T) {
	client := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(client.DB())
	svc := NewService(repo, nil)
	aggregateID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventPledgeCaptured,
			AggregateType: enums.AggregatePledge,
			AggregateID:   aggregateID,
			Data:          map[string]any{"amount": 10},
		}); err != nil {
			return err
		}
		return errors.New("domain write failed")
	})
	require.Error(t, err)

	rows, err := repo.ListByAggregate(context.Background(), aggregateID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{AggregateID: uuid.New()})
	require.Error(t, err)
}

func TestFetchPendingOrdersOldestFirstAndSkipsExhausted(t *testing.T) {
	client := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(client.DB())
	base := time.Now().UTC().Add(-time.Hour)

	seed := []models.OutboxEvent{
		{EventType: enums.EventPledgeCreated, AggregateType: enums.AggregatePledge, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: base.Add(2 * time.Minute)},
		{EventType: enums.EventPledgeCreated, AggregateType: enums.AggregatePledge, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: base},
		{EventType: enums.EventPledgeCreated, AggregateType: enums.AggregatePledge, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: base.Add(time.Minute), RetryCount: 5},
		{EventType: enums.EventPledgeCreated, AggregateType: enums.AggregatePledge, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: base.Add(3 * time.Minute), Status: enums.OutboxStatusPublished},
	}
	for i := range seed {
		require.NoError(t, client.DB().Create(&seed[i]).Error)
	}

	var rows []models.OutboxEvent
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		rows, err = repo.FetchPendingForUpdate(tx, 10, 5)
		return err
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, seed[1].ID, rows[0].ID)
	assert.Equal(t, seed[0].ID, rows[1].ID)
}

func TestRecordFailureQuarantinesAtMax(t *testing.T) {
	client := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(client.DB())
	event := models.OutboxEvent{EventType: enums.EventPledgeCreated, AggregateType: enums.AggregatePledge, AggregateID: uuid.New(), Payload: []byte(`{}`), RetryCount: 3}
	require.NoError(t, client.DB().Create(&event).Error)

	failed, err := repo.RecordFailure(client.DB(), event, errors.New("bus down"), 5)
	require.NoError(t, err)
	assert.False(t, failed)

	event.RetryCount = 4
	failed, err = repo.RecordFailure(client.DB(), event, errors.New("bus down"), 5)
	require.NoError(t, err)
	assert.True(t, failed)

	stored, err := repo.FindByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxStatusFailed, stored.Status)
	assert.Equal(t, 5, stored.RetryCount)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "bus down", *stored.LastError)
}

func TestRecordFailureKeepsLastErrorValidUTF8(t *testing.T) {
	client := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(client.DB())
	event := models.OutboxEvent{EventType: enums.EventPledgeCaptured, AggregateType: enums.AggregatePledge, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	require.NoError(t, client.DB().Create(&event).Error)

	// The two-byte prefix makes the cut land inside a three-byte rune.
	cause := errors.New("xx" + strings.Repeat("€", maxLastErrorLen))
	_, err := repo.RecordFailure(client.DB(), event, cause, 5)
	require.NoError(t, err)

	stored, err := repo.FindByID(context.Background(), event.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastError)
	assert.True(t, utf8.ValidString(*stored.LastError))
	assert.LessOrEqual(t, len(*stored.LastError), maxLastErrorLen)
	assert.Equal(t, maxLastErrorLen-2, len(*stored.LastError))
	assert.Equal(t, 1, stored.RetryCount)
}

func TestTruncateErrorLeavesShortMessages(t *testing.T) {
	assert.Nil(t, truncateError(nil))
	got := truncateError(errors.New("bus down"))
	require.NotNil(t, got)
	assert.Equal(t, "bus down", *got)
	assert.Equal(t, "bad \uFFFD", *truncateError(errors.New("bad \xff")))
}

func TestRequeueOnlyResetsFailedRows(t *testing.T) {
	client := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(client.DB())
	ctx := context.Background()

	failed := models.OutboxEvent{EventType: enums.EventPledgeCaptured, AggregateType: enums.AggregatePledge, AggregateID: uuid.New(), Payload: []byte(`{}`), RetryCount: 5, Status: enums.OutboxStatusFailed}
	pending := models.OutboxEvent{EventType: enums.EventPledgeCaptured, AggregateType: enums.AggregatePledge, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	require.NoError(t, client.DB().Create(&failed).Error)
	require.NoError(t, client.DB().Create(&pending).Error)

	listed, err := repo.ListFailed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	requeued, err := repo.Requeue(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxStatusPending, requeued.Status)
	assert.Zero(t, requeued.RetryCount)

	_, err = repo.Requeue(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrNotFailed)

	missing, err := repo.Requeue(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	count, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}
