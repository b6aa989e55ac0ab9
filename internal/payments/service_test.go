package payments

import (
	"context"
	"testing"

	"github.com/angelmondragon/careforall-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIntent(t *testing.T) {
	h := newPaymentsHarness(t)

	txn, err := h.svc.CreateIntent(context.Background(), CreateIntentInput{PledgeID: " pledge-1 ", Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, "pledge-1", txn.PledgeID)
	assert.Equal(t, enums.PaymentTransactionPending, txn.Status)
	assert.NotEmpty(t, txn.PaymentIntentID)

	_, err = h.svc.CreateIntent(context.Background(), CreateIntentInput{Amount: 0})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAuthorizeAndCaptureScheduleProviderCallbacks(t *testing.T) {
	h := newPaymentsHarness(t)
	ctx := context.Background()
	txn := h.intent(t, "pledge-1")

	_, err := h.svc.Authorize(ctx, txn.PaymentIntentID)
	require.NoError(t, err)
	_, err = h.svc.Capture(ctx, txn.PaymentIntentID)
	require.NoError(t, err)

	require.Len(t, h.provider.authorized, 1)
	require.Len(t, h.provider.captured, 1)
	assert.Equal(t, txn.PaymentIntentID, h.provider.captured[0].PaymentIntentID)

	_, err = h.svc.Authorize(ctx, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = h.svc.Capture(ctx, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
