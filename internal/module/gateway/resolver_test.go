package gateway

import (
	"context"
	"testing"

	"github.com/boglepay/gateway/internal/module/order"
	"github.com/boglepay/gateway/internal/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	ord := &order.Order{ID: 42, Status: order.StatusPending}

	t.Run("woo_order_id takes precedence", func(t *testing.T) {
		store := new(MockStore)
		store.On("GetByID", ctx, uint64(42)).Return(ord, nil)

		r := NewResolver(store, logger.NewNop())
		got, err := r.Resolve(ctx, EventData{
			"custom_fields":       map[string]any{"woo_order_id": float64(42)},
			"checkout_session_id": "cs_other",
		})

		require.NoError(t, err)
		assert.Equal(t, uint64(42), got.ID)
		store.AssertNotCalled(t, "FindByMeta", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unmatched woo_order_id does not fall through", func(t *testing.T) {
		store := new(MockStore)
		store.On("GetByID", ctx, uint64(999)).Return(nil, order.ErrOrderNotFound)

		r := NewResolver(store, logger.NewNop())
		_, err := r.Resolve(ctx, EventData{
			"custom_fields":       map[string]any{"woo_order_id": float64(999)},
			"checkout_session_id": "cs_match",
		})

		assert.ErrorIs(t, err, order.ErrOrderNotFound)
		store.AssertNotCalled(t, "FindByMeta", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("non-numeric woo_order_id fails resolution", func(t *testing.T) {
		store := new(MockStore)

		r := NewResolver(store, logger.NewNop())
		_, err := r.Resolve(ctx, EventData{
			"custom_fields": map[string]any{"woo_order_id": "garbage"},
		})

		assert.ErrorIs(t, err, order.ErrOrderNotFound)
		store.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("falls to session id when custom field absent", func(t *testing.T) {
		store := new(MockStore)
		store.On("FindByMeta", ctx, metaCheckoutSessionID, "cs_123").
			Return([]*order.Order{ord}, nil)

		r := NewResolver(store, logger.NewNop())
		got, err := r.Resolve(ctx, EventData{
			"checkout_session_id": "cs_123",
			"public_token":        "tok_unused",
		})

		require.NoError(t, err)
		assert.Equal(t, uint64(42), got.ID)
	})

	t.Run("unmatched session id does not fall through to token", func(t *testing.T) {
		store := new(MockStore)
		store.On("FindByMeta", ctx, metaCheckoutSessionID, "cs_gone").
			Return([]*order.Order{}, nil)

		r := NewResolver(store, logger.NewNop())
		_, err := r.Resolve(ctx, EventData{
			"checkout_session_id": "cs_gone",
			"public_token":        "tok_match",
		})

		assert.ErrorIs(t, err, order.ErrOrderNotFound)
		store.AssertNumberOfCalls(t, "FindByMeta", 1)
	})

	t.Run("public token as last resort", func(t *testing.T) {
		store := new(MockStore)
		store.On("FindByMeta", ctx, metaPublicToken, "cs_pub").
			Return([]*order.Order{ord}, nil)

		r := NewResolver(store, logger.NewNop())
		got, err := r.Resolve(ctx, EventData{"public_token": "cs_pub"})

		require.NoError(t, err)
		assert.Equal(t, uint64(42), got.ID)
	})

	t.Run("no identifiers at all", func(t *testing.T) {
		r := NewResolver(new(MockStore), logger.NewNop())
		_, err := r.Resolve(ctx, EventData{"amount_cents": float64(100)})
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
	})

	t.Run("multiple matches take the first", func(t *testing.T) {
		other := &order.Order{ID: 43}
		store := new(MockStore)
		store.On("FindByMeta", ctx, metaCheckoutSessionID, "cs_dup").
			Return([]*order.Order{ord, other}, nil)

		r := NewResolver(store, logger.NewNop())
		got, err := r.Resolve(ctx, EventData{"checkout_session_id": "cs_dup"})

		require.NoError(t, err)
		assert.Equal(t, uint64(42), got.ID)
	})
}
