package gateway

import (
	"context"
	"errors"

	"github.com/boglepay/gateway/internal/module/order"
	"go.uber.org/zap"
)

// Order metadata keys holding the session back-references. Both are set
// once when the checkout session is created and used only for reverse
// lookup.
const (
	metaCheckoutSessionID = "_boglepay_checkout_session_id"
	metaPublicToken       = "_boglepay_public_token"
)

// Resolver maps webhook-carried identifiers to exactly one local order.
type Resolver struct {
	store  order.Store
	logger *zap.Logger
}

// NewResolver creates a new order resolver.
func NewResolver(store order.Store, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
	}
}

// Resolve finds the order referenced by the event data. Precedence:
// custom_fields.woo_order_id, then checkout_session_id, then
// public_token; first present field wins. A present field that matches
// no order fails the resolution outright; there is no fall-through to
// lower-precedence fields.
func (r *Resolver) Resolve(ctx context.Context, data EventData) (*order.Order, error) {
	if data.CustomFields().Has("woo_order_id") {
		id, ok := data.CustomFields().Int64("woo_order_id")
		if !ok || id <= 0 {
			return nil, order.ErrOrderNotFound
		}
		return r.store.GetByID(ctx, uint64(id))
	}

	if sessionID := data.String("checkout_session_id"); sessionID != "" {
		return r.resolveByMeta(ctx, metaCheckoutSessionID, sessionID)
	}

	if token := data.String("public_token"); token != "" {
		return r.resolveByMeta(ctx, metaPublicToken, token)
	}

	return nil, order.ErrOrderNotFound
}

func (r *Resolver) resolveByMeta(ctx context.Context, key, value string) (*order.Order, error) {
	orders, err := r.store.FindByMeta(ctx, key, value)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, order.ErrOrderNotFound
	}
	if len(orders) > 1 {
		// Several orders carrying the same session reference point to a
		// data-integrity problem upstream; take the first and flag it.
		r.logger.Warn("multiple orders match metadata lookup",
			zap.String("meta_key", key),
			zap.String("meta_value", value),
			zap.Int("matches", len(orders)),
		)
	}
	return orders[0], nil
}

// IsNotFound reports whether err is an order-resolution failure.
func IsNotFound(err error) bool {
	return errors.Is(err, order.ErrOrderNotFound)
}
