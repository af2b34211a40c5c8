package gateway

import (
	"context"
	"fmt"

	"github.com/boglepay/gateway/internal/module/order"
	"go.uber.org/zap"
)

// Reconciler applies verified payment events to the order's payment
// state. Success is guarded by the store's conditional mark-paid update,
// so concurrent redeliveries and the webhook/return-flow race collapse
// to a single observable paid transition.
type Reconciler struct {
	store  order.Store
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(store order.Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger,
	}
}

// ApplySucceeded marks the order paid with the event's transaction id.
// Already-paid orders are a no-op.
func (r *Reconciler) ApplySucceeded(ctx context.Context, ord *order.Order, data EventData) error {
	transactionID := data.String("transaction_id")
	if transactionID == "" {
		transactionID = data.String("id")
	}

	won, err := r.store.MarkPaid(ctx, ord.ID, transactionID)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	if !won {
		r.logger.Debug("order already paid, skipping",
			zap.Uint64("order_id", ord.ID),
		)
		return nil
	}

	note := fmt.Sprintf("Payment confirmed via BoglePay webhook. Transaction ID: %s", transactionID)
	if err := r.store.AppendNote(ctx, ord.ID, note); err != nil {
		return fmt.Errorf("append note: %w", err)
	}

	// Persist the session reference for future idempotent lookups
	if sessionID := data.String("checkout_session_id"); sessionID != "" {
		if err := r.store.SetMeta(ctx, ord.ID, metaCheckoutSessionID, sessionID); err != nil {
			return fmt.Errorf("set session meta: %w", err)
		}
	}

	r.logger.Info("order marked as paid via webhook",
		zap.Uint64("order_id", ord.ID),
		zap.String("transaction_id", transactionID),
	)
	return nil
}

// ApplyFailed sets the order to failed. The transition is deliberately
// not idempotency-guarded: failure has no monetary side effect to
// duplicate, so redelivery re-applies the same terminal status.
func (r *Reconciler) ApplyFailed(ctx context.Context, ord *order.Order, data EventData) error {
	reason := data.String("failure_message")
	if reason == "" {
		reason = "Payment failed"
	}

	if err := r.store.UpdateStatus(ctx, ord.ID, order.StatusFailed); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	note := fmt.Sprintf("Payment failed via BoglePay: %s", reason)
	if err := r.store.AppendNote(ctx, ord.ID, note); err != nil {
		return fmt.Errorf("append note: %w", err)
	}

	r.logger.Info("order marked as failed via webhook",
		zap.Uint64("order_id", ord.ID),
		zap.String("reason", reason),
	)
	return nil
}

// ApplyRefund records the refund as an append-only note. Refunds do not
// change the local payment state, and redelivered refund events append
// the note again; there is no dedup key on the wire to anchor one.
func (r *Reconciler) ApplyRefund(ctx context.Context, ord *order.Order, data EventData) error {
	amountCents, _ := data.Int64("amount_cents")
	refundID := data.String("id")

	note := fmt.Sprintf("Refund of %.2f %s processed via BoglePay. Refund ID: %s",
		float64(amountCents)/100, ord.Currency, refundID)
	if err := r.store.AppendNote(ctx, ord.ID, note); err != nil {
		return fmt.Errorf("append note: %w", err)
	}

	r.logger.Info("refund noted via webhook",
		zap.Uint64("order_id", ord.ID),
		zap.String("refund_id", refundID),
		zap.Int64("amount_cents", amountCents),
	)
	return nil
}

// ConfirmPaid applies the mark-paid effect from the return-flow poll.
// It funnels through the same conditional update as ApplySucceeded, so
// whichever path runs second is a no-op.
func (r *Reconciler) ConfirmPaid(ctx context.Context, ord *order.Order, transactionID string) (bool, error) {
	won, err := r.store.MarkPaid(ctx, ord.ID, transactionID)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	if !won {
		return false, nil
	}

	note := fmt.Sprintf("Payment completed via BoglePay. Transaction ID: %s", transactionID)
	if err := r.store.AppendNote(ctx, ord.ID, note); err != nil {
		return true, fmt.Errorf("append note: %w", err)
	}

	r.logger.Info("payment completed on return",
		zap.Uint64("order_id", ord.ID),
		zap.String("transaction_id", transactionID),
	)
	return true, nil
}
