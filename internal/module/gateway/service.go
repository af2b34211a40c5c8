package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/boglepay/gateway/internal/module/order"
	"github.com/boglepay/gateway/internal/shared/config"
	errs "github.com/boglepay/gateway/internal/shared/errors"
	"github.com/boglepay/gateway/internal/shared/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds the gateway service configuration.
type Config struct {
	BoglePay  config.BoglePayConfig
	Store     config.StoreConfig
	PublicURL string
}

// Service orchestrates checkout initiation, webhook reconciliation and
// the return-flow confirmation.
type Service struct {
	store      order.Store
	ledger     Ledger
	client     Client
	verifier   *Verifier
	resolver   *Resolver
	reconciler *Reconciler
	cfg        Config
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewService creates a new gateway service.
func NewService(
	store order.Store,
	ledger Ledger,
	client Client,
	cfg Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:      store,
		ledger:     ledger,
		client:     client,
		verifier:   NewVerifier(cfg.BoglePay.WebhookSecret),
		resolver:   NewResolver(store, logger),
		reconciler: NewReconciler(store, logger),
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
	}
}

// --- Webhook processing ---

// ProcessWebhook runs the full inbound pipeline: verify, parse, route,
// resolve, reconcile. ErrInvalidSignature is the only error the HTTP
// layer turns into a non-2xx response; everything else is acked to the
// sender to stop retries of un-actionable events.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, signature string) error {
	if len(payload) == 0 {
		s.logger.Error("webhook received with empty payload")
		s.metrics.RecordWebhookEvent("", "malformed")
		return errs.ErrMalformedPayload
	}

	if s.verifier.SecretConfigured() {
		if !s.verifier.Verify(payload, signature) {
			s.logger.Error("webhook signature verification failed")
			s.metrics.RecordSignatureRejection("mismatch")
			return errs.ErrInvalidSignature
		}
	} else {
		s.logger.Warn("webhook received without signature verification (no secret configured)")
	}

	env, err := ParseEnvelope(payload)
	if err != nil {
		s.logger.Error("webhook received with invalid JSON", zap.Error(err))
		s.metrics.RecordWebhookEvent("", "malformed")
		return err
	}

	s.logger.Info("webhook received", zap.String("event_type", env.EventType))

	event := NewWebhookEvent(env.EventType, payload)
	if err := s.ledger.Record(ctx, event); err != nil {
		// The ledger is an audit trail, not a processing dependency
		s.logger.Error("failed to record webhook event", zap.Error(err))
	}

	procErr := s.routeEvent(ctx, env)

	if err := s.ledger.MarkProcessed(ctx, event.ID, procErr); err != nil {
		s.logger.Error("failed to mark webhook event processed", zap.Error(err))
	}

	return procErr
}

// routeEvent dispatches by event type. Unknown types are acked no-ops.
func (s *Service) routeEvent(ctx context.Context, env *WebhookEnvelope) error {
	switch env.EventType {
	case EventPaymentSucceeded, EventCheckoutCompleted:
		return s.applyResolved(ctx, env, s.reconciler.ApplySucceeded)
	case EventPaymentFailed, EventCheckoutFailed:
		return s.applyResolved(ctx, env, s.reconciler.ApplyFailed)
	case EventRefundCreated, EventRefundSucceeded:
		return s.applyResolved(ctx, env, s.reconciler.ApplyRefund)
	default:
		s.logger.Debug("unhandled webhook event type", zap.String("event_type", env.EventType))
		s.metrics.RecordWebhookEvent(env.EventType, "unknown")
		return nil
	}
}

func (s *Service) applyResolved(
	ctx context.Context,
	env *WebhookEnvelope,
	apply func(context.Context, *order.Order, EventData) error,
) error {
	ord, err := s.resolver.Resolve(ctx, env.Data)
	if err != nil {
		if IsNotFound(err) {
			s.logger.Error("could not find order for webhook",
				zap.String("event_type", env.EventType),
			)
			s.metrics.RecordWebhookEvent(env.EventType, "unresolved")
			return fmt.Errorf("%w: %s", errs.ErrUnresolvedOrder, env.EventType)
		}
		s.metrics.RecordWebhookEvent(env.EventType, "error")
		return fmt.Errorf("resolve order: %w", err)
	}

	if err := apply(ctx, ord, env.Data); err != nil {
		s.metrics.RecordWebhookEvent(env.EventType, "error")
		return err
	}

	s.metrics.RecordWebhookEvent(env.EventType, "applied")
	return nil
}

// --- Checkout initiation ---

// CheckoutRedirect is the result of initiating a checkout.
type CheckoutRedirect struct {
	SessionID   string `json:"session_id"`
	PublicToken string `json:"public_token"`
	RedirectURL string `json:"redirect_url"`
}

// InitiateCheckout creates a checkout session for a pending order,
// stores the session back-references and returns the hosted-checkout
// redirect.
func (s *Service) InitiateCheckout(ctx context.Context, orderID uint64) (*CheckoutRedirect, error) {
	ord, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ord.IsPending() {
		return nil, errs.Conflict("order is not pending payment")
	}

	s.logger.Info("processing payment",
		zap.Uint64("order_id", ord.ID),
		zap.Int64("total_cents", ord.TotalCents),
	)

	params := s.buildCheckoutParams(ord)
	session, err := s.client.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.metrics.RecordCheckoutSession("failed")
		s.logger.Error("failed to create checkout session",
			zap.Uint64("order_id", ord.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	// Session back-references are write-once per order
	if err := s.store.SetMeta(ctx, ord.ID, metaCheckoutSessionID, session.ID); err != nil {
		return nil, fmt.Errorf("store session id: %w", err)
	}
	if err := s.store.SetMeta(ctx, ord.ID, metaPublicToken, session.PublicToken); err != nil {
		return nil, fmt.Errorf("store public token: %w", err)
	}

	redirect := s.hostedCheckoutURL(session.PublicToken)
	s.metrics.RecordCheckoutSession("created")
	s.logger.Info("redirecting to boglepay checkout",
		zap.Uint64("order_id", ord.ID),
		zap.String("session_id", session.ID),
		zap.String("checkout_url", redirect),
	)

	return &CheckoutRedirect{
		SessionID:   session.ID,
		PublicToken: session.PublicToken,
		RedirectURL: redirect,
	}, nil
}

// buildCheckoutParams builds session creation parameters from an order.
func (s *Service) buildCheckoutParams(ord *order.Order) *CheckoutSessionParams {
	lineItems := make([]LineItem, 0, len(ord.Items)+2)
	for _, item := range ord.Items {
		lineItems = append(lineItems, LineItem{
			Description: item.Description,
			AmountCents: item.AmountCents,
		})
	}
	if ord.ShippingCents > 0 {
		lineItems = append(lineItems, LineItem{
			Description: "Shipping",
			AmountCents: ord.ShippingCents,
		})
	}
	if ord.TaxCents > 0 {
		lineItems = append(lineItems, LineItem{
			Description: "Tax",
			AmountCents: ord.TaxCents,
			IsTaxExempt: true, // Already calculated
		})
	}

	expiresIn := int(s.cfg.BoglePay.SessionExpiry.Minutes())
	if expiresIn <= 0 {
		expiresIn = 30
	}

	return &CheckoutSessionParams{
		AmountCents:          ord.TotalCents,
		Currency:             ord.Currency,
		Description:          fmt.Sprintf("Order #%s", ord.Number),
		SuccessURL:           s.successURL(ord),
		CancelURL:            s.cancelURL(ord),
		InvoiceCustomerEmail: ord.Email,
		InvoiceCustomerName:  ord.CustomerName,
		LineItems:            lineItems,
		CustomFields: map[string]any{
			"woo_order_id":     ord.ID,
			"woo_order_number": ord.Number,
			"source":           "gateway-bridge",
		},
		ExpiresInMinutes: expiresIn,
	}
}

// hostedCheckoutURL is where the customer is redirected; the checkout
// page authenticates with the session's public token (cs_*).
func (s *Service) hostedCheckoutURL(publicToken string) string {
	return strings.TrimRight(s.cfg.BoglePay.HostedCheckoutURL, "/") + "/c/" + publicToken
}

func (s *Service) successURL(ord *order.Order) string {
	if custom := s.cfg.Store.SuccessURL; custom != "" {
		return replaceURLPlaceholders(custom, ord)
	}
	return s.callbackURL("/api/v1/checkout/return", ord)
}

func (s *Service) cancelURL(ord *order.Order) string {
	if custom := s.cfg.Store.CancelURL; custom != "" {
		return replaceURLPlaceholders(custom, ord)
	}
	return s.callbackURL("/api/v1/checkout/cancel", ord)
}

func (s *Service) callbackURL(path string, ord *order.Order) string {
	q := url.Values{}
	q.Set("order_id", strconv.FormatUint(ord.ID, 10))
	q.Set("key", ord.Key)
	return strings.TrimRight(s.cfg.PublicURL, "/") + path + "?" + q.Encode()
}

// replaceURLPlaceholders substitutes order data into configured URLs.
func replaceURLPlaceholders(rawURL string, ord *order.Order) string {
	r := strings.NewReplacer(
		"{order_id}", strconv.FormatUint(ord.ID, 10),
		"{order_key}", ord.Key,
		"{order_number}", ord.Number,
	)
	return r.Replace(rawURL)
}

// --- Return flow ---

// HandleReturn processes the customer's return from hosted checkout. It
// polls the stored session and applies the shared mark-paid transition
// when the processor reports the session settled. The returned URL is
// where the customer should be redirected; reconciliation failures
// still produce a redirect.
func (s *Service) HandleReturn(ctx context.Context, orderID uint64, key string) (string, error) {
	ord, err := s.store.GetByID(ctx, orderID)
	if err != nil || !ord.KeyMatches(key) {
		s.logger.Error("invalid return: order not found or key mismatch",
			zap.Uint64("order_id", orderID),
		)
		return s.checkoutURL(), nil
	}

	sessionID, err := s.store.GetMeta(ctx, ord.ID, metaCheckoutSessionID)
	if err != nil {
		return s.thankYouURL(ord), fmt.Errorf("load session meta: %w", err)
	}

	if sessionID != "" {
		session, err := s.client.GetCheckoutSession(ctx, sessionID)
		if err != nil {
			s.logger.Warn("failed to fetch checkout session on return",
				zap.Uint64("order_id", ord.ID),
				zap.Error(err),
			)
		} else if session.IsPaid() {
			if _, err := s.reconciler.ConfirmPaid(ctx, ord, session.TransactionID); err != nil {
				return s.thankYouURL(ord), err
			}
			return s.thankYouURL(ord), nil
		}
	}

	// Payment not confirmed yet; the webhook may not have fired
	if ord.IsPending() {
		if err := s.store.AppendNote(ctx, ord.ID, "Customer returned from BoglePay. Awaiting payment confirmation."); err != nil {
			s.logger.Error("failed to append pending note", zap.Error(err))
		}
	}

	return s.thankYouURL(ord), nil
}

// HandleCancel processes a customer abandoning the hosted checkout.
func (s *Service) HandleCancel(ctx context.Context, orderID uint64, key string) (string, error) {
	ord, err := s.store.GetByID(ctx, orderID)
	if err != nil || !ord.KeyMatches(key) {
		return s.checkoutURL(), nil
	}

	s.logger.Info("customer cancelled checkout", zap.Uint64("order_id", ord.ID))

	if err := s.store.AppendNote(ctx, ord.ID, "Customer cancelled payment on BoglePay checkout page."); err != nil {
		s.logger.Error("failed to append cancel note", zap.Error(err))
	}

	return s.checkoutURL(), nil
}

func (s *Service) checkoutURL() string {
	if s.cfg.Store.CheckoutURL != "" {
		return s.cfg.Store.CheckoutURL
	}
	return "/"
}

func (s *Service) thankYouURL(ord *order.Order) string {
	if s.cfg.Store.ThankYouURL != "" {
		return replaceURLPlaceholders(s.cfg.Store.ThankYouURL, ord)
	}
	return s.checkoutURL()
}

// --- Order intake and admin ---

// CreateOrderInput is the storefront's order registration payload.
type CreateOrderInput struct {
	Number        string `json:"number"`
	Currency      string `json:"currency"`
	TotalCents    int64  `json:"total_cents"`
	ShippingCents int64  `json:"shipping_cents"`
	TaxCents      int64  `json:"tax_cents"`
	Email         string `json:"email"`
	CustomerName  string `json:"customer_name"`
	Items         []struct {
		Description string `json:"description"`
		AmountCents int64  `json:"amount_cents"`
	} `json:"items"`
}

// CreateOrder registers a storefront order with the bridge. The order
// key authenticates later return/cancel callbacks.
func (s *Service) CreateOrder(ctx context.Context, in *CreateOrderInput) (*order.Order, error) {
	if in.TotalCents <= 0 {
		return nil, errs.BadRequest("total_cents must be positive")
	}
	if in.Currency == "" {
		return nil, errs.BadRequest("currency is required")
	}

	ord := &order.Order{
		Number:        in.Number,
		Key:           "ok_" + uuid.NewString(),
		Status:        order.StatusPending,
		Currency:      in.Currency,
		TotalCents:    in.TotalCents,
		ShippingCents: in.ShippingCents,
		TaxCents:      in.TaxCents,
		Email:         in.Email,
		CustomerName:  in.CustomerName,
	}
	if ord.Number == "" {
		ord.Number = uuid.NewString()[:8]
	}
	for _, item := range in.Items {
		ord.Items = append(ord.Items, order.Item{
			Description: item.Description,
			AmountCents: item.AmountCents,
		})
	}

	if err := s.store.Create(ctx, ord); err != nil {
		return nil, err
	}
	return ord, nil
}

// GetOrder returns an order by id.
func (s *Service) GetOrder(ctx context.Context, orderID uint64) (*order.Order, error) {
	return s.store.GetByID(ctx, orderID)
}

// ValidateAPIKey verifies the configured API key against the merchant
// endpoint.
func (s *Service) ValidateAPIKey(ctx context.Context) (*MerchantInfo, error) {
	info, err := s.client.GetMerchantInfo(ctx)
	if err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, fmt.Errorf("invalid API response: missing merchant id")
	}
	return info, nil
}

// Verifier exposes the signature verifier, mainly for tests.
func (s *Service) Verifier() *Verifier {
	return s.verifier
}
