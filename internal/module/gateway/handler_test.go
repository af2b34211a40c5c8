package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boglepay/gateway/internal/module/order"
	"github.com/boglepay/gateway/internal/shared/config"
	"github.com/boglepay/gateway/internal/shared/logger"
	"github.com/boglepay/gateway/internal/shared/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSignatureHeader = "X-BOGLEPAY-SIGNATURE"

func newTestRouter(store *MockStore, ledger *MockLedger, client *MockClient, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)

	cfg := Config{
		BoglePay: config.BoglePayConfig{
			WebhookSecret:     secret,
			HostedCheckoutURL: "https://checkout.test",
			SessionExpiry:     30 * time.Minute,
		},
		Store:     config.StoreConfig{CheckoutURL: "https://shop.test/checkout"},
		PublicURL: "https://bridge.test",
	}
	m := metrics.NewWith(prometheus.NewRegistry(), "test")
	svc := NewService(store, ledger, client, cfg, m, logger.NewNop())
	h := NewHandler(svc, testSignatureHeader, logger.NewNop())

	r := gin.New()
	h.RegisterWebhookRoutes(r)
	noop := func(c *gin.Context) { c.Next() }
	h.RegisterRoutes(r.Group("/api/v1"), noop)
	return r
}

func TestHandler_HandleWebhook(t *testing.T) {
	t.Run("invalid signature returns 401", func(t *testing.T) {
		r := newTestRouter(new(MockStore), new(MockLedger), new(MockClient), testSecret)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/boglepay",
			bytes.NewBufferString(`{"event_type":"payment.succeeded","data":{}}`))
		req.Header.Set(testSignatureHeader, "t=1,v1=deadbeef")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"Invalid signature"}`, w.Body.String())
	})

	t.Run("missing signature returns 401", func(t *testing.T) {
		r := newTestRouter(new(MockStore), new(MockLedger), new(MockClient), testSecret)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/boglepay",
			bytes.NewBufferString(`{"event_type":"payment.succeeded","data":{}}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed payload is acked with 200", func(t *testing.T) {
		ledger := new(MockLedger)
		allowLedger(ledger)
		r := newTestRouter(new(MockStore), ledger, new(MockClient), "")

		req := httptest.NewRequest(http.MethodPost, "/webhooks/boglepay",
			bytes.NewBufferString(`{not json`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"received":true}`, w.Body.String())
	})

	t.Run("unresolved order is acked with 200", func(t *testing.T) {
		ledger := new(MockLedger)
		allowLedger(ledger)
		store := new(MockStore)
		store.On("FindByMeta", mock.Anything, metaCheckoutSessionID, "cs_gone").
			Return([]*order.Order{}, nil)
		r := newTestRouter(store, ledger, new(MockClient), "")

		req := httptest.NewRequest(http.MethodPost, "/webhooks/boglepay",
			bytes.NewBufferString(`{"event_type":"payment.succeeded","data":{"checkout_session_id":"cs_gone"}}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"received":true}`, w.Body.String())
	})

	t.Run("unknown event type is acked with 200", func(t *testing.T) {
		ledger := new(MockLedger)
		allowLedger(ledger)
		r := newTestRouter(new(MockStore), ledger, new(MockClient), "")

		req := httptest.NewRequest(http.MethodPost, "/webhooks/boglepay",
			bytes.NewBufferString(`{"event_type":"customer.updated","data":{}}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("dashboard-style path works too", func(t *testing.T) {
		ledger := new(MockLedger)
		allowLedger(ledger)
		r := newTestRouter(new(MockStore), ledger, new(MockClient), "")

		req := httptest.NewRequest(http.MethodPost, "/boglepay/v1/webhook",
			bytes.NewBufferString(`{"event_type":"ping","data":{}}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestHandler_InitiateCheckout(t *testing.T) {
	t.Run("returns redirect payload", func(t *testing.T) {
		store := new(MockStore)
		store.On("GetByID", mock.Anything, uint64(5)).Return(&order.Order{
			ID: 5, Number: "1005", Status: order.StatusPending,
			Currency: "USD", TotalCents: 1000,
		}, nil)
		store.On("SetMeta", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

		client := new(MockClient)
		client.On("CreateCheckoutSession", mock.Anything, mock.Anything).
			Return(&CheckoutSession{ID: "cs_1", PublicToken: "tok_1"}, nil)

		r := newTestRouter(store, new(MockLedger), client, testSecret)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/5/checkout", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var got CheckoutRedirect
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "https://checkout.test/c/tok_1", got.RedirectURL)
	})

	t.Run("unknown order returns 404", func(t *testing.T) {
		store := new(MockStore)
		store.On("GetByID", mock.Anything, uint64(99)).Return(nil, order.ErrOrderNotFound)

		r := newTestRouter(store, new(MockLedger), new(MockClient), testSecret)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/99/checkout", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("already paid returns 409", func(t *testing.T) {
		store := new(MockStore)
		store.On("GetByID", mock.Anything, uint64(5)).
			Return(&order.Order{ID: 5, Status: order.StatusPaid}, nil)

		r := newTestRouter(store, new(MockLedger), new(MockClient), testSecret)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/5/checkout", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("bad order id returns 400", func(t *testing.T) {
		r := newTestRouter(new(MockStore), new(MockLedger), new(MockClient), testSecret)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/abc/checkout", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_Callbacks(t *testing.T) {
	t.Run("return redirects with 302", func(t *testing.T) {
		store := new(MockStore)
		store.On("GetByID", mock.Anything, uint64(8)).
			Return(&order.Order{ID: 8, Key: "ok_8", Status: order.StatusPending}, nil)
		store.On("GetMeta", mock.Anything, uint64(8), metaCheckoutSessionID).Return("", order.ErrOrderNotFound)

		r := newTestRouter(store, new(MockLedger), new(MockClient), testSecret)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/return?order_id=8&key=ok_8", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
	})

	t.Run("cancel redirects to checkout URL", func(t *testing.T) {
		store := new(MockStore)
		store.On("GetByID", mock.Anything, uint64(8)).
			Return(&order.Order{ID: 8, Key: "ok_8", Status: order.StatusPending}, nil)
		store.On("AppendNote", mock.Anything, uint64(8), mock.Anything).Return(nil)

		r := newTestRouter(store, new(MockLedger), new(MockClient), testSecret)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/cancel?order_id=8&key=ok_8", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://shop.test/checkout", w.Header().Get("Location"))
	})

	t.Run("missing order_id returns 400", func(t *testing.T) {
		r := newTestRouter(new(MockStore), new(MockLedger), new(MockClient), testSecret)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/return?key=ok_8", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_CreateOrder(t *testing.T) {
	t.Run("creates order", func(t *testing.T) {
		store := new(MockStore)
		store.On("Create", mock.Anything, mock.Anything).Return(nil)

		r := newTestRouter(store, new(MockLedger), new(MockClient), testSecret)
		body := `{"number":"1042","currency":"USD","total_cents":2500}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("invalid body returns 400", func(t *testing.T) {
		r := newTestRouter(new(MockStore), new(MockLedger), new(MockClient), testSecret)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(`{`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("zero total returns 400", func(t *testing.T) {
		r := newTestRouter(new(MockStore), new(MockLedger), new(MockClient), testSecret)
		body := `{"currency":"USD","total_cents":0}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_ValidateAPIKey(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		client := new(MockClient)
		client.On("GetMerchantInfo", mock.Anything).
			Return(&MerchantInfo{ID: "m_1", DisplayName: "Acme", Status: "active"}, nil)

		r := newTestRouter(new(MockStore), new(MockLedger), client, testSecret)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/gateway/validate", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var got map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, true, got["valid"])
		assert.Equal(t, "m_1", got["merchant_id"])
	})

	t.Run("invalid key reports valid=false", func(t *testing.T) {
		client := new(MockClient)
		client.On("GetMerchantInfo", mock.Anything).
			Return(nil, &APIError{StatusCode: 401, Code: "invalid_api_key", Message: "Invalid API key"})

		r := newTestRouter(new(MockStore), new(MockLedger), client, testSecret)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/gateway/validate", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var got map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, false, got["valid"])
	})
}
