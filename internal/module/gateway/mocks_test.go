package gateway

import (
	"context"

	"github.com/boglepay/gateway/internal/module/order"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStore is a testify mock of order.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Create(ctx context.Context, ord *order.Order) error {
	return m.Called(ctx, ord).Error(0)
}

func (m *MockStore) GetByID(ctx context.Context, id uint64) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockStore) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockStore) FindByMeta(ctx context.Context, key, value string) ([]*order.Order, error) {
	args := m.Called(ctx, key, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*order.Order), args.Error(1)
}

func (m *MockStore) SetMeta(ctx context.Context, orderID uint64, key, value string) error {
	return m.Called(ctx, orderID, key, value).Error(0)
}

func (m *MockStore) GetMeta(ctx context.Context, orderID uint64, key string) (string, error) {
	args := m.Called(ctx, orderID, key)
	return args.String(0), args.Error(1)
}

func (m *MockStore) AppendNote(ctx context.Context, orderID uint64, text string) error {
	return m.Called(ctx, orderID, text).Error(0)
}

func (m *MockStore) MarkPaid(ctx context.Context, orderID uint64, transactionID string) (bool, error) {
	args := m.Called(ctx, orderID, transactionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) UpdateStatus(ctx context.Context, orderID uint64, status order.Status) error {
	return m.Called(ctx, orderID, status).Error(0)
}

// MockLedger is a testify mock of Ledger.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Record(ctx context.Context, event *WebhookEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockLedger) MarkProcessed(ctx context.Context, id uuid.UUID, procErr error) error {
	return m.Called(ctx, id, procErr).Error(0)
}

// MockClient is a testify mock of Client.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateCheckoutSession(ctx context.Context, params *CheckoutSessionParams) (*CheckoutSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CheckoutSession), args.Error(1)
}

func (m *MockClient) GetCheckoutSession(ctx context.Context, idOrToken string) (*CheckoutSession, error) {
	args := m.Called(ctx, idOrToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CheckoutSession), args.Error(1)
}

func (m *MockClient) ConfirmCheckoutSession(ctx context.Context, idOrToken string, payment map[string]any, idempotencyKey string) (*ConfirmResult, error) {
	args := m.Called(ctx, idOrToken, payment, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ConfirmResult), args.Error(1)
}

func (m *MockClient) GetMerchantInfo(ctx context.Context) (*MerchantInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MerchantInfo), args.Error(1)
}
