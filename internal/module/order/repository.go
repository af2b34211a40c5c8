package order

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store defines the order data access the reconciliation core depends on.
// The underlying store must provide read-your-writes consistency for a
// single order id.
type Store interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id uint64) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// FindByMeta returns all orders carrying the given metadata entry,
	// ordered by id. Callers expect a single match.
	FindByMeta(ctx context.Context, key, value string) ([]*Order, error)

	SetMeta(ctx context.Context, orderID uint64, key, value string) error
	GetMeta(ctx context.Context, orderID uint64, key string) (string, error)
	AppendNote(ctx context.Context, orderID uint64, text string) error

	// MarkPaid transitions the order to paid with the given transaction id
	// unless it is already paid. The conditional update is the serialization
	// point for concurrent webhook and return-flow confirmations; the
	// returned bool reports whether this call won the transition.
	MarkPaid(ctx context.Context, orderID uint64, transactionID string) (bool, error)
	UpdateStatus(ctx context.Context, orderID uint64, status Status) error
}

type store struct {
	db *gorm.DB
}

// NewStore creates a gorm-backed order store.
func NewStore(db *gorm.DB) Store {
	return &store{db: db}
}

func (s *store) Create(ctx context.Context, order *Order) error {
	err := s.db.WithContext(ctx).Create(order).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateOrder
	}
	return err
}

func (s *store) GetByID(ctx context.Context, id uint64) (*Order, error) {
	var order Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *store) GetByNumber(ctx context.Context, number string) (*Order, error) {
	var order Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		First(&order, "number = ?", number).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *store) FindByMeta(ctx context.Context, key, value string) ([]*Order, error) {
	var orders []*Order
	err := s.db.WithContext(ctx).
		Joins("JOIN order_meta ON order_meta.order_id = orders.id").
		Where("order_meta.meta_key = ? AND order_meta.meta_value = ?", key, value).
		Order("orders.id").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *store) SetMeta(ctx context.Context, orderID uint64, key, value string) error {
	meta := Meta{
		OrderID:   orderID,
		MetaKey:   key,
		MetaValue: value,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "meta_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"meta_value"}),
		}).
		Create(&meta).Error
}

func (s *store) GetMeta(ctx context.Context, orderID uint64, key string) (string, error) {
	var meta Meta
	err := s.db.WithContext(ctx).
		First(&meta, "order_id = ? AND meta_key = ?", orderID, key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return meta.MetaValue, nil
}

func (s *store) AppendNote(ctx context.Context, orderID uint64, text string) error {
	note := Note{
		OrderID: orderID,
		Text:    text,
	}
	return s.db.WithContext(ctx).Create(&note).Error
}

func (s *store) MarkPaid(ctx context.Context, orderID uint64, transactionID string) (bool, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ? AND status <> ?", orderID, StatusPaid).
		Updates(map[string]any{
			"status":         StatusPaid,
			"transaction_id": transactionID,
			"paid_at":        &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *store) UpdateStatus(ctx context.Context, orderID uint64, status Status) error {
	return s.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ?", orderID).
		Update("status", status).Error
}

// Migrate creates the order tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Order{}, &Item{}, &Meta{}, &Note{})
}
