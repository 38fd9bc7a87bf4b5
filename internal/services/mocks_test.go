package services

import (
	"context"
	"sync"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockStockLedger struct {
	mock.Mock
}

func (m *MockStockLedger) Adjust(ctx context.Context, req ledger.AdjustRequest) (*ledger.AdjustResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.AdjustResult), args.Error(1)
}

func (m *MockStockLedger) Verify(ctx context.Context, companyID, productID string) (*ledger.VerifyReport, error) {
	args := m.Called(ctx, companyID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.VerifyReport), args.Error(1)
}

type MockStockRepository struct {
	mock.Mock
}

func (m *MockStockRepository) GetProduct(ctx context.Context, companyID, productID string) (*models.Product, error) {
	args := m.Called(ctx, companyID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockStockRepository) SetQuantity(ctx context.Context, productID string, quantity int) error {
	return m.Called(ctx, productID, quantity).Error(0)
}

func (m *MockStockRepository) CompareAndSetQuantity(ctx context.Context, productID string, expectedVersion, quantity int) (bool, error) {
	args := m.Called(ctx, productID, expectedVersion, quantity)
	return args.Bool(0), args.Error(1)
}

func (m *MockStockRepository) InsertMovement(ctx context.Context, movement *models.StockMovement) error {
	return m.Called(ctx, movement).Error(0)
}

func (m *MockStockRepository) ListProductMovements(ctx context.Context, companyID, productID string) ([]*models.StockMovement, error) {
	args := m.Called(ctx, companyID, productID)
	return args.Get(0).([]*models.StockMovement), args.Error(1)
}

func (m *MockStockRepository) WithinTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	return fn(m)
}

func (m *MockStockRepository) ListMovements(ctx context.Context, filter *models.MovementFilter) ([]*models.StockMovement, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*models.StockMovement), args.Error(1)
}

type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) CreateProduct(ctx context.Context, product *models.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *MockProductRepository) UpdateProduct(ctx context.Context, product *models.Product) (*string, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*string), args.Error(1)
}

func (m *MockProductRepository) DeleteProduct(ctx context.Context, companyID, productID string) error {
	return m.Called(ctx, companyID, productID).Error(0)
}

func (m *MockProductRepository) GetProductBySKU(ctx context.Context, companyID, sku string) (*models.Product, error) {
	args := m.Called(ctx, companyID, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductRepository) GetProductByBarcode(ctx context.Context, companyID, barcode string) (*models.Product, error) {
	args := m.Called(ctx, companyID, barcode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductRepository) ListProducts(ctx context.Context, companyID string) ([]*models.Product, error) {
	args := m.Called(ctx, companyID)
	return args.Get(0).([]*models.Product), args.Error(1)
}

func (m *MockProductRepository) ListLowStock(ctx context.Context, companyID string) ([]*models.Product, error) {
	args := m.Called(ctx, companyID)
	return args.Get(0).([]*models.Product), args.Error(1)
}

func (m *MockProductRepository) ListCompanies(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event interface{}) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) Close() error {
	return m.Called().Error(0)
}

// fakeSubscriber registra los mensajes recibidos.
type fakeSubscriber struct {
	mu       sync.Mutex
	messages []interface{}
	failWith error
	closed   bool
}

func (f *fakeSubscriber) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.messages = append(f.messages, v)
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// stalledSubscriber bloquea WriteJSON hasta que se cierre release.
type stalledSubscriber struct {
	writing chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStalledSubscriber() *stalledSubscriber {
	return &stalledSubscriber{writing: make(chan struct{}), release: make(chan struct{})}
}

func (s *stalledSubscriber) WriteJSON(v interface{}) error {
	s.once.Do(func() { close(s.writing) })
	<-s.release
	return nil
}

func (s *stalledSubscriber) Close() error {
	return nil
}
