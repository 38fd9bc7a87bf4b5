package handlers

import (
	"context"
	"io"

	"stock-ledger/internal/cache"
	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/services"

	"github.com/stretchr/testify/mock"
)

type MockStockService struct {
	mock.Mock
}

func (m *MockStockService) Adjust(ctx context.Context, companyID string, req *models.AdjustStockRequest) (*models.AdjustResponseData, error) {
	args := m.Called(ctx, companyID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdjustResponseData), args.Error(1)
}

func (m *MockStockService) AdjustMultiple(ctx context.Context, companyID string, req *models.AdjustMultipleRequest) (*models.AdjustMultipleResponse, error) {
	args := m.Called(ctx, companyID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdjustMultipleResponse), args.Error(1)
}

func (m *MockStockService) GetProduct(ctx context.Context, companyID, productID string) (*models.Product, error) {
	args := m.Called(ctx, companyID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockStockService) ListLowStock(ctx context.Context, companyID string) ([]*models.Product, error) {
	args := m.Called(ctx, companyID)
	return args.Get(0).([]*models.Product), args.Error(1)
}

func (m *MockStockService) ListMovements(ctx context.Context, filter *models.MovementFilter) ([]*models.StockMovement, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*models.StockMovement), args.Error(1)
}

func (m *MockStockService) Verify(ctx context.Context, companyID, productID string) (*ledger.VerifyReport, error) {
	args := m.Called(ctx, companyID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.VerifyReport), args.Error(1)
}

type MockProductService struct {
	mock.Mock
}

func (m *MockProductService) CreateProduct(ctx context.Context, req *models.CreateProductRequest, userID string) (*models.Product, error) {
	args := m.Called(ctx, req, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductService) UpdateProduct(ctx context.Context, companyID, productID string, req *models.UpdateProductRequest) (*models.Product, error) {
	args := m.Called(ctx, companyID, productID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductService) ListProducts(ctx context.Context, companyID string) ([]*models.Product, error) {
	args := m.Called(ctx, companyID)
	return args.Get(0).([]*models.Product), args.Error(1)
}

func (m *MockProductService) GetProductByBarcode(ctx context.Context, companyID, barcode string) (*models.Product, error) {
	args := m.Called(ctx, companyID, barcode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

type MockImportService struct {
	mock.Mock
}

func (m *MockImportService) Import(ctx context.Context, companyID, userID string, r io.Reader) (*models.ImportResult, error) {
	body, _ := io.ReadAll(r)
	args := m.Called(ctx, companyID, userID, string(body))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportResult), args.Error(1)
}

type MockSalesService struct {
	mock.Mock
}

func (m *MockSalesService) QuickSale(ctx context.Context, companyID string, req *models.QuickSaleRequest) (*models.QuickSaleResponse, error) {
	args := m.Called(ctx, companyID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuickSaleResponse), args.Error(1)
}

type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) Run(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockNotificationService) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockNotificationService) LowStockCount(ctx context.Context, companyID string) (int, error) {
	args := m.Called(ctx, companyID)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationService) Subscribe(companyID string, sub services.Subscriber) func() {
	m.Called(companyID, sub)
	return func() {}
}

type MockProductCache struct {
	mock.Mock
}

func (m *MockProductCache) GetStats() cache.CacheStats {
	return m.Called().Get(0).(cache.CacheStats)
}

func (m *MockProductCache) InvalidateProduct(ctx context.Context, companyID, barcode string) error {
	return m.Called(ctx, companyID, barcode).Error(0)
}
