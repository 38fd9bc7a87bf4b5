package services

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"stock-ledger/internal/cache"
	"stock-ledger/internal/events"
	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Columnas reconocidas en la cabecera del CSV
const (
	colSKU         = "sku"
	colName        = "name"
	colBarcode     = "barcode"
	colPrice       = "price"
	colQuantity    = "quantity"
	colMinQuantity = "min_quantity"
)

var requiredColumns = []string{colSKU, colName, colQuantity}

// ErrInvalidImportFile el archivo no tiene una cabecera utilizable.
var ErrInvalidImportFile = errors.New("invalid import file")

// ImportService importación masiva de productos
type ImportService interface {
	Import(ctx context.Context, companyID, userID string, r io.Reader) (*models.ImportResult, error)
}

type importService struct {
	ledger        StockLedger
	stockRepo     repository.StockRepository
	productRepo   repository.ProductRepository
	cache         *cache.ProductCache
	publisher     events.Publisher
	routeAllPaths bool
	logger        *zap.Logger
}

func NewImportService(
	l StockLedger,
	stockRepo repository.StockRepository,
	productRepo repository.ProductRepository,
	productCache *cache.ProductCache,
	publisher events.Publisher,
	routeAllPaths bool,
	logger *zap.Logger,
) ImportService {
	return &importService{
		ledger:        l,
		stockRepo:     stockRepo,
		productRepo:   productRepo,
		cache:         productCache,
		publisher:     publisher,
		routeAllPaths: routeAllPaths,
		logger:        logger,
	}
}

// ParseCSV lee filas sku,name,barcode,price,quantity,min_quantity. El orden de las
// columnas lo define la cabecera. Las filas inválidas se reportan y se omiten.
func ParseCSV(r io.Reader) ([]models.ImportRow, []models.ImportRowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidImportFile, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, nil, fmt.Errorf("%w: missing column %q", ErrInvalidImportFile, col)
		}
	}

	var (
		rows      []models.ImportRow
		rowErrors []models.ImportRowError
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rowErrors = append(rowErrors, models.ImportRowError{Line: parseErr.Line, Error: parseErr.Err.Error()})
				continue
			}
			return nil, nil, err
		}
		line, _ := reader.FieldPos(0)

		row, err := parseRow(record, index)
		row.Line = line
		if err != nil {
			rowErrors = append(rowErrors, models.ImportRowError{Line: line, SKU: row.SKU, Error: err.Error()})
			continue
		}
		rows = append(rows, row)
	}

	return rows, rowErrors, nil
}

func parseRow(record []string, index map[string]int) (models.ImportRow, error) {
	field := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := models.ImportRow{
		SKU:  field(colSKU),
		Name: field(colName),
	}
	if row.SKU == "" {
		return row, errors.New("sku is required")
	}
	if row.Name == "" {
		return row, errors.New("name is required")
	}
	if barcode := field(colBarcode); barcode != "" {
		row.Barcode = &barcode
	}

	if v := field(colPrice); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil || price.IsNegative() {
			return row, fmt.Errorf("invalid price %q", v)
		}
		row.Price = price
	}

	quantity, err := parseNonNegative(field(colQuantity), colQuantity)
	if err != nil {
		return row, err
	}
	row.Quantity = quantity

	if v := field(colMinQuantity); v != "" {
		if row.MinQuantity, err = parseNonNegative(v, colMinQuantity); err != nil {
			return row, err
		}
	}

	return row, nil
}

func parseNonNegative(v, col string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", col, v)
	}
	return n, nil
}

// Import crea los SKU nuevos y actualiza los existentes. Con routeAllPaths la
// cantidad cambia solo a través del ledger (source=import).
func (s *importService) Import(ctx context.Context, companyID, userID string, r io.Reader) (*models.ImportResult, error) {
	rows, rowErrors, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(
		zap.String("operation", "import"),
		zap.String("company_id", companyID),
		zap.Int("rows", len(rows)),
		zap.Bool("via_ledger", s.routeAllPaths),
	)

	result := &models.ImportResult{
		Errors:    rowErrors,
		Failed:    len(rowErrors),
		ViaLedger: s.routeAllPaths,
	}

	for _, row := range rows {
		created, changed, err := s.importRow(ctx, companyID, userID, row)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			result.Failed++
			result.Errors = append(result.Errors, models.ImportRowError{Line: row.Line, SKU: row.SKU, Error: err.Error()})
			continue
		}
		switch {
		case created:
			result.Created++
		case changed:
			result.Updated++
		default:
			result.Unchanged++
		}
	}

	logger.Info("Import completed",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed))

	return result, nil
}

func (s *importService) importRow(ctx context.Context, companyID, userID string, row models.ImportRow) (created, changed bool, err error) {
	existing, err := s.productRepo.GetProductBySKU(ctx, companyID, row.SKU)
	if err != nil {
		return false, false, err
	}

	if existing == nil {
		return true, true, s.createFromRow(ctx, companyID, userID, row)
	}

	changed = existing.Name != row.Name ||
		existing.BarcodeValue() != valueOf(row.Barcode) ||
		!existing.Price.Equal(row.Price) ||
		existing.MinQuantity != row.MinQuantity

	if changed {
		update := &models.Product{
			ID:          existing.ID,
			CompanyID:   companyID,
			Name:        row.Name,
			Barcode:     row.Barcode,
			Price:       row.Price,
			MinQuantity: row.MinQuantity,
		}
		previous, err := s.productRepo.UpdateProduct(ctx, update)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, false, ledger.ErrProductNotFound
			}
			return false, false, err
		}
		existing.Quantity = update.Quantity
		existing.Barcode = update.Barcode
		invalidateBarcodes(ctx, s.cache, s.logger, update, previous)
	}

	delta := row.Quantity - existing.Quantity
	if delta == 0 {
		return false, changed, nil
	}

	if s.routeAllPaths {
		direction := models.MovementIn
		amount := delta
		if delta < 0 {
			direction, amount = models.MovementOut, -delta
		}
		res, err := s.ledger.Adjust(ctx, ledger.AdjustRequest{
			CompanyID: companyID,
			ProductID: existing.ID,
			Direction: direction,
			Amount:    amount,
			Notes:     fmt.Sprintf("import line %d", row.Line),
			Source:    models.SourceImport,
			UserID:    userID,
		})
		if err != nil {
			return false, false, err
		}
		afterAdjust(ctx, s.cache, s.publisher, s.logger, companyID, res)
		return false, true, nil
	}

	if err := s.stockRepo.SetQuantity(ctx, existing.ID, row.Quantity); err != nil {
		return false, false, err
	}
	invalidateBarcodes(ctx, s.cache, s.logger, existing, nil)
	return false, true, nil
}

func (s *importService) createFromRow(ctx context.Context, companyID, userID string, row models.ImportRow) error {
	product := &models.Product{
		ID:          uuid.New().String(),
		CompanyID:   companyID,
		SKU:         row.SKU,
		Name:        row.Name,
		Barcode:     row.Barcode,
		Price:       row.Price,
		Quantity:    row.Quantity,
		MinQuantity: row.MinQuantity,
	}
	opening := 0
	if s.routeAllPaths {
		opening, product.Quantity = row.Quantity, 0
	}

	res, err := createWithOpeningBalance(ctx, s.productRepo, s.ledger, product, opening, models.SourceImport, userID, s.logger)
	if err != nil {
		return err
	}
	if res != nil {
		afterAdjust(ctx, s.cache, s.publisher, s.logger, companyID, res)
	}
	return nil
}

func valueOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
