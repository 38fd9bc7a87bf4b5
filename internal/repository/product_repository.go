package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stock-ledger/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrDuplicateSKU se devuelve cuando el SKU ya existe para la empresa.
var ErrDuplicateSKU = errors.New("sku already exists for company")

// código SQLSTATE unique_violation
const uniqueViolation = "23505"

// ProductRepository operaciones sobre el catálogo. Nunca modifica quantity
// salvo en la creación.
type ProductRepository interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) (previousBarcode *string, err error)
	DeleteProduct(ctx context.Context, companyID, productID string) error
	GetProductBySKU(ctx context.Context, companyID, sku string) (*models.Product, error)
	GetProductByBarcode(ctx context.Context, companyID, barcode string) (*models.Product, error)
	ListProducts(ctx context.Context, companyID string) ([]*models.Product, error)
	ListLowStock(ctx context.Context, companyID string) ([]*models.Product, error)
	ListCompanies(ctx context.Context) ([]string, error)
}

type productRepository struct {
	db     *sql.DB
	stmts  map[string]*sql.Stmt
	logger *zap.Logger
}

const productColumns = `id, company_id, sku, name, barcode, price, quantity, min_quantity, version, created_at, updated_at`

const qualifiedProductColumns = `p.id, p.company_id, p.sku, p.name, p.barcode, p.price, p.quantity, p.min_quantity,
	p.version, p.created_at, p.updated_at`

func NewProductRepository(db *sql.DB, logger *zap.Logger) (ProductRepository, error) {
	repo := &productRepository{
		db:     db,
		stmts:  make(map[string]*sql.Stmt),
		logger: logger,
	}

	if err := repo.prepareStatements(); err != nil {
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return repo, nil
}

func (r *productRepository) prepareStatements() error {
	statements := map[string]string{
		"create_product": `
			INSERT INTO products (id, company_id, sku, name, barcode, price, quantity, min_quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING version, created_at, updated_at
		`,
		// prev captura el código de barras anterior para invalidar su entrada de caché
		"update_product": `
			WITH prev AS (
				SELECT id, barcode AS previous_barcode
				FROM products
				WHERE id = $5 AND company_id = $6
				FOR UPDATE
			)
			UPDATE products p
			SET name = $1, barcode = $2, price = $3, min_quantity = $4, updated_at = NOW()
			FROM prev
			WHERE p.id = prev.id
			RETURNING ` + qualifiedProductColumns + `, prev.previous_barcode
		`,
		// solo productos sin historial: el ledger nunca pierde movimientos
		"delete_product": `
			DELETE FROM products p
			WHERE p.company_id = $1 AND p.id = $2
			  AND NOT EXISTS (SELECT 1 FROM stock_movements m WHERE m.product_id = p.id)
		`,
		"get_by_sku": `
			SELECT ` + productColumns + `
			FROM products
			WHERE company_id = $1 AND sku = $2
		`,
		"get_by_barcode": `
			SELECT ` + productColumns + `
			FROM products
			WHERE company_id = $1 AND barcode = $2
			LIMIT 1
		`,
		"list_products": `
			SELECT ` + productColumns + `
			FROM products
			WHERE company_id = $1
			ORDER BY sku
		`,
		"list_low_stock": `
			SELECT ` + productColumns + `
			FROM products
			WHERE company_id = $1 AND quantity <= min_quantity
			ORDER BY quantity ASC, sku
		`,
		"list_companies": `
			SELECT DISTINCT company_id FROM products
		`,
	}

	for name, query := range statements {
		stmt, err := r.db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare %s: %w", name, err)
		}
		r.stmts[name] = stmt
	}

	return nil
}

func (r *productRepository) CreateProduct(ctx context.Context, p *models.Product) error {
	err := r.stmts["create_product"].QueryRowContext(ctx,
		p.ID, p.CompanyID, p.SKU, p.Name, p.Barcode, p.Price, p.Quantity, p.MinQuantity,
	).Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)

	if isUniqueViolation(err) {
		return ErrDuplicateSKU
	}
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// UpdateProduct actualiza metadatos y deja en p la fila completa. Devuelve el
// código de barras anterior, o sql.ErrNoRows si el producto no pertenece a la empresa.
func (r *productRepository) UpdateProduct(ctx context.Context, p *models.Product) (*string, error) {
	var previous sql.NullString
	err := r.stmts["update_product"].QueryRowContext(ctx,
		p.Name, p.Barcode, p.Price, p.MinQuantity, p.ID, p.CompanyID,
	).Scan(
		&p.ID, &p.CompanyID, &p.SKU, &p.Name, &p.Barcode, &p.Price,
		&p.Quantity, &p.MinQuantity, &p.Version, &p.CreatedAt, &p.UpdatedAt,
		&previous,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	if !previous.Valid {
		return nil, nil
	}
	return &previous.String, nil
}

// DeleteProduct elimina un producto que todavía no tiene movimientos. Devuelve
// sql.ErrNoRows si no existe o si ya tiene historial.
func (r *productRepository) DeleteProduct(ctx context.Context, companyID, productID string) error {
	result, err := r.stmts["delete_product"].ExecContext(ctx, companyID, productID)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *productRepository) GetProductBySKU(ctx context.Context, companyID, sku string) (*models.Product, error) {
	return r.getOne(ctx, "get_by_sku", companyID, sku)
}

func (r *productRepository) GetProductByBarcode(ctx context.Context, companyID, barcode string) (*models.Product, error) {
	return r.getOne(ctx, "get_by_barcode", companyID, barcode)
}

func (r *productRepository) ListProducts(ctx context.Context, companyID string) ([]*models.Product, error) {
	return r.list(ctx, "list_products", companyID)
}

// ListLowStock productos con quantity <= min_quantity
func (r *productRepository) ListLowStock(ctx context.Context, companyID string) ([]*models.Product, error) {
	return r.list(ctx, "list_low_stock", companyID)
}

// ListCompanies empresas que tienen al menos un producto
func (r *productRepository) ListCompanies(ctx context.Context) ([]string, error) {
	rows, err := r.stmts["list_companies"].QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, id)
	}

	return companies, rows.Err()
}

func (r *productRepository) getOne(ctx context.Context, stmt string, args ...interface{}) (*models.Product, error) {
	p, err := scanProduct(r.stmts[stmt].QueryRowContext(ctx, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (r *productRepository) list(ctx context.Context, stmt, companyID string) ([]*models.Product, error) {
	rows, err := r.stmts[stmt].QueryContext(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	err := row.Scan(
		&p.ID, &p.CompanyID, &p.SKU, &p.Name, &p.Barcode, &p.Price,
		&p.Quantity, &p.MinQuantity, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
