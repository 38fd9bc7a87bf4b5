package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
)

// StockRepository es el almacenamiento del ledger más las consultas de movimientos.
type StockRepository interface {
	ledger.Store

	ListMovements(ctx context.Context, filter *models.MovementFilter) ([]*models.StockMovement, error)
}

type stockRepository struct {
	db    *sql.DB
	stmts map[string]*sql.Stmt
	// tx no es nil dentro de WithinTx.
	tx *sql.Tx
}

const movementColumns = `id, company_id, product_id, movement_type, quantity, quantity_before,
	quantity_after, source, reference, notes, user_id, created_at`

const (
	defaultMovementLimit = 100
	maxMovementLimit     = 1000
)

func NewStockRepository(db *sql.DB) (StockRepository, error) {
	repo := &stockRepository{
		db:    db,
		stmts: make(map[string]*sql.Stmt),
	}

	if err := repo.prepareStatements(); err != nil {
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return repo, nil
}

func (r *stockRepository) prepareStatements() error {
	statements := map[string]string{
		"get_product": `
			SELECT ` + productColumns + `
			FROM products
			WHERE company_id = $1 AND id = $2
		`,
		// last-writer-wins
		"set_quantity": `
			UPDATE products
			SET quantity = $1, version = version + 1, updated_at = NOW()
			WHERE id = $2
		`,
		"cas_quantity": `
			UPDATE products
			SET quantity = $1, version = version + 1, updated_at = NOW()
			WHERE id = $2 AND version = $3
		`,
		"insert_movement": `
			INSERT INTO stock_movements
			(id, company_id, product_id, movement_type, quantity, quantity_before,
			 quantity_after, source, reference, notes, user_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at
		`,
		"product_movements": `
			SELECT ` + movementColumns + `
			FROM stock_movements
			WHERE company_id = $1 AND product_id = $2
			ORDER BY created_at ASC, seq ASC
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

// stmt devuelve la sentencia preparada, ligada a la transacción si la hay.
func (r *stockRepository) stmt(ctx context.Context, name string) *sql.Stmt {
	if r.tx != nil {
		return r.tx.StmtContext(ctx, r.stmts[name])
	}
	return r.stmts[name]
}

// WithinTx ejecuta fn con un repositorio ligado a una transacción. Hace commit si
// fn termina sin error y rollback en cualquier otro caso.
func (r *stockRepository) WithinTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&stockRepository{db: r.db, stmts: r.stmts, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *stockRepository) GetProduct(ctx context.Context, companyID, productID string) (*models.Product, error) {
	p, err := scanProduct(r.stmt(ctx, "get_product").QueryRowContext(ctx, companyID, productID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (r *stockRepository) SetQuantity(ctx context.Context, productID string, quantity int) error {
	result, err := r.stmt(ctx, "set_quantity").ExecContext(ctx, quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to update quantity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no product found with id %s", productID)
	}

	return nil
}

// CompareAndSetQuantity devuelve false si la versión ya no es expectedVersion.
func (r *stockRepository) CompareAndSetQuantity(ctx context.Context, productID string, expectedVersion, quantity int) (bool, error) {
	result, err := r.stmt(ctx, "cas_quantity").ExecContext(ctx, quantity, productID, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("failed to update quantity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// InsertMovement agrega un movimiento. created_at lo asigna la base de datos.
func (r *stockRepository) InsertMovement(ctx context.Context, m *models.StockMovement) error {
	err := r.stmt(ctx, "insert_movement").QueryRowContext(ctx,
		m.ID, m.CompanyID, m.ProductID, m.MovementType, m.Quantity, m.QuantityBefore,
		m.QuantityAfter, m.Source, nullString(m.Reference), nullString(m.Notes), nullString(m.UserID),
	).Scan(&m.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert movement: %w", err)
	}

	return nil
}

// ListProductMovements historial completo de un producto en orden de creación.
func (r *stockRepository) ListProductMovements(ctx context.Context, companyID, productID string) ([]*models.StockMovement, error) {
	rows, err := r.stmt(ctx, "product_movements").QueryContext(ctx, companyID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product movements: %w", err)
	}
	defer rows.Close()

	return scanMovements(rows)
}

// ListMovements consulta dinámica con filtros, más recientes primero.
func (r *stockRepository) ListMovements(ctx context.Context, filter *models.MovementFilter) ([]*models.StockMovement, error) {
	query, args := buildMovementQuery(filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	defer rows.Close()

	return scanMovements(rows)
}

func buildMovementQuery(filter *models.MovementFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	add("company_id = $%d", filter.CompanyID)
	if filter.ProductID != nil {
		add("product_id = $%d", *filter.ProductID)
	}
	if filter.MovementType != nil {
		add("movement_type = $%d", *filter.MovementType)
	}
	if filter.Source != nil {
		add("source = $%d", *filter.Source)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at <= $%d", *filter.To)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultMovementLimit
	}
	if limit > maxMovementLimit {
		limit = maxMovementLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM stock_movements WHERE %s ORDER BY created_at DESC, seq DESC LIMIT $%d OFFSET $%d`,
		movementColumns, strings.Join(conds, " AND "), len(args)-1, len(args))

	return query, args
}

func scanMovements(rows *sql.Rows) ([]*models.StockMovement, error) {
	movements := []*models.StockMovement{}
	for rows.Next() {
		var (
			m                        models.StockMovement
			reference, notes, userID sql.NullString
		)
		err := rows.Scan(
			&m.ID, &m.CompanyID, &m.ProductID, &m.MovementType, &m.Quantity, &m.QuantityBefore,
			&m.QuantityAfter, &m.Source, &reference, &notes, &userID, &m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		m.Reference = reference.String
		m.Notes = notes.String
		m.UserID = userID.String
		movements = append(movements, &m)
	}

	return movements, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
