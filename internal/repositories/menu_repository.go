package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cafe_backend/internal/models"

	"github.com/lib/pq"
)

// MenuRepository owns menu_items. The stock counters are only written through
// the guarded statements at the bottom of this file.
type MenuRepository interface {
	CreateItem(ctx context.Context, executor SQLExecutor, item *models.MenuItem) (int64, error)
	GetItemByID(ctx context.Context, executor SQLExecutor, id int64) (*models.MenuItem, error)
	GetItemsByIDs(ctx context.Context, executor SQLExecutor, ids []int64) (map[int64]models.MenuItem, error)
	GetItems(ctx context.Context, filters models.MenuFilters) ([]models.MenuItem, error)
	GetLowStockItems(ctx context.Context, defaultThreshold int) ([]models.MenuItem, error)
	UpdateItem(ctx context.Context, executor SQLExecutor, id int64, stock *int, isAvailable *bool) (*models.MenuItem, error)

	ReserveStock(ctx context.Context, executor SQLExecutor, id int64, qty int) error
	ReleaseStock(ctx context.Context, executor SQLExecutor, id int64, qty int) error
	ConsumeReserved(ctx context.Context, executor SQLExecutor, id int64, qty int) error
	ConsumeImmediate(ctx context.Context, executor SQLExecutor, id int64, qty int) error
	Restock(ctx context.Context, executor SQLExecutor, id int64, qty int) error
}

type menuRepository struct {
	db *sql.DB
}

// NewMenuRepository creates a new instance of MenuRepository.
func NewMenuRepository(db *sql.DB) MenuRepository {
	return &menuRepository{db: db}
}

const menuItemColumns = `id, name, description, price, category, item_type, is_veg, is_available,
	is_double_allowed, stock, reserved_stock, low_stock_threshold, created_at, updated_at`

func scanMenuItem(s scanner, item *models.MenuItem) error {
	return s.Scan(
		&item.ID, &item.Name, &item.Description, &item.Price, &item.Category, &item.Type, &item.IsVeg, &item.IsAvailable,
		&item.IsDoubleAllowed, &item.Stock, &item.ReservedStock, &item.LowStockThreshold, &item.CreatedAt, &item.UpdatedAt,
	)
}

func (r *menuRepository) CreateItem(ctx context.Context, executor SQLExecutor, item *models.MenuItem) (int64, error) {
	query := `INSERT INTO menu_items
	            (name, description, price, category, item_type, is_veg, is_available, is_double_allowed,
	             stock, reserved_stock, low_stock_threshold, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, $11)
	          RETURNING id`
	now := time.Now()
	err := executor.QueryRowContext(ctx, query,
		item.Name, item.Description, item.Price, item.Category, item.Type, item.IsVeg, item.IsAvailable,
		item.IsDoubleAllowed, item.Stock, item.LowStockThreshold, now,
	).Scan(&item.ID)
	if err != nil {
		return 0, wrapDBError(err, "creating menu item")
	}
	item.ReservedStock = 0
	item.CreatedAt, item.UpdatedAt = now, now
	return item.ID, nil
}

func (r *menuRepository) GetItemByID(ctx context.Context, executor SQLExecutor, id int64) (*models.MenuItem, error) {
	if executor == nil {
		executor = r.db
	}
	item := &models.MenuItem{}
	query := `SELECT ` + menuItemColumns + ` FROM menu_items WHERE id = $1`
	if err := scanMenuItem(executor.QueryRowContext(ctx, query, id), item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting menu item by ID %d: %v", ErrDatabaseError, id, err)
	}
	return item, nil
}

func (r *menuRepository) GetItemsByIDs(ctx context.Context, executor SQLExecutor, ids []int64) (map[int64]models.MenuItem, error) {
	if executor == nil {
		executor = r.db
	}
	items := make(map[int64]models.MenuItem, len(ids))
	if len(ids) == 0 {
		return items, nil
	}
	query := `SELECT ` + menuItemColumns + ` FROM menu_items WHERE id = ANY($1)`
	rows, err := executor.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, wrapDBError(err, "getting menu items by IDs")
	}
	defer rows.Close()

	for rows.Next() {
		var item models.MenuItem
		if err := scanMenuItem(rows, &item); err != nil {
			return nil, fmt.Errorf("%w: scanning menu item: %v", ErrDatabaseError, err)
		}
		items[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating menu items: %v", ErrDatabaseError, err)
	}
	return items, nil
}

func (r *menuRepository) GetItems(ctx context.Context, filters models.MenuFilters) ([]models.MenuItem, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + menuItemColumns + ` FROM menu_items`)

	var conditions []string
	var args []interface{}
	argCounter := 1

	if filters.AvailableOnly {
		conditions = append(conditions, "is_available = TRUE")
	}
	if filters.Category != nil && *filters.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argCounter))
		args = append(args, *filters.Category)
		argCounter++
	}
	if filters.Mode != nil {
		switch *filters.Mode {
		case models.OrderModeNormal:
			conditions = append(conditions, "item_type IN ('NORMAL', 'BOTH')")
		case models.OrderModeSubscription:
			conditions = append(conditions, "item_type IN ('SUBSCRIPTION', 'BOTH')")
		}
	}
	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY category, name")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, wrapDBError(err, "querying menu items")
	}
	defer rows.Close()

	items := []models.MenuItem{}
	for rows.Next() {
		var item models.MenuItem
		if err := scanMenuItem(rows, &item); err != nil {
			return nil, fmt.Errorf("%w: scanning menu item: %v", ErrDatabaseError, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating menu items: %v", ErrDatabaseError, err)
	}
	return items, nil
}

func (r *menuRepository) GetLowStockItems(ctx context.Context, defaultThreshold int) ([]models.MenuItem, error) {
	query := `SELECT ` + menuItemColumns + ` FROM menu_items
	          WHERE is_available = TRUE
	            AND item_type <> 'SUBSCRIPTION'
	            AND stock - reserved_stock <= COALESCE(low_stock_threshold, $1)
	          ORDER BY stock - reserved_stock ASC, name`
	rows, err := r.db.QueryContext(ctx, query, defaultThreshold)
	if err != nil {
		return nil, wrapDBError(err, "querying low stock items")
	}
	defer rows.Close()

	items := []models.MenuItem{}
	for rows.Next() {
		var item models.MenuItem
		if err := scanMenuItem(rows, &item); err != nil {
			return nil, fmt.Errorf("%w: scanning menu item: %v", ErrDatabaseError, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating low stock items: %v", ErrDatabaseError, err)
	}
	return items, nil
}

// UpdateItem applies an admin edit. A new stock level below the units currently
// reserved is refused with ErrConditionNotMet.
func (r *menuRepository) UpdateItem(ctx context.Context, executor SQLExecutor, id int64, stock *int, isAvailable *bool) (*models.MenuItem, error) {
	query := `UPDATE menu_items
	          SET stock = COALESCE($1, stock),
	              is_available = COALESCE($2, is_available),
	              updated_at = NOW()
	          WHERE id = $3 AND ($1::INTEGER IS NULL OR $1 >= reserved_stock)
	          RETURNING ` + menuItemColumns
	item := &models.MenuItem{}
	err := scanMenuItem(executor.QueryRowContext(ctx, query, stock, isAvailable, id), item)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: updating menu item %d", ErrConditionNotMet, id)
		}
		return nil, wrapDBError(err, fmt.Sprintf("updating menu item %d", id))
	}
	return item, nil
}

// ReserveStock holds qty units for a pending payment. It succeeds only when
// stock - reserved_stock covers qty, evaluated atomically by the database.
func (r *menuRepository) ReserveStock(ctx context.Context, executor SQLExecutor, id int64, qty int) error {
	query := `UPDATE menu_items
	          SET reserved_stock = reserved_stock + $1, updated_at = NOW()
	          WHERE id = $2 AND stock - reserved_stock >= $1`
	return r.execGuarded(ctx, executor, query, "reserving stock", qty, id)
}

// ReleaseStock gives a reservation back, floored at zero.
func (r *menuRepository) ReleaseStock(ctx context.Context, executor SQLExecutor, id int64, qty int) error {
	query := `UPDATE menu_items
	          SET reserved_stock = GREATEST(reserved_stock - $1, 0), updated_at = NOW()
	          WHERE id = $2`
	return r.execGuarded(ctx, executor, query, "releasing stock", qty, id)
}

// ConsumeReserved converts a reservation into a sale.
func (r *menuRepository) ConsumeReserved(ctx context.Context, executor SQLExecutor, id int64, qty int) error {
	query := `UPDATE menu_items
	          SET stock = stock - $1, reserved_stock = reserved_stock - $1, updated_at = NOW()
	          WHERE id = $2 AND reserved_stock >= $1 AND stock >= $1`
	return r.execGuarded(ctx, executor, query, "consuming reserved stock", qty, id)
}

// ConsumeImmediate sells from the same available pool without a reservation phase.
func (r *menuRepository) ConsumeImmediate(ctx context.Context, executor SQLExecutor, id int64, qty int) error {
	query := `UPDATE menu_items
	          SET stock = stock - $1, updated_at = NOW()
	          WHERE id = $2 AND stock - reserved_stock >= $1`
	return r.execGuarded(ctx, executor, query, "consuming stock", qty, id)
}

func (r *menuRepository) Restock(ctx context.Context, executor SQLExecutor, id int64, qty int) error {
	query := `UPDATE menu_items SET stock = stock + $1, updated_at = NOW() WHERE id = $2`
	return r.execGuarded(ctx, executor, query, "restocking", qty, id)
}

func (r *menuRepository) execGuarded(ctx context.Context, executor SQLExecutor, query, op string, qty int, id int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %s: quantity must be positive, got %d", ErrConditionNotMet, op, qty)
	}
	res, err := executor.ExecContext(ctx, query, qty, id)
	if err != nil {
		return wrapDBError(err, fmt.Sprintf("%s for item %d", op, id))
	}
	return expectAffected(res, fmt.Sprintf("%s for item %d", op, id))
}
