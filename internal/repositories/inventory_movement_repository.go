package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cafe_backend/internal/models"
)

// InventoryMovementRepository is the append-only stock ledger.
type InventoryMovementRepository interface {
	CreateMovement(ctx context.Context, executor SQLExecutor, movement *models.InventoryMovement) (int64, error)
	GetMovements(ctx context.Context, filters models.InventoryMovementFilters) ([]models.InventoryMovement, int, error)
}

type inventoryMovementRepository struct {
	db *sql.DB
}

// NewInventoryMovementRepository creates a new instance of InventoryMovementRepository.
func NewInventoryMovementRepository(db *sql.DB) InventoryMovementRepository {
	return &inventoryMovementRepository{db: db}
}

func (r *inventoryMovementRepository) CreateMovement(ctx context.Context, executor SQLExecutor, movement *models.InventoryMovement) (int64, error) {
	query := `INSERT INTO inventory_movements
	          (menu_item_id, order_id, actor_id, movement_type, quantity, reason, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING id`
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now()
	}

	err := executor.QueryRowContext(ctx, query,
		movement.MenuItemID, movement.OrderID, movement.ActorID, movement.MovementType,
		movement.Quantity, movement.Reason, movement.CreatedAt,
	).Scan(&movement.ID)
	if err != nil {
		return 0, wrapDBError(err, "creating inventory movement")
	}
	return movement.ID, nil
}

func (r *inventoryMovementRepository) GetMovements(ctx context.Context, filters models.InventoryMovementFilters) ([]models.InventoryMovement, int, error) {
	movements := []models.InventoryMovement{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT
	    im.id, im.menu_item_id, im.order_id, im.actor_id, im.movement_type, im.quantity,
	    im.reason, im.created_at, mi.name,
	    COUNT(*) OVER() AS total_count
	  FROM inventory_movements im
	  JOIN menu_items mi ON im.menu_item_id = mi.id`)

	var conditions []string
	var args []interface{}
	argCount := 1

	if filters.MenuItemID != nil {
		conditions = append(conditions, fmt.Sprintf("im.menu_item_id = $%d", argCount))
		args = append(args, *filters.MenuItemID)
		argCount++
	}
	if filters.OrderID != nil {
		conditions = append(conditions, fmt.Sprintf("im.order_id = $%d", argCount))
		args = append(args, *filters.OrderID)
		argCount++
	}
	if filters.MovementType != nil && *filters.MovementType != "" {
		conditions = append(conditions, fmt.Sprintf("im.movement_type = $%d", argCount))
		args = append(args, strings.ToUpper(*filters.MovementType))
		argCount++
	}
	if filters.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("im.created_at >= $%d", argCount))
		args = append(args, *filters.DateFrom)
		argCount++
	}
	if filters.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("im.created_at < $%d", argCount))
		args = append(args, *filters.DateTo)
		argCount++
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(conditions, " AND "))
	}

	page, pageSize := normalizePage(filters.Page, filters.PageSize)
	queryBuilder.WriteString(" ORDER BY im.created_at DESC, im.id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, wrapDBError(err, "getting inventory movements")
	}
	defer rows.Close()

	for rows.Next() {
		var movement models.InventoryMovement
		var itemName sql.NullString
		if err := rows.Scan(
			&movement.ID, &movement.MenuItemID, &movement.OrderID, &movement.ActorID, &movement.MovementType,
			&movement.Quantity, &movement.Reason, &movement.CreatedAt, &itemName,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning inventory movement: %v", ErrDatabaseError, err)
		}
		if itemName.Valid {
			name := itemName.String
			movement.MenuItemName = &name
		}
		movements = append(movements, movement)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating inventory movements: %v", ErrDatabaseError, err)
	}

	return movements, totalCount, nil
}

// normalizePage applies the default page size of 20 and caps it at 100.
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
