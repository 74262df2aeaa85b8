package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"cafe_backend/internal/models"
	"cafe_backend/internal/repositories"
	"cafe_backend/pkg/utils"
)

// --- DTOs ---

// UpdateInventoryRequest is the admin stock edit.
type UpdateInventoryRequest struct {
	ID          int64   `json:"id" binding:"required,gt=0"`
	Stock       *int    `json:"stock" binding:"omitempty,gte=0"`
	IsAvailable *bool   `json:"is_available"`
	Reason      *string `json:"reason"`
}

type CreateMenuItemRequest struct {
	Name              string          `json:"name" binding:"required"`
	Description       *string         `json:"description"`
	Price             float64         `json:"price" binding:"gte=0"`
	Category          string          `json:"category" binding:"required"`
	Type              models.ItemType `json:"type" binding:"required,item_type"`
	IsVeg             bool            `json:"is_veg"`
	IsAvailable       *bool           `json:"is_available"`
	IsDoubleAllowed   bool            `json:"is_double_allowed"`
	Stock             int             `json:"stock" binding:"gte=0"`
	LowStockThreshold *int            `json:"low_stock_threshold" binding:"omitempty,gte=0"`
}

// ReserveResult reports a stock operation. Success=false is a business outcome,
// not an error: Available tells the caller how much could have been taken.
type ReserveResult struct {
	Success   bool   `json:"success"`
	ItemID    int64  `json:"item_id"`
	ItemName  string `json:"item_name,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// StockError converts a failed result into the error the order workflow returns.
func (r ReserveResult) StockError() error {
	name := r.ItemName
	if name == "" {
		name = fmt.Sprintf("item %d", r.ItemID)
	}
	return &StockError{ItemID: r.ItemID, Name: name, Requested: r.Requested, Available: r.Available}
}

// --- InventoryService Interface ---
type InventoryService interface {
	ReserveStock(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) (ReserveResult, error)
	ReleaseStock(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) error
	ConsumeReserved(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) error
	ConsumeImmediate(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) (ReserveResult, error)
	Restock(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) error

	AdminUpdate(ctx context.Context, req UpdateInventoryRequest, actorID *int64) (*models.MenuItem, error)
	CreateMenuItem(ctx context.Context, req CreateMenuItemRequest, actorID *int64) (*models.MenuItem, error)
	ListMenu(ctx context.Context, filters models.MenuFilters) ([]models.MenuItem, error)
	ListInventory(ctx context.Context) ([]models.MenuItem, error)
	ListMovements(ctx context.Context, filters models.InventoryMovementFilters) ([]models.InventoryMovement, int, error)
	LowStockItems(ctx context.Context) ([]models.MenuItem, error)
	CheckLowStock(ctx context.Context) ([]models.MenuItem, error)

	// StockChanged invalidates cached menus and publishes the item's counters.
	StockChanged(ctx context.Context, itemIDs ...int64)
}

// --- inventoryService Implementation ---
type inventoryService struct {
	menuRepo          repositories.MenuRepository
	movementRepo      repositories.InventoryMovementRepository
	db                *sql.DB
	cache             MenuCache
	notifier          Notifier
	lowStockThreshold int

	// menuGen counts invalidations so a slow read cannot cache a snapshot older than one.
	menuGen atomic.Uint64
}

// NewInventoryService creates a new instance of InventoryService. cache may be nil.
func NewInventoryService(
	menuRepo repositories.MenuRepository,
	movementRepo repositories.InventoryMovementRepository,
	db *sql.DB,
	cache MenuCache,
	notifier Notifier,
	lowStockThreshold int,
) InventoryService {
	return &inventoryService{
		menuRepo:          menuRepo,
		movementRepo:      movementRepo,
		db:                db,
		cache:             cache,
		notifier:          notifierOrNoop(notifier),
		lowStockThreshold: lowStockThreshold,
	}
}

func (s *inventoryService) recordMovement(ctx context.Context, exec repositories.SQLExecutor, itemID int64, kind models.MovementType, qty int, orderID, actorID *int64, reason string) error {
	movement := models.InventoryMovement{
		MenuItemID:   itemID,
		OrderID:      orderID,
		ActorID:      actorID,
		MovementType: kind,
		Quantity:     qty,
		Reason:       utils.NewNullString(reason),
	}
	if _, err := s.movementRepo.CreateMovement(ctx, exec, &movement); err != nil {
		return fmt.Errorf("failed to record %s movement for item %d: %w", kind, itemID, err)
	}
	return nil
}

// shortfall reads the item after a guarded update matched nothing, so the caller
// can tell a missing item from an empty shelf.
func (s *inventoryService) shortfall(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int) (ReserveResult, error) {
	item, err := s.menuRepo.GetItemByID(ctx, exec, itemID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ReserveResult{}, fmt.Errorf("%w: item ID %d", ErrMenuItemNotFound, itemID)
		}
		return ReserveResult{}, fmt.Errorf("failed to read item %d after stock check: %w", itemID, err)
	}
	return ReserveResult{
		Success:   false,
		ItemID:    itemID,
		ItemName:  item.Name,
		Requested: qty,
		Available: item.AvailableStock(),
	}, nil
}

func (s *inventoryService) ReserveStock(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) (ReserveResult, error) {
	if qty <= 0 {
		return ReserveResult{}, fmt.Errorf("%w: quantity for item ID %d must be positive", ErrValidation, itemID)
	}
	if err := s.menuRepo.ReserveStock(ctx, exec, itemID, qty); err != nil {
		if errors.Is(err, repositories.ErrConditionNotMet) {
			return s.shortfall(ctx, exec, itemID, qty)
		}
		return ReserveResult{}, retryable(err, fmt.Sprintf("failed to reserve stock for item %d", itemID))
	}
	if err := s.recordMovement(ctx, exec, itemID, models.MovementReserve, qty, orderID, nil, "Reserved for pending payment"); err != nil {
		return ReserveResult{}, err
	}
	return ReserveResult{Success: true, ItemID: itemID, Requested: qty}, nil
}

func (s *inventoryService) ReleaseStock(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) error {
	if err := s.menuRepo.ReleaseStock(ctx, exec, itemID, qty); err != nil {
		if errors.Is(err, repositories.ErrConditionNotMet) {
			// The item row is gone; there is nothing left to release.
			utils.LogWarn("Release skipped, menu item missing", map[string]interface{}{"item_id": itemID, "qty": qty})
			return nil
		}
		return retryable(err, fmt.Sprintf("failed to release stock for item %d", itemID))
	}
	return s.recordMovement(ctx, exec, itemID, models.MovementRelease, -qty, orderID, nil, "Reservation released")
}

func (s *inventoryService) ConsumeReserved(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) error {
	if err := s.menuRepo.ConsumeReserved(ctx, exec, itemID, qty); err != nil {
		return retryable(err, fmt.Sprintf("failed to consume reserved stock for item %d", itemID))
	}
	return s.recordMovement(ctx, exec, itemID, models.MovementConsume, -qty, orderID, nil, "Payment confirmed")
}

func (s *inventoryService) ConsumeImmediate(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) (ReserveResult, error) {
	if qty <= 0 {
		return ReserveResult{}, fmt.Errorf("%w: quantity for item ID %d must be positive", ErrValidation, itemID)
	}
	if err := s.menuRepo.ConsumeImmediate(ctx, exec, itemID, qty); err != nil {
		if errors.Is(err, repositories.ErrConditionNotMet) {
			return s.shortfall(ctx, exec, itemID, qty)
		}
		return ReserveResult{}, retryable(err, fmt.Sprintf("failed to consume stock for item %d", itemID))
	}
	if err := s.recordMovement(ctx, exec, itemID, models.MovementConsume, -qty, orderID, nil, "Sold at counter"); err != nil {
		return ReserveResult{}, err
	}
	return ReserveResult{Success: true, ItemID: itemID, Requested: qty}, nil
}

func (s *inventoryService) Restock(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) error {
	if err := s.menuRepo.Restock(ctx, exec, itemID, qty); err != nil {
		if errors.Is(err, repositories.ErrConditionNotMet) {
			utils.LogWarn("Restock skipped, menu item missing", map[string]interface{}{"item_id": itemID, "qty": qty})
			return nil
		}
		return retryable(err, fmt.Sprintf("failed to restock item %d", itemID))
	}
	return s.recordMovement(ctx, exec, itemID, models.MovementRestock, qty, orderID, nil, "Order cancelled")
}

func (s *inventoryService) AdminUpdate(ctx context.Context, req UpdateInventoryRequest, actorID *int64) (*models.MenuItem, error) {
	if req.ID <= 0 {
		return nil, fmt.Errorf("%w: id is required", ErrValidation)
	}
	if req.Stock == nil && req.IsAvailable == nil {
		return nil, fmt.Errorf("%w: nothing to update, provide stock or is_available", ErrValidation)
	}
	if req.Stock != nil && *req.Stock < 0 {
		return nil, fmt.Errorf("%w: stock cannot be negative", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start database transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.menuRepo.GetItemByID(ctx, tx, req.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: item ID %d", ErrMenuItemNotFound, req.ID)
		}
		return nil, fmt.Errorf("failed to fetch menu item %d: %w", req.ID, err)
	}
	if req.Stock != nil && *req.Stock < current.ReservedStock {
		return nil, fmt.Errorf("%w: stock %d is below the %d units reserved for pending payments", ErrValidation, *req.Stock, current.ReservedStock)
	}

	updated, err := s.menuRepo.UpdateItem(ctx, tx, req.ID, req.Stock, req.IsAvailable)
	if err != nil {
		if errors.Is(err, repositories.ErrConditionNotMet) {
			return nil, fmt.Errorf("%w: reservations changed while updating item %d", ErrRetryable, req.ID)
		}
		return nil, fmt.Errorf("failed to update menu item %d: %w", req.ID, err)
	}

	if delta := updated.Stock - current.Stock; delta != 0 {
		reason := "Manual stock adjustment"
		if req.Reason != nil && !utils.IsEmpty(*req.Reason) {
			reason = strings.TrimSpace(*req.Reason)
		}
		if err := s.recordMovement(ctx, tx, req.ID, models.MovementAdjust, delta, nil, actorID, reason); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit inventory update: %w", err)
	}

	s.invalidateMenu(ctx)
	s.notifier.NotifyStockUpdate(updated)
	return updated, nil
}

func (s *inventoryService) CreateMenuItem(ctx context.Context, req CreateMenuItemRequest, actorID *int64) (*models.MenuItem, error) {
	if utils.IsEmpty(req.Name) || utils.IsEmpty(req.Category) {
		return nil, fmt.Errorf("%w: name and category are required", ErrValidation)
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown item type %q", ErrValidation, req.Type)
	}
	if req.Price < 0 || req.Stock < 0 {
		return nil, fmt.Errorf("%w: price and stock cannot be negative", ErrValidation)
	}

	item := &models.MenuItem{
		Name:              strings.TrimSpace(req.Name),
		Description:       req.Description,
		Price:             utils.RoundMoney(req.Price),
		Category:          strings.TrimSpace(req.Category),
		Type:              req.Type,
		IsVeg:             req.IsVeg,
		IsAvailable:       true,
		IsDoubleAllowed:   req.IsDoubleAllowed,
		Stock:             req.Stock,
		LowStockThreshold: req.LowStockThreshold,
	}
	if req.IsAvailable != nil {
		item.IsAvailable = *req.IsAvailable
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start database transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.menuRepo.CreateItem(ctx, tx, item); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: a menu item named %q already exists", ErrValidation, item.Name)
		}
		return nil, fmt.Errorf("failed to create menu item: %w", err)
	}
	if item.Stock > 0 {
		if err := s.recordMovement(ctx, tx, item.ID, models.MovementRestock, item.Stock, nil, actorID, "Initial stock"); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit menu item: %w", err)
	}

	s.invalidateMenu(ctx)
	return item, nil
}

// ListMenu serves from the cache when possible. Cache failures fall through to the database.
func (s *inventoryService) ListMenu(ctx context.Context, filters models.MenuFilters) ([]models.MenuItem, error) {
	if s.cache != nil {
		items, hit, err := s.cache.Get(ctx, filters)
		if err != nil {
			utils.LogWarn("Menu cache read failed", map[string]interface{}{"error": err.Error()})
		} else if hit {
			return items, nil
		}
	}

	gen := s.menuGen.Load()
	items, err := s.menuRepo.GetItems(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get menu items: %w", err)
	}

	if s.cache != nil && s.menuGen.Load() == gen {
		if err := s.cache.Set(ctx, filters, items); err != nil {
			utils.LogWarn("Menu cache write failed", map[string]interface{}{"error": err.Error()})
		}
		// An invalidation between the check and the write may have been overwritten.
		if s.menuGen.Load() != gen {
			s.invalidateMenu(ctx)
		}
	}
	return items, nil
}

func (s *inventoryService) ListInventory(ctx context.Context) ([]models.MenuItem, error) {
	items, err := s.menuRepo.GetItems(ctx, models.MenuFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory: %w", err)
	}
	return items, nil
}

func (s *inventoryService) ListMovements(ctx context.Context, filters models.InventoryMovementFilters) ([]models.InventoryMovement, int, error) {
	movements, total, err := s.movementRepo.GetMovements(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get inventory movements: %w", err)
	}
	return movements, total, nil
}

func (s *inventoryService) LowStockItems(ctx context.Context) ([]models.MenuItem, error) {
	items, err := s.menuRepo.GetLowStockItems(ctx, s.lowStockThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to get low stock items: %w", err)
	}
	return items, nil
}

// CheckLowStock is the cron entry point: it alerts staff when anything runs low.
func (s *inventoryService) CheckLowStock(ctx context.Context) ([]models.MenuItem, error) {
	items, err := s.LowStockItems(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		s.notifier.NotifyLowStock(items)
	}
	return items, nil
}

func (s *inventoryService) StockChanged(ctx context.Context, itemIDs ...int64) {
	s.invalidateMenu(ctx)
	for _, id := range itemIDs {
		item, err := s.menuRepo.GetItemByID(ctx, nil, id)
		if err != nil {
			utils.LogWarn("Stock event skipped, item lookup failed", map[string]interface{}{"item_id": id, "error": err.Error()})
			continue
		}
		s.notifier.NotifyStockUpdate(item)
	}
}

func (s *inventoryService) invalidateMenu(ctx context.Context) {
	s.menuGen.Add(1)
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		utils.LogWarn("Menu cache invalidation failed", map[string]interface{}{"error": err.Error()})
	}
}
