package models

import "time"

// MovementType classifies an inventory ledger entry.
type MovementType string

const (
	MovementReserve MovementType = "RESERVE"
	MovementRelease MovementType = "RELEASE"
	MovementConsume MovementType = "CONSUME"
	MovementRestock MovementType = "RESTOCK"
	MovementAdjust  MovementType = "ADJUST"
)

// InventoryMovement represents a record of stock change for a menu item.
type InventoryMovement struct {
	ID           int64        `json:"id"`
	MenuItemID   int64        `json:"menu_item_id"`
	OrderID      *int64       `json:"order_id,omitempty"`
	ActorID      *int64       `json:"actor_id,omitempty"`
	MovementType MovementType `json:"movement_type"`
	Quantity     int          `json:"quantity"` // signed change to the counter it touched
	Reason       *string      `json:"reason,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`

	MenuItemName *string `json:"menu_item_name,omitempty"`
}

// InventoryMovementFilters defines available filters for listing movements.
type InventoryMovementFilters struct {
	MenuItemID   *int64
	OrderID      *int64
	MovementType *string
	DateFrom     *time.Time
	DateTo       *time.Time
	Page         int
	PageSize     int
}
