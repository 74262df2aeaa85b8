package models

import "time"

// ItemType says which order modes may sell an item.
type ItemType string

const (
	ItemTypeNormal       ItemType = "NORMAL"
	ItemTypeSubscription ItemType = "SUBSCRIPTION"
	ItemTypeBoth         ItemType = "BOTH"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeNormal, ItemTypeSubscription, ItemTypeBoth:
		return true
	}
	return false
}

// AllowsMode reports whether an item of this type can be ordered in the given mode.
func (t ItemType) AllowsMode(mode OrderMode) bool {
	switch mode {
	case OrderModeNormal:
		return t == ItemTypeNormal || t == ItemTypeBoth
	case OrderModeSubscription:
		return t == ItemTypeSubscription || t == ItemTypeBoth
	}
	return false
}

// MenuItem is a catalogue entry with its stock counters.
// Available units for new orders are Stock - ReservedStock.
type MenuItem struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Description       *string   `json:"description,omitempty"`
	Price             float64   `json:"price"`
	Category          string    `json:"category"`
	Type              ItemType  `json:"type"`
	IsVeg             bool      `json:"is_veg"`
	IsAvailable       bool      `json:"is_available"`
	IsDoubleAllowed   bool      `json:"is_double_allowed"`
	Stock             int       `json:"stock"`
	ReservedStock     int       `json:"reserved_stock"`
	LowStockThreshold *int      `json:"low_stock_threshold,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AvailableStock is what can still be reserved or sold.
func (m *MenuItem) AvailableStock() int {
	if avail := m.Stock - m.ReservedStock; avail > 0 {
		return avail
	}
	return 0
}

// IsLowStock applies the item's own threshold, falling back to the global one.
func (m *MenuItem) IsLowStock(defaultThreshold int) bool {
	threshold := defaultThreshold
	if m.LowStockThreshold != nil {
		threshold = *m.LowStockThreshold
	}
	return m.AvailableStock() <= threshold
}

// MenuFilters narrows menu listings.
type MenuFilters struct {
	AvailableOnly bool
	Category      *string
	Mode          *OrderMode
}
