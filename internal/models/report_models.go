package models

import "time"

// SalesReportItem aggregates sold quantity and revenue for one menu item.
type SalesReportItem struct {
	ItemID        int64   `json:"item_id"`
	ItemName      string  `json:"item_name"`
	Category      string  `json:"category"`
	TotalQuantity int     `json:"total_quantity"`
	TotalSales    float64 `json:"total_sales"`
	OrdersCount   int     `json:"orders_count"`
}

// DailyRevenue is one day of paid revenue.
type DailyRevenue struct {
	Date               string  `json:"date"` // YYYY-MM-DD
	OrdersCount        int     `json:"orders_count"`
	SubscriptionOrders int     `json:"subscription_orders"`
	Revenue            float64 `json:"revenue"`
}

// DashboardSummary holds key metrics for the dashboard.
type DashboardSummary struct {
	OrdersToday             int       `json:"orders_today"`
	PendingOrdersCount      int       `json:"pending_orders_count"`
	InKitchenCount          int       `json:"in_kitchen_count"`
	TotalSalesToday         float64   `json:"total_sales_today"`
	TotalSalesThisWeek      float64   `json:"total_sales_this_week"`
	TotalSalesThisMonth     float64   `json:"total_sales_this_month"`
	ActiveSubscriptions     int       `json:"active_subscriptions"`
	LowStockItemsCount      int       `json:"low_stock_items_count"`
	RefundsNeedingAttention int       `json:"refunds_needing_attention"`
	GeneratedAt             time.Time `json:"generated_at"`
}

// ReportRequestParams holds common parameters for requesting reports.
type ReportRequestParams struct {
	StartDate string `form:"start_date"` // YYYY-MM-DD
	EndDate   string `form:"end_date"`   // YYYY-MM-DD
}

// ReportRange is a half-open [Start, End) window resolved from request params.
type ReportRange struct {
	Start time.Time
	End   time.Time
}
