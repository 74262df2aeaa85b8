package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cafe_backend/internal/models"
)

// revenueStatuses are the states in which an order counts as paid revenue.
const revenueStatuses = `('CONFIRMED', 'PREPARING', 'READY', 'COMPLETED', 'DISPOSED')`

// ReportRepository runs the read-only aggregations behind the admin dashboard.
type ReportRepository interface {
	GetDashboardSummary(ctx context.Context, dayStart, weekStart, monthStart time.Time, lowStockThreshold int) (*models.DashboardSummary, error)
	GetSalesByItem(ctx context.Context, start, end time.Time) ([]models.SalesReportItem, error)
	GetDailyRevenue(ctx context.Context, start, end time.Time, loc *time.Location) ([]models.DailyRevenue, error)
}

type reportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) GetDashboardSummary(ctx context.Context, dayStart, weekStart, monthStart time.Time, lowStockThreshold int) (*models.DashboardSummary, error) {
	summary := &models.DashboardSummary{}

	orderQuery := `SELECT
	    COUNT(*) FILTER (WHERE created_at >= $1),
	    COUNT(*) FILTER (WHERE status = 'PENDING_PAYMENT'),
	    COUNT(*) FILTER (WHERE status IN ('CONFIRMED', 'PREPARING')),
	    COALESCE(SUM(total_amount) FILTER (WHERE created_at >= $1 AND status IN ` + revenueStatuses + `), 0),
	    COALESCE(SUM(total_amount) FILTER (WHERE created_at >= $2 AND status IN ` + revenueStatuses + `), 0),
	    COALESCE(SUM(total_amount) FILTER (WHERE created_at >= $3 AND status IN ` + revenueStatuses + `), 0),
	    COUNT(*) FILTER (WHERE refund_status = 'FAILED_MANUAL_REVIEW')
	  FROM orders`
	err := r.db.QueryRowContext(ctx, orderQuery, dayStart, weekStart, monthStart).Scan(
		&summary.OrdersToday, &summary.PendingOrdersCount, &summary.InKitchenCount,
		&summary.TotalSalesToday, &summary.TotalSalesThisWeek, &summary.TotalSalesThisMonth,
		&summary.RefundsNeedingAttention,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: dashboard order metrics: %v", ErrDatabaseError, err)
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_subscriptions WHERE status = 'ACTIVE' AND end_date >= NOW()`,
	).Scan(&summary.ActiveSubscriptions); err != nil {
		return nil, fmt.Errorf("%w: dashboard subscription metrics: %v", ErrDatabaseError, err)
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM menu_items
		 WHERE is_available = TRUE AND item_type <> 'SUBSCRIPTION'
		   AND stock - reserved_stock <= COALESCE(low_stock_threshold, $1)`,
		lowStockThreshold,
	).Scan(&summary.LowStockItemsCount); err != nil {
		return nil, fmt.Errorf("%w: dashboard stock metrics: %v", ErrDatabaseError, err)
	}

	return summary, nil
}

func (r *reportRepository) GetSalesByItem(ctx context.Context, start, end time.Time) ([]models.SalesReportItem, error) {
	query := `SELECT oi.menu_item_id, MAX(oi.name), COALESCE(MAX(mi.category), ''),
	                 SUM(oi.quantity), COALESCE(SUM(oi.quantity * oi.unit_price), 0), COUNT(DISTINCT o.id)
	          FROM order_items oi
	          JOIN orders o ON o.id = oi.order_id
	          LEFT JOIN menu_items mi ON mi.id = oi.menu_item_id
	          WHERE o.created_at >= $1 AND o.created_at < $2 AND o.status IN ` + revenueStatuses + `
	          GROUP BY oi.menu_item_id
	          ORDER BY SUM(oi.quantity) DESC`
	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, wrapDBError(err, "querying sales by item")
	}
	defer rows.Close()

	items := []models.SalesReportItem{}
	for rows.Next() {
		var it models.SalesReportItem
		if err := rows.Scan(&it.ItemID, &it.ItemName, &it.Category, &it.TotalQuantity, &it.TotalSales, &it.OrdersCount); err != nil {
			return nil, fmt.Errorf("%w: scanning sales row: %v", ErrDatabaseError, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating sales rows: %v", ErrDatabaseError, err)
	}
	return items, nil
}

// GetDailyRevenue buckets by calendar day in the café's timezone.
func (r *reportRepository) GetDailyRevenue(ctx context.Context, start, end time.Time, loc *time.Location) ([]models.DailyRevenue, error) {
	if loc == nil {
		loc = time.UTC
	}
	query := `SELECT TO_CHAR((o.created_at AT TIME ZONE $3)::date, 'YYYY-MM-DD') AS day,
	                 COUNT(*),
	                 COUNT(*) FILTER (WHERE o.mode = 'SUBSCRIPTION'),
	                 COALESCE(SUM(o.total_amount), 0)
	          FROM orders o
	          WHERE o.created_at >= $1 AND o.created_at < $2 AND o.status IN ` + revenueStatuses + `
	          GROUP BY day
	          ORDER BY day`
	rows, err := r.db.QueryContext(ctx, query, start, end, loc.String())
	if err != nil {
		return nil, wrapDBError(err, "querying daily revenue")
	}
	defer rows.Close()

	days := []models.DailyRevenue{}
	for rows.Next() {
		var d models.DailyRevenue
		if err := rows.Scan(&d.Date, &d.OrdersCount, &d.SubscriptionOrders, &d.Revenue); err != nil {
			return nil, fmt.Errorf("%w: scanning revenue row: %v", ErrDatabaseError, err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating revenue rows: %v", ErrDatabaseError, err)
	}
	return days, nil
}
