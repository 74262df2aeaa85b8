package repositories

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"cafe_backend/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var menuItemRowColumns = []string{
	"id", "name", "description", "price", "category", "item_type", "is_veg", "is_available",
	"is_double_allowed", "stock", "reserved_stock", "low_stock_threshold", "created_at", "updated_at",
}

func TestReserveStock(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMenuRepository(db)
	ctx := context.Background()

	guard := regexp.QuoteMeta("SET reserved_stock = reserved_stock + $1, updated_at = NOW() WHERE id = $2 AND stock - reserved_stock >= $1")

	mock.ExpectExec(guard).WithArgs(3, int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.ReserveStock(ctx, db, 7, 3))

	mock.ExpectExec(guard).WithArgs(4, int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.ReserveStock(ctx, db, 7, 4)
	assert.True(t, errors.Is(err, ErrConditionNotMet))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveStockRejectsNonPositiveQuantity(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMenuRepository(db)

	err := repo.ReserveStock(context.Background(), db, 1, 0)
	assert.ErrorIs(t, err, ErrConditionNotMet)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockMutationGuards(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMenuRepository(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("SET reserved_stock = GREATEST(reserved_stock - $1, 0)")).
		WithArgs(2, int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET stock = stock - $1, reserved_stock = reserved_stock - $1, updated_at = NOW() WHERE id = $2 AND reserved_stock >= $1 AND stock >= $1")).
		WithArgs(2, int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock - reserved_stock >= $1")).
		WithArgs(5, int64(1)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SET stock = stock + $1")).
		WithArgs(2, int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.ReleaseStock(ctx, db, 1, 2))
	assert.NoError(t, repo.ConsumeReserved(ctx, db, 1, 2))
	assert.ErrorIs(t, repo.ConsumeImmediate(ctx, db, 1, 5), ErrConditionNotMet)
	assert.NoError(t, repo.Restock(ctx, db, 1, 2))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockMutationDriverErrors(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMenuRepository(db)

	mock.ExpectExec("UPDATE menu_items").WillReturnError(&pq.Error{Code: "40001"})
	err := repo.ReserveStock(context.Background(), db, 1, 1)
	assert.ErrorIs(t, err, ErrConcurrentUpdate)

	mock.ExpectExec("UPDATE menu_items").WillReturnError(errors.New("connection reset"))
	err = repo.ReserveStock(context.Background(), db, 1, 1)
	assert.ErrorIs(t, err, ErrDatabaseError)
}

func TestGetItemsByIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMenuRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows(menuItemRowColumns).
		AddRow(1, "Masala Chai", nil, 30.0, "Beverages", "BOTH", true, true, true, 50, 2, nil, now, now).
		AddRow(2, "Veg Thali", "Daily thali", 120.0, "Meals", "SUBSCRIPTION", true, true, false, 0, 0, 5, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM menu_items WHERE id = ANY($1)")).WillReturnRows(rows)

	items, err := repo.GetItemsByIDs(context.Background(), db, []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	chai := items[1]
	assert.Equal(t, models.ItemTypeBoth, chai.Type)
	assert.Equal(t, 48, chai.AvailableStock())
	require.NotNil(t, items[2].LowStockThreshold)
	assert.Equal(t, 5, *items[2].LowStockThreshold)
	assert.Nil(t, items[1].Description)
}

func TestGetItemsByIDsEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMenuRepository(db)

	items, err := repo.GetItemsByIDs(context.Background(), db, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetItemByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMenuRepository(db)

	mock.ExpectQuery("FROM menu_items WHERE id =").WithArgs(int64(9)).WillReturnRows(sqlmock.NewRows(menuItemRowColumns))
	_, err := repo.GetItemByID(context.Background(), nil, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateItemBelowReservedIsRejected(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMenuRepository(db)
	stock := 1

	mock.ExpectQuery(regexp.QuoteMeta("($1::INTEGER IS NULL OR $1 >= reserved_stock)")).
		WithArgs(1, nil, int64(3)).
		WillReturnRows(sqlmock.NewRows(menuItemRowColumns))

	_, err := repo.UpdateItem(context.Background(), db, 3, &stock, nil)
	assert.ErrorIs(t, err, ErrConditionNotMet)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetItemsFilters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMenuRepository(db)
	mode := models.OrderModeSubscription
	category := "Meals"

	mock.ExpectQuery(regexp.QuoteMeta("WHERE is_available = TRUE AND category = $1 AND item_type IN ('SUBSCRIPTION', 'BOTH') ORDER BY category, name")).
		WithArgs("Meals").
		WillReturnRows(sqlmock.NewRows(menuItemRowColumns))

	items, err := repo.GetItems(context.Background(), models.MenuFilters{AvailableOnly: true, Category: &category, Mode: &mode})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrapDBError(t *testing.T) {
	assert.ErrorIs(t, wrapDBError(&pq.Error{Code: "23505"}, "op"), ErrDuplicateKey)
	assert.ErrorIs(t, wrapDBError(&pq.Error{Code: "40P01"}, "op"), ErrConcurrentUpdate)
	assert.ErrorIs(t, wrapDBError(&pq.Error{Code: "23514"}, "op"), ErrConstraintViolation)
	assert.ErrorIs(t, wrapDBError(errors.New("boom"), "op"), ErrDatabaseError)
	assert.NoError(t, wrapDBError(nil, "op"))
}
