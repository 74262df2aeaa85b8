package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"cafe_backend/internal/models"
	"cafe_backend/internal/payment"
	"cafe_backend/internal/repositories"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// In-memory repositories that apply the same guards as the SQL statements.
// They ignore the executor, so a rolled back transaction is not undone here.

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// expectCommits queues n successful transactions.
func expectCommits(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

func notMet(op string) error {
	return fmt.Errorf("%w: %s", repositories.ErrConditionNotMet, op)
}

// --- menu ---

type fakeMenuRepo struct {
	mu     sync.Mutex
	items  map[int64]*models.MenuItem
	nextID int64
}

func newFakeMenuRepo(items ...models.MenuItem) *fakeMenuRepo {
	r := &fakeMenuRepo{items: map[int64]*models.MenuItem{}}
	for i := range items {
		it := items[i]
		r.items[it.ID] = &it
		if it.ID > r.nextID {
			r.nextID = it.ID
		}
	}
	return r
}

func (r *fakeMenuRepo) get(id int64) models.MenuItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.items[id]
}

func (r *fakeMenuRepo) CreateItem(_ context.Context, _ repositories.SQLExecutor, item *models.MenuItem) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.Name == item.Name {
			return 0, fmt.Errorf("%w: menu_items_name_key", repositories.ErrDuplicateKey)
		}
	}
	r.nextID++
	item.ID = r.nextID
	copied := *item
	r.items[item.ID] = &copied
	return item.ID, nil
}

func (r *fakeMenuRepo) GetItemByID(_ context.Context, _ repositories.SQLExecutor, id int64) (*models.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *it
	return &copied, nil
}

func (r *fakeMenuRepo) GetItemsByIDs(_ context.Context, _ repositories.SQLExecutor, ids []int64) (map[int64]models.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[int64]models.MenuItem{}
	for _, id := range ids {
		if it, ok := r.items[id]; ok {
			out[id] = *it
		}
	}
	return out, nil
}

func (r *fakeMenuRepo) GetItems(_ context.Context, filters models.MenuFilters) ([]models.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.MenuItem{}
	for _, it := range r.items {
		if filters.AvailableOnly && !it.IsAvailable {
			continue
		}
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeMenuRepo) GetLowStockItems(_ context.Context, threshold int) ([]models.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.MenuItem{}
	for _, it := range r.items {
		if it.IsAvailable && it.IsLowStock(threshold) {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeMenuRepo) UpdateItem(_ context.Context, _ repositories.SQLExecutor, id int64, stock *int, isAvailable *bool) (*models.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok || (stock != nil && *stock < it.ReservedStock) {
		return nil, notMet("updating menu item")
	}
	if stock != nil {
		it.Stock = *stock
	}
	if isAvailable != nil {
		it.IsAvailable = *isAvailable
	}
	copied := *it
	return &copied, nil
}

func (r *fakeMenuRepo) mutate(id int64, qty int, op string, guard func(*models.MenuItem) bool, apply func(*models.MenuItem)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if qty <= 0 || !ok || !guard(it) {
		return notMet(op)
	}
	apply(it)
	return nil
}

func (r *fakeMenuRepo) ReserveStock(_ context.Context, _ repositories.SQLExecutor, id int64, qty int) error {
	return r.mutate(id, qty, "reserving stock",
		func(it *models.MenuItem) bool { return it.Stock-it.ReservedStock >= qty },
		func(it *models.MenuItem) { it.ReservedStock += qty })
}

func (r *fakeMenuRepo) ReleaseStock(_ context.Context, _ repositories.SQLExecutor, id int64, qty int) error {
	return r.mutate(id, qty, "releasing stock",
		func(*models.MenuItem) bool { return true },
		func(it *models.MenuItem) {
			it.ReservedStock -= qty
			if it.ReservedStock < 0 {
				it.ReservedStock = 0
			}
		})
}

func (r *fakeMenuRepo) ConsumeReserved(_ context.Context, _ repositories.SQLExecutor, id int64, qty int) error {
	return r.mutate(id, qty, "consuming reserved stock",
		func(it *models.MenuItem) bool { return it.ReservedStock >= qty && it.Stock >= qty },
		func(it *models.MenuItem) { it.Stock -= qty; it.ReservedStock -= qty })
}

func (r *fakeMenuRepo) ConsumeImmediate(_ context.Context, _ repositories.SQLExecutor, id int64, qty int) error {
	return r.mutate(id, qty, "consuming stock",
		func(it *models.MenuItem) bool { return it.Stock-it.ReservedStock >= qty },
		func(it *models.MenuItem) { it.Stock -= qty })
}

func (r *fakeMenuRepo) Restock(_ context.Context, _ repositories.SQLExecutor, id int64, qty int) error {
	return r.mutate(id, qty, "restocking",
		func(*models.MenuItem) bool { return true },
		func(it *models.MenuItem) { it.Stock += qty })
}

// --- inventory movements ---

type fakeMovementRepo struct {
	mu        sync.Mutex
	movements []models.InventoryMovement
}

func (r *fakeMovementRepo) CreateMovement(_ context.Context, _ repositories.SQLExecutor, m *models.InventoryMovement) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = int64(len(r.movements) + 1)
	r.movements = append(r.movements, *m)
	return m.ID, nil
}

func (r *fakeMovementRepo) GetMovements(_ context.Context, filters models.InventoryMovementFilters) ([]models.InventoryMovement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.InventoryMovement{}
	for _, m := range r.movements {
		if filters.MenuItemID != nil && m.MenuItemID != *filters.MenuItemID {
			continue
		}
		out = append(out, m)
	}
	return out, len(out), nil
}

func (r *fakeMovementRepo) types() []models.MovementType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.MovementType, 0, len(r.movements))
	for _, m := range r.movements {
		out = append(out, m.MovementType)
	}
	return out
}

// --- orders ---

type fakeOrderRepo struct {
	mu         sync.Mutex
	orders     map[int64]*models.Order
	items      map[int64][]models.OrderItem
	events     []models.OrderStatusEvent
	counters   map[string]int
	nextID     int64
	nextItemID int64

	// afterGatewayLookup runs once the webhook has read the order, before it writes.
	afterGatewayLookup func(orderID int64)
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:   map[int64]*models.Order{},
		items:    map[int64][]models.OrderItem{},
		counters: map[string]int{},
	}
}

func (r *fakeOrderRepo) get(id int64) models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.orders[id]
}

func (r *fakeOrderRepo) NextDisplaySequence(_ context.Context, _ repositories.SQLExecutor, period string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[period]++
	return r.counters[period], nil
}

func (r *fakeOrderRepo) CreateOrder(_ context.Context, _ repositories.SQLExecutor, order *models.Order) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	order.ID = r.nextID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.UpdatedAt = order.CreatedAt
	copied := *order
	copied.Items = nil
	r.orders[order.ID] = &copied
	return order.ID, nil
}

func (r *fakeOrderRepo) GetOrderByID(_ context.Context, _ repositories.SQLExecutor, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (r *fakeOrderRepo) GetOrderByGatewayOrderID(_ context.Context, _ repositories.SQLExecutor, gatewayOrderID string) (*models.Order, error) {
	r.mu.Lock()
	var found *models.Order
	for _, o := range r.orders {
		if o.GatewayOrderID != nil && *o.GatewayOrderID == gatewayOrderID {
			copied := *o
			found = &copied
			break
		}
	}
	hook := r.afterGatewayLookup
	r.mu.Unlock()

	if found == nil {
		return nil, repositories.ErrNotFound
	}
	if hook != nil {
		hook(found.ID)
	}
	return found, nil
}

func (r *fakeOrderRepo) setStatus(id int64, status models.OrderStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[id].Status = status
}

func (r *fakeOrderRepo) GetOrders(_ context.Context, filters models.OrderFilters) ([]models.Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Order{}
	for _, o := range r.orders {
		if filters.UserID != nil && o.UserID != *filters.UserID {
			continue
		}
		if filters.Status != nil && string(o.Status) != *filters.Status {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (r *fakeOrderRepo) GetStalePendingOrders(_ context.Context, createdBefore time.Time, limit int) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Order{}
	for _, o := range r.orders {
		if o.Status == models.StatusPendingPayment && o.CreatedAt.Before(createdBefore) && len(out) < limit {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeOrderRepo) TransitionStatus(_ context.Context, _ repositories.SQLExecutor, id int64, from, to models.OrderStatus, meta models.StatusMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return notMet("transition")
	}
	o.Status = to
	o.StatusReason = meta.Reason
	o.DelayMinutes = meta.DelayMinutes
	return nil
}

func (r *fakeOrderRepo) MarkPaid(_ context.Context, _ repositories.SQLExecutor, id int64, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != models.StatusPendingPayment {
		return notMet("mark paid")
	}
	o.Status = models.StatusConfirmed
	o.PaymentID = &paymentID
	return nil
}

func (r *fakeOrderRepo) SetGatewayOrderID(_ context.Context, _ repositories.SQLExecutor, id int64, gatewayOrderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return repositories.ErrNotFound
	}
	o.GatewayOrderID = &gatewayOrderID
	return nil
}

func (r *fakeOrderRepo) SetRefund(_ context.Context, _ repositories.SQLExecutor, id int64, status models.RefundStatus, refundID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return repositories.ErrNotFound
	}
	o.RefundStatus = &status
	o.RefundID = refundID
	return nil
}

func (r *fakeOrderRepo) CreateOrderItem(_ context.Context, _ repositories.SQLExecutor, item *models.OrderItem) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextItemID++
	item.ID = r.nextItemID
	r.items[item.OrderID] = append(r.items[item.OrderID], *item)
	return item.ID, nil
}

func (r *fakeOrderRepo) GetOrderItemsByOrderID(_ context.Context, _ repositories.SQLExecutor, orderID int64) ([]models.OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.OrderItem{}, r.items[orderID]...), nil
}

func (r *fakeOrderRepo) CreateStatusEvent(_ context.Context, _ repositories.SQLExecutor, ev *models.OrderStatusEvent) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, *ev)
	return ev.ID, nil
}

func (r *fakeOrderRepo) GetStatusEvents(_ context.Context, orderID int64) ([]models.OrderStatusEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.OrderStatusEvent{}
	for _, ev := range r.events {
		if ev.OrderID == orderID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// --- subscriptions ---

type fakeSubRepo struct {
	mu     sync.Mutex
	subs   map[int64]*models.UserSubscription
	usage  map[string]int
	nextID int64
}

func newFakeSubRepo(subs ...models.UserSubscription) *fakeSubRepo {
	r := &fakeSubRepo{subs: map[int64]*models.UserSubscription{}, usage: map[string]int{}}
	for i := range subs {
		s := subs[i]
		r.subs[s.ID] = &s
		if s.ID > r.nextID {
			r.nextID = s.ID
		}
	}
	return r
}

func usageKey(userID int64, date time.Time) string {
	return fmt.Sprintf("%d/%s", userID, date.Format("2006-01-02"))
}

func (r *fakeSubRepo) get(id int64) models.UserSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.subs[id]
}

func (r *fakeSubRepo) Create(_ context.Context, _ repositories.SQLExecutor, sub *models.UserSubscription) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sub.ID = r.nextID
	copied := *sub
	r.subs[sub.ID] = &copied
	return sub.ID, nil
}

func (r *fakeSubRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int64) (*models.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSubRepo) pick(userID int64, activeOnly bool) (*models.UserSubscription, error) {
	var best *models.UserSubscription
	for _, s := range r.subs {
		if s.UserID != userID || (activeOnly && s.Status != models.SubscriptionActive) {
			continue
		}
		better := best == nil ||
			(s.Status == models.SubscriptionActive && best.Status != models.SubscriptionActive) ||
			((s.Status == models.SubscriptionActive) == (best.Status == models.SubscriptionActive) && s.EndDate.After(best.EndDate))
		if better {
			best = s
		}
	}
	if best == nil {
		return nil, repositories.ErrNotFound
	}
	copied := *best
	return &copied, nil
}

func (r *fakeSubRepo) GetActiveByUserID(_ context.Context, _ repositories.SQLExecutor, userID int64) (*models.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pick(userID, true)
}

func (r *fakeSubRepo) GetLatestByUserID(_ context.Context, userID int64) (*models.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pick(userID, false)
}

func (r *fakeSubRepo) DeductCredits(_ context.Context, _ repositories.SQLExecutor, id int64, qty int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok || s.Status != models.SubscriptionActive || s.EndDate.Before(now) ||
		s.CreditsUsed+qty > s.CreditsTotal || s.DailyUsed+qty > s.DailyLimit {
		return notMet("deduct credits")
	}
	s.CreditsUsed += qty
	s.DailyUsed += qty
	return nil
}

func (r *fakeSubRepo) RestoreCredits(_ context.Context, _ repositories.SQLExecutor, id int64, qty int, restoreDaily bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return repositories.ErrNotFound
	}
	s.CreditsUsed = max(s.CreditsUsed-qty, 0)
	if restoreDaily {
		s.DailyUsed = max(s.DailyUsed-qty, 0)
	}
	return nil
}

func (r *fakeSubRepo) IncrementDailyUsage(_ context.Context, _ repositories.SQLExecutor, userID int64, date time.Time, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage[usageKey(userID, date)] += qty
	return nil
}

func (r *fakeSubRepo) DecrementDailyUsage(_ context.Context, _ repositories.SQLExecutor, userID int64, date time.Time, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := usageKey(userID, date)
	r.usage[k] = max(r.usage[k]-qty, 0)
	return nil
}

func (r *fakeSubRepo) Cancel(_ context.Context, _ repositories.SQLExecutor, id int64, reason *string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok || s.Status != models.SubscriptionActive || s.IsCancelled {
		return notMet("cancel subscription")
	}
	s.IsCancelled = true
	s.CancelledAt = &now
	s.CancellationReason = reason
	s.AutoRenew = false
	return nil
}

func (r *fakeSubRepo) SetAutoRenew(_ context.Context, _ repositories.SQLExecutor, id int64, autoRenew bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok || s.Status != models.SubscriptionActive || (autoRenew && s.IsCancelled) {
		return notMet("auto renew")
	}
	s.AutoRenew = autoRenew
	return nil
}

func (r *fakeSubRepo) ResetDailyUsed(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.subs {
		if s.Status == models.SubscriptionActive && s.DailyUsed > 0 {
			s.DailyUsed = 0
			n++
		}
	}
	return n, nil
}

func (r *fakeSubRepo) GetDueForRenewal(_ context.Context, now time.Time) ([]models.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.UserSubscription{}
	for _, s := range r.subs {
		if s.Status == models.SubscriptionActive && !s.EndDate.After(now) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSubRepo) Renew(_ context.Context, _ repositories.SQLExecutor, id int64, start, end time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok || s.Status != models.SubscriptionActive || !s.AutoRenew || s.IsCancelled || !s.EndDate.Equal(start) {
		return notMet("renew")
	}
	s.StartDate, s.EndDate = start, end
	s.CreditsUsed, s.DailyUsed = 0, 0
	return nil
}

func (r *fakeSubRepo) Close(_ context.Context, _ repositories.SQLExecutor, id int64, status models.SubscriptionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok || s.Status != models.SubscriptionActive {
		return notMet("close")
	}
	s.Status = status
	return nil
}

func (r *fakeSubRepo) GetExpiringBetween(_ context.Context, from, to time.Time) ([]models.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.UserSubscription{}
	for _, s := range r.subs {
		if s.Status == models.SubscriptionActive && !s.EndDate.Before(from) && s.EndDate.Before(to) && (!s.AutoRenew || s.IsCancelled) {
			out = append(out, *s)
		}
	}
	return out, nil
}

// --- users ---

type fakeAuthRepo struct {
	mu     sync.Mutex
	users  map[int64]*models.User
	hashes map[string]string
	nextID int64
}

func newFakeAuthRepo(users ...models.User) *fakeAuthRepo {
	r := &fakeAuthRepo{users: map[int64]*models.User{}, hashes: map[string]string{}}
	for i := range users {
		u := users[i]
		r.users[u.ID] = &u
		if u.ID > r.nextID {
			r.nextID = u.ID
		}
	}
	return r
}

func (r *fakeAuthRepo) CreateUser(_ context.Context, _ repositories.SQLExecutor, user *models.User, hashedPassword *string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Phone == user.Phone || (user.Username != nil && u.Username != nil && *u.Username == *user.Username) {
			return 0, fmt.Errorf("%w: users_phone_key", repositories.ErrDuplicateKey)
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.IsActive = true
	copied := *user
	r.users[user.ID] = &copied
	if hashedPassword != nil && user.Username != nil {
		r.hashes[*user.Username] = *hashedPassword
	}
	return user.ID, nil
}

func (r *fakeAuthRepo) FindUserByUsername(_ context.Context, username string) (*models.User, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username != nil && *u.Username == username {
			copied := *u
			return &copied, r.hashes[username], nil
		}
	}
	return nil, "", repositories.ErrNotFound
}

func (r *fakeAuthRepo) FindUserByID(_ context.Context, _ repositories.SQLExecutor, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeAuthRepo) FindUserByPhone(_ context.Context, _ repositories.SQLExecutor, phone string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Phone == phone {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeAuthRepo) UpdateFCMToken(_ context.Context, userID int64, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repositories.ErrNotFound
	}
	u.FCMToken = &token
	return nil
}

func (r *fakeAuthRepo) FindStaffWithPushTokens(context.Context) ([]models.User, error) {
	return nil, nil
}

// --- webhook events ---

type fakeWebhookRepo struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (r *fakeWebhookRepo) Record(_ context.Context, _ repositories.SQLExecutor, ev *models.PaymentWebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = map[string]bool{}
	}
	if r.seen[ev.Provider+"/"+ev.EventID] {
		return fmt.Errorf("%w: webhook event", repositories.ErrDuplicateKey)
	}
	r.seen[ev.Provider+"/"+ev.EventID] = true
	return nil
}

func (r *fakeWebhookRepo) Exists(_ context.Context, provider, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[provider+"/"+eventID], nil
}

// --- collaborators ---

type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	refundErr error
	created   int
	refunds   []string
}

func (g *fakeGateway) CreateOrder(_ context.Context, amountPaise int64, receipt string, _ map[string]string) (*payment.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created++
	return &payment.GatewayOrder{
		ID:       fmt.Sprintf("order_test_%d", g.created),
		Amount:   amountPaise,
		Currency: payment.Currency,
		Receipt:  receipt,
	}, nil
}

func (g *fakeGateway) Refund(_ context.Context, paymentID string, amountPaise int64) (*payment.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, paymentID)
	return &payment.Refund{ID: "rfnd_" + paymentID, PaymentID: paymentID, Amount: amountPaise, Status: "processed"}, nil
}

type recordingNotifier struct {
	mu           sync.Mutex
	statuses     []models.OrderStatus
	stockUpdates []int64
	expiring     []int64
	lowStock     int
}

func (n *recordingNotifier) NotifyOrderStatus(o *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, o.Status)
}

func (n *recordingNotifier) NotifyStockUpdate(item *models.MenuItem) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stockUpdates = append(n.stockUpdates, item.ID)
}

func (n *recordingNotifier) NotifySubscriptionExpiring(sub *models.UserSubscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expiring = append(n.expiring, sub.ID)
}

func (n *recordingNotifier) NotifyLowStock(items []models.MenuItem) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lowStock += len(items)
}

type fakeMenuCache struct {
	entries     map[string][]models.MenuItem
	invalidated int
	failReads   bool
}

func (c *fakeMenuCache) key(f models.MenuFilters) string {
	return fmt.Sprintf("%t", f.AvailableOnly)
}

func (c *fakeMenuCache) Get(_ context.Context, f models.MenuFilters) ([]models.MenuItem, bool, error) {
	if c.failReads {
		return nil, false, errors.New("redis unavailable")
	}
	items, ok := c.entries[c.key(f)]
	return items, ok, nil
}

func (c *fakeMenuCache) Set(_ context.Context, f models.MenuFilters, items []models.MenuItem) error {
	if c.entries == nil {
		c.entries = map[string][]models.MenuItem{}
	}
	c.entries[c.key(f)] = items
	return nil
}

func (c *fakeMenuCache) Invalidate(context.Context) error {
	c.entries = nil
	c.invalidated++
	return nil
}
