package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/review-platform/internal/core/domain"
)

// Mock KVStore
type mockKV struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newMockKV() *mockKV {
	return &mockKV{values: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mockKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mockKV) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
		delete(m.ttls, k)
	}
	return nil
}

func (m *mockKV) raw(key string) (string, time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, m.ttls[key], ok
}

// Mock SortedSetStore
type mockZSet struct {
	mu   sync.Mutex
	sets map[string]map[string]float64
}

func newMockZSet() *mockZSet {
	return &mockZSet{sets: make(map[string]map[string]float64)}
}

func (m *mockZSet) ZRange(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.sets[key]
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool { return set[members[i]] < set[members[j]] })
	return members, nil
}

func (m *mockZSet) ZAdd(ctx context.Context, key string, members map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets[key] == nil {
		m.sets[key] = make(map[string]float64)
	}
	for member, score := range members {
		m.sets[key][member] = score
	}
	return nil
}

func (m *mockZSet) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.sets, k)
	}
	return nil
}

// Mock Locker
type mockLocker struct {
	mu         sync.Mutex
	held       map[string]string
	seq        int
	acquireErr error
	acquires   int
	releases   int
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[string]string)}
}

func (m *mockLocker) TryAcquire(ctx context.Context, name string, lease time.Duration) (domain.LockHandle, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquireErr != nil {
		return domain.LockHandle{}, false, m.acquireErr
	}
	if _, ok := m.held[name]; ok {
		return domain.LockHandle{}, false, nil
	}
	m.seq++
	token := "t-" + strconv.Itoa(m.seq)
	m.held[name] = token
	m.acquires++
	return domain.LockHandle{Name: name, Token: token, Lease: lease}, true, nil
}

func (m *mockLocker) Release(ctx context.Context, handle domain.LockHandle) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[handle.Name] != handle.Token {
		return false, nil
	}
	delete(m.held, handle.Name)
	m.releases++
	return true, nil
}

func (m *mockLocker) isHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[name]
	return ok
}

// Mock ShopRepository
type mockShopRepo struct {
	mu      sync.Mutex
	shops   map[int64]domain.Shop
	types   []domain.ShopType
	gets    atomic.Int32
	lists   atomic.Int32
	updates int
}

func newMockShopRepo(shops ...domain.Shop) *mockShopRepo {
	m := &mockShopRepo{shops: make(map[int64]domain.Shop)}
	for _, s := range shops {
		m.shops[s.ID] = s
	}
	return m
}

func (m *mockShopRepo) GetShop(ctx context.Context, id int64) (domain.Shop, error) {
	m.gets.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shops[id]
	if !ok {
		return domain.Shop{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *mockShopRepo) UpdateShop(ctx context.Context, shop domain.Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shops[shop.ID]; !ok {
		return domain.ErrNotFound
	}
	m.shops[shop.ID] = shop
	m.updates++
	return nil
}

func (m *mockShopRepo) ListShopTypes(ctx context.Context) ([]domain.ShopType, error) {
	m.lists.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ShopType(nil), m.types...), nil
}

// Mock VoucherRepository with the same uniqueness and stock rules as the MySQL tables.
type mockVoucherRepo struct {
	mu        sync.Mutex
	vouchers  map[int64]domain.SeckillVoucher
	orders    map[int64]domain.VoucherOrder
	byPair    map[[2]int64]int64
	createErr error
	panicOn   int64
	// failing maps an order id to how many more inserts fail; negative fails forever
	failing  map[int64]int
	attempts map[int64]int
	gets      atomic.Int32
}

func newMockVoucherRepo(vouchers ...domain.SeckillVoucher) *mockVoucherRepo {
	m := &mockVoucherRepo{
		vouchers: make(map[int64]domain.SeckillVoucher),
		orders:   make(map[int64]domain.VoucherOrder),
		byPair:   make(map[[2]int64]int64),
		failing:  make(map[int64]int),
		attempts: make(map[int64]int),
	}
	for _, v := range vouchers {
		m.vouchers[v.VoucherID] = v
	}
	return m
}

func (m *mockVoucherRepo) GetSeckillVoucher(ctx context.Context, voucherID int64) (domain.SeckillVoucher, error) {
	m.gets.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vouchers[voucherID]
	if !ok {
		return domain.SeckillVoucher{}, domain.ErrNotFound
	}
	return v, nil
}

func (m *mockVoucherRepo) CreateSeckillVoucher(ctx context.Context, v domain.SeckillVoucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vouchers[v.VoucherID]; ok {
		return errors.New("voucher exists")
	}
	m.vouchers[v.VoucherID] = v
	return nil
}

func (m *mockVoucherRepo) CreateVoucherOrder(ctx context.Context, order domain.VoucherOrder) error {
	if m.panicOn != 0 && order.ID == m.panicOn {
		panic("boom")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[order.ID]++
	if m.createErr != nil {
		return m.createErr
	}
	if n, ok := m.failing[order.ID]; ok && n != 0 {
		if n > 0 {
			m.failing[order.ID] = n - 1
		}
		return errors.New("connection reset")
	}
	pair := [2]int64{order.VoucherID, order.UserID}
	if _, ok := m.orders[order.ID]; ok {
		return domain.ErrOrderExists
	}
	if _, ok := m.byPair[pair]; ok {
		return domain.ErrOrderExists
	}
	v := m.vouchers[order.VoucherID]
	if v.Stock <= 0 {
		return domain.ErrInsufficientStock
	}
	v.Stock--
	m.vouchers[order.VoucherID] = v
	m.orders[order.ID] = order
	m.byPair[pair] = order.ID
	return nil
}

func (m *mockVoucherRepo) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// Mock AdmissionGate
type mockGate struct {
	mu     sync.Mutex
	stock  map[int64]int
	buyers map[int64]map[int64]bool
	err    error
}

func newMockGate() *mockGate {
	return &mockGate{stock: make(map[int64]int), buyers: make(map[int64]map[int64]bool)}
}

func (m *mockGate) Reserve(ctx context.Context, voucherID, userID, orderID int64) (domain.ReserveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if m.buyers[voucherID][userID] {
		return domain.ReserveDuplicatePurchase, nil
	}
	if m.stock[voucherID] <= 0 {
		return domain.ReserveOutOfStock, nil
	}
	m.stock[voucherID]--
	if m.buyers[voucherID] == nil {
		m.buyers[voucherID] = make(map[int64]bool)
	}
	m.buyers[voucherID][userID] = true
	return domain.ReserveAccepted, nil
}

func (m *mockGate) SetStock(ctx context.Context, voucherID int64, stock int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[voucherID] = stock
	return nil
}

// Mock IDGenerator
type mockIDs struct {
	next atomic.Int64
}

func (m *mockIDs) NextID(ctx context.Context, prefix string) (int64, error) {
	return m.next.Add(1), nil
}

// Mock OrderLog
type mockOrderLog struct {
	mu       sync.Mutex
	newQueue []domain.OrderEntry
	pending  map[string]domain.OrderEntry
	order    []string
	acked    []string
	dead     map[string]string
	readErr  error
	// deliveries counts hand-outs per entry, like the group's delivery counter
	deliveries map[string]int64
}

func newMockOrderLog(entries ...domain.OrderEntry) *mockOrderLog {
	return &mockOrderLog{
		newQueue: entries,
		pending:  make(map[string]domain.OrderEntry),
		dead:     make(map[string]string),

		deliveries: make(map[string]int64),
	}
}

func (m *mockOrderLog) EnsureGroup(ctx context.Context) error { return nil }

func (m *mockOrderLog) ReadNew(ctx context.Context, consumer string, count int64, block time.Duration) ([]domain.OrderEntry, error) {
	m.mu.Lock()
	if m.readErr != nil {
		err := m.readErr
		m.mu.Unlock()
		return nil, err
	}
	n := int(count)
	if n > len(m.newQueue) {
		n = len(m.newQueue)
	}
	out := append([]domain.OrderEntry(nil), m.newQueue[:n]...)
	m.newQueue = m.newQueue[n:]
	for i, e := range out {
		m.pending[e.ID] = e
		m.order = append(m.order, e.ID)
		m.deliveries[e.ID]++
		out[i].Deliveries = m.deliveries[e.ID]
	}
	m.mu.Unlock()

	if len(out) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(block):
		}
	}
	return out, nil
}

// ReadPending honours count, which miniredis ignores for pending reads.
func (m *mockOrderLog) ReadPending(ctx context.Context, consumer, after string, count int64) ([]domain.OrderEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if after != "0" {
		for i, id := range m.order {
			if id == after {
				start = i + 1
				break
			}
		}
	}
	var out []domain.OrderEntry
	for _, id := range m.order[start:] {
		e, ok := m.pending[id]
		if !ok {
			continue
		}
		if int64(len(out)) == count {
			break
		}
		m.deliveries[id]++
		e.Deliveries = m.deliveries[id]
		out = append(out, e)
	}
	return out, nil
}

func (m *mockOrderLog) Ack(ctx context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, entryID)
	m.acked = append(m.acked, entryID)
	return nil
}

func (m *mockOrderLog) DeadLetter(ctx context.Context, entry domain.OrderEntry, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead[entry.ID] = reason
	delete(m.pending, entry.ID)
	m.acked = append(m.acked, entry.ID)
	return nil
}

func (m *mockOrderLog) track(entries ...domain.OrderEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.pending[e.ID] = e
		m.order = append(m.order, e.ID)
	}
}

func (m *mockOrderLog) pendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// manual clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
