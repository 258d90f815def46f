package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	groupsByID       map[string]domain.ItemGroup
	itemsByID        map[string]domain.Item
	itemIDByCode     map[string]string
	entriesByID      map[string]domain.StockEntry
	transactionsByID map[string]*domain.Transaction
	outboxByID       map[string]domain.OutboxEntry
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		groupsByID:       make(map[string]domain.ItemGroup),
		itemsByID:        make(map[string]domain.Item),
		itemIDByCode:     make(map[string]string),
		entriesByID:      make(map[string]domain.StockEntry),
		transactionsByID: make(map[string]*domain.Transaction),
		outboxByID:       make(map[string]domain.OutboxEntry),
		usersByUsername:  seedUsers(),
	}
}

// NewSeeded returns a store preloaded with a small demo catalog and opening
// purchase entries. Seeding lives here, as a fixture step, so request-handling
// code never branches on whether real data is available.
func NewSeeded() *Store {
	s := New()

	now := time.Now().UTC()
	groups := []domain.ItemGroup{
		{ID: "ig-bps", Name: "BOY'S POLO SHIRT", Code: "BPS", CreatedAt: now},
		{ID: "ig-bts", Name: "BOY'S SHORT PANT", Code: "BTS", CreatedAt: now},
		{ID: "ig-mw", Name: "MEN'S WEAR", Code: "MW", CreatedAt: now},
	}
	for _, g := range groups {
		s.groupsByID[g.ID] = g
	}

	items := []struct {
		id      string
		code    string
		groupID string
		rate    float64
		opening float64
	}{
		{"item-bps30", "BPS30", "ig-bps", 23.00, 100},
		{"item-bts140", "BTS140", "ig-bts", 10.00, 1100},
		{"item-bts128", "BTS128", "ig-bts", 12.00, 75},
		{"item-bps18", "BPS18", "ig-bps", 28.00, 45},
		{"item-mh40", "MH40", "ig-mw", 42.00, 50},
	}
	for _, it := range items {
		group := s.groupsByID[it.groupID]
		s.itemsByID[it.id] = domain.Item{
			ID:          it.id,
			ItemCode:    it.code,
			Name:        group.Name,
			Rate:        it.rate,
			ItemGroupID: it.groupID,
			CreatedAt:   now,
		}
		s.itemIDByCode[it.code] = it.id

		entryID := xid.New("se")
		s.entriesByID[entryID] = domain.StockEntry{
			ID:        entryID,
			ItemID:    it.id,
			StoreID:   domain.DefaultStoreID,
			Type:      domain.EntryTypePurchase,
			Quantity:  it.opening,
			Unit:      "pcs",
			Rate:      it.rate,
			Supplier:  "Opening Stock",
			EntryDate: now,
			CreatedAt: now,
		}
	}

	return s
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD;
// if unset, hardcoded dev defaults are used with a warning. The memory store
// is never selected when DATABASE_URL is set.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// --- item groups ---

func (s *Store) ListItemGroups(_ context.Context, q store.ListQuery) ([]domain.ItemGroup, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]domain.ItemGroup, 0, len(s.groupsByID))
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	for _, g := range s.groupsByID {
		if needle != "" &&
			!strings.Contains(strings.ToLower(g.Name), needle) &&
			!strings.Contains(strings.ToLower(g.Code), needle) {
			continue
		}
		groups = append(groups, g)
	}

	slices.SortFunc(groups, func(a, b domain.ItemGroup) int {
		return strings.Compare(a.Name, b.Name)
	})

	total := len(groups)
	return paginate(groups, q.Page, q.Limit), total, nil
}

func (s *Store) GetItemGroup(_ context.Context, id string) (*domain.ItemGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groupsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := g
	return &out, nil
}

func (s *Store) FindItemGroupByNameOrCode(_ context.Context, name, code string) (*domain.ItemGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.groupsByID {
		if (name != "" && g.Name == name) || (code != "" && g.Code == code) {
			out := g
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateItemGroup(_ context.Context, group domain.ItemGroup) (*domain.ItemGroup, error) {
	if group.Name == "" || group.Code == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groupsByID {
		if g.Name == group.Name || g.Code == group.Code {
			return nil, store.ErrDuplicate
		}
	}

	if group.ID == "" {
		group.ID = xid.New("ig")
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	s.groupsByID[group.ID] = group
	created := group
	return &created, nil
}

func (s *Store) UpdateItemGroup(_ context.Context, group domain.ItemGroup) (*domain.ItemGroup, error) {
	if group.Name == "" || group.Code == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.groupsByID[group.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, g := range s.groupsByID {
		if id == group.ID {
			continue
		}
		if g.Name == group.Name || g.Code == group.Code {
			return nil, store.ErrDuplicate
		}
	}

	group.CreatedAt = existing.CreatedAt
	s.groupsByID[group.ID] = group
	updated := group
	return &updated, nil
}

func (s *Store) DeleteItemGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groupsByID[id]; !ok {
		return store.ErrNotFound
	}
	for _, it := range s.itemsByID {
		if it.ItemGroupID == id {
			return store.ErrConflict
		}
	}
	delete(s.groupsByID, id)
	return nil
}

func (s *Store) CountItemsInGroup(_ context.Context, groupID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, it := range s.itemsByID {
		if it.ItemGroupID == groupID {
			count++
		}
	}
	return count, nil
}

// --- items ---

func (s *Store) ListItems(_ context.Context, q store.ListQuery) ([]domain.Item, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	items := make([]domain.Item, 0, len(s.itemsByID))
	for _, it := range s.itemsByID {
		joined := s.joinGroupLocked(it)
		if needle != "" &&
			!strings.Contains(strings.ToLower(joined.Name), needle) &&
			!strings.Contains(strings.ToLower(joined.ItemCode), needle) &&
			!strings.Contains(strings.ToLower(joined.GroupName), needle) &&
			!strings.Contains(strings.ToLower(joined.GroupCode), needle) {
			continue
		}
		items = append(items, joined)
	}

	slices.SortFunc(items, func(a, b domain.Item) int {
		if a.Name == b.Name {
			return strings.Compare(a.ItemCode, b.ItemCode)
		}
		return strings.Compare(a.Name, b.Name)
	})

	total := len(items)
	return paginate(items, q.Page, q.Limit), total, nil
}

func (s *Store) joinGroupLocked(it domain.Item) domain.Item {
	if g, ok := s.groupsByID[it.ItemGroupID]; ok {
		it.GroupName = g.Name
		it.GroupCode = g.Code
	}
	return it
}

func (s *Store) GetItem(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.itemsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := s.joinGroupLocked(it)
	return &out, nil
}

func (s *Store) GetItemByCode(_ context.Context, code string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.itemIDByCode[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := s.joinGroupLocked(s.itemsByID[id])
	return &out, nil
}

func (s *Store) FindItemByCodeLike(_ context.Context, fragment string) (*domain.Item, error) {
	needle := strings.ToLower(strings.TrimSpace(fragment))
	if needle == "" {
		return nil, store.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]domain.Item, 0, 4)
	for _, it := range s.itemsByID {
		if strings.Contains(strings.ToLower(it.ItemCode), needle) ||
			strings.Contains(strings.ToLower(it.Name), needle) {
			candidates = append(candidates, it)
		}
	}
	if len(candidates) == 0 {
		return nil, store.ErrNotFound
	}
	slices.SortFunc(candidates, func(a, b domain.Item) int {
		return strings.Compare(a.ItemCode, b.ItemCode)
	})
	out := s.joinGroupLocked(candidates[0])
	return &out, nil
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if item.ItemCode == "" || item.ItemGroupID == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.itemIDByCode[item.ItemCode]; exists {
		return nil, store.ErrDuplicate
	}
	group, ok := s.groupsByID[item.ItemGroupID]
	if !ok {
		return nil, store.ErrNotFound
	}

	if item.ID == "" {
		item.ID = xid.New("item")
	}
	if item.Name == "" {
		item.Name = group.Name
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.itemsByID[item.ID] = item
	s.itemIDByCode[item.ItemCode] = item.ID

	created := s.joinGroupLocked(item)
	return &created, nil
}

// --- stock entries ---

func (s *Store) ListStockEntries(_ context.Context, q store.ListQuery) ([]domain.StockEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	entries := make([]domain.StockEntry, 0, len(s.entriesByID))
	for _, e := range s.entriesByID {
		joined := s.joinItemLocked(e)
		if needle != "" &&
			!strings.Contains(strings.ToLower(joined.ItemName), needle) &&
			!strings.Contains(strings.ToLower(joined.ItemCode), needle) &&
			!strings.Contains(strings.ToLower(joined.Supplier), needle) &&
			!strings.Contains(strings.ToLower(joined.InvoiceNumber), needle) {
			continue
		}
		entries = append(entries, joined)
	}

	sortEntriesNewestFirst(entries)

	total := len(entries)
	return paginate(entries, q.Page, q.Limit), total, nil
}

func (s *Store) ListMovements(_ context.Context, q store.MovementQuery) ([]domain.StockEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.StockEntry, 0, len(s.entriesByID))
	for _, e := range s.entriesByID {
		if q.ItemID != "" && e.ItemID != q.ItemID {
			continue
		}
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		entries = append(entries, s.joinItemLocked(e))
	}

	sortEntriesNewestFirst(entries)

	total := len(entries)
	return paginate(entries, q.Page, q.Limit), total, nil
}

func (s *Store) joinItemLocked(e domain.StockEntry) domain.StockEntry {
	if it, ok := s.itemsByID[e.ItemID]; ok {
		e.ItemName = it.Name
		e.ItemCode = it.ItemCode
	}
	return e
}

func sortEntriesNewestFirst(entries []domain.StockEntry) {
	slices.SortFunc(entries, func(a, b domain.StockEntry) int {
		if a.EntryDate.Equal(b.EntryDate) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.EntryDate.After(b.EntryDate) {
			return -1
		}
		return 1
	})
}

func (s *Store) GetStockEntry(_ context.Context, id string) (*domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entriesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := s.joinItemLocked(e)
	return &out, nil
}

func (s *Store) CreateStockEntry(_ context.Context, entry domain.StockEntry) (*domain.StockEntry, error) {
	if entry.ItemID == "" || entry.Quantity <= 0 || entry.Rate < 0 || entry.Unit == "" {
		return nil, store.ErrInvalid
	}
	if !domain.IsValidEntryType(entry.Type) {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.itemsByID[entry.ItemID]; !ok {
		return nil, store.ErrNotFound
	}

	if entry.ID == "" {
		entry.ID = xid.New("se")
	}
	if entry.StoreID == "" {
		entry.StoreID = domain.DefaultStoreID
	}
	now := time.Now().UTC()
	if entry.EntryDate.IsZero() {
		entry.EntryDate = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	s.entriesByID[entry.ID] = entry

	created := s.joinItemLocked(entry)
	return &created, nil
}

func (s *Store) UpdateStockEntry(_ context.Context, id string, req domain.StockEntryUpdateRequest) (*domain.StockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entriesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	if req.ItemID != nil {
		if _, ok := s.itemsByID[*req.ItemID]; !ok {
			return nil, store.ErrNotFound
		}
		entry.ItemID = *req.ItemID
	}
	if req.Type != nil {
		if !domain.IsValidEntryType(*req.Type) {
			return nil, store.ErrInvalid
		}
		entry.Type = *req.Type
	}
	if req.Quantity != nil {
		if *req.Quantity <= 0 {
			return nil, store.ErrInvalid
		}
		entry.Quantity = *req.Quantity
	}
	if req.Unit != nil {
		if *req.Unit == "" {
			return nil, store.ErrInvalid
		}
		entry.Unit = *req.Unit
	}
	if req.Rate != nil {
		if *req.Rate < 0 {
			return nil, store.ErrInvalid
		}
		entry.Rate = *req.Rate
	}
	if req.Supplier != nil {
		entry.Supplier = *req.Supplier
	}
	if req.InvoiceNumber != nil {
		entry.InvoiceNumber = *req.InvoiceNumber
	}
	if req.EntryDate != nil {
		entry.EntryDate = req.EntryDate.UTC()
	}

	s.entriesByID[id] = entry
	updated := s.joinItemLocked(entry)
	return &updated, nil
}

func (s *Store) DeleteStockEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entriesByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.entriesByID, id)
	return nil
}

func (s *Store) EntriesForItem(_ context.Context, itemID string) ([]domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.StockEntry, 0, 16)
	for _, e := range s.entriesByID {
		if e.ItemID == itemID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// --- transactions & outbox ---

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction, outbox []domain.OutboxEntry) (*domain.Transaction, error) {
	if tx.ID == "" || len(tx.Items) == 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactionsByID[tx.ID]; exists {
		return nil, store.ErrDuplicate
	}

	stored := tx
	stored.Items = make([]domain.TransactionItem, len(tx.Items))
	copy(stored.Items, tx.Items)
	s.transactionsByID[tx.ID] = &stored

	for _, ob := range outbox {
		if ob.ID == "" {
			ob.ID = xid.New("ob")
		}
		if ob.CreatedAt.IsZero() {
			ob.CreatedAt = time.Now().UTC()
		}
		if ob.Status == "" {
			ob.Status = domain.OutboxStatusPending
		}
		s.outboxByID[ob.ID] = ob
	}

	created := cloneTransaction(&stored)
	return &created, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneTransaction(tx)
	return &out, nil
}

func (s *Store) ListTransactions(_ context.Context, q store.ListQuery) ([]domain.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	txs := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		if needle != "" &&
			!strings.Contains(strings.ToLower(tx.ID), needle) &&
			!strings.Contains(strings.ToLower(tx.PaymentMethod), needle) {
			continue
		}
		txs = append(txs, cloneTransaction(tx))
	}

	slices.SortFunc(txs, func(a, b domain.Transaction) int {
		if a.Date.Equal(b.Date) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})

	total := len(txs)
	return paginate(txs, q.Page, q.Limit), total, nil
}

func cloneTransaction(tx *domain.Transaction) domain.Transaction {
	out := *tx
	out.Items = make([]domain.TransactionItem, len(tx.Items))
	copy(out.Items, tx.Items)
	return out
}

func (s *Store) ClaimOutbox(_ context.Context, workerID string, limit int, staleBefore time.Time) ([]domain.OutboxEntry, error) {
	if limit < 1 {
		limit = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]domain.OutboxEntry, 0, limit)
	for _, ob := range s.outboxByID {
		if ob.Status != domain.OutboxStatusPending {
			continue
		}
		if ob.LockedAt != nil && ob.LockedAt.After(staleBefore) {
			continue
		}
		pending = append(pending, ob)
	}
	slices.SortFunc(pending, func(a, b domain.OutboxEntry) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	now := time.Now().UTC()
	for i := range pending {
		pending[i].LockedAt = &now
		pending[i].LockedBy = workerID
		s.outboxByID[pending[i].ID] = pending[i]
	}
	return pending, nil
}

func (s *Store) MarkOutboxApplied(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ob, ok := s.outboxByID[id]
	if !ok {
		return store.ErrNotFound
	}
	ob.Status = domain.OutboxStatusApplied
	ob.LockedAt = nil
	ob.LockedBy = ""
	applied := at.UTC()
	ob.AppliedAt = &applied
	s.outboxByID[id] = ob
	return nil
}

func (s *Store) MarkOutboxFailed(_ context.Context, id string, procErr string, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ob, ok := s.outboxByID[id]
	if !ok {
		return store.ErrNotFound
	}
	ob.Attempts++
	ob.LastError = procErr
	ob.LockedAt = nil
	ob.LockedBy = ""
	if maxAttempts > 0 && ob.Attempts >= maxAttempts {
		ob.Status = domain.OutboxStatusDead
	}
	s.outboxByID[id] = ob
	return nil
}

func (s *Store) CountPendingOutbox(_ context.Context, transactionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, ob := range s.outboxByID {
		if ob.Status != domain.OutboxStatusPending {
			continue
		}
		if transactionID == "" || ob.TransactionID == transactionID {
			count++
		}
	}
	return count, nil
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicate
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = password
	s.usersByUsername[username] = u
	return nil
}

func paginate[T any](rows []T, page, limit int) []T {
	if limit < 1 {
		return rows
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(rows) {
		return []T{}
	}
	end := start + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}
