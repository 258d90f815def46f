package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	defaultLimit = 10
	maxLimit     = 100

	// fallbackStock is reported for items that have no ledger rows yet, so
	// freshly imported catalog items are sellable before their opening
	// purchase entry lands.
	fallbackStock = 10
)

type Service struct {
	repo      store.Repository
	lookup    cache.LookupCache
	lookupTTL time.Duration
	storeID   string
}

func New(repo store.Repository, lookup cache.LookupCache, lookupTTL time.Duration, storeID string) *Service {
	if lookup == nil {
		lookup = cache.NoopLookupCache{}
	}
	if lookupTTL <= 0 {
		lookupTTL = 30 * time.Second
	}
	if storeID == "" {
		storeID = domain.DefaultStoreID
	}

	return &Service{
		repo:      repo,
		lookup:    lookup,
		lookupTTL: lookupTTL,
		storeID:   storeID,
	}
}

func normalizeQuery(q store.ListQuery) store.ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return q
}

// --- item groups ---

func (s *Service) ListItemGroups(ctx context.Context, q store.ListQuery) ([]domain.ItemGroup, domain.Pagination, error) {
	q = normalizeQuery(q)
	groups, total, err := s.repo.ListItemGroups(ctx, q)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	return groups, domain.NewPagination(q.Page, q.Limit, total), nil
}

func (s *Service) GetItemGroup(ctx context.Context, id string) (domain.ItemGroup, error) {
	group, err := s.repo.GetItemGroup(ctx, id)
	if err != nil {
		return domain.ItemGroup{}, err
	}
	return *group, nil
}

func (s *Service) CreateItemGroup(ctx context.Context, req domain.ItemGroupCreateRequest) (domain.ItemGroup, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ItemGroup{}, err
	}

	name := strings.TrimSpace(req.Name)
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if name == "" || code == "" {
		return domain.ItemGroup{}, store.ErrInvalid
	}

	if _, err := s.repo.FindItemGroupByNameOrCode(ctx, name, code); err == nil {
		return domain.ItemGroup{}, store.ErrDuplicate
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.ItemGroup{}, err
	}

	created, err := s.repo.CreateItemGroup(ctx, domain.ItemGroup{Name: name, Code: code})
	if err != nil {
		return domain.ItemGroup{}, err
	}
	return *created, nil
}

func (s *Service) UpdateItemGroup(ctx context.Context, id string, req domain.ItemGroupUpdateRequest) (domain.ItemGroup, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ItemGroup{}, err
	}

	existing, err := s.repo.GetItemGroup(ctx, id)
	if err != nil {
		return domain.ItemGroup{}, err
	}

	group := *existing
	if req.Name != nil {
		group.Name = strings.TrimSpace(*req.Name)
	}
	if req.Code != nil {
		group.Code = strings.ToUpper(strings.TrimSpace(*req.Code))
	}
	if group.Name == "" || group.Code == "" {
		return domain.ItemGroup{}, store.ErrInvalid
	}

	updated, err := s.repo.UpdateItemGroup(ctx, group)
	if err != nil {
		return domain.ItemGroup{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteItemGroup(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	count, err := s.repo.CountItemsInGroup(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return store.ErrConflict
	}
	return s.repo.DeleteItemGroup(ctx, id)
}

// --- items ---

func (s *Service) ListItems(ctx context.Context, q store.ListQuery) ([]domain.Item, domain.Pagination, error) {
	q = normalizeQuery(q)
	items, total, err := s.repo.ListItems(ctx, q)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	return items, domain.NewPagination(q.Page, q.Limit, total), nil
}

func (s *Service) GetItem(ctx context.Context, id string) (domain.Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Item{}, err
	}

	code := strings.ToUpper(strings.TrimSpace(req.ItemCode))
	if code == "" || req.ItemGroupID == "" {
		return domain.Item{}, store.ErrInvalid
	}
	if req.Rate < 0 {
		return domain.Item{}, store.ErrInvalid
	}

	group, err := s.repo.GetItemGroup(ctx, req.ItemGroupID)
	if err != nil {
		return domain.Item{}, err
	}
	if _, err := s.repo.GetItemByCode(ctx, code); err == nil {
		return domain.Item{}, store.ErrDuplicate
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Item{}, err
	}

	// The item inherits its display name from the group at creation time.
	created, err := s.repo.CreateItem(ctx, domain.Item{
		ItemCode:    code,
		Name:        group.Name,
		Rate:        req.Rate,
		ItemGroupID: group.ID,
	})
	if err != nil {
		return domain.Item{}, err
	}
	return *created, nil
}

// --- stock entries ---

func (s *Service) ListStockEntries(ctx context.Context, q store.ListQuery) ([]domain.StockEntry, domain.Pagination, error) {
	q = normalizeQuery(q)
	entries, total, err := s.repo.ListStockEntries(ctx, q)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	return entries, domain.NewPagination(q.Page, q.Limit, total), nil
}

func (s *Service) GetStockEntry(ctx context.Context, id string) (domain.StockEntry, error) {
	entry, err := s.repo.GetStockEntry(ctx, id)
	if err != nil {
		return domain.StockEntry{}, err
	}
	return *entry, nil
}

func (s *Service) CreateStockEntry(ctx context.Context, req domain.StockEntryCreateRequest) (domain.StockEntry, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockEntry{}, err
	}

	entryType := req.Type
	if entryType == "" {
		entryType = domain.EntryTypePurchase
	}
	if !domain.IsValidEntryType(entryType) {
		return domain.StockEntry{}, store.ErrInvalid
	}
	if req.ItemID == "" || req.Quantity <= 0 || req.Rate < 0 || strings.TrimSpace(req.Unit) == "" {
		return domain.StockEntry{}, store.ErrInvalid
	}

	item, err := s.repo.GetItem(ctx, req.ItemID)
	if err != nil {
		return domain.StockEntry{}, err
	}

	entry := domain.StockEntry{
		ItemID:        item.ID,
		StoreID:       s.storeID,
		Type:          entryType,
		Quantity:      req.Quantity,
		Unit:          strings.TrimSpace(req.Unit),
		Rate:          req.Rate,
		Supplier:      strings.TrimSpace(req.Supplier),
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
	}
	if req.EntryDate != nil {
		entry.EntryDate = req.EntryDate.UTC()
	}

	created, err := s.repo.CreateStockEntry(ctx, entry)
	if err != nil {
		return domain.StockEntry{}, err
	}

	s.invalidateLookup(ctx, item.ItemCode)
	return *created, nil
}

func (s *Service) UpdateStockEntry(ctx context.Context, id string, req domain.StockEntryUpdateRequest) (domain.StockEntry, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockEntry{}, err
	}

	updated, err := s.repo.UpdateStockEntry(ctx, id, req)
	if err != nil {
		return domain.StockEntry{}, err
	}

	s.invalidateLookup(ctx, updated.ItemCode)
	return *updated, nil
}

func (s *Service) DeleteStockEntry(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	entry, err := s.repo.GetStockEntry(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteStockEntry(ctx, id); err != nil {
		return err
	}

	s.invalidateLookup(ctx, entry.ItemCode)
	return nil
}

// --- stock movements ---

func (s *Service) ListMovements(ctx context.Context, q store.MovementQuery) ([]domain.StockEntry, domain.Pagination, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Type != "" && !domain.IsValidEntryType(q.Type) {
		return nil, domain.Pagination{}, store.ErrInvalid
	}

	entries, total, err := s.repo.ListMovements(ctx, q)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	return entries, domain.NewPagination(q.Page, q.Limit, total), nil
}

// CreateMovement records one ledger movement for an item. The POS client
// sends outgoing quantities as negatives; the stored quantity is always
// positive with direction carried by the type.
func (s *Service) CreateMovement(ctx context.Context, req domain.StockMovementRequest) (domain.StockEntry, error) {
	if req.ProductID == "" || req.Quantity == 0 {
		return domain.StockEntry{}, store.ErrInvalid
	}
	if !domain.IsValidEntryType(req.Type) {
		return domain.StockEntry{}, store.ErrInvalid
	}

	item, err := s.repo.GetItem(ctx, req.ProductID)
	if err != nil {
		return domain.StockEntry{}, err
	}

	qty := req.Quantity
	if qty < 0 {
		qty = -qty
	}

	created, err := s.repo.CreateStockEntry(ctx, domain.StockEntry{
		ItemID:   item.ID,
		StoreID:  s.storeID,
		Type:     req.Type,
		Quantity: qty,
		Unit:     "pcs",
		Rate:     item.Rate,
		Supplier: strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return domain.StockEntry{}, err
	}

	s.invalidateLookup(ctx, item.ItemCode)
	return *created, nil
}

// --- POS products ---

// LookupBarcode resolves a scanned code to a sellable product. It tries an
// exact item-code match first, then falls back to a substring match so
// partially scanned or prefixed codes still resolve.
func (s *Service) LookupBarcode(ctx context.Context, code string) (domain.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Product{}, store.ErrInvalid
	}

	key := cache.LookupKey(code)
	if cached, ok, err := s.lookup.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: lookup cache get failed code=%s: %v", code, err)
	} else if ok {
		return *cached, nil
	}

	item, err := s.repo.GetItemByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		item, err = s.repo.FindItemByCodeLike(ctx, code)
	}
	if err != nil {
		return domain.Product{}, err
	}

	product, err := s.buildProduct(ctx, *item)
	if err != nil {
		return domain.Product{}, err
	}

	if err := s.lookup.Set(ctx, key, &product, s.lookupTTL); err != nil {
		log.Printf("[service] WARN: lookup cache set failed code=%s: %v", code, err)
	}
	return product, nil
}

func (s *Service) ListProducts(ctx context.Context, q store.ListQuery) ([]domain.Product, domain.Pagination, error) {
	q = normalizeQuery(q)
	items, total, err := s.repo.ListItems(ctx, q)
	if err != nil {
		return nil, domain.Pagination{}, err
	}

	products := make([]domain.Product, 0, len(items))
	for _, item := range items {
		product, err := s.buildProduct(ctx, item)
		if err != nil {
			return nil, domain.Pagination{}, err
		}
		products = append(products, product)
	}
	return products, domain.NewPagination(q.Page, q.Limit, total), nil
}

// buildProduct folds the item's ledger into the POS view. Stock is the sum
// of purchases and adjustments minus sales and returns; price is the rate of
// the most recent purchase entry, then the item's stored rate.
func (s *Service) buildProduct(ctx context.Context, item domain.Item) (domain.Product, error) {
	entries, err := s.repo.EntriesForItem(ctx, item.ID)
	if err != nil {
		return domain.Product{}, err
	}

	stock := float64(0)
	price := float64(0)
	var latestPurchase time.Time
	for _, e := range entries {
		stock += domain.EntrySign(e.Type) * e.Quantity
		if e.Type == domain.EntryTypePurchase && !e.EntryDate.Before(latestPurchase) {
			latestPurchase = e.EntryDate
			price = e.Rate
		}
	}
	if len(entries) == 0 {
		stock = fallbackStock
	}
	if price == 0 {
		price = item.Rate
	}

	return domain.Product{
		ID:       item.ID,
		Name:     item.Name,
		Price:    price,
		Category: item.GroupName,
		Barcode:  item.ItemCode,
		SKU:      item.ItemCode,
		InStock:  stock,
	}, nil
}

// --- POS transactions ---

func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	if len(req.Items) == 0 {
		return domain.Transaction{}, store.ErrInvalid
	}
	method := strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if method != domain.PaymentMethodCash && method != domain.PaymentMethodCard {
		return domain.Transaction{}, store.ErrInvalid
	}
	// The client-computed total is recorded as sent; line prices are for the
	// receipt only.
	if req.Total <= 0 {
		return domain.Transaction{}, store.ErrInvalid
	}
	for _, line := range req.Items {
		if line.ProductID == "" || line.Quantity <= 0 || line.Price < 0 {
			return domain.Transaction{}, store.ErrInvalid
		}
	}

	now := time.Now().UTC()
	trx := domain.Transaction{
		ID:            xid.Receipt("TX", now),
		Date:          now,
		Total:         req.Total,
		PaymentMethod: method,
		Status:        domain.TxStatusCompleted,
		Items:         make([]domain.TransactionItem, 0, len(req.Items)),
	}
	outbox := make([]domain.OutboxEntry, 0, len(req.Items))

	for _, line := range req.Items {
		trx.Items = append(trx.Items, domain.TransactionItem{
			ID:            xid.New("txi"),
			TransactionID: trx.ID,
			ProductID:     line.ProductID,
			Name:          line.Name,
			Price:         line.Price,
			Quantity:      line.Quantity,
			SKU:           line.SKU,
		})
		outbox = append(outbox, domain.OutboxEntry{
			ID:            xid.New("ob"),
			TransactionID: trx.ID,
			ItemID:        line.ProductID,
			Quantity:      line.Quantity,
			EntryType:     domain.EntryTypeSale,
			Status:        domain.OutboxStatusPending,
			CreatedAt:     now,
		})
	}

	created, err := s.repo.CreateTransaction(ctx, trx, outbox)
	if err != nil {
		return domain.Transaction{}, err
	}

	for _, line := range req.Items {
		if line.SKU != "" {
			s.invalidateLookup(ctx, line.SKU)
		}
	}
	return *created, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	trx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *trx, nil
}

func (s *Service) ListTransactions(ctx context.Context, q store.ListQuery) ([]domain.Transaction, domain.Pagination, error) {
	q = normalizeQuery(q)
	txs, total, err := s.repo.ListTransactions(ctx, q)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	return txs, domain.NewPagination(q.Page, q.Limit, total), nil
}

// --- helpers ---

func (s *Service) invalidateLookup(ctx context.Context, code string) {
	if strings.TrimSpace(code) == "" {
		return
	}
	if err := s.lookup.Invalidate(ctx, cache.LookupKey(code)); err != nil {
		log.Printf("[service] WARN: lookup cache invalidate failed code=%s: %v", code, err)
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	return nil
}
