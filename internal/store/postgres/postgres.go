package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- item groups ---

func (s *Store) ListItemGroups(ctx context.Context, q store.ListQuery) ([]domain.ItemGroup, int, error) {
	where := ""
	args := []any{}
	if needle := strings.TrimSpace(q.Search); needle != "" {
		where = `WHERE name ILIKE $1 OR code ILIKE $1`
		args = append(args, "%"+needle+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM item_groups `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limitPos := len(args) + 1
	args = append(args, q.Limit, offset(q.Page, q.Limit))
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, code, created_at
		FROM item_groups `+where+`
		ORDER BY name
		LIMIT $`+itoa(limitPos)+` OFFSET $`+itoa(limitPos+1),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	groups := make([]domain.ItemGroup, 0, q.Limit)
	for rows.Next() {
		var g domain.ItemGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Code, &g.CreatedAt); err != nil {
			return nil, 0, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return groups, total, nil
}

func (s *Store) GetItemGroup(ctx context.Context, id string) (*domain.ItemGroup, error) {
	var g domain.ItemGroup
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, code, created_at
		FROM item_groups
		WHERE id = $1
	`, id).Scan(&g.ID, &g.Name, &g.Code, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *Store) FindItemGroupByNameOrCode(ctx context.Context, name, code string) (*domain.ItemGroup, error) {
	var g domain.ItemGroup
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, code, created_at
		FROM item_groups
		WHERE (name = $1 AND $1 <> '') OR (code = $2 AND $2 <> '')
		LIMIT 1
	`, name, code).Scan(&g.ID, &g.Name, &g.Code, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *Store) CreateItemGroup(ctx context.Context, group domain.ItemGroup) (*domain.ItemGroup, error) {
	if group.Name == "" || group.Code == "" {
		return nil, store.ErrInvalid
	}
	if group.ID == "" {
		group.ID = xid.New("ig")
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_groups (id, name, code, created_at)
		VALUES ($1,$2,$3,$4)
	`, group.ID, group.Name, group.Code, group.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := group
	return &created, nil
}

func (s *Store) UpdateItemGroup(ctx context.Context, group domain.ItemGroup) (*domain.ItemGroup, error) {
	if group.Name == "" || group.Code == "" {
		return nil, store.ErrInvalid
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE item_groups
		SET name = $2, code = $3
		WHERE id = $1
	`, group.ID, group.Name, group.Code)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetItemGroup(ctx, group.ID)
}

func (s *Store) DeleteItemGroup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM item_groups WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountItemsInGroup(ctx context.Context, groupID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM items WHERE item_group_id = $1`, groupID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// --- items ---

const itemColumns = `
	i.id, i.item_code, i.name, i.rate, i.item_group_id, i.created_at,
	coalesce(g.name, ''), coalesce(g.code, '')`

const itemJoin = `
	FROM items i
	LEFT JOIN item_groups g ON g.id = i.item_group_id`

func scanItem(row interface{ Scan(...any) error }) (domain.Item, error) {
	var it domain.Item
	err := row.Scan(&it.ID, &it.ItemCode, &it.Name, &it.Rate, &it.ItemGroupID, &it.CreatedAt, &it.GroupName, &it.GroupCode)
	return it, err
}

func (s *Store) ListItems(ctx context.Context, q store.ListQuery) ([]domain.Item, int, error) {
	where := ""
	args := []any{}
	if needle := strings.TrimSpace(q.Search); needle != "" {
		where = `WHERE i.item_code ILIKE $1 OR i.name ILIKE $1 OR g.name ILIKE $1 OR g.code ILIKE $1`
		args = append(args, "%"+needle+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) `+itemJoin+` `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limitPos := len(args) + 1
	args = append(args, q.Limit, offset(q.Page, q.Limit))
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+itemJoin+` `+where+`
		ORDER BY i.name, i.item_code
		LIMIT $`+itoa(limitPos)+` OFFSET $`+itoa(limitPos+1),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, q.Limit)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+itemJoin+` WHERE i.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (s *Store) GetItemByCode(ctx context.Context, code string) (*domain.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+itemJoin+` WHERE i.item_code = $1`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (s *Store) FindItemByCodeLike(ctx context.Context, fragment string) (*domain.Item, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, store.ErrNotFound
	}
	it, err := scanItem(s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+itemJoin+`
		WHERE i.item_code ILIKE $1 OR i.name ILIKE $1
		ORDER BY i.item_code
		LIMIT 1
	`, "%"+fragment+"%"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.ItemCode == "" || item.ItemGroupID == "" {
		return nil, store.ErrInvalid
	}
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	if item.Name == "" {
		group, err := s.GetItemGroup(ctx, item.ItemGroupID)
		if err != nil {
			return nil, err
		}
		item.Name = group.Name
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, item_code, name, rate, item_group_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, item.ID, item.ItemCode, item.Name, item.Rate, item.ItemGroupID, item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	return s.GetItem(ctx, item.ID)
}

// --- stock entries ---

const entryColumns = `
	e.id, e.item_id, e.store_id, e.type, e.quantity, e.unit, e.rate,
	coalesce(e.supplier, ''), coalesce(e.invoice_number, ''), e.entry_date, e.created_at,
	coalesce(i.name, ''), coalesce(i.item_code, '')`

const entryJoin = `
	FROM stock_entries e
	LEFT JOIN items i ON i.id = e.item_id`

func scanEntry(row interface{ Scan(...any) error }) (domain.StockEntry, error) {
	var e domain.StockEntry
	err := row.Scan(&e.ID, &e.ItemID, &e.StoreID, &e.Type, &e.Quantity, &e.Unit, &e.Rate,
		&e.Supplier, &e.InvoiceNumber, &e.EntryDate, &e.CreatedAt, &e.ItemName, &e.ItemCode)
	return e, err
}

func (s *Store) ListStockEntries(ctx context.Context, q store.ListQuery) ([]domain.StockEntry, int, error) {
	where := ""
	args := []any{}
	if needle := strings.TrimSpace(q.Search); needle != "" {
		where = `WHERE i.name ILIKE $1 OR i.item_code ILIKE $1 OR e.supplier ILIKE $1 OR e.invoice_number ILIKE $1`
		args = append(args, "%"+needle+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) `+entryJoin+` `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limitPos := len(args) + 1
	args = append(args, q.Limit, offset(q.Page, q.Limit))
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+entryJoin+` `+where+`
		ORDER BY e.entry_date DESC, e.id DESC
		LIMIT $`+itoa(limitPos)+` OFFSET $`+itoa(limitPos+1),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]domain.StockEntry, 0, q.Limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *Store) ListMovements(ctx context.Context, q store.MovementQuery) ([]domain.StockEntry, int, error) {
	conds := []string{}
	args := []any{}
	if q.ItemID != "" {
		args = append(args, q.ItemID)
		conds = append(conds, `e.item_id = $`+itoa(len(args)))
	}
	if q.Type != "" {
		args = append(args, q.Type)
		conds = append(conds, `e.type = $`+itoa(len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) `+entryJoin+` `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limitPos := len(args) + 1
	args = append(args, q.Limit, offset(q.Page, q.Limit))
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+entryJoin+` `+where+`
		ORDER BY e.entry_date DESC, e.id DESC
		LIMIT $`+itoa(limitPos)+` OFFSET $`+itoa(limitPos+1),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]domain.StockEntry, 0, q.Limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *Store) GetStockEntry(ctx context.Context, id string) (*domain.StockEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, `SELECT `+entryColumns+entryJoin+` WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) CreateStockEntry(ctx context.Context, entry domain.StockEntry) (*domain.StockEntry, error) {
	if entry.ItemID == "" || entry.Quantity <= 0 || entry.Rate < 0 || entry.Unit == "" {
		return nil, store.ErrInvalid
	}
	if !domain.IsValidEntryType(entry.Type) {
		return nil, store.ErrInvalid
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_entries (id, item_id, store_id, type, quantity, unit, rate, supplier, invoice_number, entry_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, entry.ID, entry.ItemID, entry.StoreID, entry.Type, entry.Quantity, entry.Unit, entry.Rate,
		nullIfEmpty(entry.Supplier), nullIfEmpty(entry.InvoiceNumber), entry.EntryDate, entry.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	return s.GetStockEntry(ctx, entry.ID)
}

func (s *Store) UpdateStockEntry(ctx context.Context, id string, req domain.StockEntryUpdateRequest) (*domain.StockEntry, error) {
	sets := []string{}
	args := []any{id}

	setField := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+` = $`+itoa(len(args)))
	}

	if req.ItemID != nil {
		setField("item_id", *req.ItemID)
	}
	if req.Type != nil {
		if !domain.IsValidEntryType(*req.Type) {
			return nil, store.ErrInvalid
		}
		setField("type", *req.Type)
	}
	if req.Quantity != nil {
		if *req.Quantity <= 0 {
			return nil, store.ErrInvalid
		}
		setField("quantity", *req.Quantity)
	}
	if req.Unit != nil {
		if *req.Unit == "" {
			return nil, store.ErrInvalid
		}
		setField("unit", *req.Unit)
	}
	if req.Rate != nil {
		if *req.Rate < 0 {
			return nil, store.ErrInvalid
		}
		setField("rate", *req.Rate)
	}
	if req.Supplier != nil {
		setField("supplier", nullIfEmpty(*req.Supplier))
	}
	if req.InvoiceNumber != nil {
		setField("invoice_number", nullIfEmpty(*req.InvoiceNumber))
	}
	if req.EntryDate != nil {
		setField("entry_date", req.EntryDate.UTC())
	}

	if len(sets) == 0 {
		return s.GetStockEntry(ctx, id)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_entries
		SET `+strings.Join(sets, ", ")+`
		WHERE id = $1
	`, args...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetStockEntry(ctx, id)
}

func (s *Store) DeleteStockEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stock_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) EntriesForItem(ctx context.Context, itemID string) ([]domain.StockEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+entryJoin+`
		WHERE e.item_id = $1
		ORDER BY e.entry_date
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockEntry, 0, 16)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// --- transactions & outbox ---

func (s *Store) CreateTransaction(ctx context.Context, trx domain.Transaction, outbox []domain.OutboxEntry) (*domain.Transaction, error) {
	if trx.ID == "" || len(trx.Items) == 0 {
		return nil, store.ErrInvalid
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, date, total, payment_method, status)
		VALUES ($1,$2,$3,$4,$5)
	`, trx.ID, trx.Date, trx.Total, trx.PaymentMethod, trx.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	for _, line := range trx.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transaction_items (id, transaction_id, product_id, name, price, quantity, sku)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, line.ID, trx.ID, line.ProductID, line.Name, line.Price, line.Quantity, nullIfEmpty(line.SKU))
		if err != nil {
			return nil, err
		}
	}

	for _, ob := range outbox {
		if ob.ID == "" {
			ob.ID = xid.New("ob")
		}
		if ob.Status == "" {
			ob.Status = domain.OutboxStatusPending
		}
		if ob.CreatedAt.IsZero() {
			ob.CreatedAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_outbox (id, transaction_id, item_id, quantity, entry_type, status, attempts, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,0,$7)
		`, ob.ID, ob.TransactionID, ob.ItemID, ob.Quantity, ob.EntryType, ob.Status, ob.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := trx
	return &created, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var trx domain.Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, date, total, payment_method, status
		FROM transactions
		WHERE id = $1
	`, id).Scan(&trx.ID, &trx.Date, &trx.Total, &trx.PaymentMethod, &trx.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.transactionItems(ctx, id)
	if err != nil {
		return nil, err
	}
	trx.Items = items
	return &trx, nil
}

func (s *Store) transactionItems(ctx context.Context, transactionID string) ([]domain.TransactionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, product_id, name, price, quantity, coalesce(sku, '')
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY id
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.TransactionItem, 0, 8)
	for rows.Next() {
		var it domain.TransactionItem
		if err := rows.Scan(&it.ID, &it.TransactionID, &it.ProductID, &it.Name, &it.Price, &it.Quantity, &it.SKU); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListTransactions(ctx context.Context, q store.ListQuery) ([]domain.Transaction, int, error) {
	where := ""
	args := []any{}
	if needle := strings.TrimSpace(q.Search); needle != "" {
		where = `WHERE id ILIKE $1 OR payment_method ILIKE $1`
		args = append(args, "%"+needle+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM transactions `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limitPos := len(args) + 1
	args = append(args, q.Limit, offset(q.Page, q.Limit))
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, total, payment_method, status
		FROM transactions `+where+`
		ORDER BY date DESC, id DESC
		LIMIT $`+itoa(limitPos)+` OFFSET $`+itoa(limitPos+1),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, q.Limit)
	for rows.Next() {
		var trx domain.Transaction
		if err := rows.Scan(&trx.ID, &trx.Date, &trx.Total, &trx.PaymentMethod, &trx.Status); err != nil {
			return nil, 0, err
		}
		txs = append(txs, trx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range txs {
		items, err := s.transactionItems(ctx, txs[i].ID)
		if err != nil {
			return nil, 0, err
		}
		txs[i].Items = items
	}
	return txs, total, nil
}

func (s *Store) ClaimOutbox(ctx context.Context, workerID string, limit int, staleBefore time.Time) ([]domain.OutboxEntry, error) {
	if limit < 1 {
		limit = 1
	}

	rows, err := s.db.QueryContext(ctx, `
		UPDATE stock_outbox
		SET locked_at = now(), locked_by = $1
		WHERE id IN (
			SELECT id FROM stock_outbox
			WHERE status = 'pending' AND (locked_at IS NULL OR locked_at < $2)
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, transaction_id, item_id, quantity, entry_type, status, attempts,
			coalesce(last_error, ''), locked_at, coalesce(locked_by, ''), created_at, applied_at
	`, workerID, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claimed := make([]domain.OutboxEntry, 0, limit)
	for rows.Next() {
		ob, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, ob)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return claimed, nil
}

func scanOutbox(row interface{ Scan(...any) error }) (domain.OutboxEntry, error) {
	var ob domain.OutboxEntry
	var lockedAt, appliedAt sql.NullTime
	err := row.Scan(&ob.ID, &ob.TransactionID, &ob.ItemID, &ob.Quantity, &ob.EntryType,
		&ob.Status, &ob.Attempts, &ob.LastError, &lockedAt, &ob.LockedBy, &ob.CreatedAt, &appliedAt)
	if err != nil {
		return ob, err
	}
	if lockedAt.Valid {
		t := lockedAt.Time
		ob.LockedAt = &t
	}
	if appliedAt.Valid {
		t := appliedAt.Time
		ob.AppliedAt = &t
	}
	return ob, nil
}

func (s *Store) MarkOutboxApplied(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_outbox
		SET status = 'applied', applied_at = $2, locked_at = NULL, locked_by = NULL
		WHERE id = $1
	`, id, at.UTC())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) MarkOutboxFailed(ctx context.Context, id string, procErr string, maxAttempts int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_outbox
		SET attempts = attempts + 1,
			last_error = $2,
			locked_at = NULL,
			locked_by = NULL,
			status = CASE WHEN $3 > 0 AND attempts + 1 >= $3 THEN 'dead' ELSE status END
		WHERE id = $1
	`, id, procErr, maxAttempts)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountPendingOutbox(ctx context.Context, transactionID string) (int, error) {
	query := `SELECT count(*) FROM stock_outbox WHERE status = 'pending'`
	args := []any{}
	if transactionID != "" {
		query += ` AND transaction_id = $1`
		args = append(args, transactionID)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalid
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- helpers ---

func offset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		return 0
	}
	return (page - 1) * limit
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func nullIfEmpty(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
