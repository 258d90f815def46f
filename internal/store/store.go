package store

import (
	"context"
	"errors"
	"time"

	"tokopos/backend/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate value")
	ErrConflict  = errors.New("referenced by other rows")
	ErrInvalid   = errors.New("invalid input")
)

// ListQuery is the common page/limit/search triple used by the list
// endpoints. Search is a substring filter; which columns it applies to is up
// to the implementation.
type ListQuery struct {
	Page   int
	Limit  int
	Search string
}

// MovementQuery filters the stock-movement listing.
type MovementQuery struct {
	Page   int
	Limit  int
	ItemID string
	Type   string
}

// Repository is the single storage interface behind every service. It is
// implemented by the postgres store and the in-memory store; which one backs
// a process is a configuration decision, never a per-module one.
type Repository interface {
	// Item groups.
	ListItemGroups(ctx context.Context, q ListQuery) ([]domain.ItemGroup, int, error)
	GetItemGroup(ctx context.Context, id string) (*domain.ItemGroup, error)
	FindItemGroupByNameOrCode(ctx context.Context, name, code string) (*domain.ItemGroup, error)
	CreateItemGroup(ctx context.Context, group domain.ItemGroup) (*domain.ItemGroup, error)
	UpdateItemGroup(ctx context.Context, group domain.ItemGroup) (*domain.ItemGroup, error)
	// DeleteItemGroup returns ErrConflict while any item references the group.
	DeleteItemGroup(ctx context.Context, id string) error
	CountItemsInGroup(ctx context.Context, groupID string) (int, error)

	// Items.
	ListItems(ctx context.Context, q ListQuery) ([]domain.Item, int, error)
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	GetItemByCode(ctx context.Context, code string) (*domain.Item, error)
	// FindItemByCodeLike returns the first item whose code or name contains
	// the fragment. Used by barcode lookup after an exact match misses.
	FindItemByCodeLike(ctx context.Context, fragment string) (*domain.Item, error)
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)

	// Stock entries (the append-only ledger, plus the CRUD the stock screens use).
	ListStockEntries(ctx context.Context, q ListQuery) ([]domain.StockEntry, int, error)
	ListMovements(ctx context.Context, q MovementQuery) ([]domain.StockEntry, int, error)
	GetStockEntry(ctx context.Context, id string) (*domain.StockEntry, error)
	CreateStockEntry(ctx context.Context, entry domain.StockEntry) (*domain.StockEntry, error)
	UpdateStockEntry(ctx context.Context, id string, req domain.StockEntryUpdateRequest) (*domain.StockEntry, error)
	DeleteStockEntry(ctx context.Context, id string) error
	// EntriesForItem returns every ledger row for the item, for the fold.
	EntriesForItem(ctx context.Context, itemID string) ([]domain.StockEntry, error)

	// POS transactions. CreateTransaction persists the header, its line items
	// and one pending outbox row per line in a single unit of work.
	CreateTransaction(ctx context.Context, tx domain.Transaction, outbox []domain.OutboxEntry) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, q ListQuery) ([]domain.Transaction, int, error)

	// Outbox. ClaimOutbox locks up to limit pending rows whose lock is unset
	// or older than staleBefore, tagging them with workerID.
	ClaimOutbox(ctx context.Context, workerID string, limit int, staleBefore time.Time) ([]domain.OutboxEntry, error)
	MarkOutboxApplied(ctx context.Context, id string, at time.Time) error
	// MarkOutboxFailed records the error, bumps the attempt counter and
	// releases the lock; rows that exceed maxAttempts move to the dead status.
	MarkOutboxFailed(ctx context.Context, id string, procErr string, maxAttempts int) error
	CountPendingOutbox(ctx context.Context, transactionID string) (int, error)

	// Auth users.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
