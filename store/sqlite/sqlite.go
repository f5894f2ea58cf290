/*
Package sqlite provides the SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.TxStore and ledger.IdentityStore plus the read-side
  projections (leaderboard, catalog, history) using SQLite. The same SQL
  works on PostgreSQL with minor dialect differences.

KEY TABLES:
  people:       participants; balance is the cached projection column
  items:        redeemable catalog entries
  transactions: append-only ledger, the source of truth for balances

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statement exists for the transactions table.

CONCURRENCY:
  The pool is capped at a single connection. SQLite serializes writers
  anyway; one connection also makes ":memory:" databases safe (each
  pooled connection would otherwise see its own empty database) and
  gives every WithTx unit exclusive use of the writer, which is the
  shared-resource policy the ledger relies on. WAL mode keeps reads
  cheap for on-disk databases.

USAGE:
  store, err := sqlite.New("./data/points.db")   // or ":memory:"
  svc := ledger.NewService(store, logger)
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hotwire/points-engine/ledger"
)

// Store implements the ledger storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Participants. balance is a cached projection of transactions.
	CREATE TABLE IF NOT EXISTS people (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		balance INTEGER NOT NULL DEFAULT 0,
		external_id TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	-- Redeemable catalog entries.
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		cost INTEGER NOT NULL CHECK (cost >= 0),
		description TEXT,
		created_at TEXT NOT NULL
	);

	-- Append-only ledger. No UPDATE, no DELETE. Ever.
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id INTEGER NOT NULL REFERENCES people(id),
		amount INTEGER NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('grant', 'redeem')),
		item_id INTEGER REFERENCES items(id),
		note TEXT,
		created_at TEXT NOT NULL
	);

	-- History reads (hot path for the person view)
	CREATE INDEX IF NOT EXISTS idx_transactions_person
		ON transactions(person_id, id DESC);

	-- Leaderboard ordering
	CREATE INDEX IF NOT EXISTS idx_people_leaderboard
		ON people(balance DESC, name ASC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the same query code
// runs inside and outside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

func (s *Store) GetPerson(ctx context.Context, id ledger.PersonID) (*ledger.Person, error) {
	return getPerson(ctx, s.db, id)
}

func getPerson(ctx context.Context, db dbtx, id ledger.PersonID) (*ledger.Person, error) {
	row := db.QueryRowContext(ctx,
		"SELECT id, name, balance, external_id, created_at FROM people WHERE id = ?", id)
	return scanPerson(row)
}

func scanPerson(row *sql.Row) (*ledger.Person, error) {
	var (
		p          ledger.Person
		externalID sql.NullString
		createdAt  string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Balance, &externalID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.StorageError{Op: "scan person", Err: err}
	}
	p.ExternalID = externalID.String
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &p, nil
}

func (s *Store) GetItem(ctx context.Context, id ledger.ItemID) (*ledger.Item, error) {
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, db dbtx, id ledger.ItemID) (*ledger.Item, error) {
	var (
		it          ledger.Item
		description sql.NullString
		createdAt   string
	)
	err := db.QueryRowContext(ctx,
		"SELECT id, name, cost, description, created_at FROM items WHERE id = ?", id).
		Scan(&it.ID, &it.Name, &it.Cost, &description, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.StorageError{Op: "get item", Err: err}
	}
	it.Description = description.String
	it.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &it, nil
}

func (s *Store) AddBalance(ctx context.Context, id ledger.PersonID, delta int64) (bool, error) {
	return addBalance(ctx, s.db, id, delta)
}

func addBalance(ctx context.Context, db dbtx, id ledger.PersonID, delta int64) (bool, error) {
	res, err := db.ExecContext(ctx,
		"UPDATE people SET balance = balance + ? WHERE id = ?", delta, id)
	if err != nil {
		return false, &ledger.StorageError{Op: "add balance", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &ledger.StorageError{Op: "add balance", Err: err}
	}
	return n > 0, nil
}

func (s *Store) DeductBalanceIfSufficient(ctx context.Context, id ledger.PersonID, cost int64) (bool, error) {
	return deductBalance(ctx, s.db, id, cost)
}

func deductBalance(ctx context.Context, db dbtx, id ledger.PersonID, cost int64) (bool, error) {
	// The funds check lives in the WHERE clause: check-then-mutate as a
	// single conditional write, immune to a racing redemption.
	res, err := db.ExecContext(ctx,
		"UPDATE people SET balance = balance - ? WHERE id = ? AND balance >= ?",
		cost, id, cost)
	if err != nil {
		return false, &ledger.StorageError{Op: "deduct balance", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &ledger.StorageError{Op: "deduct balance", Err: err}
	}
	return n > 0, nil
}

func (s *Store) AppendTransaction(ctx context.Context, tx ledger.Transaction) (ledger.TransactionID, error) {
	return appendTransaction(ctx, s.db, tx)
}

func appendTransaction(ctx context.Context, db dbtx, tx ledger.Transaction) (ledger.TransactionID, error) {
	var itemID any
	if tx.ItemID != nil {
		itemID = int64(*tx.ItemID)
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO transactions (person_id, amount, kind, item_id, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tx.PersonID, tx.Amount, tx.Kind, itemID, nullString(tx.Note),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, &ledger.StorageError{Op: "append transaction", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &ledger.StorageError{Op: "append transaction", Err: err}
	}
	return ledger.TransactionID(id), nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn inside a database transaction. fn returning an
// error rolls everything back; nothing becomes visible.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ledger.StorageError{Op: "begin transaction", Err: err}
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return &ledger.StorageError{Op: "commit transaction", Err: err}
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetPerson(ctx context.Context, id ledger.PersonID) (*ledger.Person, error) {
	return getPerson(ctx, ts.tx, id)
}

func (ts *txStore) GetItem(ctx context.Context, id ledger.ItemID) (*ledger.Item, error) {
	return getItem(ctx, ts.tx, id)
}

func (ts *txStore) AddBalance(ctx context.Context, id ledger.PersonID, delta int64) (bool, error) {
	return addBalance(ctx, ts.tx, id, delta)
}

func (ts *txStore) DeductBalanceIfSufficient(ctx context.Context, id ledger.PersonID, cost int64) (bool, error) {
	return deductBalance(ctx, ts.tx, id, cost)
}

func (ts *txStore) AppendTransaction(ctx context.Context, tx ledger.Transaction) (ledger.TransactionID, error) {
	return appendTransaction(ctx, ts.tx, tx)
}

// =============================================================================
// PEOPLE
// =============================================================================

// CreatePerson inserts a person with balance 0 (ledger.IdentityStore).
// externalID may be empty for admin-created people.
func (s *Store) CreatePerson(ctx context.Context, name, externalID string) (*ledger.Person, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO people (name, balance, external_id, created_at) VALUES (?, 0, ?, ?)",
		name, nullString(externalID), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "people.external_id") {
				return nil, ledger.ErrIdentityTaken
			}
			return nil, ledger.ErrNameTaken
		}
		return nil, &ledger.StorageError{Op: "create person", Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, &ledger.StorageError{Op: "create person", Err: err}
	}
	return s.GetPerson(ctx, ledger.PersonID(id))
}

// GetPersonByExternalID returns the person linked to an identity-provider
// account, or (nil, nil) when no link exists.
func (s *Store) GetPersonByExternalID(ctx context.Context, externalID string) (*ledger.Person, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, balance, external_id, created_at FROM people WHERE external_id = ?",
		externalID)
	return scanPerson(row)
}

// Leaderboard returns all people ordered by balance descending, name
// ascending on ties. Display-only projection: it reads outside any
// ledger transaction and may trail an in-flight redemption.
func (s *Store) Leaderboard(ctx context.Context) ([]ledger.Person, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, balance, external_id, created_at FROM people ORDER BY balance DESC, name ASC")
	if err != nil {
		return nil, &ledger.StorageError{Op: "leaderboard", Err: err}
	}
	defer rows.Close()

	var people []ledger.Person
	for rows.Next() {
		var (
			p          ledger.Person
			externalID sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Balance, &externalID, &createdAt); err != nil {
			return nil, &ledger.StorageError{Op: "leaderboard", Err: err}
		}
		p.ExternalID = externalID.String
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		people = append(people, p)
	}
	return people, rows.Err()
}

// =============================================================================
// ITEMS
// =============================================================================

// CreateItem inserts a catalog item.
func (s *Store) CreateItem(ctx context.Context, name string, cost int64, description string) (*ledger.Item, error) {
	if cost < 0 {
		return nil, ledger.ErrInvalidCost
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO items (name, cost, description, created_at) VALUES (?, ?, ?, ?)",
		name, cost, nullString(description), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, &ledger.StorageError{Op: "create item", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, &ledger.StorageError{Op: "create item", Err: err}
	}
	return s.GetItem(ctx, ledger.ItemID(id))
}

// ListItems returns the catalog ordered by cost ascending, name
// ascending on ties.
func (s *Store) ListItems(ctx context.Context) ([]ledger.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, cost, description, created_at FROM items ORDER BY cost ASC, name ASC")
	if err != nil {
		return nil, &ledger.StorageError{Op: "list items", Err: err}
	}
	defer rows.Close()

	var items []ledger.Item
	for rows.Next() {
		var (
			it          ledger.Item
			description sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&it.ID, &it.Name, &it.Cost, &description, &createdAt); err != nil {
			return nil, &ledger.StorageError{Op: "list items", Err: err}
		}
		it.Description = description.String
		it.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		items = append(items, it)
	}
	return items, rows.Err()
}

// =============================================================================
// TRANSACTION HISTORY
// =============================================================================

// TransactionsForPerson returns a person's ledger entries, newest first.
func (s *Store) TransactionsForPerson(ctx context.Context, personID ledger.PersonID) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, person_id, amount, kind, item_id, note, created_at
		FROM transactions
		WHERE person_id = ?
		ORDER BY id DESC`,
		personID)
	if err != nil {
		return nil, &ledger.StorageError{Op: "load transactions", Err: err}
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var (
			tx        ledger.Transaction
			itemID    sql.NullInt64
			note      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&tx.ID, &tx.PersonID, &tx.Amount, &tx.Kind, &itemID, &note, &createdAt); err != nil {
			return nil, &ledger.StorageError{Op: "load transactions", Err: err}
		}
		if itemID.Valid {
			id := ledger.ItemID(itemID.Int64)
			tx.ItemID = &id
		}
		tx.Note = note.String
		tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// SumTransactions computes a person's balance from the log. The result
// must always equal the cached balance column; exposed for audits and
// invariant checks in tests.
func (s *Store) SumTransactions(ctx context.Context, personID ledger.PersonID) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE person_id = ?",
		personID).Scan(&sum)
	if err != nil {
		return 0, &ledger.StorageError{Op: "sum transactions", Err: err}
	}
	return sum, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
