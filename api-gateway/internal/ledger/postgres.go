// Package ledger provides the funds-transfer primitive used to pay sellers.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aaronwang/bidding-app/api-gateway/internal/auction"
	"github.com/aaronwang/bidding-app/shared/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// ErrNoRecipient is returned when a transfer names no recipient
var ErrNoRecipient = errors.New("transfer recipient is empty")

// Postgres keeps participant balances in PostgreSQL
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens and pings a PostgreSQL ledger
func NewPostgres(connStr string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing handle
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// InitSchema creates the ledger tables
func (p *Postgres) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		participant VARCHAR(255) PRIMARY KEY,
		balance NUMERIC(20, 0) NOT NULL DEFAULT 0,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS transfers (
		id VARCHAR(255) PRIMARY KEY,
		recipient VARCHAR(255) NOT NULL,
		amount NUMERIC(20, 0) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_recipient ON transfers(recipient);
	`

	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}

// Transfer credits the recipient and records the movement in one transaction.
// ref is the transfer's primary key: a second transfer under the same ref
// credits nothing and reports auction.ErrDuplicateTransfer when it matches
// the recorded one. Amounts are bound as decimal text so the full uint64
// range reaches the NUMERIC columns.
func (p *Postgres) Transfer(ctx context.Context, ref string, to models.Participant, amount uint64) error {
	if to.IsZero() {
		return ErrNoRecipient
	}
	if ref == "" {
		ref = uuid.New().String()
	}
	value := strconv.FormatUint(amount, 10)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transfer: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transfers (id, recipient, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, ref, string(to), value)
	if err != nil {
		return fmt.Errorf("failed to record transfer: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record transfer: %w", err)
	}
	if inserted == 0 {
		return p.recorded(ctx, tx, ref, to, amount)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (participant, balance)
		VALUES ($1, $2)
		ON CONFLICT (participant) DO UPDATE
		SET balance = accounts.balance + EXCLUDED.balance,
		    updated_at = CURRENT_TIMESTAMP
	`, string(to), value)
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}
	return nil
}

// recorded compares an existing transfer row with a repeated request
func (p *Postgres) recorded(ctx context.Context, tx *sql.Tx, ref string, to models.Participant, amount uint64) error {
	var (
		recipient string
		prev      uint64
	)
	err := tx.QueryRowContext(ctx,
		`SELECT recipient, amount FROM transfers WHERE id = $1`, ref,
	).Scan(&recipient, &prev)
	if err != nil {
		return fmt.Errorf("failed to read transfer %s: %w", ref, err)
	}
	if recipient != string(to) || prev != amount {
		return fmt.Errorf("transfer %s already recorded as %d to %s", ref, prev, recipient)
	}
	return fmt.Errorf("transfer %s: %w", ref, auction.ErrDuplicateTransfer)
}

// Balance returns the credited balance of a participant, zero if unknown
func (p *Postgres) Balance(ctx context.Context, who models.Participant) (uint64, error) {
	var balance uint64
	err := p.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE participant = $1`, string(who),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

// Close closes the database connection
func (p *Postgres) Close() error {
	return p.db.Close()
}
