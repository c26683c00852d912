package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aaronwang/bidding-app/api-gateway/internal/auction"
	"github.com/aaronwang/bidding-app/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()

	require.NoError(t, l.Transfer(ctx, "listing-1", "seller", 20))
	require.NoError(t, l.Transfer(ctx, "listing-2", "seller", 5))
	bal, err := l.Balance(ctx, "seller")
	require.NoError(t, err)
	assert.EqualValues(t, 25, bal)

	assert.ErrorIs(t, l.Transfer(ctx, "listing-3", "", 1), ErrNoRecipient)

	l.Reject("seller", true)
	assert.Error(t, l.Transfer(ctx, "listing-3", "seller", 1))
	bal, _ = l.Balance(ctx, "seller")
	assert.EqualValues(t, 25, bal)
}

func TestMemoryTransferCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewMemory().Transfer(ctx, "listing-1", "seller", 1), context.Canceled)
}

func TestMemoryTransferOncePerRef(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()

	require.NoError(t, l.Transfer(ctx, "listing-1", "seller", 20))
	assert.ErrorIs(t, l.Transfer(ctx, "listing-1", "seller", 20), auction.ErrDuplicateTransfer)

	err := l.Transfer(ctx, "listing-1", "seller", 21)
	require.Error(t, err)
	assert.NotErrorIs(t, err, auction.ErrDuplicateTransfer)

	// an empty ref is not deduplicated
	require.NoError(t, l.Transfer(ctx, "", "seller", 1))
	require.NoError(t, l.Transfer(ctx, "", "seller", 1))

	bal, err := l.Balance(ctx, "seller")
	require.NoError(t, err)
	assert.EqualValues(t, 22, bal)
}

func newMockLedger(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresFromDB(db), mock
}

func TestPostgresTransferCommits(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transfers").
		WithArgs("listing-1", "seller", "20").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs("seller", "20").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, l.Transfer(context.Background(), "listing-1", models.Participant("seller"), 20))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransferFullRange(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transfers").
		WithArgs("listing-1", "seller", "9223372036854775808").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs("seller", "9223372036854775808").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, l.Transfer(context.Background(), "listing-1", "seller", 1<<63))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransferDuplicateRef(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transfers").
		WithArgs("listing-1", "seller", "20").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT recipient, amount FROM transfers").
		WithArgs("listing-1").
		WillReturnRows(sqlmock.NewRows([]string{"recipient", "amount"}).AddRow("seller", "20"))
	mock.ExpectRollback()

	err := l.Transfer(context.Background(), "listing-1", "seller", 20)
	assert.ErrorIs(t, err, auction.ErrDuplicateTransfer)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransferConflictingRef(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transfers").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT recipient, amount FROM transfers").
		WithArgs("listing-1").
		WillReturnRows(sqlmock.NewRows([]string{"recipient", "amount"}).AddRow("someone-else", "20"))
	mock.ExpectRollback()

	err := l.Transfer(context.Background(), "listing-1", "seller", 20)
	require.Error(t, err)
	assert.NotErrorIs(t, err, auction.ErrDuplicateTransfer)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransferRollsBack(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transfers").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO accounts").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := l.Transfer(context.Background(), "listing-1", "seller", 20)
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransferNeedsRecipient(t *testing.T) {
	l, mock := newMockLedger(t)
	assert.ErrorIs(t, l.Transfer(context.Background(), "listing-1", "", 20), ErrNoRecipient)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBalance(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectQuery("SELECT balance FROM accounts").
		WithArgs("seller").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("42"))
	mock.ExpectQuery("SELECT balance FROM accounts").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	bal, err := l.Balance(context.Background(), "seller")
	require.NoError(t, err)
	assert.EqualValues(t, 42, bal)

	bal, err = l.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, bal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBalanceFullRange(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectQuery("SELECT balance FROM accounts").
		WithArgs("seller").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("18446744073709551615"))

	bal, err := l.Balance(context.Background(), "seller")
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<64-1), bal)
	assert.NoError(t, mock.ExpectationsWereMet())
}
