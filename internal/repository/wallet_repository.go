package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/parking-reservation/internal/model"
)

// WalletRepo manages wallet_accounts and the append-only
// wallet_transactions ledger.
type WalletRepo struct {
	db *sql.DB
}

func NewWalletRepo(db *sql.DB) *WalletRepo { return &WalletRepo{db: db} }

// CreateAccountTx opens an empty wallet for a new user.
func (r *WalletRepo) CreateAccountTx(ctx context.Context, tx *sql.Tx, userID uint64) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO wallet_accounts (user_id, balance, updated_at) VALUES (?, 0, ?)",
		userID, time.Now().UTC())
	return err
}

// LockTx loads a wallet and holds its row lock until the transaction ends.
func (r *WalletRepo) LockTx(ctx context.Context, tx *sql.Tx, userID uint64) (model.WalletAccount, error) {
	var w model.WalletAccount
	err := tx.QueryRowContext(ctx,
		"SELECT user_id, balance, updated_at FROM wallet_accounts WHERE user_id = ? FOR UPDATE",
		userID).Scan(&w.UserID, &w.Balance, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WalletAccount{}, ErrNotFound
	}
	return w, err
}

// SetBalanceTx overwrites the balance of a locked wallet.
func (r *WalletRepo) SetBalanceTx(ctx context.Context, tx *sql.Tx, userID uint64, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE wallet_accounts SET balance = ?, updated_at = ? WHERE user_id = ?",
		balance, time.Now().UTC(), userID)
	return err
}

// InsertTxTx appends a ledger row and fills in its ID.
func (r *WalletRepo) InsertTxTx(ctx context.Context, tx *sql.Tx, wt *model.WalletTransaction) error {
	var resID sql.NullInt64
	if wt.ReservationID != nil {
		resID = sql.NullInt64{Int64: int64(*wt.ReservationID), Valid: true}
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO wallet_transactions (user_id, reservation_id, tx_type, amount, note, created_at)
		 VALUES (?,?,?,?,?,?)`,
		wt.UserID, resID, string(wt.Type), wt.Amount, wt.Note, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	wt.ID = uint64(id)
	wt.CreatedAt = now
	return nil
}

// HistoryTx returns the newest ledger rows of a user first.
func (r *WalletRepo) HistoryTx(ctx context.Context, tx *sql.Tx, userID uint64, limit int) ([]model.WalletTransaction, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, user_id, reservation_id, tx_type, amount, note, created_at
		   FROM wallet_transactions
		  WHERE user_id = ?
		  ORDER BY created_at DESC, id DESC
		  LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WalletTransaction
	for rows.Next() {
		var (
			wt     model.WalletTransaction
			resID  sql.NullInt64
			txType string
		)
		if err := rows.Scan(&wt.ID, &wt.UserID, &resID, &txType, &wt.Amount, &wt.Note, &wt.CreatedAt); err != nil {
			return nil, err
		}
		if resID.Valid {
			id := uint64(resID.Int64)
			wt.ReservationID = &id
		}
		wt.Type = model.TxType(txType)
		out = append(out, wt)
	}
	return out, rows.Err()
}
