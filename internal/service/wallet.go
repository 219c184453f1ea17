package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/parking-reservation/internal/apperr"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository"
)

// Ledger notes written on the transaction rows.
const (
	noteHold          = "Deposit hold for booking"
	noteExtraFee      = "Parking fee exceeds deposit"
	noteRefund        = "Refund remaining deposit"
	noteCancelRefund  = "Deposit released on cancellation"
	noteTopUp         = "Wallet top-up"
	maxWalletHistory  = 50
	defaultWalletPage = 20
)

// moneyScale is the number of decimal places a stored amount keeps.
const moneyScale = 2

// wholeCents reports whether d fits a money column without rounding.
func wholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(moneyScale))
}

// checkAmount rejects amounts that are not positive or carry fractions of a cent.
func checkAmount(field string, d decimal.Decimal) error {
	switch {
	case !d.IsPositive():
		return apperr.Validation(field + " must be positive")
	case !wholeCents(d):
		return apperr.Validation(field + " must have at most 2 decimal places")
	}
	return nil
}

// WalletLedger is the only writer of wallet balances.  Each mutation locks
// the wallet row, checks, writes the new balance and appends exactly one
// transaction, all inside the caller's unit of work.
type WalletLedger struct {
	store repository.Store
	log   *slog.Logger
}

func NewWalletLedger(store repository.Store, log *slog.Logger) *WalletLedger {
	return &WalletLedger{store: store, log: log.With("component", "wallet")}
}

// Hold moves a reservation deposit out of the balance.
func (w *WalletLedger) Hold(ctx context.Context, tx repository.Tx, userID, reservationID uint64, amount decimal.Decimal) error {
	return w.apply(ctx, tx, userID, &reservationID, model.TxHold, amount, noteHold)
}

// Debit charges an amount beyond the held deposit.
func (w *WalletLedger) Debit(ctx context.Context, tx repository.Tx, userID, reservationID uint64, amount decimal.Decimal, note string) error {
	return w.apply(ctx, tx, userID, &reservationID, model.TxDebit, amount, note)
}

// Release returns (part of) a held deposit to the balance.
func (w *WalletLedger) Release(ctx context.Context, tx repository.Tx, userID, reservationID uint64, amount decimal.Decimal, note string) error {
	return w.apply(ctx, tx, userID, &reservationID, model.TxRelease, amount, note)
}

// Credit adds owner-provided funds.
func (w *WalletLedger) Credit(ctx context.Context, tx repository.Tx, userID uint64, amount decimal.Decimal, note string) error {
	return w.apply(ctx, tx, userID, nil, model.TxTopUp, amount, note)
}

// apply performs one balance change of the given type.  Holds and debits
// that would take the balance below zero fail with InsufficientFunds and
// change nothing.
func (w *WalletLedger) apply(ctx context.Context, tx repository.Tx, userID uint64, reservationID *uint64, typ model.TxType, amount decimal.Decimal, note string) error {
	if err := checkAmount("amount", amount); err != nil {
		return err
	}
	acct, err := tx.LockWallet(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("wallet not found")
	}
	if err != nil {
		return err
	}
	next := acct.Balance.Add(amount)
	if typ == model.TxHold || typ == model.TxDebit {
		next = acct.Balance.Sub(amount)
	}
	if next.IsNegative() {
		return apperr.InsufficientFunds("insufficient wallet balance")
	}
	if err := tx.SetWalletBalance(ctx, userID, next); err != nil {
		return err
	}
	return tx.InsertWalletTx(ctx, &model.WalletTransaction{
		UserID:        userID,
		ReservationID: reservationID,
		Type:          typ,
		Amount:        amount,
		Note:          note,
	})
}

// TopUp credits a wallet in its own unit of work and returns the new state.
func (w *WalletLedger) TopUp(ctx context.Context, userID uint64, amount decimal.Decimal) (model.WalletAccount, error) {
	if err := checkAmount("amount", amount); err != nil {
		return model.WalletAccount{}, err
	}
	var acct model.WalletAccount
	err := w.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := w.Credit(ctx, tx, userID, amount, noteTopUp); err != nil {
			return err
		}
		var err error
		acct, err = tx.LockWallet(ctx, userID)
		return err
	})
	if err != nil {
		return model.WalletAccount{}, w.fail("top-up", err)
	}
	w.log.Info("wallet topped up", "user_id", userID, "amount", amount.String())
	return acct, nil
}

// Balance returns the current wallet state.
func (w *WalletLedger) Balance(ctx context.Context, userID uint64) (model.WalletAccount, error) {
	var acct model.WalletAccount
	err := w.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		acct, err = tx.LockWallet(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("wallet not found")
		}
		return err
	})
	if err != nil {
		return model.WalletAccount{}, w.fail("balance", err)
	}
	return acct, nil
}

// History lists the newest ledger rows first.  limit is clamped to
// [1, 50] with 20 as the default.
func (w *WalletLedger) History(ctx context.Context, userID uint64, limit int) ([]model.WalletTransaction, error) {
	limit = clampLimit(limit, defaultWalletPage, maxWalletHistory)
	var out []model.WalletTransaction
	err := w.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.WalletHistory(ctx, userID, limit)
		return err
	})
	if err != nil {
		return nil, w.fail("wallet history", err)
	}
	return out, nil
}

func (w *WalletLedger) fail(op string, err error) error {
	err = apperr.Wrap(err)
	if errors.Is(err, apperr.ErrInternal) {
		w.log.Error(op+" failed", "err", err)
	}
	return err
}

func clampLimit(limit, def, upper int) int {
	if limit <= 0 {
		return def
	}
	if limit > upper {
		return upper
	}
	return limit
}
