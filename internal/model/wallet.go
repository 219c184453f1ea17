package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxType classifies a wallet transaction.
type TxType string

const (
	TxHold    TxType = "hold"
	TxDebit   TxType = "debit"
	TxRelease TxType = "release"
	TxTopUp   TxType = "topup"
)

// WalletAccount holds a user's spendable balance.  Balance never goes
// below zero.
type WalletAccount struct {
	UserID    uint64          // wallet_accounts.user_id
	Balance   decimal.Decimal // wallet_accounts.balance
	UpdatedAt time.Time       // wallet_accounts.updated_at
}

// WalletTransaction is an immutable ledger row.  Every balance change
// writes exactly one of these in the same unit of work.
type WalletTransaction struct {
	ID            uint64          // wallet_transactions.id
	UserID        uint64          // wallet_transactions.user_id
	ReservationID *uint64         // wallet_transactions.reservation_id (nullable)
	Type          TxType          // wallet_transactions.tx_type
	Amount        decimal.Decimal // wallet_transactions.amount
	Note          string          // wallet_transactions.note
	CreatedAt     time.Time       // wallet_transactions.created_at
}
