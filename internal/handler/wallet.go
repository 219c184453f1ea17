package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/service"
)

// WalletHandler serves the caller's wallet.
type WalletHandler struct {
	Ledger  *service.WalletLedger
	Timeout time.Duration
}

func NewWalletHandler(l *service.WalletLedger, timeout time.Duration) *WalletHandler {
	return &WalletHandler{Ledger: l, Timeout: timeout}
}

type walletResp struct {
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type walletTxResp struct {
	ID            uint64          `json:"id"`
	ReservationID *uint64         `json:"reservation_id,omitempty"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Note          string          `json:"note"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toWalletResp(a model.WalletAccount) walletResp {
	return walletResp{Balance: a.Balance, UpdatedAt: a.UpdatedAt}
}

// Balance handles GET /v1/wallet.
func (h *WalletHandler) Balance(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	acct, err := h.Ledger.Balance(ctx, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toWalletResp(acct))
}

// History handles GET /v1/wallet/transactions?limit=.
func (h *WalletHandler) History(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var limit int
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be an integer"})
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	txs, err := h.Ledger.History(ctx, userID, limit)
	if err != nil {
		return writeError(c, err)
	}
	items := make([]walletTxResp, 0, len(txs))
	for _, t := range txs {
		items = append(items, walletTxResp{
			ID:            t.ID,
			ReservationID: t.ReservationID,
			Type:          string(t.Type),
			Amount:        t.Amount,
			Note:          t.Note,
			CreatedAt:     t.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// TopUp handles POST /v1/wallet/topup.
func (h *WalletHandler) TopUp(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	acct, err := h.Ledger.TopUp(ctx, userID, body.Amount)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toWalletResp(acct))
}
