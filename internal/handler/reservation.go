package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/service"
)

const qrImageSize = 256

// ReservationHandler exposes the reservation lifecycle to drivers.  All
// routes sit behind JWTAuth.
type ReservationHandler struct {
	Reservations *service.ReservationManager
	Timeout      time.Duration
}

func NewReservationHandler(m *service.ReservationManager, timeout time.Duration) *ReservationHandler {
	if m == nil {
		panic("nil ReservationManager passed to NewReservationHandler")
	}
	return &ReservationHandler{Reservations: m, Timeout: timeout}
}

type reservationResp struct {
	ID            uint64           `json:"id"`
	SpaceID       uint64           `json:"space_id"`
	QRCode        string           `json:"qr_code"`
	Status        string           `json:"status"`
	DepositAmount decimal.Decimal  `json:"deposit_amount"`
	DepositStatus string           `json:"deposit_status"`
	StartTime     time.Time        `json:"start_time"`
	EndTime       time.Time        `json:"end_time"`
	CheckedInAt   *time.Time       `json:"checked_in_at,omitempty"`
	CheckedOutAt  *time.Time       `json:"checked_out_at,omitempty"`
	TotalFee      *decimal.Decimal `json:"total_fee,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

func toReservationResp(r model.Reservation) reservationResp {
	return reservationResp{
		ID:            r.ID,
		SpaceID:       r.SpaceID,
		QRCode:        r.QRCode,
		Status:        string(r.Status),
		DepositAmount: r.DepositAmount,
		DepositStatus: string(r.DepositStatus),
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		CheckedInAt:   r.CheckedInAt,
		CheckedOutAt:  r.CheckedOutAt,
		TotalFee:      r.TotalFee,
		CreatedAt:     r.CreatedAt,
	}
}

// Create handles POST /v1/reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		SpaceID       uint64          `json:"space_id"`
		StartTime     time.Time       `json:"start_time"`
		EndTime       time.Time       `json:"end_time"`
		DepositAmount decimal.Decimal `json:"deposit_amount"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	res, err := h.Reservations.Create(ctx, service.CreateRequest{
		UserID:  userID,
		SpaceID: body.SpaceID,
		Start:   body.StartTime,
		End:     body.EndTime,
		Deposit: body.DepositAmount,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toReservationResp(res))
}

// Current handles GET /v1/reservations/current.  It answers 204 when the
// caller has no active reservation.
func (h *ReservationHandler) Current(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	cur, err := h.Reservations.Current(ctx, userID)
	if err != nil {
		return writeError(c, err)
	}
	if cur == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reservation":     toReservationResp(cur.Reservation),
		"elapsed_seconds": int64(cur.Elapsed / time.Second),
		"fee_estimate":    cur.FeeEstimate,
	})
}

// History handles GET /v1/reservations/history?limit=&offset=.
func (h *ReservationHandler) History(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var limit, offset int
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).Int("offset", &offset).BindError(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit and offset must be integers"})
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	list, err := h.Reservations.History(ctx, userID, limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	items := make([]reservationResp, 0, len(list))
	for _, r := range list {
		items = append(items, toReservationResp(r))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	res, err := h.Reservations.Get(ctx, userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// QR handles GET /v1/reservations/:id/qr and returns the check-in code as
// a PNG.
func (h *ReservationHandler) QR(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	res, err := h.Reservations.Get(ctx, userID, id)
	if err != nil {
		return writeError(c, err)
	}
	png, err := qrcode.Encode(res.QRCode, qrcode.Medium, qrImageSize)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, "image/png", png)
}

// CheckIn handles POST /v1/reservations/:id/checkin with an optional
// {"qr_code": "..."} body.
func (h *ReservationHandler) CheckIn(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var body struct {
		QRCode string `json:"qr_code"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	res, err := h.Reservations.CheckIn(ctx, userID, id, body.QRCode)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// Cancel handles POST /v1/reservations/:id/cancel.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	res, err := h.Reservations.Cancel(ctx, userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// Complete handles POST /v1/reservations/:id/complete and returns the
// settlement.
func (h *ReservationHandler) Complete(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	s, err := h.Reservations.Complete(ctx, userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reservation":   toReservationResp(s.Reservation),
		"total_fee":     s.TotalFee,
		"extra_due":     s.ExtraDue,
		"refund_amount": s.RefundAmount,
	})
}
