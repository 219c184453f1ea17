package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/service"
)

// SpaceHandler serves the public space listing, the pricing table and the
// device and admin endpoints that change spaces.
type SpaceHandler struct {
	Reservations *service.ReservationManager
	Timeout      time.Duration
}

func NewSpaceHandler(m *service.ReservationManager, timeout time.Duration) *SpaceHandler {
	return &SpaceHandler{Reservations: m, Timeout: timeout}
}

type spaceResp struct {
	ID           uint64    `json:"id"`
	SpaceNumber  string    `json:"space_number"`
	CurrentState string    `json:"current_state"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toSpaceResp(s model.ParkingSpace) spaceResp {
	return spaceResp{ID: s.ID, SpaceNumber: s.SpaceNumber, CurrentState: string(s.CurrentState), UpdatedAt: s.UpdatedAt}
}

// List handles GET /v1/spaces.
func (h *SpaceHandler) List(c echo.Context) error {
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()
	spaces, err := h.Reservations.Spaces(ctx)
	if err != nil {
		return writeError(c, err)
	}
	items := make([]spaceResp, 0, len(spaces))
	for _, s := range spaces {
		items = append(items, toSpaceResp(s))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Pricing handles GET /v1/pricing.
func (h *SpaceHandler) Pricing(c echo.Context) error {
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()
	cfg, err := h.Reservations.Pricing(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, struct {
		FreeMinutes         int              `json:"free_minutes"`
		BillingBlockMinutes int              `json:"billing_block_minutes"`
		RatePerBlock        decimal.Decimal  `json:"rate_per_block"`
		DailyMax            *decimal.Decimal `json:"daily_max,omitempty"`
	}{cfg.FreeMinutes, cfg.BillingBlockMinutes, cfg.RatePerBlock, cfg.DailyMax})
}

// Create handles POST /v1/spaces (admin only).
func (h *SpaceHandler) Create(c echo.Context) error {
	var body struct {
		SpaceNumber string `json:"space_number"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()
	sp, err := h.Reservations.AddSpace(ctx, body.SpaceNumber)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toSpaceResp(sp))
}

// ReportStatus handles PUT /v1/spaces/:id/status, the HTTP route for
// sensor devices.  Body: {"current_state": "occupied"}.
func (h *SpaceHandler) ReportStatus(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid space id"})
	}
	var body struct {
		CurrentState string `json:"current_state"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	rep, err := h.Reservations.ReportResourceState(ctx, id, model.SpaceState(body.CurrentState))
	if err != nil {
		return writeError(c, err)
	}
	resp := echo.Map{"space": toSpaceResp(rep.Space)}
	if rep.AutoCheckedIn != nil {
		resp["auto_checked_in"] = toReservationResp(*rep.AutoCheckedIn)
	}
	return c.JSON(http.StatusOK, resp)
}
