// Package router wires handlers and middleware onto the Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/handler"
	"github.com/iliyamo/parking-reservation/internal/middleware"
	"github.com/iliyamo/parking-reservation/internal/model"
)

// Deps carries everything the routes need.  Cache and RateLimit may be
// nil.  RateLimit runs after authentication so per-user keys see the caller.
type Deps struct {
	JWTSecret    string
	DeviceKey    string
	DB           handler.Pinger
	Auth         *handler.AuthHandler
	Reservations *handler.ReservationHandler
	Wallet       *handler.WalletHandler
	Spaces       *handler.SpaceHandler
	Cache        echo.MiddlewareFunc
	RateLimit    echo.MiddlewareFunc
}

// RegisterRoutes registers the health check and every /v1 route.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))

	registerAuth(e, d)
	registerPublic(e, d)

	authed := d.limited(
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleDriver, model.RoleAdmin),
	)

	r := e.Group("/v1/reservations", authed...)
	r.POST("", d.Reservations.Create)
	r.GET("/current", d.Reservations.Current)
	r.GET("/history", d.Reservations.History)
	r.GET("/:id", d.Reservations.Get)
	r.GET("/:id/qr", d.Reservations.QR)
	r.POST("/:id/checkin", d.Reservations.CheckIn)
	r.POST("/:id/cancel", d.Reservations.Cancel)
	r.POST("/:id/complete", d.Reservations.Complete)

	w := e.Group("/v1/wallet", authed...)
	w.GET("", d.Wallet.Balance)
	w.GET("/transactions", d.Wallet.History)
	w.POST("/topup", d.Wallet.TopUp)

	e.POST("/v1/spaces", d.Spaces.Create,
		d.limited(middleware.JWTAuth(d.JWTSecret), middleware.RequireRole(model.RoleAdmin))...)
	// Sensors authenticate with the shared device key, not a user token.
	e.PUT("/v1/spaces/:id/status", d.Spaces.ReportStatus, d.limited(middleware.DeviceKey(d.DeviceKey))...)
}

// limited appends the rate limiter, when configured, after mw.
func (d Deps) limited(mw ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if d.RateLimit != nil {
		mw = append(mw, d.RateLimit)
	}
	return mw
}

func registerAuth(e *echo.Echo, d Deps) {
	g := e.Group("/v1/auth", d.limited()...)
	g.POST("/register", d.Auth.Register)
	g.POST("/login", d.Auth.Login)
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/logout", d.Auth.Logout)

	e.GET("/v1/me", d.Auth.Me, d.limited(middleware.JWTAuth(d.JWTSecret))...)
}

// registerPublic exposes read-only browse endpoints behind the response
// cache.
func registerPublic(e *echo.Echo, d Deps) {
	mw := d.limited()
	if d.Cache != nil {
		mw = append(mw, d.Cache)
	}
	e.GET("/v1/spaces", d.Spaces.List, mw...)
	e.GET("/v1/pricing", d.Spaces.Pricing, mw...)
}
