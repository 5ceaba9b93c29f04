package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/transit-tracker/internal/api/middleware"
	"github.com/99minutos/transit-tracker/internal/core/domain"
)

// authorizeReporter checks that the caller may report for vehicleID. Without
// the Auth middleware there are no claims and every caller is allowed. A
// driver token carrying a vehicle_id claim is bound to that vehicle.
func authorizeReporter(c echo.Context, vehicleID string) error {
	if role, _ := c.Get(middleware.RoleKey).(domain.Role); role != domain.RoleDriver {
		return nil
	}

	bound, _ := c.Get(middleware.VehicleIDKey).(string)
	if bound != "" && bound != vehicleID {
		return echo.NewHTTPError(http.StatusForbidden, "token is bound to another vehicle")
	}
	return nil
}
