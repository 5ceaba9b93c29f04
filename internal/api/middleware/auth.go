package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/99minutos/transit-tracker/internal/core/domain"
)

// Context keys set by Auth.
const (
	SubjectKey   = "subject"
	RoleKey      = "role"
	VehicleIDKey = "vehicle_id"
)

// Claims is the payload of reporter tokens. Driver tokens may be bound to a
// single vehicle.
type Claims struct {
	Role      domain.Role `json:"role"`
	VehicleID string      `json:"vehicle_id,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates an HS256 bearer token and stores its subject, role and
// vehicle binding in the echo context.
func Auth(jwtSecret string) echo.MiddlewareFunc {
	key := []byte(jwtSecret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed bearer token")
			}

			claims := &Claims{}
			tkn, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
				return key, nil
			})
			if err != nil || !tkn.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(SubjectKey, claims.Subject)
			c.Set(RoleKey, claims.Role)
			c.Set(VehicleIDKey, claims.VehicleID)

			return next(c)
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}
