package api

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// AdminClaims identifies the back-office user behind an administrative request.
type AdminClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// NewAdminToken signs an HS256 token accepted by the admin routes.
func NewAdminToken(secret, name string, ttl time.Duration) (string, error) {
	claims := &AdminClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	tkn := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tkn.SignedString([]byte(secret))
}

// RegisterRoutes mounts every endpoint. Admin routes require a bearer token when jwtSecret is set.
func RegisterRoutes(e *echo.Echo, orders *OrderHandler, catalog *CatalogHandler, jwtSecret string) {
	e.POST("/orders", orders.CreateOrder)
	e.GET("/orders/:ref", orders.GetOrder)
	e.GET("/products/:id/stock", catalog.GetStock)

	e.GET("/orders/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "retail-order-service",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// Attached per route: a group middleware would also guard echo's not-found fallback.
	var admin []echo.MiddlewareFunc
	if jwtSecret != "" {
		admin = append(admin, echojwt.WithConfig(echojwt.Config{
			SigningKey: []byte(jwtSecret),
			NewClaimsFunc: func(c echo.Context) jwt.Claims {
				return new(AdminClaims)
			},
		}))
	}
	e.GET("/orders", orders.ListOrders, admin...)
	e.GET("/orders/receivables", orders.ListReceivables, admin...)
	e.POST("/orders/:id/approve", orders.ApproveOrder, admin...)
	e.POST("/orders/:id/reject", orders.RejectOrder, admin...)
	e.POST("/orders/:id/payments", orders.AddPayment, admin...)
	e.POST("/orders/:id/cancel", orders.CancelOrder, admin...)
	e.POST("/products", catalog.RegisterProduct, admin...)
	e.GET("/customers/:phone", catalog.GetCustomer, admin...)
}
