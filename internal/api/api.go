package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"retail-order-service/internal/entity"
	"retail-order-service/internal/service"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

type OrderHandler struct {
	orderService *service.OrderService
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()
	req := entity.NewOrderRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}
	req.IdempotencyKey = c.Request().Header.Get("Idempotent-Key")

	createdOrder, err := h.orderService.CreateOrder(ctx, req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, createdOrder)
}

// GetOrder accepts either the internal id or the display id.
func (h *OrderHandler) GetOrder(c echo.Context) error {
	order, err := h.orderService.GetOrder(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	filter, err := parseFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	orders, err := h.orderService.ListOrders(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	if orders == nil {
		orders = []*entity.Order{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"orders": orders, "count": len(orders)})
}

func (h *OrderHandler) ListReceivables(c echo.Context) error {
	asOf := time.Now().UTC()
	if v := c.QueryParam("as_of"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return respondError(c, &entity.ValidationError{Fields: map[string]string{"as_of": "must be an RFC 3339 timestamp"}})
		}
		asOf = t
	}
	receivables, err := h.orderService.ListReceivables(c.Request().Context(), asOf)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"receivables": receivables,
		"outstanding": service.OutstandingBalance(receivables),
	})
}

func (h *OrderHandler) ApproveOrder(c echo.Context) error {
	req := entity.ApproveRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}
	order, err := h.orderService.ApproveOrder(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) RejectOrder(c echo.Context) error {
	order, err := h.orderService.RejectOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) AddPayment(c echo.Context) error {
	req := entity.PaymentRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}
	order, err := h.orderService.AddPayment(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	order, err := h.orderService.CancelOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

func parseFilter(c echo.Context) (entity.OrderFilter, error) {
	filter := entity.OrderFilter{}
	verr := entity.NewValidationError()

	parseTime := func(name string) *time.Time {
		v := c.QueryParam(name)
		if v == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			verr.Add(name, "must be an RFC 3339 timestamp")
			return nil
		}
		return &t
	}
	parseInt := func(name string) int {
		v := c.QueryParam(name)
		if v == "" {
			return 0
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			verr.Add(name, "must be a non-negative integer")
			return 0
		}
		return n
	}

	filter.From = parseTime("from")
	filter.To = parseTime("to")
	filter.Limit = parseInt("limit")
	filter.Offset = parseInt("offset")

	if v := c.QueryParam("status"); v != "" {
		s, err := entity.ParseStatus(v)
		if err != nil {
			verr.Add("status", "invalid")
		} else {
			filter.Status = &s
		}
	}
	if v := c.QueryParam("source"); v != "" {
		s, err := entity.ParseSource(v)
		if err != nil {
			verr.Add("source", "invalid")
		} else {
			filter.Source = &s
		}
	}
	if v := c.QueryParam("payment_method"); v != "" {
		m, err := entity.ParsePaymentMethod(v)
		if err != nil {
			verr.Add("payment_method", "invalid")
		} else {
			filter.PaymentMethod = &m
		}
	}
	if v := c.QueryParam("delivery_method"); v != "" {
		d, err := entity.ParseDeliveryMethod(v)
		if err != nil {
			verr.Add("delivery_method", "invalid")
		} else {
			filter.DeliveryMethod = &d
		}
	}
	return filter, verr.OrNil()
}

// respondError maps domain errors to status codes and a stable error code.
func respondError(c echo.Context, err error) error {
	var (
		verr    *entity.ValidationError
		stock   *entity.InsufficientStockError
		over    *entity.OverPaymentError
		illegal *entity.IllegalTransitionError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error":  "validation_error",
			"fields": verr.Fields,
		})
	case errors.As(err, &stock):
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":     "insufficient_stock",
			"product":   stock.ProductID,
			"requested": stock.Requested,
			"available": stock.Available,
		})
	case errors.As(err, &over):
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "over_payment",
			"amount":  over.Amount,
			"balance": over.Balance,
		})
	case errors.Is(err, entity.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not_found"})
	case errors.As(err, &illegal):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "illegal_transition",
			"status": illegal.From,
			"event":  illegal.Event,
		})
	case errors.Is(err, entity.ErrDuplicateRequest):
		return c.JSON(http.StatusConflict, map[string]string{"error": "duplicate_request"})
	default:
		logger.Error().Err(err).Str("path", c.Path()).Msg("Unhandled error")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal_error"})
	}
}
