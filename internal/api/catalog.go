package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"retail-order-service/internal/entity"
	"retail-order-service/internal/service"
)

// CatalogHandler serves products, their advisory stock level and customers.
type CatalogHandler struct {
	catalog   *service.CatalogService
	stock     *service.StockService
	customers *service.CustomerService
}

func NewCatalogHandler(catalog *service.CatalogService, stock *service.StockService, customers *service.CustomerService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, stock: stock, customers: customers}
}

func (h *CatalogHandler) RegisterProduct(c echo.Context) error {
	input := entity.NewProduct{}
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}
	product, err := h.catalog.RegisterProduct(c.Request().Context(), input)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, product)
}

func (h *CatalogHandler) GetStock(c echo.Context) error {
	id := c.Param("id")
	qty, err := h.stock.Available(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"product_id": id, "quantity_available": qty})
}

func (h *CatalogHandler) GetCustomer(c echo.Context) error {
	customer, err := h.customers.GetByPhone(c.Request().Context(), c.Param("phone"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, customer)
}
