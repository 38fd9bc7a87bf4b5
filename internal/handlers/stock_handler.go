package handlers

import (
	"net/http"
	"strconv"
	"time"

	"stock-ledger/internal/models"
	"stock-ledger/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StockHandler maneja las peticiones HTTP relacionadas con stock
type StockHandler struct {
	stockService services.StockService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewStockHandler crea una nueva instancia del handler
func NewStockHandler(stockService services.StockService, logger *zap.Logger) *StockHandler {
	return &StockHandler{
		stockService: stockService,
		validator:    validator.New(),
		logger:       logger,
	}
}

// Adjust registra un ajuste de stock (entrada o salida) a través del ledger
func (h *StockHandler) Adjust(c *gin.Context) {
	start := time.Now()

	companyID, err := companyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req models.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidRequest("Error en el formato de datos", err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(c, h.logger, validationError(err))
		return
	}
	req.UserID = userID(c)

	logger := h.logger.With(
		zap.String("handler", "adjust"),
		zap.String("company_id", companyID),
		zap.String("product_id", req.ProductID),
		zap.String("direction", req.Direction),
		zap.Int("amount", req.Amount),
	)

	data, err := h.stockService.Adjust(c.Request.Context(), companyID, &req)
	if err != nil {
		respondError(c, logger, err)
		return
	}

	logger.Info("Ajuste registrado",
		zap.Int("quantity_after", data.QuantityAfter),
		zap.Bool("audit_recorded", data.AuditRecorded),
		zap.Duration("latency", time.Since(start)))

	respondOK(c, http.StatusOK, "Ajuste registrado correctamente", data)
}

// AdjustMultiple procesa varios ajustes; cada ítem se aplica de forma independiente
func (h *StockHandler) AdjustMultiple(c *gin.Context) {
	start := time.Now()

	companyID, err := companyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req models.AdjustMultipleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidRequest("Error en el formato de datos", err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(c, h.logger, validationError(err))
		return
	}
	req.UserID = userID(c)

	response, err := h.stockService.AdjustMultiple(c.Request.Context(), companyID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	for _, itemErr := range response.Errors {
		h.logger.Warn("Ajuste fallido",
			zap.String("company_id", companyID),
			zap.Int("index", itemErr.Index),
			zap.String("product_id", itemErr.ProductID),
			zap.String("error", itemErr.Error))
	}

	h.logger.Info("Ajuste múltiple completado",
		zap.String("company_id", companyID),
		zap.Int("processed", response.TotalProcessed),
		zap.Int("failed", len(response.Errors)),
		zap.Duration("latency", time.Since(start)))

	c.JSON(http.StatusOK, response)
}

// GetProduct devuelve el producto con su cantidad actual
func (h *StockHandler) GetProduct(c *gin.Context) {
	companyID, err := companyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	productID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	product, err := h.stockService.GetProduct(c.Request.Context(), companyID, productID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, "Producto encontrado", product)
}

// GetLowStock lista los productos en o bajo su cantidad mínima
func (h *StockHandler) GetLowStock(c *gin.Context) {
	companyID, err := companyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	products, err := h.stockService.ListLowStock(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Productos con stock bajo",
		"data":    products,
		"total":   len(products),
	})
}

// GetMovements lista movimientos con filtros por query string
func (h *StockHandler) GetMovements(c *gin.Context) {
	companyID, err := companyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	filter, err := parseMovementFilter(c, companyID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	movements, err := h.stockService.ListMovements(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Movimientos obtenidos",
		"data":    movements,
		"total":   len(movements),
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// Verify reproduce el historial de movimientos y lo compara con la cantidad guardada
func (h *StockHandler) Verify(c *gin.Context) {
	companyID, err := companyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	productID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	report, err := h.stockService.Verify(c.Request.Context(), companyID, productID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "Historial consistente"
	if !report.Consistent {
		message = "El historial no coincide con la cantidad guardada"
	}
	respondOK(c, http.StatusOK, message, report)
}

func parseMovementFilter(c *gin.Context, companyID string) (*models.MovementFilter, error) {
	filter := &models.MovementFilter{CompanyID: companyID}

	if v := c.Query("product"); v != "" {
		if _, err := uuid.Parse(v); err != nil {
			return nil, newAPIError(http.StatusBadRequest, CodeInvalidRequest, "Parámetro product inválido", v)
		}
		filter.ProductID = &v
	}
	if v := c.Query("type"); v != "" {
		if v != models.MovementIn && v != models.MovementOut {
			return nil, newAPIError(http.StatusBadRequest, CodeInvalidRequest, "Tipo de movimiento inválido", v)
		}
		filter.MovementType = &v
	}
	if v := c.Query("source"); v != "" {
		filter.Source = &v
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, CodeInvalidRequest, "Fecha inválida, use RFC3339", p.name)
		}
		*p.dst = &t
	}

	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		return nil, err
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		return nil, err
	}
	return filter, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, newAPIError(http.StatusBadRequest, CodeInvalidRequest, "Parámetro numérico inválido", name)
	}
	return n, nil
}
