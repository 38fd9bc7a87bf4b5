package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"stock-ledger/internal/cache"
	"stock-ledger/internal/models"
	"stock-ledger/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ProductCache operaciones del caché que expone el POS. *cache.ProductCache lo implementa.
type ProductCache interface {
	GetStats() cache.CacheStats
	InvalidateProduct(ctx context.Context, companyID, barcode string) error
}

// POSHandler maneja las operaciones específicas del POS
type POSHandler struct {
	productService services.ProductService
	salesService   services.SalesService
	productCache   ProductCache
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewPOSHandler crea una nueva instancia del handler POS
func NewPOSHandler(productService services.ProductService, salesService services.SalesService, productCache ProductCache, logger *zap.Logger) *POSHandler {
	return &POSHandler{
		productService: productService,
		salesService:   salesService,
		productCache:   productCache,
		validator:      validator.New(),
		logger:         logger,
	}
}

// SearchProductByBarcode busca un producto por código de barras (caché primero)
func (h *POSHandler) SearchProductByBarcode(c *gin.Context) {
	start := time.Now()

	companyID, err := companyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	barcode := strings.TrimSpace(c.Param("code"))
	if barcode == "" {
		respondError(c, h.logger, newAPIError(http.StatusBadRequest, CodeInvalidRequest, "Código de barras requerido", nil))
		return
	}

	product, err := h.productService.GetProductByBarcode(c.Request.Context(), companyID, barcode)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, "Producto encontrado", gin.H{
		"product":    product,
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

// QuickSale registra una venta rápida
func (h *POSHandler) QuickSale(c *gin.Context) {
	start := time.Now()

	companyID, err := companyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req models.QuickSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidRequest("Error en el formato de datos", err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(c, h.logger, validationError(err))
		return
	}
	req.UserID = userID(c)

	sale, err := h.salesService.QuickSale(c.Request.Context(), companyID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Venta registrada",
		zap.String("company_id", companyID),
		zap.String("sale_id", sale.SaleID),
		zap.Int("lines", len(sale.Lines)),
		zap.Duration("latency", time.Since(start)))

	respondOK(c, http.StatusCreated, "Venta registrada", sale)
}

// GetCacheStats estadísticas del caché de productos
func (h *POSHandler) GetCacheStats(c *gin.Context) {
	if h.productCache == nil {
		respondOK(c, http.StatusOK, "Caché deshabilitado", cache.CacheStats{})
		return
	}
	respondOK(c, http.StatusOK, "Estadísticas del caché", h.productCache.GetStats())
}

// InvalidateProductCache elimina un código de barras del caché
func (h *POSHandler) InvalidateProductCache(c *gin.Context) {
	companyID, err := companyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	barcode := strings.TrimSpace(c.Param("code"))

	if h.productCache != nil {
		if err := h.productCache.InvalidateProduct(c.Request.Context(), companyID, barcode); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}

	respondOK(c, http.StatusOK, "Caché invalidado", gin.H{"barcode": barcode})
}
