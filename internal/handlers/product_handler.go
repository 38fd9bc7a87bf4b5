package handlers

import (
	"net/http"
	"time"

	"stock-ledger/internal/models"
	"stock-ledger/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxImportSize = 10 << 20

// ProductHandler catálogo de productos e importación masiva
type ProductHandler struct {
	productService services.ProductService
	importService  services.ImportService
	validator      *validator.Validate
	logger         *zap.Logger
}

func NewProductHandler(productService services.ProductService, importService services.ImportService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		importService:  importService,
		validator:      validator.New(),
		logger:         logger,
	}
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req models.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidRequest("Error en el formato de datos", err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(c, h.logger, validationError(err))
		return
	}
	if req.Price.IsNegative() {
		respondError(c, h.logger, newAPIError(http.StatusBadRequest, CodeValidationError, "Datos de entrada inválidos", "price: gte"))
		return
	}

	product, err := h.productService.CreateProduct(c.Request.Context(), &req, userID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusCreated, "Producto creado", product)
}

// UpdateProduct modifica los metadatos; la cantidad solo cambia con ajustes
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
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

	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidRequest("Error en el formato de datos", err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(c, h.logger, validationError(err))
		return
	}

	product, err := h.productService.UpdateProduct(c.Request.Context(), companyID, productID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, "Producto actualizado", product)
}

func (h *ProductHandler) ListProducts(c *gin.Context) {
	companyID, err := companyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	products, err := h.productService.ListProducts(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Productos obtenidos",
		"data":    products,
		"total":   len(products),
	})
}

// ImportProducts recibe un CSV en el campo multipart "file"
func (h *ProductHandler) ImportProducts(c *gin.Context) {
	start := time.Now()

	companyID, err := companyParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		respondError(c, h.logger, invalidRequest("Archivo requerido en el campo 'file'", err))
		return
	}
	if header.Size > maxImportSize {
		respondError(c, h.logger, newAPIError(http.StatusRequestEntityTooLarge, CodeInvalidImportFile, "Archivo demasiado grande", header.Size))
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, h.logger, invalidRequest("No se pudo leer el archivo", err))
		return
	}
	defer file.Close()

	result, err := h.importService.Import(c.Request.Context(), companyID, userID(c), file)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Importación procesada",
		zap.String("company_id", companyID),
		zap.String("filename", header.Filename),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
		zap.Duration("latency", time.Since(start)))

	message := "Importación completada"
	if result.Failed > 0 {
		message = "Importación completada con errores"
	}
	respondOK(c, http.StatusOK, message, result)
}
