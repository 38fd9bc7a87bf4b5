package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/repository"
	"stock-ledger/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Códigos de error expuestos en las respuestas
const (
	CodeInvalidRequest       = "InvalidRequest"
	CodeValidationError      = "ValidationError"
	CodeProductNotFound      = "ProductNotFound"
	CodeInsufficientQuantity = "InsufficientQuantity"
	CodeSaleRejected         = "SaleRejected"
	CodeSalePartial          = "SalePartiallyApplied"
	CodeDuplicateSKU         = "DuplicateSKU"
	CodeVersionConflict      = "VersionConflict"
	CodeAuditWriteFailed     = "AuditWriteFailed"
	CodeInvalidImportFile    = "InvalidImportFile"
	CodeTimeout              = "Timeout"
	CodeInternalError        = "InternalError"
)

const userIDHeader = "X-User-ID"

// APIError error estandarizado de la API
type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func newAPIError(status int, code, message string, details interface{}) *APIError {
	return &APIError{Status: status, Code: code, Message: message, Details: details}
}

func invalidRequest(message string, err error) *APIError {
	return newAPIError(http.StatusBadRequest, CodeInvalidRequest, message, err.Error())
}

// validationError lista los campos que no pasaron la validación.
func validationError(err error) *APIError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return newAPIError(http.StatusBadRequest, CodeValidationError, "Datos de entrada inválidos", err.Error())
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return newAPIError(http.StatusBadRequest, CodeValidationError, "Datos de entrada inválidos", fields)
}

// toAPIError traduce los errores de dominio a su status HTTP.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var saleErr *services.SaleValidationError
	if errors.As(err, &saleErr) {
		return newAPIError(http.StatusUnprocessableEntity, CodeSaleRejected, "La venta no pasó la validación de stock", saleErr.Problems)
	}

	// antes de errors.Is: envuelve el error de la línea que falló
	var partialErr *services.SalePartialError
	if errors.As(err, &partialErr) {
		return newAPIError(http.StatusConflict, CodeSalePartial, "La venta se aplicó parcialmente", gin.H{
			"sale_id":      partialErr.SaleID,
			"failed_index": partialErr.FailedIndex,
			"reason":       partialErr.Err.Error(),
			"lines":        partialErr.Lines,
		})
	}

	switch {
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidDirection):
		return newAPIError(http.StatusBadRequest, CodeValidationError, "Ajuste inválido", err.Error())
	case errors.Is(err, ledger.ErrProductNotFound):
		return newAPIError(http.StatusNotFound, CodeProductNotFound, "Producto no encontrado", nil)
	case errors.Is(err, ledger.ErrInsufficientQuantity):
		return newAPIError(http.StatusUnprocessableEntity, CodeInsufficientQuantity, "Stock insuficiente", err.Error())
	case errors.Is(err, repository.ErrDuplicateSKU):
		return newAPIError(http.StatusConflict, CodeDuplicateSKU, "El SKU ya existe para esta empresa", nil)
	case errors.Is(err, ledger.ErrVersionConflict):
		return newAPIError(http.StatusConflict, CodeVersionConflict, "El producto fue modificado concurrentemente, reintente", nil)
	case errors.Is(err, services.ErrInvalidImportFile):
		return newAPIError(http.StatusBadRequest, CodeInvalidImportFile, "Archivo de importación inválido", err.Error())
	case errors.Is(err, ledger.ErrAuditWriteFailed):
		return newAPIError(http.StatusInternalServerError, CodeAuditWriteFailed, "No se pudo registrar el movimiento; el ajuste fue revertido", nil)
	case errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusGatewayTimeout, CodeTimeout, "La operación excedió el tiempo límite", nil)
	default:
		return newAPIError(http.StatusInternalServerError, CodeInternalError, "Error interno del servidor", nil)
	}
}

// respondError escribe el envelope de error. Los 5xx se registran con el error original.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", apiErr.Code),
			zap.Error(err))
	} else {
		logger.Debug("Request rejected",
			zap.String("path", c.FullPath()),
			zap.String("code", apiErr.Code),
			zap.Error(err))
	}

	body := gin.H{
		"success": false,
		"message": apiErr.Message,
		"error":   apiErr.Code,
	}
	if apiErr.Details != nil {
		body["details"] = apiErr.Details
	}
	c.JSON(apiErr.Status, body)
}

func respondOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// companyParam lee :company y exige un UUID.
func companyParam(c *gin.Context) (string, error) {
	return uuidParam(c, "company")
}

func uuidParam(c *gin.Context, name string) (string, error) {
	value := c.Param(name)
	if _, err := uuid.Parse(value); err != nil {
		return "", newAPIError(http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("Parámetro %s inválido", name), value)
	}
	return value, nil
}

func userID(c *gin.Context) string {
	return c.GetHeader(userIDHeader)
}
