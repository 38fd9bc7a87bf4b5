package ledger

import "errors"

// Errores del ledger. Los de validación se devuelven antes de cualquier escritura.
var (
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrInvalidDirection     = errors.New("direction must be \"in\" or \"out\"")
	ErrProductNotFound      = errors.New("product not found")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrVersionConflict      = errors.New("product was modified concurrently")
	ErrAuditWriteFailed     = errors.New("stock movement could not be recorded")
)

// IsValidationError indica si err es un rechazo sin efectos (nada se escribió).
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidDirection) ||
		errors.Is(err, ErrInsufficientQuantity)
}
