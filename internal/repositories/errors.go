package repositories

import (
	"errors"
	"fmt"
)

// StockErrorCode classifies why a transactional stock mutation was refused.
type StockErrorCode string

const (
	StockErrorProductNotFound StockErrorCode = "product_not_found"
	StockErrorProductInactive StockErrorCode = "product_inactive"
	StockErrorInsufficient    StockErrorCode = "insufficient_stock"
)

// StockError is returned from order/stock transactions when a product line
// cannot be fulfilled. Services translate it into their own error taxonomy.
type StockError struct {
	Code      StockErrorCode
	ProductID string
	Message   string
}

func (e *StockError) Error() string {
	if e == nil {
		return "stock error"
	}
	if e.Message != "" {
		return fmt.Sprintf("stock %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("stock %s: product %s", e.Code, e.ProductID)
}

// NewStockError builds a StockError for a product line.
func NewStockError(code StockErrorCode, productID, message string) *StockError {
	return &StockError{Code: code, ProductID: productID, Message: message}
}

// AsStockError unwraps a StockError if the chain carries one.
func AsStockError(err error) (*StockError, bool) {
	var stockErr *StockError
	if errors.As(err, &stockErr) {
		return stockErr, true
	}
	return nil, false
}
