package firestore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pharmakart/api/internal/repositories"
)

func TestIsStockError(t *testing.T) {
	stock := repositories.NewStockError(repositories.StockErrorInsufficient, "prd_1", "have 1, want 3")

	if !isStockError(stock) {
		t.Fatal("stock error must match")
	}
	if !isStockError(fmt.Errorf("checkout: %w", stock)) {
		t.Fatal("wrapped stock error must match")
	}
	if isStockError(errors.New("connection reset")) {
		t.Fatal("unrelated errors must not match")
	}
}
