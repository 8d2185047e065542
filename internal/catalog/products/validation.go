package products

import (
	"strings"

	"github.com/meridian-pos/meridian-pos/internal/catalog/shared"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.Reference) == "" {
		return shared.ErrValidation
	}
	if strings.TrimSpace(p.Name) == "" {
		return shared.ErrValidation
	}
	if p.PurchasePrice.IsNegative() || p.SalePrice.IsNegative() {
		return shared.ErrValidation
	}
	if p.LowStockAt < 0 {
		return shared.ErrValidation
	}
	return nil
}
