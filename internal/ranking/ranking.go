// Package ranking aggregates sold line items into product rankings for the
// statistics views. It is pure computation shared by the in-memory store and
// by callers that need a headline best-seller.
package ranking

import (
	"sort"

	"github.com/shopspring/decimal"

	"vendafacil/backend/internal/domain"
)

type SoldLine struct {
	ProductID  string
	Quantidade int
	Subtotal   decimal.Decimal
}

// TopProducts groups sold lines by product, sums quantity and revenue, and
// returns up to limit entries ordered by quantity descending. Product display
// data is joined from the products map; lines referencing unknown products
// keep an empty nome/codigo rather than being dropped, so historical sales of
// removed products still count.
func TopProducts(lines []SoldLine, products map[string]domain.Product, limit int) []domain.TopProduct {
	if limit < 1 {
		limit = 10
	}

	type bucket struct {
		qty     int64
		receita decimal.Decimal
	}
	aggregated := make(map[string]*bucket, len(lines))
	for _, line := range lines {
		if line.ProductID == "" || line.Quantidade < 1 {
			continue
		}
		b, ok := aggregated[line.ProductID]
		if !ok {
			b = &bucket{}
			aggregated[line.ProductID] = b
		}
		b.qty += int64(line.Quantidade)
		b.receita = b.receita.Add(line.Subtotal)
	}

	result := make([]domain.TopProduct, 0, len(aggregated))
	for productID, b := range aggregated {
		entry := domain.TopProduct{
			ProductID:  productID,
			Quantidade: b.qty,
			Receita:    b.receita,
		}
		if product, ok := products[productID]; ok {
			entry.Nome = product.Nome
			entry.Codigo = product.Codigo
		}
		result = append(result, entry)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Quantidade == result[j].Quantidade {
			return result[i].ProductID < result[j].ProductID
		}
		return result[i].Quantidade > result[j].Quantidade
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Best returns the top entry of a ranking, or nil when nothing was sold.
func Best(ranked []domain.TopProduct) *domain.TopProduct {
	if len(ranked) == 0 {
		return nil
	}
	top := ranked[0]
	return &top
}
