package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"vendafacil/backend/internal/domain"
	"vendafacil/backend/internal/ranking"
	"vendafacil/backend/internal/store"
	"vendafacil/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	salesByID       map[string]*domain.Sale
	numeroCounter   int64
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_VENDEDOR_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_VENDEDOR_PASSWORD", "vendedor123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_VENDEDOR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_VENDEDOR_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"vendedor", sellerPwd, "vendedor"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func price(val string) decimal.Decimal {
	d, err := decimal.NewFromString(val)
	if err != nil {
		log.Fatalf("[memory-store] invalid seed price %q: %v", val, err)
	}
	return d
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "prod-arroz-01", Codigo: "ARZ-001", Nome: "Arroz Branco 5kg", Marca: "Tio Urbano", Preco: price("28.90"), Quantidade: 120, Ativo: true},
		{ID: "prod-feijao-01", Codigo: "FEI-001", Nome: "Feijao Carioca 1kg", Marca: "Camil", Preco: price("8.49"), Quantidade: 120, Ativo: true},
		{ID: "prod-cafe-01", Codigo: "CAF-001", Nome: "Cafe Torrado 500g", Marca: "Melitta", Preco: price("18.75"), Quantidade: 120, Ativo: true},
		{ID: "prod-acucar-01", Codigo: "ACU-001", Nome: "Acucar Cristal 1kg", Marca: "Uniao", Preco: price("5.20"), Quantidade: 120, Ativo: true},
		{ID: "prod-leite-01", Codigo: "LEI-001", Nome: "Leite Integral 1L", Marca: "Italac", Preco: price("4.99"), Quantidade: 120, Ativo: true},
		{ID: "prod-oleo-01", Codigo: "OLE-001", Nome: "Oleo de Soja 900ml", Marca: "Liza", Preco: price("7.80"), Quantidade: 120, Ativo: true},
		{ID: "prod-farinha-01", Codigo: "FAR-001", Nome: "Farinha de Trigo 1kg", Marca: "Dona Benta", Preco: price("6.30"), Quantidade: 120, Ativo: true},
		{ID: "prod-macarrao-01", Codigo: "MAC-001", Nome: "Macarrao Espaguete 500g", Marca: "Renata", Preco: price("4.45"), Quantidade: 120, Ativo: true},
		{ID: "prod-sabao-01", Codigo: "SAB-001", Nome: "Sabao em Po 1kg", Marca: "Omo", Preco: price("14.60"), Quantidade: 120, Ativo: true},
		{ID: "prod-refri-01", Codigo: "REF-001", Nome: "Refrigerante Cola 2L", Marca: "Guarana Premium", Preco: price("9.90"), Quantidade: 120, Ativo: true},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	return &Store{
		products:        productMap,
		salesByID:       make(map[string]*domain.Sale),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Ativo {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Nome, b.Nome)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpsertProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Codigo == "" || product.Nome == "" || product.Preco.IsNegative() || product.Quantidade < 0 {
		return nil, store.ErrInvalidSale
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}

	s.products[product.ID] = product
	saved := product
	return &saved, nil
}

// ReserveStock performs the availability check and the decrement under one
// lock, so two concurrent reservations can never both pass on the last unit.
func (s *Store) ReserveStock(_ context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserveLocked(productID, qty)
}

// RestoreStock increments availability. It succeeds for inactive products:
// a soft-deleted product keeps its counter so historical sales reverse cleanly.
func (s *Store) RestoreStock(_ context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoreLocked(productID, qty)
}

func (s *Store) reserveLocked(productID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidSale
	}
	product, exists := s.products[productID]
	if !exists || !product.Ativo {
		return fmt.Errorf("produto %s: %w", productID, store.ErrNotFound)
	}
	if product.Quantidade < qty {
		return &store.InsufficientStockError{
			ProductName: product.Nome,
			Available:   product.Quantidade,
			Requested:   qty,
		}
	}
	product.Quantidade -= qty
	s.products[productID] = product
	return nil
}

func (s *Store) restoreLocked(productID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidSale
	}
	product, exists := s.products[productID]
	if !exists {
		return fmt.Errorf("produto %s: %w", productID, store.ErrNotFound)
	}
	product.Quantidade += qty
	s.products[productID] = product
	return nil
}

func (s *Store) CreateSale(_ context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if len(draft.Itens) == 0 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate availability against the aggregated quantity per product before
	// mutating anything, so a mid-list failure leaves no partial decrement.
	required := make(map[string]int, len(draft.Itens))
	for _, item := range draft.Itens {
		if item.ProductID == "" || item.Quantidade < 1 {
			return nil, store.ErrInvalidSale
		}
		required[item.ProductID] += item.Quantidade
	}
	for productID, qty := range required {
		product, exists := s.products[productID]
		if !exists || !product.Ativo {
			return nil, fmt.Errorf("produto %s: %w", productID, store.ErrNotFound)
		}
		if product.Quantidade < qty {
			return nil, &store.InsufficientStockError{
				ProductName: product.Nome,
				Available:   product.Quantidade,
				Requested:   qty,
			}
		}
	}

	items := make([]domain.SaleItem, 0, len(draft.Itens))
	subtotal := decimal.Zero
	for _, item := range draft.Itens {
		product := s.products[item.ProductID]
		itemSubtotal := product.Preco.Mul(decimal.NewFromInt(int64(item.Quantidade)))
		items = append(items, domain.SaleItem{
			ProductID:     item.ProductID,
			Quantidade:    item.Quantidade,
			PrecoUnitario: product.Preco,
			Subtotal:      itemSubtotal,
		})
		subtotal = subtotal.Add(itemSubtotal)
	}

	if draft.Desconto.IsNegative() || draft.Desconto.GreaterThan(subtotal) {
		return nil, store.ErrInvalidSale
	}

	for productID, qty := range required {
		if err := s.reserveLocked(productID, qty); err != nil {
			return nil, err
		}
	}

	s.numeroCounter++
	sale := &domain.Sale{
		ID:             xid.New("venda"),
		Numero:         fmt.Sprintf("V%06d", s.numeroCounter),
		Cliente:        draft.Cliente,
		Vendedor:       draft.Vendedor,
		Itens:          items,
		Subtotal:       subtotal,
		Desconto:       draft.Desconto,
		Total:          subtotal.Sub(draft.Desconto),
		FormaPagamento: draft.FormaPagamento,
		Status:         draft.Status,
		Observacoes:    draft.Observacoes,
		DataVenda:      draft.DataVenda,
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusPaid
	}
	if sale.DataVenda.IsZero() {
		sale.DataVenda = time.Now().UTC()
	}

	s.salesByID[sale.ID] = sale
	created := copySale(sale)
	return created, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return copySale(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleListFilter) ([]domain.Sale, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !saleMatches(sale, filter) {
			continue
		}
		matched = append(matched, *copySale(sale))
	}

	slices.SortFunc(matched, func(a, b domain.Sale) int {
		if a.DataVenda.Equal(b.DataVenda) {
			return cmpString(b.Numero, a.Numero)
		}
		if a.DataVenda.After(b.DataVenda) {
			return -1
		}
		return 1
	})

	total := len(matched)
	limite := filter.Limite
	if limite < 1 {
		limite = 10
	}
	pagina := filter.Pagina
	if pagina < 1 {
		pagina = 1
	}
	start := (pagina - 1) * limite
	if start >= total {
		return []domain.Sale{}, total, nil
	}
	end := start + limite
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func saleMatches(sale *domain.Sale, filter domain.SaleListFilter) bool {
	if filter.DataInicio != nil && sale.DataVenda.Before(*filter.DataInicio) {
		return false
	}
	if filter.DataFim != nil && !sale.DataVenda.Before(*filter.DataFim) {
		return false
	}
	if filter.Status != "" && sale.Status != filter.Status {
		return false
	}
	if filter.Cliente != "" && !strings.Contains(strings.ToLower(sale.Cliente), strings.ToLower(filter.Cliente)) {
		return false
	}
	return true
}

func (s *Store) CancelSale(_ context.Context, id string, _ time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status == domain.SaleStatusCancelled {
		return nil, store.ErrAlreadyCancelled
	}

	for _, item := range sale.Itens {
		if err := s.restoreLocked(item.ProductID, item.Quantidade); err != nil {
			return nil, err
		}
	}

	sale.Status = domain.SaleStatusCancelled
	return copySale(sale), nil
}

// DeleteSale restores stock for every item regardless of the sale's status.
// Deleting an already-cancelled sale therefore restores stock a second time,
// matching the historical ledger behaviour.
func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return store.ErrNotFound
	}

	for _, item := range sale.Itens {
		if err := s.restoreLocked(item.ProductID, item.Quantidade); err != nil {
			return err
		}
	}

	delete(s.salesByID, id)
	return nil
}

func (s *Store) UpdateSaleStatus(_ context.Context, id string, status string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	sale.Status = status
	return copySale(sale), nil
}

func (s *Store) UpdateSale(_ context.Context, id string, req domain.SaleUpdateRequest) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	// Apply the update to a copy so a validation failure leaves the stored
	// sale untouched, mirroring the postgres transaction rollback.
	updated := copySale(sale)

	if req.Itens != nil {
		items := make([]domain.SaleItem, 0, len(req.Itens))
		subtotal := decimal.Zero
		for _, item := range req.Itens {
			product, ok := s.products[item.ProductID]
			if !ok || !product.Ativo {
				return nil, fmt.Errorf("produto %s: %w", item.ProductID, store.ErrNotFound)
			}
			if item.Quantidade < 1 {
				return nil, store.ErrInvalidSale
			}
			items = append(items, domain.SaleItem{
				ProductID:     item.ProductID,
				Quantidade:    item.Quantidade,
				PrecoUnitario: item.PrecoUnitario,
				Subtotal:      item.Subtotal,
			})
			subtotal = subtotal.Add(item.Subtotal)
		}
		updated.Itens = items
		updated.Subtotal = subtotal
	}

	if req.Cliente != nil {
		updated.Cliente = *req.Cliente
	}
	if req.FormaPagamento != nil {
		updated.FormaPagamento = *req.FormaPagamento
	}
	if req.Observacoes != nil {
		updated.Observacoes = *req.Observacoes
	}
	if req.Desconto != nil {
		updated.Desconto = *req.Desconto
	}
	if req.Status != nil {
		updated.Status = *req.Status
	}
	if updated.Desconto.IsNegative() || updated.Desconto.GreaterThan(updated.Subtotal) {
		return nil, store.ErrInvalidSale
	}
	updated.Total = updated.Subtotal.Sub(updated.Desconto)

	s.salesByID[id] = updated
	return copySale(updated), nil
}

func (s *Store) GetStatistics(_ context.Context, filter domain.StatisticsFilter, todayStart time.Time, todayEnd time.Time) (domain.SalesStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.SalesStatistics{
		VendasPorFormaPagamento: make(map[string]domain.PaymentSummary),
		ResumoPorStatus:         make(map[string]domain.StatusSummary),
		VendasPorStatus:         make(map[string]int64),
		ProdutosMaisVendidos:    []domain.TopProduct{},
	}

	soldLines := make([]ranking.SoldLine, 0, 64)
	for _, sale := range s.salesByID {
		inRange := statsInRange(sale.DataVenda, filter)

		if inRange {
			statusSummary := stats.ResumoPorStatus[sale.Status]
			statusSummary.Vendas++
			statusSummary.Valor = statusSummary.Valor.Add(sale.Total)
			stats.ResumoPorStatus[sale.Status] = statusSummary
			stats.VendasPorStatus[sale.Status]++
		}

		if sale.Status != domain.SaleStatusPaid {
			continue
		}

		if !sale.DataVenda.Before(todayStart) && sale.DataVenda.Before(todayEnd) {
			stats.Hoje.Vendas++
			stats.Hoje.Receita = stats.Hoje.Receita.Add(sale.Total)
		}

		if !inRange {
			continue
		}

		stats.Periodo.Vendas++
		stats.Periodo.Receita = stats.Periodo.Receita.Add(sale.Total)

		paymentSummary := stats.VendasPorFormaPagamento[sale.FormaPagamento]
		paymentSummary.Vendas++
		paymentSummary.Receita = paymentSummary.Receita.Add(sale.Total)
		stats.VendasPorFormaPagamento[sale.FormaPagamento] = paymentSummary

		for _, item := range sale.Itens {
			soldLines = append(soldLines, ranking.SoldLine{
				ProductID:  item.ProductID,
				Quantidade: item.Quantidade,
				Subtotal:   item.Subtotal,
			})
		}
	}

	if stats.Periodo.Vendas > 0 {
		stats.Periodo.TicketMedio = stats.Periodo.Receita.Div(decimal.NewFromInt(stats.Periodo.Vendas)).Round(2)
	}

	stats.ProdutosMaisVendidos = ranking.TopProducts(soldLines, s.products, 10)
	stats.ProdutoMaisVendido = ranking.Best(stats.ProdutosMaisVendidos)
	stats.TotalVendas = stats.Periodo.Vendas
	stats.ReceitaTotal = stats.Periodo.Receita
	stats.VendasHoje = stats.Hoje.Vendas
	stats.ReceitaHoje = stats.Hoje.Receita

	return stats, nil
}

func statsInRange(at time.Time, filter domain.StatisticsFilter) bool {
	if filter.DataInicio != nil && at.Before(*filter.DataInicio) {
		return false
	}
	if filter.DataFim != nil && !at.Before(*filter.DataFim) {
		return false
	}
	return true
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func copySale(sale *domain.Sale) *domain.Sale {
	copied := *sale
	copied.Itens = make([]domain.SaleItem, len(sale.Itens))
	copy(copied.Itens, sale.Itens)
	return &copied
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
