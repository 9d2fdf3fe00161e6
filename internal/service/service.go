package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"vendafacil/backend/internal/cache"
	"vendafacil/backend/internal/domain"
	"vendafacil/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	stats    cache.StatisticsCache
	statsTTL time.Duration
}

func New(repo store.Repository, stats cache.StatisticsCache, statsTTL time.Duration) *Service {
	if stats == nil {
		stats = cache.NoopStatisticsCache{}
	}
	if statsTTL <= 0 {
		statsTTL = 30 * time.Second
	}

	return &Service{
		repo:     repo,
		stats:    stats,
		statsTTL: statsTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrNotFound
	}
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// CreateSale validates the request, resolves the seller from the
// authenticated caller and hands the draft to the repository, which
// snapshots prices, reserves stock and persists in one transaction.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, fmt.Errorf("authenticated caller required")
	}

	req.Cliente = strings.TrimSpace(req.Cliente)
	if req.Cliente == "" {
		return domain.Sale{}, fmt.Errorf("cliente obrigatorio: %w", store.ErrInvalidSale)
	}
	if len(req.Itens) == 0 {
		return domain.Sale{}, fmt.Errorf("venda sem itens: %w", store.ErrInvalidSale)
	}
	for _, item := range req.Itens {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantidade < 1 {
			return domain.Sale{}, fmt.Errorf("item invalido: %w", store.ErrInvalidSale)
		}
	}
	if !domain.ValidPaymentMethod(req.FormaPagamento) {
		return domain.Sale{}, fmt.Errorf("forma de pagamento invalida: %w", store.ErrInvalidSale)
	}
	if req.Desconto.IsNegative() {
		return domain.Sale{}, fmt.Errorf("desconto negativo: %w", store.ErrInvalidSale)
	}

	status := req.Status
	if status == "" {
		status = domain.SaleStatusPaid
	}
	if !domain.ValidSaleStatus(status) {
		return domain.Sale{}, fmt.Errorf("status invalido: %w", store.ErrInvalidSale)
	}

	draft := domain.SaleDraft{
		Cliente:        req.Cliente,
		Vendedor:       actor.Username,
		Itens:          req.Itens,
		Desconto:       req.Desconto,
		FormaPagamento: req.FormaPagamento,
		Status:         status,
		Observacoes:    strings.TrimSpace(req.Observacoes),
	}
	if req.DataVenda != nil {
		draft.DataVenda = req.DataVenda.UTC()
	}

	sale, err := s.repo.CreateSale(ctx, draft)
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateStats(ctx)
	return *sale, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleListFilter) (domain.SaleListResponse, error) {
	filter.Cliente = strings.TrimSpace(filter.Cliente)
	if filter.Status != "" && !domain.ValidSaleStatus(filter.Status) {
		return domain.SaleListResponse{}, fmt.Errorf("status invalido: %w", store.ErrInvalidSale)
	}
	if filter.Pagina < 1 {
		filter.Pagina = 1
	}
	if filter.Limite < 1 {
		filter.Limite = 10
	}
	// Date filters arrive as midnight bounds; the end of the range is
	// inclusive, so push it one day forward and compare exclusively.
	if filter.DataFim != nil {
		end := filter.DataFim.Add(24 * time.Hour)
		filter.DataFim = &end
	}

	sales, total, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return domain.SaleListResponse{}, err
	}

	totalPaginas := total / filter.Limite
	if total%filter.Limite != 0 {
		totalPaginas++
	}
	if totalPaginas < 1 {
		totalPaginas = 1
	}

	return domain.SaleListResponse{
		Vendas:       sales,
		TotalPaginas: totalPaginas,
		PaginaAtual:  filter.Pagina,
		Total:        total,
	}, nil
}

func (s *Service) CancelSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.CancelSale(ctx, id, time.Now().UTC())
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateStats(ctx)
	return *sale, nil
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	if err := s.repo.DeleteSale(ctx, id); err != nil {
		return err
	}

	s.invalidateStats(ctx)
	return nil
}

func (s *Service) UpdateSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (domain.Sale, error) {
	if req.Status == nil && req.Cliente == nil && req.Itens == nil &&
		req.Desconto == nil && req.FormaPagamento == nil && req.Observacoes == nil {
		return domain.Sale{}, fmt.Errorf("nada para atualizar: %w", store.ErrInvalidSale)
	}
	if req.Status != nil && !domain.ValidSaleStatus(*req.Status) {
		return domain.Sale{}, fmt.Errorf("status invalido: %w", store.ErrInvalidSale)
	}
	if req.FormaPagamento != nil && !domain.ValidPaymentMethod(*req.FormaPagamento) {
		return domain.Sale{}, fmt.Errorf("forma de pagamento invalida: %w", store.ErrInvalidSale)
	}
	if req.Cliente != nil && strings.TrimSpace(*req.Cliente) == "" {
		return domain.Sale{}, fmt.Errorf("cliente obrigatorio: %w", store.ErrInvalidSale)
	}
	if req.Desconto != nil && req.Desconto.IsNegative() {
		return domain.Sale{}, fmt.Errorf("desconto negativo: %w", store.ErrInvalidSale)
	}
	if req.Itens != nil {
		if len(req.Itens) == 0 {
			return domain.Sale{}, fmt.Errorf("venda sem itens: %w", store.ErrInvalidSale)
		}
		for _, item := range req.Itens {
			if strings.TrimSpace(item.ProductID) == "" || item.Quantidade < 1 {
				return domain.Sale{}, fmt.Errorf("item invalido: %w", store.ErrInvalidSale)
			}
		}
	}

	var (
		sale *domain.Sale
		err  error
	)
	if req.StatusOnly() {
		sale, err = s.repo.UpdateSaleStatus(ctx, id, *req.Status)
	} else {
		sale, err = s.repo.UpdateSale(ctx, id, req)
	}
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateStats(ctx)
	return *sale, nil
}

func (s *Service) Statistics(ctx context.Context, filter domain.StatisticsFilter) (domain.SalesStatistics, error) {
	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	todayEnd := todayStart.Add(24 * time.Hour)

	if filter.DataFim != nil {
		end := filter.DataFim.Add(24 * time.Hour)
		filter.DataFim = &end
	}

	key := statsCacheKey(filter, todayStart)
	if cached, ok, err := s.stats.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: statistics cache read failed: %v", err)
	} else if ok {
		return *cached, nil
	}

	stats, err := s.repo.GetStatistics(ctx, filter, todayStart, todayEnd)
	if err != nil {
		return domain.SalesStatistics{}, err
	}

	if err := s.stats.Set(ctx, key, &stats, s.statsTTL); err != nil {
		log.Printf("[service] WARN: statistics cache write failed: %v", err)
	}

	return stats, nil
}

func (s *Service) invalidateStats(ctx context.Context) {
	if err := s.stats.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: statistics cache invalidation failed: %v", err)
	}
}

func statsCacheKey(filter domain.StatisticsFilter, todayStart time.Time) string {
	from := "all"
	if filter.DataInicio != nil {
		from = filter.DataInicio.Format("2006-01-02")
	}
	to := "all"
	if filter.DataFim != nil {
		to = filter.DataFim.Format("2006-01-02")
	}
	return fmt.Sprintf("%s|%s|%s", from, to, todayStart.Format("2006-01-02"))
}
