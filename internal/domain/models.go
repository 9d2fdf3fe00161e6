package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Monetary fields travel as plain JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

type Product struct {
	ID         string          `json:"id"`
	Codigo     string          `json:"codigo"`
	Nome       string          `json:"nome"`
	Marca      string          `json:"marca"`
	Preco      decimal.Decimal `json:"preco"`
	Quantidade int             `json:"quantidade"`
	Ativo      bool            `json:"ativo"`
}

type SaleItem struct {
	ProductID     string          `json:"produto"`
	Quantidade    int             `json:"quantidade"`
	PrecoUnitario decimal.Decimal `json:"precoUnitario"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

type Sale struct {
	ID             string          `json:"id"`
	Numero         string          `json:"numero"`
	Cliente        string          `json:"cliente"`
	Vendedor       string          `json:"vendedor"`
	Itens          []SaleItem      `json:"itens"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Desconto       decimal.Decimal `json:"desconto"`
	Total          decimal.Decimal `json:"total"`
	FormaPagamento string          `json:"formaPagamento"`
	Status         string          `json:"status"`
	Observacoes    string          `json:"observacoes,omitempty"`
	DataVenda      time.Time       `json:"dataVenda"`
}

type SaleItemRequest struct {
	ProductID  string `json:"produto"`
	Quantidade int    `json:"quantidade"`
}

type SaleCreateRequest struct {
	Cliente        string            `json:"cliente"`
	Itens          []SaleItemRequest `json:"itens"`
	FormaPagamento string            `json:"formaPagamento"`
	Desconto       decimal.Decimal   `json:"desconto"`
	Observacoes    string            `json:"observacoes,omitempty"`
	Status         string            `json:"status,omitempty"`
	DataVenda      *time.Time        `json:"dataVenda,omitempty"`
}

// SaleDraft is the validated input the store turns into a persisted sale.
// Price snapshots, totals and the display number are assigned inside the
// store so they share one atomic unit with the stock reservation.
type SaleDraft struct {
	Cliente        string
	Vendedor       string
	Itens          []SaleItemRequest
	FormaPagamento string
	Desconto       decimal.Decimal
	Observacoes    string
	Status         string
	DataVenda      time.Time
}

// SaleUpdateItem carries the subtotal supplied by the caller; full updates
// persist it as-is instead of recomputing preco x quantidade.
type SaleUpdateItem struct {
	ProductID     string          `json:"produto"`
	Quantidade    int             `json:"quantidade"`
	PrecoUnitario decimal.Decimal `json:"precoUnitario"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

type SaleUpdateRequest struct {
	Status         *string          `json:"status,omitempty"`
	Cliente        *string          `json:"cliente,omitempty"`
	Itens          []SaleUpdateItem `json:"itens,omitempty"`
	Desconto       *decimal.Decimal `json:"desconto,omitempty"`
	FormaPagamento *string          `json:"formaPagamento,omitempty"`
	Observacoes    *string          `json:"observacoes,omitempty"`
}

// StatusOnly reports whether the payload is a bare status transition, which
// updates the lifecycle field without touching items or stock.
func (r SaleUpdateRequest) StatusOnly() bool {
	return r.Status != nil && r.Cliente == nil && r.Itens == nil &&
		r.Desconto == nil && r.FormaPagamento == nil && r.Observacoes == nil
}

type SaleListFilter struct {
	DataInicio *time.Time
	DataFim    *time.Time
	Cliente    string
	Status     string
	Pagina     int
	Limite     int
}

type SaleListResponse struct {
	Vendas       []Sale `json:"vendas"`
	TotalPaginas int    `json:"totalPaginas"`
	PaginaAtual  int    `json:"paginaAtual"`
	Total        int    `json:"total"`
}

type StatisticsFilter struct {
	DataInicio *time.Time
	DataFim    *time.Time
}

type PeriodSummary struct {
	Vendas      int64           `json:"vendas"`
	Receita     decimal.Decimal `json:"receita"`
	TicketMedio decimal.Decimal `json:"ticketMedio"`
}

type TodaySummary struct {
	Vendas  int64           `json:"vendas"`
	Receita decimal.Decimal `json:"receita"`
}

type TopProduct struct {
	ProductID  string          `json:"produto"`
	Nome       string          `json:"nome"`
	Codigo     string          `json:"codigo"`
	Quantidade int64           `json:"quantidade"`
	Receita    decimal.Decimal `json:"receita"`
}

type PaymentSummary struct {
	Vendas  int64           `json:"vendas"`
	Receita decimal.Decimal `json:"receita"`
}

type StatusSummary struct {
	Vendas int64           `json:"vendas"`
	Valor  decimal.Decimal `json:"valor"`
}

type SalesStatistics struct {
	Hoje                    TodaySummary              `json:"hoje"`
	Periodo                 PeriodSummary             `json:"periodo"`
	ProdutosMaisVendidos    []TopProduct              `json:"produtosMaisVendidos"`
	VendasPorFormaPagamento map[string]PaymentSummary `json:"vendasPorFormaPagamento"`
	ResumoPorStatus         map[string]StatusSummary  `json:"resumoPorStatus"`

	// Flattened convenience fields kept for dashboard compatibility.
	TotalVendas        int64            `json:"totalVendas"`
	ReceitaTotal       decimal.Decimal  `json:"receitaTotal"`
	ReceitaHoje        decimal.Decimal  `json:"receitaHoje"`
	VendasHoje         int64            `json:"vendasHoje"`
	VendasPorStatus    map[string]int64 `json:"vendasPorStatus"`
	ProdutoMaisVendido *TopProduct      `json:"produtoMaisVendido"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	SaleStatusPending   = "pendente"
	SaleStatusPaid      = "paga"
	SaleStatusCancelled = "cancelada"
)

const (
	PaymentCash   = "dinheiro"
	PaymentCredit = "cartao_credito"
	PaymentDebit  = "cartao_debito"
	PaymentPix    = "pix"
)

func ValidSaleStatus(status string) bool {
	switch status {
	case SaleStatusPending, SaleStatusPaid, SaleStatusCancelled:
		return true
	}
	return false
}

func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentCredit, PaymentDebit, PaymentPix:
		return true
	}
	return false
}
