package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"vendafacil/backend/internal/domain"
	"vendafacil/backend/internal/store"
	"vendafacil/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, codigo, nome, marca, preco, quantidade, ativo
		FROM products
		WHERE ativo = true
		ORDER BY nome
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Codigo, &p.Nome, &p.Marca, &p.Preco, &p.Quantidade, &p.Ativo); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, codigo, nome, marca, preco, quantidade, ativo
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Codigo, &product.Nome, &product.Marca, &product.Preco, &product.Quantidade, &product.Ativo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpsertProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Codigo == "" || product.Nome == "" || product.Preco.IsNegative() || product.Quantidade < 0 {
		return nil, store.ErrInvalidSale
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, codigo, nome, marca, preco, quantidade, ativo, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		ON CONFLICT (id)
		DO UPDATE SET codigo = EXCLUDED.codigo, nome = EXCLUDED.nome, marca = EXCLUDED.marca,
			preco = EXCLUDED.preco, quantidade = EXCLUDED.quantidade, ativo = EXCLUDED.ativo, updated_at = now()
	`, product.ID, product.Codigo, product.Nome, product.Marca, product.Preco, product.Quantidade, product.Ativo)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		return nil, err
	}

	saved := product
	return &saved, nil
}

// ReserveStock expresses the availability check as part of the decrement
// itself, so concurrent reservations against the same product cannot both
// pass on the last unit.
func (s *Store) ReserveStock(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET quantidade = quantidade - $2, updated_at = now()
		WHERE id = $1 AND ativo = true AND quantidade >= $2
	`, productID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	product, lookupErr := s.GetProductByID(ctx, productID)
	if lookupErr != nil || !product.Ativo {
		return fmt.Errorf("produto %s: %w", productID, store.ErrNotFound)
	}
	return &store.InsufficientStockError{
		ProductName: product.Nome,
		Available:   product.Quantidade,
		Requested:   qty,
	}
}

// RestoreStock has no activity predicate: a soft-deleted product keeps its
// counter so cancelling or deleting a historical sale still reverses cleanly.
func (s *Store) RestoreStock(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET quantidade = quantidade + $2, updated_at = now()
		WHERE id = $1
	`, productID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("produto %s: %w", productID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if len(draft.Itens) == 0 {
		return nil, store.ErrInvalidSale
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	required := make(map[string]int, len(draft.Itens))
	for _, item := range draft.Itens {
		if item.ProductID == "" || item.Quantidade < 1 {
			return nil, store.ErrInvalidSale
		}
		required[item.ProductID] += item.Quantidade
	}
	productIDs := sortedKeys(required)

	productRows, err := pgTx.QueryContext(ctx, `
		SELECT id, codigo, nome, preco, quantidade
		FROM products
		WHERE ativo = true AND id = ANY($1)
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, err
	}
	productMap := make(map[string]domain.Product, len(productIDs))
	for productRows.Next() {
		var p domain.Product
		if err := productRows.Scan(&p.ID, &p.Codigo, &p.Nome, &p.Preco, &p.Quantidade); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		productMap[p.ID] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	for _, productID := range productIDs {
		product, exists := productMap[productID]
		if !exists {
			return nil, fmt.Errorf("produto %s: %w", productID, store.ErrNotFound)
		}
		if product.Quantidade < required[productID] {
			return nil, &store.InsufficientStockError{
				ProductName: product.Nome,
				Available:   product.Quantidade,
				Requested:   required[productID],
			}
		}
	}

	items := make([]domain.SaleItem, 0, len(draft.Itens))
	subtotal := decimal.Zero
	for _, item := range draft.Itens {
		product := productMap[item.ProductID]
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

	for _, productID := range productIDs {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantidade = quantidade - $2, updated_at = now()
			WHERE id = $1 AND quantidade >= $2
		`, productID, required[productID])
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected != 1 {
			product := productMap[productID]
			return nil, &store.InsufficientStockError{
				ProductName: product.Nome,
				Available:   product.Quantidade,
				Requested:   required[productID],
			}
		}
	}

	var counter int64
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO sale_counters (id, last_value)
		VALUES (1, 1)
		ON CONFLICT (id)
		DO UPDATE SET last_value = sale_counters.last_value + 1
		RETURNING last_value
	`).Scan(&counter)
	if err != nil {
		return nil, err
	}

	sale := domain.Sale{
		ID:             xid.New("venda"),
		Numero:         fmt.Sprintf("V%06d", counter),
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

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, numero, cliente, vendedor, subtotal, desconto, total,
			forma_pagamento, status, observacoes, data_venda, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
	`, sale.ID, sale.Numero, sale.Cliente, sale.Vendedor, sale.Subtotal, sale.Desconto, sale.Total,
		sale.FormaPagamento, sale.Status, nullIfEmpty(sale.Observacoes), sale.DataVenda)
	if err != nil {
		return nil, err
	}

	for _, item := range sale.Itens {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, quantidade, preco_unitario, subtotal)
			VALUES ($1,$2,$3,$4,$5)
		`, sale.ID, item.ProductID, item.Quantidade, item.PrecoUnitario, item.Subtotal)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	var observacoes sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, numero, cliente, vendedor, subtotal, desconto, total,
			forma_pagamento, status, observacoes, data_venda
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.Numero, &sale.Cliente, &sale.Vendedor, &sale.Subtotal,
		&sale.Desconto, &sale.Total, &sale.FormaPagamento, &sale.Status, &observacoes, &sale.DataVenda)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if observacoes.Valid {
		sale.Observacoes = observacoes.String
	}
	sale.DataVenda = sale.DataVenda.UTC()

	items, err := s.loadSaleItems(ctx, id)
	if err != nil {
		return nil, err
	}
	sale.Itens = items

	return &sale, nil
}

func (s *Store) loadSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantidade, preco_unitario, subtotal
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ProductID, &item.Quantidade, &item.PrecoUnitario, &item.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.Sale, int, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if filter.DataInicio != nil {
		args = append(args, *filter.DataInicio)
		where = append(where, fmt.Sprintf("data_venda >= $%d", len(args)))
	}
	if filter.DataFim != nil {
		args = append(args, *filter.DataFim)
		where = append(where, fmt.Sprintf("data_venda < $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Cliente != "" {
		args = append(args, "%"+filter.Cliente+"%")
		where = append(where, fmt.Sprintf("cliente ILIKE $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limite := filter.Limite
	if limite < 1 {
		limite = 10
	}
	pagina := filter.Pagina
	if pagina < 1 {
		pagina = 1
	}
	args = append(args, limite, (pagina-1)*limite)

	query := `
		SELECT id, numero, cliente, vendedor, subtotal, desconto, total,
			forma_pagamento, status, observacoes, data_venda
		FROM sales` + clause + fmt.Sprintf(`
		ORDER BY data_venda DESC, numero DESC
		LIMIT $%d OFFSET $%d
	`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limite)
	for rows.Next() {
		var sale domain.Sale
		var observacoes sql.NullString
		if err := rows.Scan(&sale.ID, &sale.Numero, &sale.Cliente, &sale.Vendedor, &sale.Subtotal,
			&sale.Desconto, &sale.Total, &sale.FormaPagamento, &sale.Status, &observacoes, &sale.DataVenda); err != nil {
			return nil, 0, err
		}
		if observacoes.Valid {
			sale.Observacoes = observacoes.String
		}
		sale.DataVenda = sale.DataVenda.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range sales {
		items, err := s.loadSaleItems(ctx, sales[i].ID)
		if err != nil {
			return nil, 0, err
		}
		sales[i].Itens = items
	}

	return sales, total, nil
}

func (s *Store) CancelSale(ctx context.Context, id string, at time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.SaleStatusCancelled {
		return nil, store.ErrAlreadyCancelled
	}

	if err := restoreItemsTx(ctx, pgTx, id); err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, domain.SaleStatusCancelled, at)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetSaleByID(ctx, id)
}

// DeleteSale restores stock for every item regardless of the sale's status,
// so deleting an already-cancelled sale restores stock a second time. This
// matches the historical ledger behaviour.
func (s *Store) DeleteSale(ctx context.Context, id string) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	var saleID string
	err = pgTx.QueryRowContext(ctx, `
		SELECT id
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&saleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	if err := restoreItemsTx(ctx, pgTx, id); err != nil {
		return err
	}

	if _, err := pgTx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
		return err
	}
	if _, err := pgTx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id); err != nil {
		return err
	}

	return pgTx.Commit()
}

func restoreItemsTx(ctx context.Context, pgTx *sql.Tx, saleID string) error {
	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT product_id, quantidade
		FROM sale_items
		WHERE sale_id = $1
	`, saleID)
	if err != nil {
		return err
	}
	type line struct {
		productID string
		qty       int
	}
	lines := make([]line, 0, 8)
	for itemRows.Next() {
		var l line
		if err := itemRows.Scan(&l.productID, &l.qty); err != nil {
			_ = itemRows.Close()
			return err
		}
		lines = append(lines, l)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return err
	}
	_ = itemRows.Close()

	for _, l := range lines {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantidade = quantidade + $2, updated_at = now()
			WHERE id = $1
		`, l.productID, l.qty)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpdateSaleStatus(ctx context.Context, id string, status string) (*domain.Sale, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetSaleByID(ctx, id)
}

// UpdateSale replaces the sale's mutable fields. New items are validated for
// existence and activity only; stock deltas are not reconciled here, matching
// the historical full-update behaviour. Supplied item subtotals are persisted
// as-is.
func (s *Store) UpdateSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var sale domain.Sale
	var observacoes sql.NullString
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, cliente, subtotal, desconto, forma_pagamento, status, observacoes
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&sale.ID, &sale.Cliente, &sale.Subtotal, &sale.Desconto, &sale.FormaPagamento, &sale.Status, &observacoes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if observacoes.Valid {
		sale.Observacoes = observacoes.String
	}

	if req.Itens != nil {
		productIDs := make([]string, 0, len(req.Itens))
		for _, item := range req.Itens {
			if item.ProductID == "" || item.Quantidade < 1 {
				return nil, store.ErrInvalidSale
			}
			productIDs = append(productIDs, item.ProductID)
		}

		activeRows, err := pgTx.QueryContext(ctx, `
			SELECT id FROM products WHERE ativo = true AND id = ANY($1)
		`, productIDs)
		if err != nil {
			return nil, err
		}
		active := make(map[string]struct{}, len(productIDs))
		for activeRows.Next() {
			var productID string
			if err := activeRows.Scan(&productID); err != nil {
				_ = activeRows.Close()
				return nil, err
			}
			active[productID] = struct{}{}
		}
		if err := activeRows.Err(); err != nil {
			_ = activeRows.Close()
			return nil, err
		}
		_ = activeRows.Close()

		for _, productID := range productIDs {
			if _, ok := active[productID]; !ok {
				return nil, fmt.Errorf("produto %s: %w", productID, store.ErrNotFound)
			}
		}

		if _, err := pgTx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
			return nil, err
		}

		subtotal := decimal.Zero
		for _, item := range req.Itens {
			_, err := pgTx.ExecContext(ctx, `
				INSERT INTO sale_items (sale_id, product_id, quantidade, preco_unitario, subtotal)
				VALUES ($1,$2,$3,$4,$5)
			`, id, item.ProductID, item.Quantidade, item.PrecoUnitario, item.Subtotal)
			if err != nil {
				return nil, err
			}
			subtotal = subtotal.Add(item.Subtotal)
		}
		sale.Subtotal = subtotal
	}

	if req.Cliente != nil {
		sale.Cliente = *req.Cliente
	}
	if req.FormaPagamento != nil {
		sale.FormaPagamento = *req.FormaPagamento
	}
	if req.Observacoes != nil {
		sale.Observacoes = *req.Observacoes
	}
	if req.Desconto != nil {
		sale.Desconto = *req.Desconto
	}
	if req.Status != nil {
		sale.Status = *req.Status
	}
	if sale.Desconto.IsNegative() || sale.Desconto.GreaterThan(sale.Subtotal) {
		return nil, store.ErrInvalidSale
	}
	sale.Total = sale.Subtotal.Sub(sale.Desconto)

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET cliente = $2, subtotal = $3, desconto = $4, total = $5,
			forma_pagamento = $6, status = $7, observacoes = $8, updated_at = now()
		WHERE id = $1
	`, id, sale.Cliente, sale.Subtotal, sale.Desconto, sale.Total,
		sale.FormaPagamento, sale.Status, nullIfEmpty(sale.Observacoes))
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetSaleByID(ctx, id)
}

func (s *Store) GetStatistics(ctx context.Context, filter domain.StatisticsFilter, todayStart time.Time, todayEnd time.Time) (domain.SalesStatistics, error) {
	stats := domain.SalesStatistics{
		VendasPorFormaPagamento: make(map[string]domain.PaymentSummary),
		ResumoPorStatus:         make(map[string]domain.StatusSummary),
		VendasPorStatus:         make(map[string]int64),
		ProdutosMaisVendidos:    make([]domain.TopProduct, 0, 10),
	}

	from := nullTimePtr(filter.DataInicio)
	to := nullTimePtr(filter.DataFim)

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint, COALESCE(SUM(total),0)
		FROM sales
		WHERE status = $1
			AND ($2::timestamptz IS NULL OR data_venda >= $2)
			AND ($3::timestamptz IS NULL OR data_venda < $3)
	`, domain.SaleStatusPaid, from, to).Scan(&stats.Periodo.Vendas, &stats.Periodo.Receita)
	if err != nil {
		return stats, err
	}
	if stats.Periodo.Vendas > 0 {
		stats.Periodo.TicketMedio = stats.Periodo.Receita.Div(decimal.NewFromInt(stats.Periodo.Vendas)).Round(2)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint, COALESCE(SUM(total),0)
		FROM sales
		WHERE status = $1 AND data_venda >= $2 AND data_venda < $3
	`, domain.SaleStatusPaid, todayStart, todayEnd).Scan(&stats.Hoje.Vendas, &stats.Hoje.Receita)
	if err != nil {
		return stats, err
	}

	statusRows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)::bigint, COALESCE(SUM(total),0)
		FROM sales
		WHERE ($1::timestamptz IS NULL OR data_venda >= $1)
			AND ($2::timestamptz IS NULL OR data_venda < $2)
		GROUP BY status
		ORDER BY status
	`, from, to)
	if err != nil {
		return stats, err
	}
	for statusRows.Next() {
		var status string
		var summary domain.StatusSummary
		if err := statusRows.Scan(&status, &summary.Vendas, &summary.Valor); err != nil {
			_ = statusRows.Close()
			return stats, err
		}
		stats.ResumoPorStatus[status] = summary
		stats.VendasPorStatus[status] = summary.Vendas
	}
	if err := statusRows.Err(); err != nil {
		_ = statusRows.Close()
		return stats, err
	}
	_ = statusRows.Close()

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT forma_pagamento, COUNT(*)::bigint, COALESCE(SUM(total),0)
		FROM sales
		WHERE status = $1
			AND ($2::timestamptz IS NULL OR data_venda >= $2)
			AND ($3::timestamptz IS NULL OR data_venda < $3)
		GROUP BY forma_pagamento
		ORDER BY forma_pagamento
	`, domain.SaleStatusPaid, from, to)
	if err != nil {
		return stats, err
	}
	for paymentRows.Next() {
		var method string
		var summary domain.PaymentSummary
		if err := paymentRows.Scan(&method, &summary.Vendas, &summary.Receita); err != nil {
			_ = paymentRows.Close()
			return stats, err
		}
		stats.VendasPorFormaPagamento[method] = summary
	}
	if err := paymentRows.Err(); err != nil {
		_ = paymentRows.Close()
		return stats, err
	}
	_ = paymentRows.Close()

	topRows, err := s.db.QueryContext(ctx, `
		SELECT si.product_id, COALESCE(p.nome, ''), COALESCE(p.codigo, ''),
			SUM(si.quantidade)::bigint, COALESCE(SUM(si.subtotal),0)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		LEFT JOIN products p ON p.id = si.product_id
		WHERE s.status = $1
			AND ($2::timestamptz IS NULL OR s.data_venda >= $2)
			AND ($3::timestamptz IS NULL OR s.data_venda < $3)
		GROUP BY si.product_id, p.nome, p.codigo
		ORDER BY SUM(si.quantidade) DESC, si.product_id
		LIMIT 10
	`, domain.SaleStatusPaid, from, to)
	if err != nil {
		return stats, err
	}
	for topRows.Next() {
		var entry domain.TopProduct
		if err := topRows.Scan(&entry.ProductID, &entry.Nome, &entry.Codigo, &entry.Quantidade, &entry.Receita); err != nil {
			_ = topRows.Close()
			return stats, err
		}
		stats.ProdutosMaisVendidos = append(stats.ProdutosMaisVendidos, entry)
	}
	if err := topRows.Err(); err != nil {
		_ = topRows.Close()
		return stats, err
	}
	_ = topRows.Close()

	if len(stats.ProdutosMaisVendidos) > 0 {
		top := stats.ProdutosMaisVendidos[0]
		stats.ProdutoMaisVendido = &top
	}
	stats.TotalVendas = stats.Periodo.Vendas
	stats.ReceitaTotal = stats.Periodo.Receita
	stats.VendasHoje = stats.Hoje.Vendas
	stats.ReceitaHoje = stats.Hoje.Receita

	return stats, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTimePtr(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
