package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vendafacil/backend/internal/cache"
	"vendafacil/backend/internal/service"
	"vendafacil/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopStatisticsCache{}, time.Minute)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func loginToken(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login failed with %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access_token in login response, got %v", body)
	}
	return token
}

func authedRequest(t *testing.T, method string, path string, token string, payload any) *http.Request {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func createSalePayload(productID string, qty int) map[string]any {
	return map[string]any{
		"cliente":        "Maria Souza",
		"formaPagamento": "pix",
		"itens": []map[string]any{
			{"produto": productID, "quantidade": qty},
		},
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "senhaerrada",
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSalesEndpointsRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/vendas"},
		{http.MethodPost, "/vendas/criar"},
		{http.MethodGet, "/vendas/estatisticas"},
		{http.MethodGet, "/vendas/alguma-id"},
		{http.MethodGet, "/produtos"},
	}
	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 without token, got %d", p.method, p.path, rec.Code)
		}
	}
}

func TestHandleSaleCreate(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "vendedor", "vendedor123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/vendas/criar", token, createSalePayload("prod-arroz-01", 2)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var sale map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&sale); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if sale["numero"] != "V000001" {
		t.Fatalf("expected numero V000001, got %v", sale["numero"])
	}
	if sale["vendedor"] != "vendedor" {
		t.Fatalf("expected vendedor from token, got %v", sale["vendedor"])
	}
	if sale["status"] != "paga" {
		t.Fatalf("expected default status paga, got %v", sale["status"])
	}
	if sale["subtotal"] != 57.8 {
		t.Fatalf("expected subtotal 57.8, got %v", sale["subtotal"])
	}
	itens, ok := sale["itens"].([]any)
	if !ok || len(itens) != 1 {
		t.Fatalf("expected 1 item, got %v", sale["itens"])
	}
	item := itens[0].(map[string]any)
	if item["produto"] != "prod-arroz-01" || item["precoUnitario"] != 28.9 {
		t.Fatalf("unexpected item payload: %v", item)
	}
}

func TestHandleSaleCreate_UnknownProduct(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "vendedor", "vendedor123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/vendas/criar", token, createSalePayload("prod-inexistente", 1)))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["erro"] == nil || body["erro"] == "" {
		t.Fatalf("expected erro field in body, got %v", body)
	}
}

func TestHandleSaleCreate_InsufficientStock(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "vendedor", "vendedor123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/vendas/criar", token, createSalePayload("prod-cafe-01", 500)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["erro"] == "" {
		t.Fatalf("expected erro message, got %v", body)
	}
}

func TestHandleSaleCancelTwice(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "vendedor", "vendedor123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/vendas/criar", token, createSalePayload("prod-leite-01", 1)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}
	var sale map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&sale); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	saleID := sale["id"].(string)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPatch, "/vendas/"+saleID+"/cancelar", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on cancel, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var cancelled map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&cancelled); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if cancelled["status"] != "cancelada" {
		t.Fatalf("expected status cancelada, got %v", cancelled["status"])
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPatch, "/vendas/"+saleID+"/cancelar", token, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on second cancel, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleSaleDelete(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "vendedor", "vendedor123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/vendas/criar", token, createSalePayload("prod-oleo-01", 2)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}
	var sale map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&sale); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	saleID := sale["id"].(string)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodDelete, "/vendas/"+saleID, token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["mensagem"] == "" {
		t.Fatalf("expected mensagem in delete response, got %v", body)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/vendas/"+saleID, token, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestHandleSaleGet_NotFound(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "vendedor", "vendedor123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/vendas/venda-inexistente", token, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleSaleList_TrailingSlash(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "vendedor", "vendedor123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/vendas/criar", token, createSalePayload("prod-leite-01", 1)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/vendas/", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for GET /vendas/, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var listed map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if listed["total"] != float64(1) {
		t.Fatalf("expected total 1, got %v", listed["total"])
	}
	if _, ok := listed["vendas"].([]any); !ok {
		t.Fatalf("expected vendas array in response, got %v", listed["vendas"])
	}
}

func TestHandleSaleList_FilterAndPagination(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "vendedor", "vendedor123")

	clients := []string{"Maria Souza", "MARIANA Costa", "Pedro Gomes"}
	for i, cliente := range clients {
		payload := map[string]any{
			"cliente":        cliente,
			"formaPagamento": "dinheiro",
			"itens": []map[string]any{
				{"produto": "prod-cafe-01", "quantidade": i + 1},
			},
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/vendas/criar", token, payload))
		if rec.Code != http.StatusCreated {
			t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/vendas?cliente=maria", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var listed map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if listed["total"] != float64(2) {
		t.Fatalf("expected total 2 for cliente filter, got %v", listed["total"])
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/vendas?limite=2&pagina=2", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if listed["total"] != float64(3) || listed["totalPaginas"] != float64(2) || listed["paginaAtual"] != float64(2) {
		t.Fatalf("unexpected pagination fields: %v", listed)
	}
	vendas, ok := listed["vendas"].([]any)
	if !ok || len(vendas) != 1 {
		t.Fatalf("expected 1 sale on last page, got %v", listed["vendas"])
	}
}

func TestHandleSaleList_RejectsBadDate(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "vendedor", "vendedor123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/vendas?dataInicio=30-01-2026", token, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", rec.Code)
	}
}

func TestHandleStatistics(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "vendedor", "vendedor123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/vendas/criar", token, createSalePayload("prod-leite-01", 2)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}

	pending := createSalePayload("prod-leite-01", 1)
	pending["status"] = "pendente"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/vendas/criar", token, pending))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create pending failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/vendas/estatisticas", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var stats map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if stats["totalVendas"] != float64(1) {
		t.Fatalf("expected totalVendas 1 (paga only), got %v", stats["totalVendas"])
	}
	if stats["receitaTotal"] != 9.98 {
		t.Fatalf("expected receitaTotal 9.98, got %v", stats["receitaTotal"])
	}
	porStatus, ok := stats["vendasPorStatus"].(map[string]any)
	if !ok || porStatus["paga"] != float64(1) || porStatus["pendente"] != float64(1) {
		t.Fatalf("unexpected vendasPorStatus: %v", stats["vendasPorStatus"])
	}
	top, ok := stats["produtoMaisVendido"].(map[string]any)
	if !ok || top["produto"] != "prod-leite-01" {
		t.Fatalf("unexpected produtoMaisVendido: %v", stats["produtoMaisVendido"])
	}
	if _, ok := stats["hoje"].(map[string]any); !ok {
		t.Fatalf("expected hoje summary, got %v", stats["hoje"])
	}
}

func TestHandleSaleUpdate_StatusOnly(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "vendedor", "vendedor123")

	pending := createSalePayload("prod-macarrao-01", 1)
	pending["status"] = "pendente"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/vendas/criar", token, pending))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}
	var sale map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&sale); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	saleID := sale["id"].(string)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPatch, "/vendas/"+saleID, token, map[string]any{"status": "paga"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var updated map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&updated); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if updated["status"] != "paga" {
		t.Fatalf("expected status paga, got %v", updated["status"])
	}
}

func TestHandleProducts(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "admin", "admin123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/produtos", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	produtos, ok := body["produtos"].([]any)
	if !ok || len(produtos) == 0 {
		t.Fatalf("expected seeded products, got %v", body)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/produtos/prod-arroz-01", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var product map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&product); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if product["codigo"] != "ARZ-001" {
		t.Fatalf("unexpected product payload: %v", product)
	}
}

func TestHandleSaleCreate_ValidationError(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "vendedor", "vendedor123")

	payload := map[string]any{
		"cliente":        "",
		"formaPagamento": "pix",
		"itens": []map[string]any{
			{"produto": "prod-arroz-01", "quantidade": 1},
		},
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/vendas/criar", token, payload))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing cliente, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["erro"] == "" {
		t.Fatalf("expected erro message, got %v", body)
	}
}
