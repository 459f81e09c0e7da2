package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/service"
	"warungpos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, 0, memory.SeedTenantID)
	auth, err := NewAuthManager("test-secret-key", time.Hour, repo)
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	return New(svc, auth, "*")
}

// loginAs obtains an access token through the real login endpoint.
func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
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
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body)
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "owner",
		"password": "owner123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access_token in response")
	}
	if resp.Role != domain.RoleOwner {
		t.Fatalf("expected owner role, got %q", resp.Role)
	}
	if resp.TenantID != memory.SeedTenantID {
		t.Fatalf("expected tenant %q, got %q", memory.SeedTenantID, resp.TenantID)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "owner",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_ListScopedToTenant(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "owner", "owner123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var products []domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&products); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(products) != 6 {
		t.Fatalf("expected 6 active products, got %d", len(products))
	}
	for _, p := range products {
		if p.TenantID != memory.SeedTenantID {
			t.Fatalf("product %s leaked from tenant %s", p.ID, p.TenantID)
		}
	}
}

func TestHandleProductCreate_StaffForbidden(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		Name:      "Teh Botol",
		SellPrice: 4500,
		Stock:     30,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProductCreate_OwnerSucceeds(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "owner", "owner123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		Name:      "Teh Botol",
		SellPrice: 4500,
		Stock:     30,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var product domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&product); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if product.ID == "" || product.TenantID != memory.SeedTenantID {
		t.Fatalf("unexpected product: %+v", product)
	}
}

func TestHandleProductByID_NotFound(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "owner", "owner123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products/prod-missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleCommitSale_CreatesSaleAndItems(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, domain.SaleCommitRequest{
		Items: []domain.SaleLine{
			{ProductID: "prod-mie-01", Quantity: 2, UnitPrice: 3500},
			{ProductID: "prod-kopi-01", Quantity: 3, UnitPrice: 2600},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.SaleCommitResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Sale.FinalAmount != 2*3500+3*2600 {
		t.Fatalf("expected final amount %d, got %d", 2*3500+3*2600, resp.Sale.FinalAmount)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}
	if resp.Sale.PaymentMethod != domain.PaymentMethodCash || resp.Sale.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected cash/paid defaults, got %s/%s", resp.Sale.PaymentMethod, resp.Sale.PaymentStatus)
	}

	listRec := doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+resp.Sale.ID, token, nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching sale, got %d (body: %s)", listRec.Code, listRec.Body.String())
	}
}

func TestHandleCommitSale_InsufficientStockConflicts(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, domain.SaleCommitRequest{
		Items: []domain.SaleLine{
			{ProductID: "prod-roti-01", Quantity: 26, UnitPrice: 17800},
		},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleCommitSale_EmptyItemsRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, domain.SaleCommitRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleCommitSale_UnknownFieldRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"items":        []map[string]any{{"product_id": "prod-mie-01", "quantity": 1, "unit_price": 3500}},
		"grand_totale": 99,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleFinance_CreateAndList(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "owner", "owner123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/finance", token, domain.FinanceCreateRequest{
		Type:        domain.FinanceTypeExpense,
		Amount:      50000,
		Description: "Beli gas",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	listRec := doJSON(t, handler, http.MethodGet, "/api/v1/finance?type=expense", token, nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", listRec.Code, listRec.Body.String())
	}
	var entries []domain.FinanceEntry
	if err := json.NewDecoder(listRec.Body).Decode(&entries); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(entries) != 1 || entries[0].Description != "Beli gas" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestHandleDashboard(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "owner", "owner123")

	saleRec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, domain.SaleCommitRequest{
		Items: []domain.SaleLine{{ProductID: "prod-mie-01", Quantity: 4, UnitPrice: 3500}},
	})
	if saleRec.Code != http.StatusCreated {
		t.Fatalf("sale setup failed: %d %s", saleRec.Code, saleRec.Body.String())
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/dashboard", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var stats domain.DashboardStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if stats.TotalProducts != 6 {
		t.Fatalf("expected 6 active products, got %d", stats.TotalProducts)
	}
	if stats.TodaySales != 14000 || stats.TodaySalesCount != 1 {
		t.Fatalf("expected today 14000/1, got %d/%d", stats.TodaySales, stats.TodaySalesCount)
	}
	if stats.MonthlyIncome != 14000 {
		t.Fatalf("expected monthly income 14000, got %d", stats.MonthlyIncome)
	}
}

func TestHandleUserCreate_OwnerProvisionsStaff(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	ownerToken := loginAs(t, handler, "owner", "owner123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/users", ownerToken, domain.UserCreateRequest{
		Username: "kasirbaru",
		Password: "rahasia2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var created domain.UserSummary
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if created.Role != domain.RoleStaff || created.TenantID != memory.SeedTenantID {
		t.Fatalf("unexpected user: %+v", created)
	}

	// The fresh account can log in straight away.
	token := loginAs(t, handler, "kasirbaru", "rahasia2")
	listRec := doJSON(t, handler, http.MethodGet, "/api/v1/products", token, nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected new user to list products, got %d", listRec.Code)
	}
}

func TestHandleUserCreate_StaffForbidden(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	staffToken := loginAs(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/users", staffToken, domain.UserCreateRequest{
		Username: "penyusup",
		Password: "rahasia2",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleSales_TenantIsolation(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	staffToken := loginAs(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", staffToken, domain.SaleCommitRequest{
		Items: []domain.SaleLine{{ProductID: "prod-air-01", Quantity: 1, UnitPrice: 3900}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale setup failed: %d %s", rec.Code, rec.Body.String())
	}

	otherToken := loginAs(t, handler, "owner2", "owner123")
	listRec := doJSON(t, handler, http.MethodGet, "/api/v1/sales", otherToken, nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", listRec.Code, listRec.Body.String())
	}
	var sales []domain.SaleWithItems
	if err := json.NewDecoder(listRec.Body).Decode(&sales); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sales visible to other tenant, got %d", len(sales))
	}
}
