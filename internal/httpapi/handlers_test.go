package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/service"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/store/memory"
)

// newTestAPI builds the real router over a seeded in-memory store so handler
// tests exercise the complete request path.
func newTestAPI(t *testing.T) http.Handler {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, zap.NewNop(), memory.DefaultBusinessID)
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, repo, zap.NewNop())

	return New(svc, auth, "http://127.0.0.1:3000", zap.NewNop()).Handler()
}

func doJSON(t *testing.T, h http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body), "body: %s", rec.Body.String())
	return body
}

func login(t *testing.T, h http.Handler, username string, password string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func TestHandleHealth(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
}

func TestHandleLogin(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeBody(t, rec)["access_token"])

	rec = doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeBody(t, rec)["code"])
}

func TestRoutesRequireAuthAndRole(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/products", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	seller := login(t, h, "seller", "seller123")
	rec = doJSON(t, h, http.MethodGet, "/api/v1/products", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	products, ok := decodeBody(t, rec)["products"].([]any)
	require.True(t, ok)
	assert.Len(t, products, 6)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/products", seller, map[string]any{
		"name": "Flour 2kg", "cost_price": "90", "selling_price": "110", "initial_stock": 10,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := login(t, h, "admin", "admin123")
	rec = doJSON(t, h, http.MethodPost, "/api/v1/products", admin, map[string]any{
		"name": "Flour 2kg", "cost_price": "90", "selling_price": "110.50", "initial_stock": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	product := decodeBody(t, rec)["product"].(map[string]any)
	assert.Equal(t, "110.50", product["selling_price"])
}

func TestSaleAndCollectionFlow(t *testing.T) {
	h := newTestAPI(t)
	seller := login(t, h, "seller", "seller123")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sales", seller, map[string]any{
		"items":       []map[string]any{{"product_id": "prd-rice-5kg", "quantity": 2}},
		"customer_id": "cus-karim",
		"amount_paid": "500.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	sale := created["sale"].(map[string]any)
	saleID := sale["id"].(string)
	assert.Equal(t, "760.00", sale["final_amount"])
	assert.Equal(t, "seller", sale["seller_id"])
	assert.Equal(t, "260.00", created["due"])

	rec = doJSON(t, h, http.MethodPost, "/api/v1/sales/"+saleID+"/collections", seller, map[string]any{"amount": "300"})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "AMOUNT_EXCEEDS_DUE", body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "260.00", details["due"])
	assert.Equal(t, "300.00", details["requested"])

	rec = doJSON(t, h, http.MethodPost, "/api/v1/sales/"+saleID+"/collections", seller, map[string]any{
		"amount":          "260",
		"payment_method":  "mobile_banking",
		"collection_date": "2026-03-04",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	collected := decodeBody(t, rec)
	assert.Equal(t, "0.00", collected["due"])
	collection := collected["collection"].(map[string]any)
	assert.Equal(t, "seller", collection["collected_by"])

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sales/"+saleID, seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody(t, rec)
	assert.Equal(t, "500.00", detail["initial_payment"])
	assert.Len(t, detail["collections"], 1)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/customers/cus-karim/due", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	due := decodeBody(t, rec)["due"].(map[string]any)
	assert.Equal(t, "0.00", due["due"])
	assert.Equal(t, "Karim Traders", due["customer_name"])
}

func TestCollectionCorrectionsAreAdminOnly(t *testing.T) {
	h := newTestAPI(t)
	seller := login(t, h, "seller", "seller123")
	admin := login(t, h, "admin", "admin123")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sales", seller, map[string]any{
		"items":          []map[string]any{{"product_id": "prd-soap", "quantity": 4}},
		"customer_id":    "cus-rahima",
		"payment_method": "due",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saleID := decodeBody(t, rec)["sale"].(map[string]any)["id"].(string)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/sales/"+saleID+"/collections", seller, map[string]any{"amount": "100"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	collectionID := decodeBody(t, rec)["collection"].(map[string]any)["id"].(string)

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/collections/"+collectionID, seller, map[string]any{"amount": "50"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/collections/"+collectionID, admin, map[string]any{"amount": "50"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "170.00", decodeBody(t, rec)["due"])

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/collections/"+collectionID, admin, map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/collections/"+collectionID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "220.00", decodeBody(t, rec)["due"])

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/collections/"+collectionID, admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaleErrorMapping(t *testing.T) {
	h := newTestAPI(t)
	seller := login(t, h, "seller", "seller123")

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed json",
			body:       `{"items": [`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "unknown field",
			body:       map[string]any{"items": []map[string]any{{"product_id": "prd-soap", "quantity": 1}}, "tax": "5"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "too many fractional digits",
			body:       map[string]any{"items": []map[string]any{{"product_id": "prd-soap", "quantity": 1}}, "amount_paid": "1.005"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "empty cart",
			body:       map[string]any{"items": []map[string]any{}},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "unknown customer",
			body:       map[string]any{"items": []map[string]any{{"product_id": "prd-soap", "quantity": 1}}, "customer_id": "cus-ghost"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "overpayment",
			body:       map[string]any{"items": []map[string]any{{"product_id": "prd-soap", "quantity": 1}}, "amount_paid": "56"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "OVERPAYMENT",
		},
		{
			name:       "insufficient stock",
			body:       map[string]any{"items": []map[string]any{{"product_id": "prd-tea-400g", "quantity": 41}}},
			wantStatus: http.StatusConflict,
			wantCode:   "INSUFFICIENT_STOCK",
		},
		{
			name:       "unknown product",
			body:       map[string]any{"items": []map[string]any{{"product_id": "prd-ghost", "quantity": 1}}},
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/v1/sales", seller, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotEmpty(t, body["request_id"])
		})
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sales", seller, map[string]any{
		"items": []map[string]any{{"product_id": "prd-tea-400g", "quantity": 41}},
	})
	details := decodeBody(t, rec)["details"].(map[string]any)
	assert.Equal(t, float64(40), details["available"])

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sales/sale-missing", seller, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sales?only_due=maybe", seller, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sales?from=2026-02-30", seller, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestIdempotentSaleReplay(t *testing.T) {
	h := newTestAPI(t)
	seller := login(t, h, "seller", "seller123")
	body := map[string]any{
		"items":           []map[string]any{{"product_id": "prd-oil-1l", "quantity": 3}},
		"idempotency_key": "till-2-0042",
	}

	first := doJSON(t, h, http.MethodPost, "/api/v1/sales", seller, body)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := doJSON(t, h, http.MethodPost, "/api/v1/sales", seller, body)
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	assert.Equal(t, true, decodeBody(t, second)["duplicate"])

	rec := doJSON(t, h, http.MethodGet, "/api/v1/products/prd-oil-1l", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(57), decodeBody(t, rec)["product"].(map[string]any)["stock_quantity"])
}

func TestDamageAndStockEndpoints(t *testing.T) {
	h := newTestAPI(t)
	seller := login(t, h, "seller", "seller123")
	admin := login(t, h, "admin", "admin123")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/damages", seller, map[string]any{
		"items": []map[string]any{{"product_id": "prd-lentil-1kg", "quantity": 2}},
		"note":  "torn bags",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	damage := decodeBody(t, rec)["damage"].(map[string]any)
	assert.Equal(t, "210.00", damage["total_loss"])
	assert.Equal(t, "seller", damage["user_id"])

	rec = doJSON(t, h, http.MethodPost, "/api/v1/products/prd-lentil-1kg/stock", seller, map[string]any{"delta": 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/products/prd-lentil-1kg/stock", admin, map[string]any{"delta": -79})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", decodeBody(t, rec)["code"])

	rec = doJSON(t, h, http.MethodPost, "/api/v1/products/prd-lentil-1kg/stock", admin, map[string]any{"delta": 12, "reason": "delivery"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(90), decodeBody(t, rec)["product"].(map[string]any)["stock_quantity"])

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/products/prd-lentil-1kg", admin, map[string]any{"selling_price": "130"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "130.00", decodeBody(t, rec)["product"].(map[string]any)["selling_price"])

	rec = doJSON(t, h, http.MethodGet, "/api/v1/damages", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["damages"], 1)
}

func TestReportEndpoints(t *testing.T) {
	h := newTestAPI(t)
	seller := login(t, h, "seller", "seller123")
	today := time.Now().UTC().Format(domain.DateLayout)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sales", seller, map[string]any{
		"items":       []map[string]any{{"product_id": "prd-sugar-1kg", "quantity": 2}},
		"customer_id": "cus-karim",
		"amount_paid": "200",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = doJSON(t, h, http.MethodPost, "/api/v1/sales", seller, map[string]any{
		"items":       []map[string]any{{"product_id": "prd-sugar-1kg", "quantity": 1}},
		"amount_paid": "100",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/dues", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board := decodeBody(t, rec)
	assert.Equal(t, "105.00", board["total_outstanding_due"])
	assert.Len(t, board["customers"], 2)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/collections?date="+today, seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "300.00", decodeBody(t, rec)["total"])

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/summary?from="+today+"&to="+today, seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody(t, rec)
	assert.Equal(t, float64(2), summary["sale_count"])
	assert.Equal(t, "405.00", summary["billed"])
	assert.Equal(t, "105.00", summary["new_due"])

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/lifetime", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "300.00", decodeBody(t, rec)["amount"])

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/collections?date=yesterday", seller, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStaffEndpoints(t *testing.T) {
	h := newTestAPI(t)
	admin := login(t, h, "admin", "admin123")
	seller := login(t, h, "seller", "seller123")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/users/staff", seller, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/users/staff", admin, domain.StaffCreateRequest{Username: "nasima", Password: "pass1234"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/v1/users/staff", admin, domain.StaffCreateRequest{Username: "nasima", Password: "pass1234"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/users/staff", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["staff"], 3)

	nasima := login(t, h, "nasima", "pass1234")
	rec = doJSON(t, h, http.MethodPost, "/api/v1/sales", nasima, map[string]any{
		"items": []map[string]any{{"product_id": "prd-soap", "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "nasima", decodeBody(t, rec)["sale"].(map[string]any)["seller_id"])

	rec = doJSON(t, h, http.MethodPost, "/api/v1/sales", nasima, map[string]any{
		"items":     []map[string]any{{"product_id": "prd-soap", "quantity": 1}},
		"seller_id": "admin",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "nasima", decodeBody(t, rec)["sale"].(map[string]any)["seller_id"])
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v2/whatever", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/healthz", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.True(t, strings.Contains(rec.Header().Get("Content-Type"), "application/json"))
}
