package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncfpos/internal/core/apperror"
	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
	"ncfpos/internal/domain/auth"
	"ncfpos/internal/domain/sales"
	"ncfpos/internal/domain/sequence"
	v1 "ncfpos/internal/infrastructure/http/v1"
	"ncfpos/internal/infrastructure/http/v1/middleware"
	"ncfpos/internal/infrastructure/metrics"
	"ncfpos/internal/infrastructure/storage/postgres"
	"ncfpos/internal/testutil"
	"ncfpos/pkg/logger"
)

type fakeDB struct{ err error }

func (f fakeDB) Ping(context.Context) error { return f.err }

func (f fakeDB) Stats() postgres.PoolStats { return postgres.PoolStats{MaxConns: 4} }

type env struct {
	router  *gin.Engine
	store   *testutil.Store
	idem    *testutil.IdempotencyStore
	jwt     *auth.JWTService
	storeID id.ID
}

func newEnv(t *testing.T, db fakeDB) *env {
	t.Helper()

	store := testutil.NewStore()
	idem := testutil.NewIdempotencyStore()
	jwtSvc := auth.NewJWTService(auth.DefaultJWTConfig("0123456789abcdef0123456789abcdef", "ncfpos"))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	seq := sequence.NewService(store.Sequences(), store.Sales(), store, store.Audit(), m)
	salesSvc := sales.NewService(store.Sales(), seq, store, sales.Config{
		IssueRetries:    1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	})
	v1.RegisterSaleHooks(salesSvc)

	router := v1.NewRouter(v1.RouterConfig{
		Database:           db,
		Logger:             logger.NewNop(),
		JWTValidator:       jwtSvc,
		SequenceService:    seq,
		SalesService:       salesSvc,
		AuditTrail:         store.Audit(),
		IdempotencyStore:   idem,
		IdempotencyEnabled: true,
		Metrics:            m,
		Gatherer:           reg,
		Version:            "test",
	})

	return &env{router: router, store: store, idem: idem, jwt: jwtSvc, storeID: id.New()}
}

func (e *env) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	tok, _, err := e.jwt.GenerateToken(auth.TokenRequest{
		UserID:   userID,
		Roles:    roles,
		StoreIDs: []string{e.storeID.String()},
	})
	require.NoError(t, err)
	return tok
}

type request struct {
	method  string
	path    string
	body    any
	token   string
	storeID string
	key     string
}

func (e *env) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(r.body))
	}
	req := httptest.NewRequest(r.method, r.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	storeID := r.storeID
	if storeID == "" {
		storeID = e.storeID.String()
	}
	req.Header.Set(middleware.HeaderStoreID, storeID)
	if r.key != "" {
		req.Header.Set(middleware.HeaderIdempotencyKey, r.key)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func saleBody(invoiceType string) map[string]any {
	return map[string]any{
		"invoice_type_id": invoiceType,
		"lines": []map[string]any{
			{"description": "Cafe", "quantity": 2, "unit_price": "100.00", "taxable": true},
			{"description": "Pan", "quantity": 1, "unit_price": "50.00"},
		},
	}
}

func TestHealth(t *testing.T) {
	e := newEnv(t, fakeDB{})

	w := e.do(t, request{method: http.MethodGet, path: "/health/live"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, request{method: http.MethodGet, path: "/health/ready"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, request{method: http.MethodGet, path: "/health/info"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test", decode(t, w)["version"])

	down := newEnv(t, fakeDB{err: errors.New("connection refused")})
	w = down.do(t, request{method: http.MethodGet, path: "/health/ready"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAccessControl(t *testing.T) {
	e := newEnv(t, fakeDB{})
	e.store.PutCounter(numerator.Key{StoreID: e.storeID, InvoiceType: "B02"}, 1)
	path := "/api/v1/sequences/B02/next"

	w := e.do(t, request{method: http.MethodGet, path: path})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperror.CodeUnauthorized, decode(t, w)["code"])

	w = e.do(t, request{method: http.MethodGet, path: path, token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	cashier := e.token(t, "cashier-1", "cashier")

	w = e.do(t, request{method: http.MethodGet, path: path, token: cashier, storeID: id.New().String()})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, request{method: http.MethodGet, path: path, token: cashier, storeID: "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, request{method: http.MethodPost, path: "/api/v1/sequences/B02/issue", token: cashier})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, int64(1), e.store.Counter(numerator.Key{StoreID: e.storeID, InvoiceType: "B02"}).CurrentNumber)
}

func TestSequences_PeekAndIssue(t *testing.T) {
	e := newEnv(t, fakeDB{})
	key := numerator.Key{StoreID: e.storeID, InvoiceType: "B02"}
	e.store.PutCounter(key, 1764)

	cashier := e.token(t, "cashier-1", "cashier")
	w := e.do(t, request{method: http.MethodGet, path: "/api/v1/sequences/b02/next", token: cashier})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "B02-00001765", decode(t, w)["number"])
	assert.Equal(t, int64(1764), e.store.Counter(key).CurrentNumber)

	integration := e.token(t, "erp", "integration")
	w = e.do(t, request{method: http.MethodPost, path: "/api/v1/sequences/B02/issue", token: integration})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "B02-00001765", decode(t, w)["number"])
	assert.Equal(t, int64(1765), e.store.Counter(key).CurrentNumber)

	w = e.do(t, request{method: http.MethodGet, path: "/api/v1/sequences/B01/next", token: cashier})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, request{method: http.MethodGet, path: "/api/v1/sequences/XYZ1/next", token: cashier})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSequences_SetCounter(t *testing.T) {
	e := newEnv(t, fakeDB{})
	key := numerator.Key{StoreID: e.storeID, InvoiceType: "B02"}
	e.store.PutCounter(key, 1764)
	e.store.SeedSale(key, "B02-00001780")

	admin := e.token(t, "admin-1", "admin")
	path := "/api/v1/sequences/B02"

	w := e.do(t, request{method: http.MethodPut, path: path, token: admin, body: map[string]any{"current_number": 1764}})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, apperror.CodeValidation, body["code"])
	assert.Contains(t, body["message"], "1781")
	assert.Equal(t, float64(1780), body["details"].(map[string]any)["max_historical"])
	assert.Equal(t, int64(1764), e.store.Counter(key).CurrentNumber)

	w = e.do(t, request{method: http.MethodPut, path: path, token: admin, body: map[string]any{"current_number": 1780}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "B02-00001781", decode(t, w)["next_number"])
	assert.Len(t, e.store.AuditRecords(), 1)

	w = e.do(t, request{method: http.MethodPut, path: path, token: admin, body: map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	cashier := e.token(t, "cashier-1", "cashier")
	w = e.do(t, request{method: http.MethodPut, path: path, token: cashier, body: map[string]any{"current_number": 1800}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSequences_ProvisionListAudit(t *testing.T) {
	e := newEnv(t, fakeDB{})
	admin := e.token(t, "admin-1", "admin")

	w := e.do(t, request{
		method: http.MethodPost,
		path:   "/api/v1/sequences/provision",
		token:  admin,
		body:   map[string]any{"invoice_types": []string{"b01", "B02"}, "initial": 5},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode(t, w)["items"], 2)

	w = e.do(t, request{method: http.MethodGet, path: "/api/v1/sequences", token: admin})
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "B01", first["invoice_type_id"])
	assert.Equal(t, "B01-00000006", first["next_number"])

	e.store.SeedSale(numerator.Key{StoreID: e.storeID, InvoiceType: "B02"}, "B02-00000050")
	w = e.do(t, request{method: http.MethodGet, path: "/api/v1/sequences/audit", token: admin})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode(t, w)
	assert.Equal(t, false, report["healthy"])
	assert.Len(t, report["behind"], 1)

	w = e.do(t, request{method: http.MethodGet, path: "/api/v1/sequences/history?limit=1", token: admin})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	history := decode(t, w)["items"].([]any)
	require.Len(t, history, 1)
	assert.Equal(t, "provision", history[0].(map[string]any)["action"])

	cashier := e.token(t, "cashier-1", "cashier")
	w = e.do(t, request{method: http.MethodGet, path: "/api/v1/sequences/history", token: cashier})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSequences_ExhaustedCounter(t *testing.T) {
	e := newEnv(t, fakeDB{})
	key := numerator.Key{StoreID: e.storeID, InvoiceType: "B02"}
	e.store.PutCounter(key, 10)
	admin := e.token(t, "admin-1", "admin")
	path := "/api/v1/sequences/B02"

	w := e.do(t, request{method: http.MethodPut, path: path, token: admin, body: map[string]any{"current_number": numerator.MaxNumber + 1}})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, int64(10), e.store.Counter(key).CurrentNumber)

	w = e.do(t, request{method: http.MethodPut, path: path, token: admin, body: map[string]any{"current_number": numerator.MaxNumber}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	counter := decode(t, w)
	assert.Equal(t, true, counter["exhausted"])
	assert.NotContains(t, counter, "next_number")

	w = e.do(t, request{method: http.MethodGet, path: path + "/next", token: admin})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, apperror.CodeSequenceExhausted, decode(t, w)["code"])

	cashier := e.token(t, "cashier-1", "cashier")
	w = e.do(t, request{method: http.MethodPost, path: "/api/v1/sales", token: cashier, key: "sale-x", body: saleBody("B02")})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, apperror.CodeSequenceExhausted, decode(t, w)["code"])
	assert.Equal(t, numerator.MaxNumber, e.store.Counter(key).CurrentNumber)
	assert.Zero(t, e.store.SalesCount())
	assert.True(t, e.idem.Stored("sale-x"))
}

func TestSales_CreateGetList(t *testing.T) {
	e := newEnv(t, fakeDB{})
	e.store.PutCounter(numerator.Key{StoreID: e.storeID, InvoiceType: "B02"}, 1764)
	cashier := e.token(t, "cashier-1", "cashier")

	w := e.do(t, request{method: http.MethodPost, path: "/api/v1/sales", token: cashier, body: saleBody("b02")})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "B02-00001765", created["invoice_number"])
	assert.Equal(t, "286.00", created["total"])
	assert.Equal(t, "36.00", created["itbis"])
	assert.Equal(t, "cashier-1", created["created_by"])

	w = e.do(t, request{method: http.MethodGet, path: "/api/v1/sales/" + created["id"].(string), token: cashier})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "B02-00001765", decode(t, w)["invoice_number"])

	w = e.do(t, request{method: http.MethodGet, path: "/api/v1/sales/" + id.New().String(), token: cashier})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, request{method: http.MethodGet, path: "/api/v1/sales/nope", token: cashier})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, request{method: http.MethodGet, path: "/api/v1/sales?limit=10", token: cashier})
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)
	assert.Len(t, list["items"], 1)
	assert.Equal(t, float64(10), list["limit"])

	w = e.do(t, request{method: http.MethodGet, path: "/api/v1/sales?limit=9999", token: cashier})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSales_IdempotentReplay(t *testing.T) {
	e := newEnv(t, fakeDB{})
	key := numerator.Key{StoreID: e.storeID, InvoiceType: "B02"}
	e.store.PutCounter(key, 10)
	cashier := e.token(t, "cashier-1", "cashier")

	first := e.do(t, request{method: http.MethodPost, path: "/api/v1/sales", token: cashier, key: "sale-1", body: saleBody("B02")})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := e.do(t, request{method: http.MethodPost, path: "/api/v1/sales", token: cashier, key: "sale-1", body: saleBody("B02")})
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(middleware.HeaderIdempotentReplay))
	assert.Equal(t, decode(t, first)["invoice_number"], decode(t, second)["invoice_number"])
	assert.Equal(t, int64(11), e.store.Counter(key).CurrentNumber)
	assert.Equal(t, 1, e.store.SalesCount())

	other := saleBody("B02")
	other["customer_name"] = "Otro"
	w := e.do(t, request{method: http.MethodPost, path: "/api/v1/sales", token: cashier, key: "sale-1", body: other})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperror.CodeIdempotency, decode(t, w)["code"])
}

func TestSales_ReplayAfterLostOutcome(t *testing.T) {
	e := newEnv(t, fakeDB{})
	key := numerator.Key{StoreID: e.storeID, InvoiceType: "B02"}
	e.store.PutCounter(key, 41)
	cashier := e.token(t, "cashier-1", "cashier")

	// The sale commits but its response is never recorded; later the key
	// is handed to the resent request.
	e.idem.FailNextComplete(errors.New("connection reset"))
	e.idem.ReclaimPending = true

	first := e.do(t, request{method: http.MethodPost, path: "/api/v1/sales", token: cashier, key: "sale-9", body: saleBody("B02")})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.False(t, e.idem.Stored("sale-9"))
	original := decode(t, first)
	assert.Equal(t, "B02-00000042", original["invoice_number"])

	second := e.do(t, request{method: http.MethodPost, path: "/api/v1/sales", token: cashier, key: "sale-9", body: saleBody("B02")})
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	assert.Equal(t, "true", second.Header().Get(middleware.HeaderIdempotentReplay))
	replayed := decode(t, second)
	assert.Equal(t, original["invoice_number"], replayed["invoice_number"])
	assert.Equal(t, original["id"], replayed["id"])
	assert.Equal(t, original["total"], replayed["total"])

	assert.Equal(t, 1, e.store.SalesCount())
	assert.Equal(t, int64(42), e.store.Counter(key).CurrentNumber)
	assert.True(t, e.idem.Stored("sale-9"))
}

func TestSales_IdempotencyStoresClientErrors(t *testing.T) {
	e := newEnv(t, fakeDB{})
	e.store.PutCounter(numerator.Key{StoreID: e.storeID, InvoiceType: "B01"}, 0)
	cashier := e.token(t, "cashier-1", "cashier")

	w := e.do(t, request{method: http.MethodPost, path: "/api/v1/sales", token: cashier, key: "sale-2", body: saleBody("B01")})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.True(t, e.idem.Stored("sale-2"))

	again := e.do(t, request{method: http.MethodPost, path: "/api/v1/sales", token: cashier, key: "sale-2", body: saleBody("B01")})
	assert.Equal(t, http.StatusBadRequest, again.Code)
	assert.Equal(t, "true", again.Header().Get(middleware.HeaderIdempotentReplay))
	assert.Equal(t, strings.TrimSpace(w.Body.String()), strings.TrimSpace(again.Body.String()))
}

func TestSales_TransientFailureReleasesKey(t *testing.T) {
	e := newEnv(t, fakeDB{})
	key := numerator.Key{StoreID: e.storeID, InvoiceType: "B02"}
	e.store.PutCounter(key, 10)
	cashier := e.token(t, "cashier-1", "cashier")

	down := apperror.NewPersistence(errors.New("connection reset"))
	e.store.FailNext(testutil.OpIncrement, down)
	e.store.FailNext(testutil.OpIncrement, down)

	w := e.do(t, request{method: http.MethodPost, path: "/api/v1/sales", token: cashier, key: "sale-3", body: saleBody("B02")})
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	assert.Equal(t, 1, e.idem.Released)
	assert.False(t, e.idem.Stored("sale-3"))
	assert.Equal(t, int64(10), e.store.Counter(key).CurrentNumber)

	w = e.do(t, request{method: http.MethodPost, path: "/api/v1/sales", token: cashier, key: "sale-3", body: saleBody("B02")})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "B02-00000011", decode(t, w)["invoice_number"])
	assert.Empty(t, w.Header().Get(middleware.HeaderIdempotentReplay))
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, fakeDB{})
	e.store.PutCounter(numerator.Key{StoreID: e.storeID, InvoiceType: "B02"}, 0)
	cashier := e.token(t, "cashier-1", "cashier")

	w := e.do(t, request{method: http.MethodPost, path: "/api/v1/sales", token: cashier, body: saleBody("B02")})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, request{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `ncfpos_invoice_numbers_issued_total{invoice_type="B02"} 1`)
	assert.Contains(t, w.Body.String(), "ncfpos_http_request_duration_seconds")
}
