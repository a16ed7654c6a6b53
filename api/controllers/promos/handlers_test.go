package promos

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	promosvc "github.com/angelmondragon/storefront-backend/internal/promos"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func newService(t *testing.T) promosvc.Service {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })

	repo, err := promosvc.NewRepository(pkgredis.Wrap(raw))
	require.NoError(t, err)
	svc, err := promosvc.NewService(repo, logger.Nop())
	require.NoError(t, err)
	return svc
}

func router(svc promosvc.Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/cart/promo-codes", List(svc, nil))
	r.Get("/api/cart/promo-codes/active", Active(svc, nil))
	r.Get("/api/cart/promo-codes/{code}", Get(svc, nil))
	r.Post("/api/cart/promo-codes", Create(svc, nil))
	r.Put("/api/cart/promo-codes/{code}", Update(svc, nil))
	r.Delete("/api/cart/promo-codes/{code}", Delete(svc, nil))
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func createBody(code string, expires time.Time) string {
	return `{"code":"` + code + `","description":"twenty off","discountPercent":20,"minAmount":20,"maxDiscount":3,"expiresAt":"` + expires.UTC().Format(time.RFC3339) + `"}`
}

func TestCreateThenFetchByLowercaseCode(t *testing.T) {
	h := router(newService(t))

	resp := do(t, h, http.MethodPost, "/api/cart/promo-codes", createBody("save20", time.Now().Add(24*time.Hour)))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = do(t, h, http.MethodGet, "/api/cart/promo-codes/save20", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Data promosvc.PromoCode `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, "SAVE20", envelope.Data.Code)
	require.True(t, envelope.Data.Active)
}

func TestCreateDuplicateConflicts(t *testing.T) {
	h := router(newService(t))
	expires := time.Now().Add(24 * time.Hour)

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/cart/promo-codes", createBody("SAVE20", expires)).Code)
	resp := do(t, h, http.MethodPost, "/api/cart/promo-codes", createBody("save20", expires))
	require.Equal(t, http.StatusConflict, resp.Code)
}

func TestDeactivateRemovesFromActiveList(t *testing.T) {
	h := router(newService(t))
	expires := time.Now().Add(24 * time.Hour)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/cart/promo-codes", createBody("SAVE20", expires)).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/cart/promo-codes", createBody("WELCOME", expires)).Code)

	resp := do(t, h, http.MethodPut, "/api/cart/promo-codes/SAVE20", `{"active":false}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = do(t, h, http.MethodGet, "/api/cart/promo-codes/active", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var active struct {
		Data []promosvc.PromoCode `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&active))
	require.Len(t, active.Data, 1)
	require.Equal(t, "WELCOME", active.Data[0].Code)

	resp = do(t, h, http.MethodGet, "/api/cart/promo-codes", "")
	var all struct {
		Data []promosvc.PromoCode `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	require.Len(t, all.Data, 2)
}

func TestDeleteThenNotFound(t *testing.T) {
	h := router(newService(t))
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/cart/promo-codes", createBody("SAVE20", time.Now().Add(time.Hour))).Code)

	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/cart/promo-codes/SAVE20", "").Code)

	resp := do(t, h, http.MethodGet, "/api/cart/promo-codes/SAVE20", "")
	require.Equal(t, http.StatusNotFound, resp.Code)
	var envelope types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, "NOT_FOUND", envelope.Error.Code)
}

func TestCreateRejectsMissingExpiry(t *testing.T) {
	h := router(newService(t))
	resp := do(t, h, http.MethodPost, "/api/cart/promo-codes", `{"code":"X","discountPercent":10}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
