package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	internalpayments "github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubPayments struct {
	input    internalpayments.InitiateInput
	resp     *internalpayments.PaymentResponse
	captured bool
	err      error
	verified uuid.UUID
}

func (s *stubPayments) Initiate(ctx context.Context, input internalpayments.InitiateInput) (*internalpayments.PaymentResponse, error) {
	s.input = input
	return s.resp, s.err
}

func (s *stubPayments) CaptureByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	return nil, nil
}

func (s *stubPayments) FailByIntent(ctx context.Context, intentID, reason string) (*models.Payment, error) {
	return nil, nil
}

func (s *stubPayments) RefundByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	return nil, nil
}

func (s *stubPayments) VerifyStatus(ctx context.Context, orderID uuid.UUID) (bool, error) {
	s.verified = orderID
	return s.captured, s.err
}

func (s *stubPayments) SweepStale(ctx context.Context, createdBefore time.Time, limit int) (internalpayments.SweepSummary, error) {
	return internalpayments.SweepSummary{}, nil
}

func TestInitiateRequiresIdempotencyKey(t *testing.T) {
	svc := &stubPayments{}
	body := `{"orderId":"` + uuid.NewString() + `","amount":"20.00","currency":"usd"}`

	resp := httptest.NewRecorder()
	Initiate(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/payments/initiate", strings.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Empty(t, svc.input.IdempotencyKey)
}

func TestInitiatePassesHeaderKey(t *testing.T) {
	orderID := uuid.New()
	svc := &stubPayments{resp: &internalpayments.PaymentResponse{
		PaymentID:        uuid.New(),
		ProviderIntentID: "pi_123",
		ClientSecret:     "pi_123_secret",
		Status:           enums.PaymentStatusInitiated,
		Amount:           decimal.RequireFromString("20.00"),
		Currency:         "USD",
	}}
	body := `{"orderId":"` + orderID.String() + `","amount":"20.00","currency":"usd"}`

	req := httptest.NewRequest(http.MethodPost, "/api/payments/initiate", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "k1")
	resp := httptest.NewRecorder()
	Initiate(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "k1", svc.input.IdempotencyKey)
	require.Equal(t, orderID, svc.input.OrderID)
	require.True(t, svc.input.Amount.Equal(decimal.RequireFromString("20")))

	var envelope struct {
		Data internalpayments.PaymentResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, "pi_123", envelope.Data.ProviderIntentID)
}

func TestInitiateRejectsBadCurrency(t *testing.T) {
	body := `{"orderId":"` + uuid.NewString() + `","amount":"20.00","currency":"dollars"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments/initiate", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "k1")
	resp := httptest.NewRecorder()
	Initiate(&stubPayments{}, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestVerifyReturnsBoolean(t *testing.T) {
	orderID := uuid.New()
	svc := &stubPayments{captured: true}

	r := chi.NewRouter()
	r.Post("/api/payments/verify/{orderId}", Verify(svc, nil))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/payments/verify/"+orderID.String(), nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, orderID, svc.verified)
	require.JSONEq(t, `{"data":true}`, resp.Body.String())
}

func TestVerifyMapsNotFound(t *testing.T) {
	svc := &stubPayments{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}

	r := chi.NewRouter()
	r.Post("/api/payments/verify/{orderId}", Verify(svc, nil))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/payments/verify/"+uuid.NewString(), nil))

	require.Equal(t, http.StatusNotFound, resp.Code)
}
