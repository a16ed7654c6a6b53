package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type stubOrders struct {
	order *models.Order
	list  []models.Order
	addrs []string
	err   error

	getCalls        int
	getForUserCalls int
	statusRaw       string
	actor           *outbox.ActorRef
}

func (s *stubOrders) Create(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (s *stubOrders) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	s.getCalls++
	return s.order, s.err
}

func (s *stubOrders) GetForUser(ctx context.Context, userID string, id uuid.UUID) (*models.Order, error) {
	s.getForUserCalls++
	return s.order, s.err
}

func (s *stubOrders) List(ctx context.Context, userID string) ([]models.Order, error) {
	return s.list, s.err
}

func (s *stubOrders) SavedAddresses(ctx context.Context, userID string) ([]string, error) {
	return s.addrs, s.err
}

func (s *stubOrders) UpdateStatus(ctx context.Context, id uuid.UUID, status string, actor *outbox.ActorRef) (*models.Order, error) {
	s.statusRaw = status
	s.actor = actor
	return s.order, s.err
}

func (s *stubOrders) ConfirmPayment(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func as(req *http.Request, userID string, role enums.UserRole) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID)
	ctx = middleware.WithRole(ctx, role.String())
	return req.WithContext(ctx)
}

func withID(req *http.Request, id string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-ABCDEF12",
		UserID:      "user-1",
		Status:      enums.OrderStatusPending,
	}
}

func TestListReturnsDTOs(t *testing.T) {
	svc := &stubOrders{list: []models.Order{*sampleOrder()}}

	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, as(httptest.NewRequest(http.MethodGet, "/api/orders", nil), "user-1", enums.UserRoleCustomer))

	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data []internalorders.OrderDTO `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Len(t, envelope.Data, 1)
	require.Equal(t, "ORD-ABCDEF12", envelope.Data[0].OrderNumber)
}

func TestSavedAddresses(t *testing.T) {
	svc := &stubOrders{addrs: []string{"1 Main St", "2 Side Rd"}}

	resp := httptest.NewRecorder()
	SavedAddresses(svc, nil).ServeHTTP(resp, as(httptest.NewRequest(http.MethodGet, "/api/orders/saved-addresses", nil), "user-1", enums.UserRoleCustomer))

	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, []string{"1 Main St", "2 Side Rd"}, envelope.Data)
}

func TestDetailScopesCustomersToOwnOrders(t *testing.T) {
	order := sampleOrder()
	svc := &stubOrders{order: order}

	req := withID(as(httptest.NewRequest(http.MethodGet, "/api/orders/"+order.ID.String(), nil), "user-1", enums.UserRoleCustomer), order.ID.String())
	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 1, svc.getForUserCalls)
	require.Zero(t, svc.getCalls)
}

func TestDetailAdminReadsAnyOrder(t *testing.T) {
	order := sampleOrder()
	svc := &stubOrders{order: order}

	req := withID(as(httptest.NewRequest(http.MethodGet, "/api/orders/"+order.ID.String(), nil), "admin-1", enums.UserRoleAdmin), order.ID.String())
	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 1, svc.getCalls)
}

func TestDetailRejectsBadID(t *testing.T) {
	req := withID(as(httptest.NewRequest(http.MethodGet, "/api/orders/nope", nil), "user-1", enums.UserRoleCustomer), "nope")
	resp := httptest.NewRecorder()
	Detail(&stubOrders{}, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUpdateStatusPassesActor(t *testing.T) {
	order := sampleOrder()
	order.Status = enums.OrderStatusShipped
	svc := &stubOrders{order: order}

	req := withID(as(httptest.NewRequest(http.MethodPatch, "/api/orders/"+order.ID.String()+"/status?status=shipped", nil), "admin-1", enums.UserRoleAdmin), order.ID.String())
	resp := httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "shipped", svc.statusRaw)
	require.Equal(t, &outbox.ActorRef{UserID: "admin-1", Role: "ADMIN"}, svc.actor)
}

func TestUpdateStatusIllegalTransitionIs422(t *testing.T) {
	order := sampleOrder()
	svc := &stubOrders{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed")}

	req := withID(as(httptest.NewRequest(http.MethodPatch, "/api/orders/x/status?status=PENDING", nil), "admin-1", enums.UserRoleAdmin), order.ID.String())
	resp := httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestUpdateStatusRequiresStatus(t *testing.T) {
	order := sampleOrder()
	req := withID(as(httptest.NewRequest(http.MethodPatch, "/api/orders/x/status", nil), "admin-1", enums.UserRoleAdmin), order.ID.String())
	resp := httptest.NewRecorder()
	UpdateStatus(&stubOrders{}, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}
