package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/ordering-assistant/internal/middleware"
	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/internal/session"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
)

const (
	testSecret = "test-secret"
	testShop   = "shop-1"
)

type mockAssistant struct {
	mock.Mock
}

func (m *mockAssistant) Handle(ctx context.Context, customerID, message string) (string, error) {
	args := m.Called(ctx, customerID, message)
	return args.String(0), args.Error(1)
}

func (m *mockAssistant) AddImageItems(ctx context.Context, customerID string, lines []model.ImageLine) ([]session.ImageLineResult, error) {
	args := m.Called(ctx, customerID, lines)
	res, _ := args.Get(0).([]session.ImageLineResult)
	return res, args.Error(1)
}

func (m *mockAssistant) ListActive(ctx context.Context) []session.Info {
	args := m.Called(ctx)
	infos, _ := args.Get(0).([]session.Info)
	return infos
}

func (m *mockAssistant) End(ctx context.Context, customerID string) error {
	return m.Called(ctx, customerID).Error(0)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestRouter(a Assistant, storeErr error) http.Handler {
	return NewRouter(RouterConfig{
		Assistant:         a,
		Health:            NewHealthHandler(pinger{err: storeErr}, nil),
		Logger:            logger.NewNop(),
		ShopID:            testShop,
		JWTSecret:         testSecret,
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
	})
}

func token(t *testing.T, shopID string, scopes ...string) string {
	t.Helper()
	claims := middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "gateway",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		ShopID: shopID,
		Scopes: scopes,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func do(t *testing.T, h http.Handler, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSendMessage(t *testing.T) {
	a := &mockAssistant{}
	a.On("Handle", mock.Anything, "+919800000001", "add 2 milk").Return("Added 2 milk.", nil)
	h := newTestRouter(a, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/messages", token(t, testShop, middleware.ScopeMessages),
		model.SendMessageRequest{CustomerID: "+919800000001", Message: "add 2 milk"})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.SendMessageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Added 2 milk.", resp.Reply)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
	a.AssertExpectations(t)
}

func TestSendMessage_Busy(t *testing.T) {
	a := &mockAssistant{}
	a.On("Handle", mock.Anything, "+919800000001", "hi").Return("", model.ErrBusy)
	h := newTestRouter(a, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/messages", token(t, testShop, middleware.ScopeMessages),
		model.SendMessageRequest{CustomerID: "+919800000001", Message: "hi"})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	var resp model.ErrorEvent
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "busy", resp.Code)
}

func TestSendMessage_Rejected(t *testing.T) {
	a := &mockAssistant{}
	h := newTestRouter(a, nil)
	tok := token(t, testShop, middleware.ScopeMessages)

	tests := []struct {
		name   string
		tok    string
		body   any
		status int
	}{
		{"no token", "", model.SendMessageRequest{CustomerID: "1", Message: "hi"}, http.StatusUnauthorized},
		{"other shop", token(t, "shop-2", middleware.ScopeMessages), model.SendMessageRequest{CustomerID: "1", Message: "hi"}, http.StatusForbidden},
		{"missing scope", token(t, testShop), model.SendMessageRequest{CustomerID: "1", Message: "hi"}, http.StatusForbidden},
		{"missing customer", tok, model.SendMessageRequest{Message: "hi"}, http.StatusBadRequest},
		{"bad customer", tok, model.SendMessageRequest{CustomerID: "1 OR 1=1", Message: "hi"}, http.StatusBadRequest},
		{"unknown field", tok, map[string]string{"customer_id": "1", "text": "hi"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/messages", tt.tok, tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	a.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything, mock.Anything)
}

func TestImageOrder(t *testing.T) {
	a := &mockAssistant{}
	lines := []model.ImageLine{{Item: "tomatos", Quantity: 4}}
	a.On("AddImageItems", mock.Anything, "+919800000001", lines).Return([]session.ImageLineResult{
		{Query: "tomatos", Requested: 4, Matched: "Tomatoes", Score: 93, Fulfilled: 4},
	}, nil)
	h := newTestRouter(a, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/image-orders", token(t, testShop, middleware.ScopeMessages),
		model.ImageOrderRequest{CustomerID: "+919800000001", Items: lines})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ImageOrderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Tomatoes", resp.Results[0].Matched)
}

func TestImageOrder_Empty(t *testing.T) {
	h := newTestRouter(&mockAssistant{}, nil)
	rec := do(t, h, http.MethodPost, "/api/v1/image-orders", token(t, testShop, middleware.ScopeMessages),
		model.ImageOrderRequest{CustomerID: "+919800000001"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessions(t *testing.T) {
	a := &mockAssistant{}
	a.On("ListActive", mock.Anything).Return([]session.Info{{CustomerID: "+919800000001", Stage: session.StageActiveOrdering}})
	a.On("End", mock.Anything, "+919800000001").Return(nil)
	a.On("End", mock.Anything, "+919800000002").Return(model.NotFoundf("session"))
	h := newTestRouter(a, nil)
	tok := token(t, testShop, middleware.ScopeSessions)

	rec := do(t, h, http.MethodGet, "/api/v1/sessions", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListSessionsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 1, list.Total)

	rec = do(t, h, http.MethodDelete, "/api/v1/sessions/+919800000001", tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/sessions/+919800000002", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/sessions", token(t, testShop, middleware.ScopeMessages), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReady(t *testing.T) {
	rec := do(t, newTestRouter(&mockAssistant{}, nil), http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, newTestRouter(&mockAssistant{}, errors.New("down")), http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{model.Validationf("bad"), http.StatusBadRequest},
		{model.NotFoundf("x"), http.StatusNotFound},
		{model.ErrAlreadyCommitted, http.StatusConflict},
		{model.Backend("list inventory", errors.New("timeout")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeServiceError(rec, tt.err)
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
	}
}
