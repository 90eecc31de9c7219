package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appesso/taskpay/internal/escrow"
	"github.com/appesso/taskpay/internal/store"
	"github.com/appesso/taskpay/internal/task"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	engine := escrow.New(store.NewMemory(), nil, escrow.Config{})
	for _, id := range []string{"alice", "bob"} {
		_, err := engine.OpenAccount(context.Background(), id)
		require.NoError(t, err)
	}
	return New(engine)
}

// call builds an authenticated request the way JWTMiddleware would hand it
// to the handler.
func call(t *testing.T, h echo.HandlerFunc, method, path, userID, body string, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", userID)
	names := make([]string, 0, len(params))
	values := make([]string, 0, len(params))
	for k, v := range params {
		names = append(names, k)
		values = append(values, v)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	require.NoError(t, h(c))
	return rec
}

func createdTaskID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var tk task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tk))
	return tk.ID
}

func TestCreateTask(t *testing.T) {
	h := newTestHandler(t)

	rec := call(t, h.CreateTask, http.MethodPost, "/tasks", "alice",
		`{"content":"walk the dog","reward":100}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = call(t, h.CreateTask, http.MethodPost, "/tasks", "alice",
		`{"content":"too rich","reward":99999999}`, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = call(t, h.CreateTask, http.MethodPost, "/tasks", "alice",
		`{"content":"","reward":100}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h.CreateTask, http.MethodPost, "/tasks", "alice",
		`{"content":"free labor","reward":0}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	h := newTestHandler(t)

	rec := call(t, h.CreateTask, http.MethodPost, "/tasks", "alice",
		`{"content":"walk the dog","reward":100}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := createdTaskID(t, rec)

	// Owner cannot claim their own task.
	rec = call(t, h.Accept, http.MethodPost, "/tasks/:id/accept", "alice", "", map[string]string{"id": id})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, h.Accept, http.MethodPost, "/tasks/:id/accept", "bob", "", map[string]string{"id": id})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Double-accept conflicts.
	rec = call(t, h.Accept, http.MethodPost, "/tasks/:id/accept", "bob", "", map[string]string{"id": id})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Confirming with nothing requested conflicts.
	rec = call(t, h.ConfirmCompletion, http.MethodPost, "/tasks/:id/confirm-completion", "alice",
		`{"approved":true}`, map[string]string{"id": id})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, h.RequestCompletion, http.MethodPost, "/tasks/:id/request-completion", "bob", "", map[string]string{"id": id})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, h.ConfirmCompletion, http.MethodPost, "/tasks/:id/confirm-completion", "alice",
		`{"approved":true}`, map[string]string{"id": id})
	assert.Equal(t, http.StatusOK, rec.Code)

	var tk task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tk))
	assert.Equal(t, task.StatusCompleted, tk.Status)

	rec = call(t, h.GetTask, http.MethodGet, "/tasks/:id", "alice", "", map[string]string{"id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWalletEndpoints(t *testing.T) {
	h := newTestHandler(t)

	rec := call(t, h.Balance, http.MethodGet, "/wallet/balance", "alice", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":10000`)

	rec = call(t, h.Transfer, http.MethodPost, "/wallet/transfer", "alice",
		`{"to":"bob","amount":500,"note":"thanks"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, h.Transfer, http.MethodPost, "/wallet/transfer", "alice",
		`{"to":"alice","amount":500}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h.Transfer, http.MethodPost, "/wallet/transfer", "alice",
		`{"to":"bob","amount":-5}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h.Transfer, http.MethodPost, "/wallet/transfer", "alice",
		`{"to":"nobody","amount":10}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, h.Deposit, http.MethodPost, "/wallet/deposit", "alice",
		`{"amount":1000}`, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = call(t, h.Withdraw, http.MethodPost, "/wallet/withdraw", "alice",
		`{"amount":99999999}`, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = call(t, h.Transactions, http.MethodGet, "/wallet/transactions", "alice", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, h.Reconcile, http.MethodGet, "/wallet/reconcile", "alice", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"drift":0`)
}
