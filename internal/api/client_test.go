package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deliverly/adminsync/internal/domain"
)

func TestClientAttachesCredential(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(domain.Page[domain.Order]{Items: []domain.Order{{ID: "O1"}}, Total: 1})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, func() (string, error) { return "tok-123", nil }, zap.NewNop())
	page, err := c.ListOrders(context.Background(), domain.OrderFilters{Status: "pending", Page: 1, Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "O1", page.Items[0].ID)
}

func TestClientUnauthorizedFiresSessionHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	var hookCalls atomic.Int64
	c := NewClient(srv.URL, func() (string, error) { return "stale", nil }, zap.NewNop(),
		WithUnauthorizedHook(func() { hookCalls.Add(1) }))

	_, err := c.GetDashboardStats(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int64(1), hookCalls.Load())
}

func TestClientServerErrorIsNotUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var hookCalls atomic.Int64
	c := NewClient(srv.URL, func() (string, error) { return "ok", nil }, zap.NewNop(),
		WithUnauthorizedHook(func() { hookCalls.Add(1) }))

	_, err := c.GetOrder(context.Background(), "O1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, int64(0), hookCalls.Load())
}

func TestClientWritePostsJSON(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, func() (string, error) { return "tok", nil }, zap.NewNop())
	require.NoError(t, c.UpdateOrderStatus(context.Background(), "O42", "delivered"))

	assert.Equal(t, "/admin/orders/O42/status", gotPath)
	assert.Equal(t, map[string]string{"status": "delivered"}, gotBody)
}
