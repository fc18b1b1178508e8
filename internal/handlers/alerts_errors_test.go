package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/safeguard/internal/kvstore"
	"github.com/charlesng35/safeguard/internal/services"
)

var errBackendDown = errors.New("backend down")

// outageStore fails every data operation while down is set.
type outageStore struct {
	kvstore.Store
	down atomic.Bool
}

func (s *outageStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.down.Load() {
		return nil, false, errBackendDown
	}
	return s.Store.Get(ctx, key)
}

func (s *outageStore) Set(ctx context.Context, key string, value []byte) error {
	if s.down.Load() {
		return errBackendDown
	}
	return s.Store.Set(ctx, key, value)
}

func (s *outageStore) Delete(ctx context.Context, keys ...string) error {
	if s.down.Load() {
		return errBackendDown
	}
	return s.Store.Delete(ctx, keys...)
}

func (s *outageStore) ScanPrefix(ctx context.Context, prefix string) ([]kvstore.Entry, error) {
	if s.down.Load() {
		return nil, errBackendDown
	}
	return s.Store.ScanPrefix(ctx, prefix)
}

func TestAlertHandlerStorageFailures(t *testing.T) {
	store := &outageStore{Store: kvstore.NewMemoryStore()}
	env := newAlertTestEnvWithStore(t, store)
	require.NoError(t, env.links.Link(context.Background(), "user:555-0100", "user:555-0199"))
	id := env.createAlert(t, "user:555-0100")["id"].(string)

	store.down.Store(true)

	tests := []struct {
		name    string
		method  string
		path    string
		body    any
		message string
	}{
		{
			name:    "create",
			method:  http.MethodPost,
			path:    "/api/alerts/create",
			body:    gin.H{"elderlyUserId": "user:555-0100", "elderlyName": "Mary", "elderlyPhone": "555-0100"},
			message: "Failed to create emergency alert",
		},
		{name: "list", method: http.MethodGet, path: "/api/alerts/family/user:555-0199", message: "Failed to fetch alerts"},
		{name: "list active", method: http.MethodGet, path: "/api/alerts/family/user:555-0199/active", message: "Failed to fetch active alerts"},
		{name: "unread count", method: http.MethodGet, path: "/api/alerts/family/user:555-0199/unread-count", message: "Failed to fetch unread count"},
		{name: "get", method: http.MethodGet, path: "/api/alerts/" + id, message: "Failed to fetch alert"},
		{
			name:    "update status",
			method:  http.MethodPut,
			path:    "/api/alerts/" + id + "/status",
			body:    gin.H{"status": "resolved"},
			message: "Failed to update alert status",
		},
		{
			name:    "mark read",
			method:  http.MethodPost,
			path:    "/api/alerts/" + id + "/read",
			body:    gin.H{"familyMemberId": "user:555-0199"},
			message: "Failed to mark alert as read",
		},
		{
			name:    "link family",
			method:  http.MethodPost,
			path:    "/api/alerts/link-family",
			body:    gin.H{"elderlyPhone": "555-0100", "familyPhone": "555-0142"},
			message: "Failed to link family member",
		},
		{name: "list family members", method: http.MethodGet, path: "/api/alerts/links/user:555-0100", message: "Failed to fetch family members"},
		{name: "cleanup", method: http.MethodPost, path: "/api/alerts/cleanup", message: "Failed to clean old alerts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, payload := env.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
			require.Equal(t, false, payload["success"])
			require.Equal(t, tt.message, payload["error"])
			require.Equal(t, "INTERNAL_ERROR", payload["code"])

			details, ok := payload["details"].(string)
			require.True(t, ok, rec.Body.String())
			require.Contains(t, details, errBackendDown.Error())
		})
	}
}

func TestAlertHandlerValidationWinsOverStorageFailure(t *testing.T) {
	store := &outageStore{Store: kvstore.NewMemoryStore()}
	env := newAlertTestEnvWithStore(t, store)
	store.down.Store(true)

	rec, payload := env.do(t, http.MethodPut, "/api/alerts/any/status", gin.H{"status": "archived"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, services.ErrInvalidStatus.Message, payload["error"])
}

func TestAlertHandlerLinkFamilyRejectsOversizedPhone(t *testing.T) {
	env := newAlertTestEnv(t)

	rec, payload := env.do(t, http.MethodPost, "/api/alerts/link-family", gin.H{
		"elderlyPhone": strings.Repeat("5", services.MaxIDLength),
		"familyPhone":  "555-0142",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.Equal(t, services.ErrIDTooLong.Message, payload["error"])
}
