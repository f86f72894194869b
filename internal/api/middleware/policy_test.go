package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"todo_service/internal/common"
	"todo_service/internal/domain/model"
	"todo_service/internal/platform/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	employee = &model.Principal{ID: 2, Email: "bob@x", Roles: []model.Role{model.RoleEmployee}}
	admin    = &model.Principal{ID: 1, Email: "alice@x", Roles: []model.Role{model.RoleAdmin, model.RoleEmployee}}
)

func TestPolicy_Decide(t *testing.T) {
	p := NewPolicy(DefaultRules(), quietLogger(), nil)

	tests := []struct {
		name      string
		method    string
		path      string
		principal *model.Principal
		want      error
	}{
		{"register is public", http.MethodPost, "/api/auth/register", nil, nil},
		{"login is public", http.MethodPost, "/api/auth/login", nil, nil},
		{"health is public", http.MethodGet, "/health", nil, nil},
		{"metrics is public", http.MethodGet, "/metrics", nil, nil},
		{"GET on login is not public", http.MethodGet, "/api/auth/login", nil, common.ErrUnauthorized},
		{"todos need a principal", http.MethodGet, "/api/todos", nil, common.ErrUnauthorized},
		{"todos by id need a principal", http.MethodDelete, "/api/todos/7", nil, common.ErrUnauthorized},
		{"employee lists todos", http.MethodGet, "/api/todos", employee, nil},
		{"employee toggles todo", http.MethodPut, "/api/todos/7", employee, nil},
		{"profile needs a principal", http.MethodGet, "/api/users/info", nil, common.ErrUnauthorized},
		{"employee reads profile", http.MethodGet, "/api/users/info", employee, nil},
		{"employee deletes self", http.MethodDelete, "/api/users", employee, nil},
		{"admin list anonymous", http.MethodGet, "/api/admin", nil, common.ErrUnauthorized},
		{"admin list employee", http.MethodGet, "/api/admin", employee, common.ErrForbidden},
		{"admin promote employee", http.MethodPut, "/api/admin/3/role", employee, common.ErrForbidden},
		{"admin list admin", http.MethodGet, "/api/admin", admin, nil},
		{"admin delete admin", http.MethodDelete, "/api/admin/3", admin, nil},
		{"trailing slash", http.MethodGet, "/api/admin/", employee, common.ErrForbidden},
		{"unknown api path", http.MethodGet, "/api/other", employee, nil},
		{"unmatched anonymous", http.MethodGet, "/favicon.ico", nil, common.ErrUnauthorized},
		{"unmatched authenticated", http.MethodGet, "/favicon.ico", admin, common.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Decide(tt.method, tt.path, tt.principal)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPolicy_FirstMatchWins(t *testing.T) {
	p := NewPolicy([]Rule{
		{Method: "*", Pattern: "/api/todos/{id}", Access: Public},
		{Method: "*", Pattern: "/api/**", Access: RequireRole(model.RoleAdmin)},
	}, quietLogger(), nil)

	assert.NoError(t, p.Decide(http.MethodGet, "/api/todos/1", nil))
	assert.ErrorIs(t, p.Decide(http.MethodGet, "/api/todos", employee), common.ErrForbidden)
	assert.ErrorIs(t, p.Decide(http.MethodGet, "/api/todos/1/extra", employee), common.ErrForbidden)
}

func TestPolicy_RulesIsACopy(t *testing.T) {
	p := NewPolicy(DefaultRules(), quietLogger(), nil)
	rules := p.Rules()
	rules[0].Access = RequireRole(model.RoleAdmin)

	assert.NoError(t, p.Decide(http.MethodPost, "/api/auth/register", nil))
	assert.Equal(t, "public", p.Rules()[0].Access.String())
}

func TestPolicy_Gate(t *testing.T) {
	metrics := observability.NewMetrics()
	p := NewPolicy(DefaultRules(), quietLogger(), metrics)
	reached := false
	h := p.Gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("anonymous gets minimal 401", func(t *testing.T) {
		reached = false
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/todos", nil))

		assert.False(t, reached)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
		assert.JSONEq(t, `{"error":"Unauthorized access"}`, rec.Body.String())
	})

	t.Run("employee on admin route gets 403", func(t *testing.T) {
		reached = false
		req := httptest.NewRequest(http.MethodGet, "/api/admin", nil)
		req = req.WithContext(WithPrincipal(req.Context(), employee))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.False(t, reached)
		require.Equal(t, http.StatusForbidden, rec.Code)
		var body common.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, http.StatusForbidden, body.Status)
		assert.Equal(t, "access denied", body.Message)
		assert.NotZero(t, body.Timestamp)
	})

	t.Run("admin passes", func(t *testing.T) {
		reached = false
		req := httptest.NewRequest(http.MethodGet, "/api/admin", nil)
		req = req.WithContext(WithPrincipal(req.Context(), admin))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.True(t, reached)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AccessDecisionsTotal.WithLabelValues("unauthenticated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AccessDecisionsTotal.WithLabelValues("forbidden")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AccessDecisionsTotal.WithLabelValues("allowed")))
}

func TestMatchSegments(t *testing.T) {
	assert.True(t, matchSegments(splitPath("/api/admin/**"), splitPath("/api/admin")))
	assert.True(t, matchSegments(splitPath("/api/admin/**"), splitPath("/api/admin/1/role")))
	assert.True(t, matchSegments(splitPath("/api/admin/{userId}/role"), splitPath("/api/admin/9/role")))
	assert.False(t, matchSegments(splitPath("/api/admin/{userId}/role"), splitPath("/api/admin/9")))
	assert.False(t, matchSegments(splitPath("/api/admin/**"), splitPath("/api/administrators")))
	assert.False(t, matchSegments(splitPath("/health"), splitPath("/health/deep")))
}
