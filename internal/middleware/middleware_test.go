package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/supportdesk/pkg/logger"
)

const testSecret = "test-secret"

func echoTenant(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(GetTenantID(r.Context()) + "|" + GetUserID(r.Context())))
}

func TestAuth(t *testing.T) {
	h := Auth(testSecret)(http.HandlerFunc(echoTenant))

	valid, err := IssueToken(testSecret, "u1", "t1", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(testSecret, "u1", "t1", -time.Hour)
	require.NoError(t, err)
	wrongKey, err := IssueToken("other", "u1", "t1", time.Hour)
	require.NoError(t, err)
	noWorkspace, err := IssueToken(testSecret, "u1", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"no workspace", "Bearer " + noWorkspace, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "t1|u1", rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestAuth_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{WorkspaceID: "t1"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	Auth(testSecret)(http.HandlerFunc(echoTenant)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireScope(t *testing.T) {
	token, err := IssueToken(testSecret, "u1", "t1", time.Hour, "kb:write")
	require.NoError(t, err)

	for scope, want := range map[string]int{"kb:write": http.StatusOK, "admin": http.StatusForbidden} {
		h := Auth(testSecret)(RequireScope(scope)(http.HandlerFunc(echoTenant)))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, scope)
	}
}

func TestLogging_SetsCorrelationID(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Logging(logger.NewNop()))
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetCorrelationID(r.Context())))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
	assert.Equal(t, rec.Header().Get("X-Correlation-ID"), rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Correlation-ID", "abc")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Body.String())
}

func TestWorkspaceKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/widget/config?workspaceKey=pk_q", nil)
	assert.Equal(t, "pk_q", WorkspaceKey(req))

	body := `{"workspaceKey":"pk_body","message":"hi"}`
	req = httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, "pk_body", WorkspaceKey(req))

	restored, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(restored))

	req = httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	assert.Empty(t, WorkspaceKey(req))
}

func TestWidgetRateLimit(t *testing.T) {
	h := WidgetRateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/widget/config?workspaceKey="+key, nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("pk_a"))
	assert.Equal(t, http.StatusOK, call("pk_a"))
	assert.Equal(t, http.StatusTooManyRequests, call("pk_a"))
	assert.Equal(t, http.StatusOK, call("pk_b"), "limits are per workspace key")
}

func TestValidation(t *testing.T) {
	assert.NoError(t, ValidateMessageContent("hello"))
	assert.Error(t, ValidateMessageContent(""))
	assert.Error(t, ValidateMessageContent(strings.Repeat("a", MaxMessageLength+1)))
	assert.Error(t, ValidateMessageContent("\xff"))

	assert.NoError(t, ValidateConversationID("0190f3a6-8d2e-7c4b-9a51-2b7f5e3c1d00"))
	assert.Error(t, ValidateConversationID("nope"))

	assert.NoError(t, ValidateTitle("Returns"))
	assert.Error(t, ValidateTitle(strings.Repeat("t", MaxTitleLength+1)))

	assert.NoError(t, ValidateDocument("text"))
	assert.Error(t, ValidateDocument("\xff"))
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
