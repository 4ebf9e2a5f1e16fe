package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/supportdesk/internal/app"
	"github.com/capitalize-ai/supportdesk/internal/config"
	"github.com/capitalize-ai/supportdesk/internal/middleware"
	"github.com/capitalize-ai/supportdesk/pkg/logger"
)

// sharedApp keeps one in-memory backend across command runs.
func sharedApp(t *testing.T) {
	t.Helper()

	var shared *app.App
	orig := newApp
	newApp = func(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app.App, error) {
		if shared == nil {
			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return nil, err
			}
			shared = a
		}
		return shared, nil
	}
	t.Cleanup(func() { newApp = orig })
}

func kbctl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := run(context.Background(), append([]string{"kbctl"}, args...), &buf)
	return buf.String(), err
}

func TestKbctl_IngestListSearchDelete(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("EMBEDDING_DIMENSIONS", "64")
	sharedApp(t)

	path := filepath.Join(t.TempDir(), "returns.txt")
	require.NoError(t, os.WriteFile(path, []byte("Items can be returned within 30 days."), 0o644))

	output, err := kbctl(t, "-w", "demo", "ingest", "text", path)
	require.NoError(t, err)
	assert.Equal(t, "returns: 1 chunks\n", output)

	output, err = kbctl(t, "-w", "demo", "ingest", "faq", "-q", "Do you ship abroad?", "-a", "Yes, worldwide.")
	require.NoError(t, err)
	assert.Equal(t, "Do you ship abroad?: 1 chunks\n", output)

	output, err = kbctl(t, "-w", "demo", "list")
	require.NoError(t, err)
	assert.Contains(t, output, "returns")
	assert.Contains(t, output, "2 sources, 2 chunks")

	output, err = kbctl(t, "-w", "demo", "search", "Items", "can", "be", "returned", "within", "30", "days.")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.True(t, strings.HasPrefix(lines[0], "confidence "), lines[0])
	assert.Equal(t, "1.000  text/returns", lines[1])

	output, err = kbctl(t, "-w", "demo", "delete", "returns")
	require.NoError(t, err)
	assert.Equal(t, "deleted 1 chunks\n", output)
}

func TestKbctl_RequiresWorkspace(t *testing.T) {
	t.Setenv("SUPPORTDESK_WORKSPACE", "")

	_, err := kbctl(t, "list")
	assert.ErrorContains(t, err, "workspace is required")
}

func TestKbctl_Token(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	output, err := kbctl(t, "-w", "t1", "token", "--user", "ops")
	require.NoError(t, err)
	token := strings.TrimSpace(output)

	h := middleware.Auth("cli-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(middleware.GetTenantID(r.Context()) + "|" + middleware.GetUserID(r.Context())))
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t1|ops", rec.Body.String())
}
