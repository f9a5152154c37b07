package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	model "github.com/zhouzirui/persona-echo/backend/internal/model/settings"
	"github.com/zhouzirui/persona-echo/backend/internal/service/ai"
	chatService "github.com/zhouzirui/persona-echo/backend/internal/service/chat"
	"github.com/zhouzirui/persona-echo/backend/internal/service/session"
	settingsService "github.com/zhouzirui/persona-echo/backend/internal/service/settings"
)

type echoBackend struct{}

func (echoBackend) Complete(context.Context, ai.Prompt) (string, error) { return "echo", nil }

func (echoBackend) Stream(_ context.Context, _ ai.Prompt, onDelta func(string) error) (string, error) {
	return "echo", onDelta("echo")
}

func newTestRouter(t *testing.T, staticDir string) http.Handler {
	t.Helper()
	mgr, err := settingsService.NewManager(context.Background(), model.NewMemoryStore(),
		model.Settings{OllamaHost: "http://localhost:11434", LLMModel: "llama3"}, nil)
	if err != nil {
		t.Fatalf("NewManager err: %v", err)
	}
	return NewRouter(Dependencies{
		Chat:           chatService.NewService(session.NewStore(nil), echoBackend{}, chatService.Options{}),
		Settings:       mgr,
		AllowedOrigins: []string{"http://localhost:3000"},
		StaticDir:      staticDir,
	})
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, "")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestRoutesAreMounted(t *testing.T) {
	r := newTestRouter(t, "")
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/settings"},
		{http.MethodGet, "/get_demo_chats"},
	}
	for _, p := range paths {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(p.method, p.path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s %s: expected 200, got %d", p.method, p.path, resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/get_chat_history/missing?persona=x", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.Code)
	}
}

func TestCORSAppliedToRoutes(t *testing.T) {
	r := newTestRouter(t, "")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected CORS header, got %q", got)
	}
}

func TestStaticFrontendServedWhenPresent(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>persona echo</h1>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}

	r := newTestRouter(t, dir)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "persona echo") {
		t.Fatalf("expected index.html, got %d %s", resp.Code, resp.Body.String())
	}

	missing := newTestRouter(t, filepath.Join(dir, "nope"))
	resp = httptest.NewRecorder()
	missing.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without static dir, got %d", resp.Code)
	}
}
