// End-to-end router tests: real SQLite, real JWT, fake LLM upstream.
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/mkersic/relay/internal/infra/config"
	"github.com/mkersic/relay/internal/infra/sqlite"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret-key-32-chars-min!!!") //nolint:errcheck
	os.Exit(m.Run())
}

// newTestRouter builds the full router over in-memory SQLite with every
// provider base URL pointed at the fake upstream.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "routed reply"}, "finish_reason": "stop"},
			},
		})
	}))
	t.Cleanup(upstream.Close)

	db, err := sqlite.NewDB(":memory:")
	if err != nil {
		t.Fatalf("sqlite.NewDB error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp error = %v", err)
	}

	cfg := config.Defaults()
	cfg.KeyEncryptionSecret = "router-test-secret"
	cfg.OpenAIBaseURL = upstream.URL + "/v1"
	cfg.GroqBaseURL = upstream.URL + "/v1"
	cfg.AnthropicBaseURL = upstream.URL
	cfg.GoogleBaseURL = upstream.URL

	router, err := NewRouter(db, cfg)
	if err != nil {
		t.Fatalf("NewRouter error = %v", err)
	}
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body error = %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// registerUser registers through the real endpoint and returns the token.
func registerUser(t *testing.T, router http.Handler, email string) string {
	t.Helper()
	rr := doJSON(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"email": email, "password": "SecurePass123!", "displayName": "Router Test",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d; want %d. body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode register response error = %v", err)
	}
	return resp.Token
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	rr := doJSON(t, router, http.MethodGet, "/health", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d; want %d", rr.Code, http.StatusOK)
	}
}

func TestRouter_PublicEndpointsNeedNoAuth(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/api/providers", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("providers status = %d; want %d", rr.Code, http.StatusOK)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/chat", "", map[string]any{
		"messages":   []map[string]string{{"role": "user", "content": "hi"}},
		"providerId": "gpt-4",
		"apiKeys":    map[string]string{"OPENAI_API_KEY": "sk-test"},
	})
	if rr.Code != http.StatusOK {
		t.Errorf("chat status = %d; want %d. body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestRouter_ProtectedEndpointsRejectMissingToken(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	for _, path := range []string{"/api/v1/conversations", "/api/v1/keys", "/api/v1/tools"} {
		rr := doJSON(t, router, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d; want %d", path, rr.Code, http.StatusUnauthorized)
		}
	}
}

func TestRouter_FullConversationFlow(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	token := registerUser(t, router, "flow@example.com")

	// Store a provider key, then start a conversation that relies on it.
	rr := doJSON(t, router, http.MethodPut, "/api/v1/keys/OPENAI_API_KEY", token, map[string]string{"value": "sk-stored"})
	if rr.Code != http.StatusOK {
		t.Fatalf("store key status = %d; want %d. body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	rr = doJSON(t, router, http.MethodPost, "/api/v1/conversations", token, map[string]string{"providerId": "gpt-4"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create conversation status = %d; want %d. body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	var conv struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&conv); err != nil {
		t.Fatalf("decode conversation error = %v", err)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/chat", token, map[string]string{
		"content": "hello from the router test",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("send message status = %d; want %d. body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var exchange struct {
		AssistantMessage struct {
			Content string `json:"content"`
		} `json:"assistantMessage"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&exchange); err != nil {
		t.Fatalf("decode exchange error = %v", err)
	}
	if exchange.AssistantMessage.Content != "routed reply" {
		t.Errorf("assistant content = %q; want routed reply", exchange.AssistantMessage.Content)
	}

	rr = doJSON(t, router, http.MethodDelete, "/api/v1/conversations/"+conv.ID, token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete conversation status = %d; want %d", rr.Code, http.StatusNoContent)
	}
}

func TestRouter_ToolsEndToEnd(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	token := registerUser(t, router, "tools@example.com")

	rr := doJSON(t, router, http.MethodGet, "/api/v1/tools", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list tools status = %d; want %d", rr.Code, http.StatusOK)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/v1/tools/ui-snippet/execute", token, map[string]string{
		"description": "a login form with two fields",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("execute tool status = %d; want %d. body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var result struct {
		Simulated bool   `json:"simulated"`
		HTML      string `json:"html"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decode tool result error = %v", err)
	}
	if !result.Simulated || result.HTML == "" {
		t.Errorf("tool result = %+v; want simulated html snippet", result)
	}
}
