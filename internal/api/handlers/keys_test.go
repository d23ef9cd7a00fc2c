package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mkersic/relay/internal/api/ctxkeys"
	domainaccount "github.com/mkersic/relay/internal/domain/account"
)

// contextWithUserID adds user_id to the request context.
// Uses ctxkeys.UserID to match the exact key the middleware injects.
func contextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxkeys.UserID, userID)
}

// withURLParam injects a chi route parameter the way the router would.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func newKeysTestHandler(t *testing.T) *KeysHandler {
	t.Helper()
	svc, err := domainaccount.NewKeyService(mustOpenDB(t), "handler-test-secret")
	if err != nil {
		t.Fatalf("NewKeyService error = %v", err)
	}
	return NewKeysHandler(svc)
}

func storeKey(t *testing.T, h *KeysHandler, userID, name, value string) {
	t.Helper()
	req := postRequest(t, "/api/v1/keys/"+name, StoreKeyRequest{Value: value})
	req = req.WithContext(contextWithUserID(req.Context(), userID))
	req = withURLParam(req, "name", name)

	rr := httptest.NewRecorder()
	h.Store(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Store status = %d; want %d. body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestKeysHandler_StoreAndList(t *testing.T) {
	t.Parallel()

	h := newKeysTestHandler(t)
	storeKey(t, h, "user-1", "OPENAI_API_KEY", "sk-secret")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil)
	req = req.WithContext(contextWithUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()
	h.List(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("List status = %d; want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	var resp ListKeysResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	if len(resp.Keys) != 1 || resp.Keys[0].Name != "OPENAI_API_KEY" {
		t.Fatalf("Keys = %+v; want single OPENAI_API_KEY entry", resp.Keys)
	}
	// Values must never appear anywhere in the listing.
	if strings.Contains(body, "sk-secret") {
		t.Errorf("List response leaked the stored value: %s", body)
	}
}

func TestKeysHandler_Store_Validation(t *testing.T) {
	t.Parallel()

	h := newKeysTestHandler(t)

	// Blank value
	req := postRequest(t, "/api/v1/keys/OPENAI_API_KEY", StoreKeyRequest{Value: "  "})
	req = req.WithContext(contextWithUserID(req.Context(), "user-1"))
	req = withURLParam(req, "name", "OPENAI_API_KEY")
	rr := httptest.NewRecorder()
	h.Store(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("blank value status = %d; want %d", rr.Code, http.StatusBadRequest)
	}

	// Blank name
	req = postRequest(t, "/api/v1/keys/", StoreKeyRequest{Value: "sk-x"})
	req = req.WithContext(contextWithUserID(req.Context(), "user-1"))
	req = withURLParam(req, "name", "")
	rr = httptest.NewRecorder()
	h.Store(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("blank name status = %d; want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestKeysHandler_Delete(t *testing.T) {
	t.Parallel()

	h := newKeysTestHandler(t)
	storeKey(t, h, "user-1", "GROQ_API_KEY", "gsk-secret")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/keys/GROQ_API_KEY", nil)
	req = req.WithContext(contextWithUserID(req.Context(), "user-1"))
	req = withURLParam(req, "name", "GROQ_API_KEY")
	rr := httptest.NewRecorder()
	h.Delete(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("Delete status = %d; want %d", rr.Code, http.StatusNoContent)
	}

	// Deleting again is a 404.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/keys/GROQ_API_KEY", nil)
	req = req.WithContext(contextWithUserID(req.Context(), "user-1"))
	req = withURLParam(req, "name", "GROQ_API_KEY")
	rr = httptest.NewRecorder()
	h.Delete(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("Delete missing status = %d; want %d", rr.Code, http.StatusNotFound)
	}
}

func TestKeysHandler_MissingUserContext_Returns401(t *testing.T) {
	t.Parallel()

	h := newKeysTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("List without user status = %d; want %d", rr.Code, http.StatusUnauthorized)
	}
}
