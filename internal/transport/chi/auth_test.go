package chi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authRequest(t *testing.T, mw func(http.Handler) http.Handler, path, header string) *httptest.ResponseRecorder {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	return rec
}

func TestBearerAuth_ValidToken(t *testing.T) {
	mw := BearerAuthMiddleware([]string{"secret"})

	rec := authRequest(t, mw, "/v1/search", "Bearer secret")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestBearerAuth_MissingHeader(t *testing.T) {
	mw := BearerAuthMiddleware([]string{"secret"})

	rec := authRequest(t, mw, "/v1/search", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestBearerAuth_WrongScheme(t *testing.T) {
	mw := BearerAuthMiddleware([]string{"secret"})

	rec := authRequest(t, mw, "/v1/search", "Basic secret")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestBearerAuth_InvalidToken(t *testing.T) {
	mw := BearerAuthMiddleware([]string{"secret"})

	rec := authRequest(t, mw, "/v1/search", "Bearer wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestBearerAuth_ExemptPaths(t *testing.T) {
	mw := BearerAuthMiddleware([]string{"secret"})

	for _, path := range []string{"/health", "/metrics"} {
		rec := authRequest(t, mw, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("path %s: expected exemption, got %d", path, rec.Code)
		}
	}
}

func TestBearerAuth_DisabledWithoutKeys(t *testing.T) {
	mw := BearerAuthMiddleware(nil)

	rec := authRequest(t, mw, "/v1/search", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected pass-through with no keys, got %d", rec.Code)
	}
}
