package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	called := false
	mw := CORS([]string{"https://corretora.com.br/"})
	req := httptest.NewRequest(http.MethodPost, "/api/leads", nil)
	req.Header.Set("Origin", "https://corretora.com.br")
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://corretora.com.br" {
		t.Fatalf("expected allow origin header, got %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") != corsAllowedMethods {
		t.Fatalf("expected allow methods header")
	}
}

func TestCORSWildcardSubdomain(t *testing.T) {
	mw := CORS([]string{"https://*.corretora.com.br"})
	cases := map[string]bool{
		"https://amil.corretora.com.br": true,
		"https://corretora.com.br":      false,
		"http://amil.corretora.com.br":  false,
		"https://evilcorretora.com.br":  false,
		"https://a.b.corretora.com.br":  true,
		"https://corretora.com.br.evil": false,
	}
	for origin, want := range cases {
		called := false
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		mw(okHandler(&called)).ServeHTTP(rec, req)

		got := rec.Header().Get("Access-Control-Allow-Origin") == origin
		if got != want {
			t.Errorf("origin %s: allowed=%v, want %v", origin, got, want)
		}
	}
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	called := false
	mw := CORS([]string{"https://corretora.com.br"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://unknown.example")
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called for simple request")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow origin header, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	mw := CORS([]string{"https://corretora.com.br"})

	for origin, want := range map[string]int{
		"https://corretora.com.br": http.StatusNoContent,
		"https://unknown.example":  http.StatusForbidden,
	} {
		called := false
		req := httptest.NewRequest(http.MethodOptions, "/api/leads", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()

		mw(okHandler(&called)).ServeHTTP(rec, req)

		if called {
			t.Fatalf("expected preflight to short-circuit for %s", origin)
		}
		if rec.Code != want {
			t.Fatalf("origin %s: expected status %d, got %d", origin, want, rec.Code)
		}
	}
}

func TestCORSAllowsAny(t *testing.T) {
	called := false
	mw := CORS([]string{"*"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://any.example")
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://any.example" {
		t.Fatalf("expected origin echoed, got %q", got)
	}
}
