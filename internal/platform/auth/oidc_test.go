package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func newJWKSServer(t *testing.T, kid string, pub *rsa.PublicKey) *httptest.Server {
	t.Helper()
	jwks := jwksResponse{Keys: []JWKSKey{{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(OIDCProvider{Issuer: srv.URL, JWKSURI: srv.URL + "/jwks"})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jwks)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOIDCProvider(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := newJWKSServer(t, "k1", &key.PublicKey)

	p, err := NewOIDCProvider(srv.URL + "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.JWKSURI != srv.URL+"/jwks" {
		t.Errorf("unexpected jwks uri %q", p.JWKSURI)
	}
}

func TestNewOIDCProvider_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := NewOIDCProvider(srv.URL); err == nil {
		t.Error("expected error for missing discovery document")
	}
}

func TestJWKSCache_GetKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := newJWKSServer(t, "k1", &key.PublicKey)

	cache := NewJWKSCache(srv.URL+"/jwks", time.Minute)
	got, err := cache.GetKey("k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.N.Cmp(key.PublicKey.N) != 0 || got.E != key.PublicKey.E {
		t.Error("fetched key does not match")
	}

	if _, err := cache.GetKey("unknown"); err == nil {
		t.Error("expected error for unknown kid")
	}
}

func TestJWTMiddleware_RS256ViaDiscovery(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := newJWKSServer(t, "k1", &key.PublicKey)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "svc-account",
			Issuer:    srv.URL,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Capabilities: []string{"patient:read"},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var caps []Capability
	handler := func(c echo.Context) error {
		caps = CapabilitiesFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}

	_, err = runJWT(t, JWTConfig{Issuer: srv.URL}, "Bearer "+signed, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !HasCapability(caps, ReadPatient) {
		t.Errorf("expected read capability, got %v", caps)
	}
}

func TestJWTMiddleware_RetriesFailedDiscovery(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	upstream := newJWKSServer(t, "k1", &key.PublicKey)

	var discoveryCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		if discoveryCalls.Add(1) == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(OIDCProvider{Issuer: upstream.URL, JWKSURI: upstream.URL + "/jwks"})
	})
	issuer := httptest.NewServer(mux)
	defer issuer.Close()

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "svc-account",
		Issuer:    issuer.URL,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	mw := JWTMiddleware(JWTConfig{Issuer: issuer.URL})
	e := echo.New()
	call := func() error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		return mw(okHandler)(e.NewContext(req, httptest.NewRecorder()))
	}

	err = call()
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 while discovery is down, got %v", err)
	}
	if err := call(); err != nil {
		t.Fatalf("expected success after discovery recovers, got %v", err)
	}
	if err := call(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := discoveryCalls.Load(); n != 2 {
		t.Errorf("expected discovery to stop after success, got %d calls", n)
	}
}
