package httpapi_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hermod-chat/hermod/httpapi"
)

const testKID = "test-key"

// newJWKS generates a signing key and serves its public half as a JWKS.
func newJWKS(t *testing.T) (*rsa.PrivateKey, *httptest.Server) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	set := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": testKID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pk.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pk.PublicKey.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)
	return pk, srv
}

func signToken(t *testing.T, pk *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKID
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func authRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/webhook/schema", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func newTestAuthenticator(t *testing.T, cfg httpapi.AuthConfig) *httpapi.Authenticator {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	a, err := httpapi.NewAuthenticator(ctx, cfg)
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	return a
}

func validClaims(iss, aud string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": iss,
		"aud": aud,
		"sub": "operator-1",
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
}

func TestAuthenticateHappyPath(t *testing.T) {
	pk, jwks := newJWKS(t)
	a := newTestAuthenticator(t, httpapi.AuthConfig{
		JWKSURL:  jwks.URL,
		Issuer:   "https://issuer.example.com",
		Audience: "hermod",
	})

	tok := signToken(t, pk, validClaims("https://issuer.example.com", "hermod"))
	if err := a.Authenticate(authRequest(tok)); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
}

func TestAuthenticateRejections(t *testing.T) {
	pk, jwks := newJWKS(t)
	a := newTestAuthenticator(t, httpapi.AuthConfig{
		JWKSURL:  jwks.URL,
		Issuer:   "https://issuer.example.com",
		Audience: "hermod",
	})

	expired := validClaims("https://issuer.example.com", "hermod")
	expired["exp"] = time.Now().Add(-2 * time.Hour).Unix()
	wrongIss := validClaims("https://evil.example.com", "hermod")
	wrongAud := validClaims("https://issuer.example.com", "someone-else")

	cases := map[string]*http.Request{
		"missing header":   authRequest(""),
		"malformed scheme": func() *http.Request { r := authRequest(""); r.Header.Set("Authorization", "Basic abc"); return r }(),
		"garbage token":    authRequest("not.a.jwt"),
		"expired":          authRequest(signToken(t, pk, expired)),
		"wrong issuer":     authRequest(signToken(t, pk, wrongIss)),
		"wrong audience":   authRequest(signToken(t, pk, wrongAud)),
	}
	for name, req := range cases {
		if err := a.Authenticate(req); err == nil {
			t.Errorf("%s: token accepted", name)
		}
	}

	// Symmetric signatures are never acceptable, even if well formed.
	hmacTok := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("https://issuer.example.com", "hermod"))
	hmacTok.Header["kid"] = testKID
	signed, err := hmacTok.SignedString([]byte("shared"))
	if err != nil {
		t.Fatalf("sign hmac token: %v", err)
	}
	if err := a.Authenticate(authRequest(signed)); err == nil {
		t.Error("HS256 token accepted")
	}
}

func TestGuardedRoutesRequireToken(t *testing.T) {
	pk, jwks := newJWKS(t)
	auth := newTestAuthenticator(t, httpapi.AuthConfig{JWKSURL: jwks.URL})
	a := newAPI(t, httpapi.WithAuthenticator(auth))

	// Bare request to an /api/ route is challenged.
	resp := a.get(t, "/api/webhook/schema")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}
	if got := resp.Header.Get("WWW-Authenticate"); got == "" {
		t.Fatal("401 response missing WWW-Authenticate challenge")
	}
	resp.Body.Close()

	// Liveness stays open for unauthenticated probes.
	resp = a.get(t, "/health")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}

	// A signed token opens the door.
	now := time.Now()
	tok := signToken(t, pk, jwt.MapClaims{"sub": "op", "exp": now.Add(time.Hour).Unix(), "iat": now.Unix()})
	req, err := http.NewRequest(http.MethodGet, a.srv.URL+"/api/webhook/schema", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", resp.StatusCode)
	}
}
