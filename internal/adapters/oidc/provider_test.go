package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	"github.com/upstars/corporate-discounts/internal/ports"
)

const testClientID = "test-client"

// fakeIssuer is a minimal OpenID provider: discovery, JWKS and a token endpoint.
type fakeIssuer struct {
	t      *testing.T
	srv    *httptest.Server
	key    *rsa.PrivateKey
	mu     sync.Mutex
	nonces map[string]string // code -> nonce
	claims map[string]any    // extra claims added to every id_token
	// refreshError, when set, is returned for refresh_token grants.
	refreshError string
	refreshCalls int
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIssuer{t: t, key: key, nonces: map[string]string{}, claims: map[string]any{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("GET /jwks", f.jwks)
	mux.HandleFunc("POST /token", f.token)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIssuer) discovery(w http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"issuer":                                f.srv.URL,
		"authorization_endpoint":                f.srv.URL + "/auth",
		"token_endpoint":                        f.srv.URL + "/token",
		"jwks_uri":                              f.srv.URL + "/jwks",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (f *fakeIssuer) jwks(w http.ResponseWriter, _ *http.Request) {
	pub := f.key.PublicKey
	_ = json.NewEncoder(w).Encode(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": "k1",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (f *fakeIssuer) idToken(nonce string) string {
	s, err := f.signIDToken(nonce)
	require.NoError(f.t, err)
	return s
}

func (f *fakeIssuer) signIDToken(nonce string) (string, error) {
	claims := jwt.MapClaims{
		"iss":            f.srv.URL,
		"aud":            testClientID,
		"sub":            "1234",
		"email":          "alice@upstars.com",
		"email_verified": true,
		"name":           "Alice",
		"iat":            time.Now().Unix(),
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	f.mu.Lock()
	for k, v := range f.claims {
		claims[k] = v
	}
	f.mu.Unlock()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "k1"
	return tok.SignedString(f.key)
}

func (f *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request")
		return
	}

	var nonce, refresh string
	switch r.Form.Get("grant_type") {
	case "authorization_code":
		f.mu.Lock()
		n, ok := f.nonces[r.Form.Get("code")]
		f.mu.Unlock()
		if !ok {
			writeOAuthError(w, "invalid_grant")
			return
		}
		nonce, refresh = n, "rt-1"
	case "refresh_token":
		f.mu.Lock()
		f.refreshCalls++
		failure := f.refreshError
		f.mu.Unlock()
		if failure != "" {
			writeOAuthError(w, failure)
			return
		}
		refresh = "rt-2"
	default:
		writeOAuthError(w, "unsupported_grant_type")
		return
	}

	idTok, err := f.signIDToken(nonce)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  "at",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": refresh,
		"id_token":      idTok,
	})
}

func writeOAuthError(w http.ResponseWriter, code string) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

func newTestProvider(t *testing.T, f *fakeIssuer) *Provider {
	t.Helper()
	p, err := NewProvider(ProviderConfig{
		ClientID:     testClientID,
		ClientSecret: "test-secret",
		DiscoveryURL: f.srv.URL + "/.well-known/openid-configuration",
		HTTPClient:   f.srv.Client(),
	})
	require.NoError(t, err)
	return p
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ProviderConfig
		errMsg string
	}{
		{"missing client ID", ProviderConfig{ClientSecret: "s"}, "client ID is required"},
		{"missing client secret", ProviderConfig{ClientID: "c"}, "client secret is required"},
		{"no openid scope", ProviderConfig{ClientID: "c", ClientSecret: "s", Scope: "email"}, "scope must include openid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_BeginAndExchange(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f)
	ctx := context.Background()

	_, _, _, err := p.Begin(ctx, ports.BeginInput{})
	require.Error(t, err)

	authURL, state, nonce, err := p.Begin(ctx, ports.BeginInput{RedirectURL: "http://127.0.0.1:9999/callback"})
	require.NoError(t, err)
	assert.Len(t, state, 32)
	assert.Len(t, nonce, 32)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, f.srv.URL+"/auth", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, nonce, q.Get("nonce"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "http://127.0.0.1:9999/callback", q.Get("redirect_uri"))

	f.mu.Lock()
	f.nonces["code-1"] = nonce
	f.mu.Unlock()

	creds, err := p.Exchange(ctx, ports.ExchangeInput{Code: "code-1", State: state, Nonce: nonce})
	require.NoError(t, err)
	assert.NotEmpty(t, creds.IDToken)
	assert.Equal(t, "rt-1", creds.RefreshToken)

	a, err := p.Verifier().Decode(ctx, creds.IDToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@upstars.com", a.Email)
	assert.Equal(t, "Alice", a.Name)
}

func TestProvider_ExchangeRejectsWrongNonce(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f)

	f.mu.Lock()
	f.nonces["code-2"] = "server-nonce"
	f.mu.Unlock()

	_, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "code-2", State: "s", Nonce: "client-nonce"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid nonce")
}

func TestProvider_Exchange_ValidationErrors(t *testing.T) {
	p := newTestProvider(t, newFakeIssuer(t))
	tests := []struct {
		name   string
		input  ports.ExchangeInput
		errMsg string
	}{
		{"missing code", ports.ExchangeInput{State: "state", Nonce: "nonce"}, "authorization code is required"},
		{"missing state", ports.ExchangeInput{Code: "code", Nonce: "nonce"}, "state is required"},
		{"missing nonce", ports.ExchangeInput{Code: "code", State: "state"}, "nonce is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Exchange(context.Background(), tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestVerifier_RejectsForeignAndUnverified(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f)
	ctx := context.Background()

	other := newFakeIssuer(t)
	_, err := p.Verifier().Decode(ctx, other.idToken(""))
	assert.ErrorIs(t, err, apperrors.ErrMalformedAssertion)

	f.mu.Lock()
	f.claims["email_verified"] = false
	f.mu.Unlock()
	_, err = p.Verifier().Decode(ctx, f.idToken(""))
	assert.ErrorIs(t, err, apperrors.ErrMalformedAssertion)

	_, err = p.Verifier().Decode(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrMalformedAssertion)
}

func TestNewVerifier_Discovery(t *testing.T) {
	f := newFakeIssuer(t)
	v, err := NewVerifier(context.Background(), VerifierConfig{
		Issuer:     f.srv.URL,
		ClientID:   testClientID,
		HTTPClient: f.srv.Client(),
	})
	require.NoError(t, err)

	a, err := v.Decode(context.Background(), f.idToken(""))
	require.NoError(t, err)
	assert.Equal(t, "alice@upstars.com", a.Email)

	_, err = NewVerifier(context.Background(), VerifierConfig{Issuer: f.srv.URL})
	require.Error(t, err)
}

func TestGenerateRandomString(t *testing.T) {
	str1, err := generateRandomString(16)
	require.NoError(t, err)
	assert.Len(t, str1, 16)

	str2, err := generateRandomString(32)
	require.NoError(t, err)
	assert.Len(t, str2, 32)

	str3, err := generateRandomString(16)
	require.NoError(t, err)
	assert.NotEqual(t, str1, str3)
}
