package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumnicode/engine/internal/api/types"
	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/internal/services"
	"github.com/lumnicode/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitNop()
	os.Exit(m.Run())
}

func rsaKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	return priv, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func sign(t *testing.T, method jwt.SigningMethod, key any, c ClerkClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, c).SignedString(key)
	require.NoError(t, err)
	return s
}

func identityEcho(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	_ = json.NewEncoder(w).Encode(id)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) *types.APIError {
	t.Helper()
	var resp types.APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	return resp.Error
}

func TestAuthVerifiesRS256(t *testing.T) {
	priv, pub := rsaKeyPair(t)
	mw, err := Auth(AuthConfig{PublicKeyPEM: pub, Issuer: "https://clerk.test"})
	require.NoError(t, err)
	h := mw(http.HandlerFunc(identityEcho))

	good := sign(t, jwt.SigningMethodRS256, priv, ClerkClaims{
		Email: "ada@example.com", FirstName: "Ada",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user_123", Issuer: "https://clerk.test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+good)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var id services.Identity
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &id))
	assert.Equal(t, services.Identity{Subject: "user_123", Email: "ada@example.com", FirstName: "Ada"}, id)

	otherPriv, _ := rsaKeyPair(t)
	bad := []string{
		"",
		"not-a-jwt",
		sign(t, jwt.SigningMethodRS256, otherPriv, ClerkClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user_123", Issuer: "https://clerk.test", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}),
		sign(t, jwt.SigningMethodRS256, priv, ClerkClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user_123", Issuer: "https://clerk.test", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}),
		sign(t, jwt.SigningMethodRS256, priv, ClerkClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user_123", Issuer: "https://evil.test", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}),
		sign(t, jwt.SigningMethodHS256, []byte("secret"), ClerkClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user_123", Issuer: "https://clerk.test", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}),
	}
	for i, tok := range bad {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "case %d", i)
		assert.Equal(t, "unauthorized", decodeError(t, rr).Code)
	}
}

func TestAuthUnverifiedInDevelopment(t *testing.T) {
	_, err := Auth(AuthConfig{})
	require.Error(t, err)

	mw, err := Auth(AuthConfig{AllowUnverified: true})
	require.NoError(t, err)
	h := mw(http.HandlerFunc(identityEcho))

	tok := sign(t, jwt.SigningMethodHS256, []byte("anything"), ClerkClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user_dev"}})
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+tok, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "user_dev")

	noSub := sign(t, jwt.SigningMethodHS256, []byte("anything"), ClerkClaims{})
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+noSub)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

type stubUsers struct {
	seen []services.Identity
}

func (s *stubUsers) EnsureUser(_ context.Context, id services.Identity) (*models.User, error) {
	s.seen = append(s.seen, id)
	return &models.User{ID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(id.Subject)), ClerkID: id.Subject}, nil
}

func (s *stubUsers) GetUser(context.Context, uuid.UUID) (*models.User, error) {
	return nil, nil
}

func TestUserLoader(t *testing.T) {
	users := &stubUsers{}
	var got uuid.UUID
	h := UserLoader(users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := RequestUserID(r)
		require.True(t, ok)
		got = id
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), identityKey, services.Identity{Subject: "user_1"}))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, uuid.NewSHA1(uuid.NameSpaceOID, []byte("user_1")), got)
	require.Len(t, users.seen, 1)
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	h := l.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.2, 10.0.0.1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code, "buckets are per client")

	l.evict(time.Now().Add(visitorTTL + time.Second))
	assert.Empty(t, l.visitors)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/projects", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDAndRecovery(t *testing.T) {
	var seen string
	h := RequestID(Recovery(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", rr.Header().Get(RequestIDHeader))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal", decodeError(t, rr).Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}
