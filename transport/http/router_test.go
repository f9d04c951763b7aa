package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dfortune/fortuna/adapters/store"
	"github.com/dfortune/fortuna/adapters/tokenizer"
	"github.com/dfortune/fortuna/contracts"
	"github.com/dfortune/fortuna/dashboard"
	"github.com/dfortune/fortuna/internal/eth"
	"github.com/dfortune/fortuna/service"
)

type nopEvents struct{}

func (nopEvents) PublishLogin(context.Context, string) error  { return nil }
func (nopEvents) PublishLogout(context.Context, string) error { return nil }

type fixedReader struct{}

func (fixedReader) CurrentDraw(context.Context) (*contracts.Draw, error) {
	return &contracts.Draw{
		ID:        big.NewInt(7),
		EndTime:   big.NewInt(time.Now().Add(time.Hour).Unix()),
		Status:    0,
		PrizePool: big.NewInt(0),
	}, nil
}
func (fixedReader) TicketPrice(context.Context) (*big.Int, error) { return big.NewInt(0), nil }
func (fixedReader) HasBetBefore(context.Context, common.Address) (bool, error) {
	return false, nil
}
func (fixedReader) Discount(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (fixedReader) LossStreak(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

type serverFixture struct {
	router *gin.Engine
	clock  *time.Time
	key    *ecdsa.PrivateKey
	addr   string
}

func newServerFixture(t *testing.T, operator string) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	now := time.Now()
	clock := &now
	tick := func() time.Time { return *clock }

	backing := store.NewMemoryStore()
	challenges := service.NewChallengeStore(backing, operator, zap.NewNop(), service.WithChallengeClock(tick))
	tk := tokenizer.NewJWTTokenizer(signKey, tokenizer.WithClock(tick))
	auth := service.NewAuthService(challenges, backing, tk, nopEvents{}, "dFortune", operator, zap.NewNop(), service.WithAuthClock(tick))
	dash := dashboard.NewService(fixedReader{}, backing, zap.NewNop())

	router := SetupRouter(auth, dash, zap.NewNop(), RouterConfig{})

	return &serverFixture{
		router: router,
		clock:  clock,
		key:    key,
		addr:   ethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
}

func (f *serverFixture) do(t *testing.T, method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// login runs the full challenge-response exchange over HTTP and returns the
// session cookie.
func (f *serverFixture) login(t *testing.T) *http.Cookie {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/auth/nonce", fmt.Sprintf(`{"address":%q}`, f.addr), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var nonceResp struct {
		Nonce string `json:"nonce"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nonceResp))

	sig, err := eth.SignMessage(eth.AuthMessage("dFortune", nonceResp.Nonce), f.key)
	require.NoError(t, err)

	body := fmt.Sprintf(`{"address":%q,"signature":%q,"nonce":%q}`, f.addr, hexutil.Encode(sig), nonceResp.Nonce)
	rec = f.do(t, http.MethodPost, "/auth/login", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := sessionCookie(rec, SessionCookieName)
	require.NotNil(t, cookie, "login must set the session cookie")
	return cookie
}

func sessionCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name && c.Value != "" {
			return c
		}
	}
	return nil
}

func TestNonceValidation(t *testing.T) {
	f := newServerFixture(t, "")

	cases := []struct {
		name string
		body string
		want string
	}{
		{"empty body", "", "request body is empty"},
		{"whitespace body", "   ", "request body is empty"},
		{"invalid json", "{not json", "invalid JSON body"},
		{"missing address", `{"foo":"bar"}`, "address is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/auth/nonce", tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.want)
		})
	}
}

func TestNonceIssued(t *testing.T) {
	f := newServerFixture(t, "")

	rec := f.do(t, http.MethodPost, "/auth/nonce", fmt.Sprintf(`{"address":%q}`, f.addr), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Nonce string `json:"nonce"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Nonce, 32)
}

func TestLoginSetsCookieAndReturnsUser(t *testing.T) {
	f := newServerFixture(t, "")

	cookie := f.login(t)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.False(t, cookie.Secure)

	rec := f.do(t, http.MethodGet, "/api/me", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		User struct {
			ID      string `json:"id"`
			Address string `json:"address"`
			IsAdmin bool   `json:"isAdmin"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, strings.ToLower(f.addr), resp.User.Address)
	assert.NotEmpty(t, resp.User.ID)
	assert.False(t, resp.User.IsAdmin)
}

func TestLoginReplayDenied(t *testing.T) {
	f := newServerFixture(t, "")

	rec := f.do(t, http.MethodPost, "/auth/nonce", fmt.Sprintf(`{"address":%q}`, f.addr), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var nonceResp struct {
		Nonce string `json:"nonce"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nonceResp))

	sig, err := eth.SignMessage(eth.AuthMessage("dFortune", nonceResp.Nonce), f.key)
	require.NoError(t, err)
	body := fmt.Sprintf(`{"address":%q,"signature":%q,"nonce":%q}`, f.addr, hexutil.Encode(sig), nonceResp.Nonce)

	rec = f.do(t, http.MethodPost, "/auth/login", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication failed")
}

func TestLoginBadSignatureGenericDenial(t *testing.T) {
	f := newServerFixture(t, "")

	rec := f.do(t, http.MethodPost, "/auth/nonce", fmt.Sprintf(`{"address":%q}`, f.addr), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var nonceResp struct {
		Nonce string `json:"nonce"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nonceResp))

	body := fmt.Sprintf(`{"address":%q,"signature":"0xdead","nonce":%q}`, f.addr, nonceResp.Nonce)
	rec = f.do(t, http.MethodPost, "/auth/login", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication failed")
}

func TestLogoutRequiresSession(t *testing.T) {
	f := newServerFixture(t, "")

	rec := f.do(t, http.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutClearsCookies(t *testing.T) {
	f := newServerFixture(t, "")
	cookie := f.login(t)

	rec := f.do(t, http.MethodPost, "/auth/logout", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	cleared := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		if c.Value == "" && c.MaxAge < 0 {
			cleared[c.Name] = true
		}
	}
	assert.True(t, cleared[SessionCookieName])
	assert.True(t, cleared[SecureSessionCookieName])
}

func TestMeWithoutSession(t *testing.T) {
	f := newServerFixture(t, "")

	rec := f.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateRedirectsUnauthenticated(t *testing.T) {
	f := newServerFixture(t, "")

	rec := f.do(t, http.MethodGet, "/dashboard", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/?callbackUrl=%2Fdashboard", rec.Header().Get("Location"))
}

func TestGateAllowsAuthenticated(t *testing.T) {
	f := newServerFixture(t, "")
	cookie := f.login(t)

	rec := f.do(t, http.MethodGet, "/dashboard", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/profile", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateSkipsPublicAndAPIRoutes(t *testing.T) {
	f := newServerFixture(t, "")

	for _, path := range []string{"/", "/unauthorized", "/auth-error"} {
		rec := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	// API routes manage auth themselves; the gate must not redirect them.
	rec := f.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateNonAdminOnAdminPath(t *testing.T) {
	f := newServerFixture(t, "")
	cookie := f.login(t)

	rec := f.do(t, http.MethodGet, "/admin", "", cookie)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/unauthorized", rec.Header().Get("Location"))
}

func TestGateOperatorOnAdminPath(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	operator := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	f := newServerFixture(t, operator)
	f.key = key
	f.addr = operator
	cookie := f.login(t)

	rec := f.do(t, http.MethodGet, "/admin", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSlidingRefreshReissuesCookie(t *testing.T) {
	f := newServerFixture(t, "")
	cookie := f.login(t)

	// Well before the window: no new cookie.
	rec := f.do(t, http.MethodGet, "/api/me", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, sessionCookie(rec, SessionCookieName))

	// Inside the trailing refresh window: the session is re-issued.
	*f.clock = f.clock.Add(tokenizer.DefaultSessionTTL - 10*time.Minute)
	rec = f.do(t, http.MethodGet, "/api/me", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	fresh := sessionCookie(rec, SessionCookieName)
	require.NotNil(t, fresh)
	assert.NotEqual(t, cookie.Value, fresh.Value)
}

func TestDashboardEndpoint(t *testing.T) {
	f := newServerFixture(t, "")

	rec := f.do(t, http.MethodGet, "/api/dashboard", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/dashboard?address="+f.addr, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var data dashboard.Data
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, strings.ToLower(f.addr), data.Address)
	assert.Equal(t, "7", data.CurrentDraw.ID)
	assert.Equal(t, "open", data.CurrentDraw.Status)
}
