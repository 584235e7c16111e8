package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vlasovmx/stockfolio/config"
	"github.com/vlasovmx/stockfolio/data/session"
	"github.com/vlasovmx/stockfolio/internal/model"
	"github.com/vlasovmx/stockfolio/internal/service"
)

type fakeService struct {
	registerErr error
	authErr     error
	buyErr      error
	sellErr     error
	quoteErr    error

	userID    int64
	quote     model.Quote
	portfolio model.Portfolio
	holdings  []model.Holding
	history   []model.Transaction

	buyCalls  int
	sellCalls int
	lastBuy   struct {
		symbol string
		shares int
	}
}

func (s *fakeService) Register(ctx context.Context, username, password string) (int64, error) {
	if s.registerErr != nil {
		return 0, s.registerErr
	}
	return s.userID, nil
}

func (s *fakeService) Authenticate(ctx context.Context, username, password string) (int64, error) {
	if s.authErr != nil {
		return 0, s.authErr
	}
	return s.userID, nil
}

func (s *fakeService) ChangePassword(ctx context.Context, userID int64, password string) error {
	return nil
}

func (s *fakeService) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	if s.quoteErr != nil {
		return model.Quote{}, s.quoteErr
	}
	return s.quote, nil
}

func (s *fakeService) Buy(ctx context.Context, userID int64, symbol string, shares int) error {
	s.buyCalls++
	s.lastBuy.symbol = symbol
	s.lastBuy.shares = shares
	return s.buyErr
}

func (s *fakeService) Sell(ctx context.Context, userID int64, symbol string, shares int) error {
	s.sellCalls++
	return s.sellErr
}

func (s *fakeService) GetPortfolio(ctx context.Context, userID int64) (model.Portfolio, error) {
	return s.portfolio, nil
}

func (s *fakeService) GetHistory(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return s.history, nil
}

func (s *fakeService) GetHoldings(ctx context.Context, userID int64) ([]model.Holding, error) {
	return s.holdings, nil
}

func (s *fakeService) BuildStatement(ctx context.Context, userID int64) ([]byte, string, error) {
	return []byte("xlsx-bytes"), ".xlsx", nil
}

type fakeSession struct {
	tokens map[string]int64
	next   int
}

func newFakeSession() *fakeSession {
	return &fakeSession{tokens: map[string]int64{}}
}

func (s *fakeSession) Create(ctx context.Context, userID int64) (string, error) {
	s.next++
	token := "token-" + strings.Repeat("x", s.next)
	s.tokens[token] = userID
	return token, nil
}

func (s *fakeSession) Resolve(ctx context.Context, token string) (int64, error) {
	userID, ok := s.tokens[token]
	if !ok {
		return 0, session.ErrNotFound
	}
	return userID, nil
}

func (s *fakeSession) Delete(ctx context.Context, token string) error {
	delete(s.tokens, token)
	return nil
}

func newTestController(srv *fakeService, sess *fakeSession) *Controller {
	cfg := &config.Config{}
	return NewController(cfg, srv, sess)
}

func postForm(handler http.HandlerFunc, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func authCookie(t *testing.T, sess *fakeSession, userID int64) *http.Cookie {
	t.Helper()
	token, err := sess.Create(context.Background(), userID)
	require.NoError(t, err)
	return &http.Cookie{Name: sessionCookieName, Value: token}
}

func TestRequireAuth_RedirectsWithoutSession(t *testing.T) {
	sess := newFakeSession()
	ctrl := newTestController(&fakeService{}, sess)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	ctrl.RequireAuth(ctrl.Index).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}

func TestRequireAuth_UnknownToken(t *testing.T) {
	sess := newFakeSession()
	ctrl := newTestController(&fakeService{}, sess)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "stale"})
	rr := httptest.NewRecorder()
	ctrl.RequireAuth(ctrl.Index).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}

func TestIndex_RendersPortfolio(t *testing.T) {
	sess := newFakeSession()
	srv := &fakeService{portfolio: model.Portfolio{
		Cash: decimal.RequireFromString("8500.00"),
		Positions: []model.Position{
			{
				Symbol: "AAPL",
				Name:   "Apple Inc",
				Shares: 10,
				Price:  decimal.RequireFromString("150.00"),
				Total:  decimal.RequireFromString("1500.00"),
			},
		},
		TotalEstate: decimal.RequireFromString("10000.00"),
	}}
	ctrl := newTestController(srv, sess)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(authCookie(t, sess, 1))
	rr := httptest.NewRecorder()
	ctrl.RequireAuth(ctrl.Index).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "AAPL")
	assert.Contains(t, body, "$1,500.00")
	assert.Contains(t, body, "$10,000.00")
}

func TestRegister_Validation(t *testing.T) {
	testTable := []struct {
		name string
		form url.Values
	}{
		{
			name: "missing username",
			form: url.Values{"password": {"a"}, "confirmation": {"a"}},
		},
		{
			name: "missing password",
			form: url.Values{"username": {"alice"}, "confirmation": {"a"}},
		},
		{
			name: "missing confirmation",
			form: url.Values{"username": {"alice"}, "password": {"a"}},
		},
		{
			name: "mismatch",
			form: url.Values{"username": {"alice"}, "password": {"a"}, "confirmation": {"b"}},
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			ctrl := newTestController(&fakeService{}, newFakeSession())
			rr := postForm(ctrl.Register, "/register", testCase.form)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestRegister_Success(t *testing.T) {
	sess := newFakeSession()
	srv := &fakeService{userID: 7}
	ctrl := newTestController(srv, sess)

	form := url.Values{"username": {"alice"}, "password": {"hunter2"}, "confirmation": {"hunter2"}}
	rr := postForm(ctrl.Register, "/register", form)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	var sessionCookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookieName && c.Value != "" {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie, "session cookie must be set")
	userID, err := sess.Resolve(context.Background(), sessionCookie.Value)
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)
}

func TestRegister_Conflict(t *testing.T) {
	ctrl := newTestController(&fakeService{registerErr: service.ErrUsernameTaken}, newFakeSession())

	form := url.Values{"username": {"alice"}, "password": {"a"}, "confirmation": {"a"}}
	rr := postForm(ctrl.Register, "/register", form)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ctrl := newTestController(&fakeService{authErr: service.ErrInvalidCredentials}, newFakeSession())

	form := url.Values{"username": {"alice"}, "password": {"wrong"}}
	rr := postForm(ctrl.Login, "/login", form)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	// same message whichever part was wrong
	assert.Contains(t, rr.Body.String(), "invalid username and/or password")
}

func TestLogin_Success(t *testing.T) {
	sess := newFakeSession()
	ctrl := newTestController(&fakeService{userID: 3}, sess)

	form := url.Values{"username": {"alice"}, "password": {"hunter2"}}
	rr := postForm(ctrl.Login, "/login", form)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
}

func TestLogout_ClearsSession(t *testing.T) {
	sess := newFakeSession()
	ctrl := newTestController(&fakeService{}, sess)
	cookie := authCookie(t, sess, 1)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	http.HandlerFunc(ctrl.Logout).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	_, err := sess.Resolve(context.Background(), cookie.Value)
	assert.ErrorIs(t, err, session.ErrNotFound)

	// idempotent: a second logout without a session still succeeds
	rr = httptest.NewRecorder()
	http.HandlerFunc(ctrl.Logout).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/logout", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestBuy_SharesValidation(t *testing.T) {
	testTable := []struct {
		name   string
		shares string
	}{
		{name: "empty", shares: ""},
		{name: "zero", shares: "0"},
		{name: "negative", shares: "-3"},
		{name: "fractional", shares: "1.5"},
		{name: "not a number", shares: "abc"},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			sess := newFakeSession()
			srv := &fakeService{}
			ctrl := newTestController(srv, sess)

			form := url.Values{"symbol": {"AAPL"}, "shares": {testCase.shares}}
			rr := postForm(ctrl.RequireAuth(ctrl.Buy), "/buy", form, authCookie(t, sess, 1))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Zero(t, srv.buyCalls)
		})
	}
}

func TestBuy_Success(t *testing.T) {
	sess := newFakeSession()
	srv := &fakeService{}
	ctrl := newTestController(srv, sess)

	form := url.Values{"symbol": {"aapl"}, "shares": {"10"}}
	rr := postForm(ctrl.RequireAuth(ctrl.Buy), "/buy", form, authCookie(t, sess, 1))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	assert.Equal(t, 1, srv.buyCalls)
	assert.Equal(t, "AAPL", srv.lastBuy.symbol, "symbol must be upper-cased")
	assert.Equal(t, 10, srv.lastBuy.shares)
}

func TestBuy_BusinessErrors(t *testing.T) {
	testTable := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "unknown symbol", err: service.ErrNotFound, wantStatus: http.StatusBadRequest},
		{name: "insufficient funds", err: service.ErrInsufficientFunds, wantStatus: http.StatusBadRequest},
		{name: "unexpected", err: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			sess := newFakeSession()
			ctrl := newTestController(&fakeService{buyErr: testCase.err}, sess)

			form := url.Values{"symbol": {"AAPL"}, "shares": {"10"}}
			rr := postForm(ctrl.RequireAuth(ctrl.Buy), "/buy", form, authCookie(t, sess, 1))

			assert.Equal(t, testCase.wantStatus, rr.Code)
		})
	}
}

func TestSell_SharesValidationMatchesBuy(t *testing.T) {
	sess := newFakeSession()
	srv := &fakeService{}
	ctrl := newTestController(srv, sess)

	form := url.Values{"symbol": {"AAPL"}, "shares": {"1.5"}}
	rr := postForm(ctrl.RequireAuth(ctrl.Sell), "/sell", form, authCookie(t, sess, 1))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, srv.sellCalls)
}

func TestSell_InsufficientShares(t *testing.T) {
	sess := newFakeSession()
	ctrl := newTestController(&fakeService{sellErr: service.ErrInsufficientShares}, sess)

	form := url.Values{"symbol": {"AAPL"}, "shares": {"10"}}
	rr := postForm(ctrl.RequireAuth(ctrl.Sell), "/sell", form, authCookie(t, sess, 1))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "not enough shares")
}

func TestQuote_RendersResolvedQuote(t *testing.T) {
	sess := newFakeSession()
	srv := &fakeService{quote: model.Quote{
		Symbol: "AAPL",
		Name:   "Apple Inc",
		Price:  decimal.RequireFromString("150.00"),
	}}
	ctrl := newTestController(srv, sess)

	form := url.Values{"symbol": {"AAPL"}}
	rr := postForm(ctrl.RequireAuth(ctrl.Quote), "/quote", form, authCookie(t, sess, 1))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Apple Inc")
	assert.Contains(t, rr.Body.String(), "$150.00")
}

func TestQuote_UnknownSymbol(t *testing.T) {
	sess := newFakeSession()
	ctrl := newTestController(&fakeService{quoteErr: service.ErrNotFound}, sess)

	form := url.Values{"symbol": {"NOPE"}}
	rr := postForm(ctrl.RequireAuth(ctrl.Quote), "/quote", form, authCookie(t, sess, 1))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid symbol")
}

func TestChangePassword_Validation(t *testing.T) {
	sess := newFakeSession()
	ctrl := newTestController(&fakeService{}, sess)

	form := url.Values{"password": {"a"}, "confirmation": {"b"}}
	rr := postForm(ctrl.RequireAuth(ctrl.ChangePassword), "/changepassword", form, authCookie(t, sess, 1))

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestStatement_Download(t *testing.T) {
	sess := newFakeSession()
	ctrl := newTestController(&fakeService{}, sess)

	req := httptest.NewRequest(http.MethodGet, "/statement", nil)
	req.AddCookie(authCookie(t, sess, 1))
	rr := httptest.NewRecorder()
	ctrl.RequireAuth(ctrl.Statement).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "statement.xlsx")
	assert.Equal(t, "xlsx-bytes", rr.Body.String())
}

func TestParseShares(t *testing.T) {
	testTable := []struct {
		in     string
		want   int
		wantOk bool
	}{
		{in: "10", want: 10, wantOk: true},
		{in: "1", want: 1, wantOk: true},
		{in: "0", wantOk: false},
		{in: "-1", wantOk: false},
		{in: "1.5", wantOk: false},
		{in: "", wantOk: false},
		{in: " 1", wantOk: false},
		{in: "+1", wantOk: false},
	}

	for _, testCase := range testTable {
		t.Run(testCase.in, func(t *testing.T) {
			got, ok := parseShares(testCase.in)
			assert.Equal(t, testCase.wantOk, ok)
			if testCase.wantOk {
				assert.Equal(t, testCase.want, got)
			}
		})
	}
}
