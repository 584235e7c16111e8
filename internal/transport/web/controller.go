package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vlasovmx/stockfolio/config"
	"github.com/vlasovmx/stockfolio/data/session"
	"github.com/vlasovmx/stockfolio/internal/model"
	"github.com/vlasovmx/stockfolio/internal/service"
	"github.com/vlasovmx/stockfolio/utils"
)

type BrokerageService interface {
	Register(ctx context.Context, username, password string) (userID int64, err error)
	Authenticate(ctx context.Context, username, password string) (userID int64, err error)
	ChangePassword(ctx context.Context, userID int64, password string) error
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
	Buy(ctx context.Context, userID int64, symbol string, shares int) error
	Sell(ctx context.Context, userID int64, symbol string, shares int) error
	GetPortfolio(ctx context.Context, userID int64) (model.Portfolio, error)
	GetHistory(ctx context.Context, userID int64) ([]model.Transaction, error)
	GetHoldings(ctx context.Context, userID int64) ([]model.Holding, error)
	BuildStatement(ctx context.Context, userID int64) (fileBytes []byte, fileExtension string, err error)
}

type Session interface {
	Create(ctx context.Context, userID int64) (token string, err error)
	Resolve(ctx context.Context, token string) (userID int64, err error)
	Delete(ctx context.Context, token string) error
}

const sessionCookieName = "session_id"

const internalErrMsg = "something went wrong..."

type Controller struct {
	cfg              *config.Config
	brokerageService BrokerageService
	session          Session
	renderer         *Renderer
}

func NewController(cfg *config.Config, brokerageService BrokerageService, session Session) *Controller {
	return &Controller{
		cfg:              cfg,
		brokerageService: brokerageService,
		session:          session,
		renderer:         NewRenderer(),
	}
}

// apology renders the generic error page with the given status.
func (ctrl *Controller) apology(w http.ResponseWriter, status int, message string, loggedIn bool) {
	ctrl.renderer.Render(w, status, "apology", map[string]any{
		"LoggedIn": loggedIn,
		"Message":  message,
	})
}

// apologyForErr maps service errors to user-facing apology pages.
func (ctrl *Controller) apologyForErr(w http.ResponseWriter, err error, loggedIn bool) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		ctrl.apology(w, http.StatusBadRequest, "invalid symbol", loggedIn)
	case errors.Is(err, service.ErrUsernameTaken):
		ctrl.apology(w, http.StatusConflict, "this username has been taken before", loggedIn)
	case errors.Is(err, service.ErrInvalidCredentials):
		ctrl.apology(w, http.StatusForbidden, "invalid username and/or password", loggedIn)
	case errors.Is(err, service.ErrInsufficientFunds):
		ctrl.apology(w, http.StatusBadRequest, "can not afford", loggedIn)
	case errors.Is(err, service.ErrInsufficientShares):
		ctrl.apology(w, http.StatusBadRequest, "not enough shares", loggedIn)
	default:
		ctrl.apology(w, http.StatusInternalServerError, internalErrMsg, loggedIn)
	}
}

// parseShares accepts only whole positive share counts. Zero, negatives,
// fractions and non-numeric input are all rejected.
func parseShares(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	shares, err := strconv.Atoi(s)
	if err != nil || shares <= 0 {
		return 0, false
	}
	return shares, true
}

func (ctrl *Controller) establishSession(ctx context.Context, w http.ResponseWriter, userID int64) error {
	token, err := ctrl.session.Create(ctx, userID)
	if err != nil {
		return err
	}

	// no MaxAge: the cookie dies with the browser session
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

func (ctrl *Controller) dropSession(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		_ = ctrl.session.Delete(ctx, cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireAuth resolves the session cookie and hands the authenticated user
// id to the wrapped handler. Unauthenticated requests redirect to /login.
func (ctrl *Controller) RequireAuth(next func(w http.ResponseWriter, r *http.Request, userID int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := utils.CreateCtxWithRqID(r)
		rqID := utils.GetRequestIDFromCtx(ctx)

		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		userID, err := ctrl.session.Resolve(ctx, cookie.Value)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				slog.Error("session resolve failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		next(w, r.WithContext(ctx), userID)
	}
}

func (ctrl *Controller) Index(w http.ResponseWriter, r *http.Request, userID int64) {
	ctx := utils.CreateCtxWithRqID(r)

	portfolio, err := ctrl.brokerageService.GetPortfolio(ctx, userID)
	if err != nil {
		ctrl.apologyForErr(w, err, true)
		return
	}

	ctrl.renderer.Render(w, http.StatusOK, "index", map[string]any{
		"LoggedIn":  true,
		"Portfolio": portfolio,
	})
}

func (ctrl *Controller) RegisterForm(w http.ResponseWriter, r *http.Request) {
	ctrl.renderer.Render(w, http.StatusOK, "register", map[string]any{"LoggedIn": false})
}

func (ctrl *Controller) Register(w http.ResponseWriter, r *http.Request) {
	ctx := utils.CreateCtxWithRqID(r)
	rqID := utils.GetRequestIDFromCtx(ctx)

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	confirmation := r.PostFormValue("confirmation")

	if username == "" {
		ctrl.apology(w, http.StatusBadRequest, "must provide username", false)
		return
	}
	if password == "" {
		ctrl.apology(w, http.StatusBadRequest, "must provide password", false)
		return
	}
	if confirmation == "" {
		ctrl.apology(w, http.StatusBadRequest, "must provide password again", false)
		return
	}
	if password != confirmation {
		ctrl.apology(w, http.StatusBadRequest, "password and confirmation do not match", false)
		return
	}

	userID, err := ctrl.brokerageService.Register(ctx, username, password)
	if err != nil {
		ctrl.apologyForErr(w, err, false)
		return
	}

	if err := ctrl.establishSession(ctx, w, userID); err != nil {
		slog.Error("got error from establishSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		ctrl.apology(w, http.StatusInternalServerError, internalErrMsg, false)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (ctrl *Controller) LoginForm(w http.ResponseWriter, r *http.Request) {
	ctrl.renderer.Render(w, http.StatusOK, "login", map[string]any{"LoggedIn": false})
}

func (ctrl *Controller) Login(w http.ResponseWriter, r *http.Request) {
	ctx := utils.CreateCtxWithRqID(r)
	rqID := utils.GetRequestIDFromCtx(ctx)

	// forget any existing session first
	ctrl.dropSession(ctx, w, r)

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	if username == "" {
		ctrl.apology(w, http.StatusForbidden, "must provide username", false)
		return
	}
	if password == "" {
		ctrl.apology(w, http.StatusForbidden, "must provide password", false)
		return
	}

	userID, err := ctrl.brokerageService.Authenticate(ctx, username, password)
	if err != nil {
		ctrl.apologyForErr(w, err, false)
		return
	}

	if err := ctrl.establishSession(ctx, w, userID); err != nil {
		slog.Error("got error from establishSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		ctrl.apology(w, http.StatusInternalServerError, internalErrMsg, false)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (ctrl *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := utils.CreateCtxWithRqID(r)
	ctrl.dropSession(ctx, w, r)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (ctrl *Controller) QuoteForm(w http.ResponseWriter, r *http.Request, userID int64) {
	ctrl.renderer.Render(w, http.StatusOK, "quote", map[string]any{"LoggedIn": true})
}

func (ctrl *Controller) Quote(w http.ResponseWriter, r *http.Request, userID int64) {
	ctx := utils.CreateCtxWithRqID(r)

	symbol := strings.ToUpper(strings.TrimSpace(r.PostFormValue("symbol")))
	if symbol == "" {
		ctrl.apology(w, http.StatusBadRequest, "must provide symbol", true)
		return
	}

	quote, err := ctrl.brokerageService.GetQuote(ctx, symbol)
	if err != nil {
		ctrl.apologyForErr(w, err, true)
		return
	}

	ctrl.renderer.Render(w, http.StatusOK, "quoted", map[string]any{
		"LoggedIn": true,
		"Quote":    quote,
	})
}

func (ctrl *Controller) BuyForm(w http.ResponseWriter, r *http.Request, userID int64) {
	ctrl.renderer.Render(w, http.StatusOK, "buy", map[string]any{"LoggedIn": true})
}

func (ctrl *Controller) Buy(w http.ResponseWriter, r *http.Request, userID int64) {
	ctx := utils.CreateCtxWithRqID(r)

	symbol := strings.ToUpper(strings.TrimSpace(r.PostFormValue("symbol")))
	if symbol == "" {
		ctrl.apology(w, http.StatusBadRequest, "must provide symbol", true)
		return
	}

	shares, ok := parseShares(r.PostFormValue("shares"))
	if !ok {
		ctrl.apology(w, http.StatusBadRequest, "must provide a positive whole number of shares", true)
		return
	}

	if err := ctrl.brokerageService.Buy(ctx, userID, symbol, shares); err != nil {
		ctrl.apologyForErr(w, err, true)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (ctrl *Controller) SellForm(w http.ResponseWriter, r *http.Request, userID int64) {
	ctx := utils.CreateCtxWithRqID(r)

	holdings, err := ctrl.brokerageService.GetHoldings(ctx, userID)
	if err != nil {
		ctrl.apologyForErr(w, err, true)
		return
	}

	ctrl.renderer.Render(w, http.StatusOK, "sell", map[string]any{
		"LoggedIn": true,
		"Holdings": holdings,
	})
}

func (ctrl *Controller) Sell(w http.ResponseWriter, r *http.Request, userID int64) {
	ctx := utils.CreateCtxWithRqID(r)

	symbol := strings.ToUpper(strings.TrimSpace(r.PostFormValue("symbol")))
	if symbol == "" {
		ctrl.apology(w, http.StatusBadRequest, "must provide symbol", true)
		return
	}

	shares, ok := parseShares(r.PostFormValue("shares"))
	if !ok {
		ctrl.apology(w, http.StatusBadRequest, "must provide a positive whole number of shares", true)
		return
	}

	if err := ctrl.brokerageService.Sell(ctx, userID, symbol, shares); err != nil {
		ctrl.apologyForErr(w, err, true)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (ctrl *Controller) History(w http.ResponseWriter, r *http.Request, userID int64) {
	ctx := utils.CreateCtxWithRqID(r)

	transactions, err := ctrl.brokerageService.GetHistory(ctx, userID)
	if err != nil {
		ctrl.apologyForErr(w, err, true)
		return
	}

	ctrl.renderer.Render(w, http.StatusOK, "history", map[string]any{
		"LoggedIn":     true,
		"Transactions": transactions,
	})
}

func (ctrl *Controller) ChangePasswordForm(w http.ResponseWriter, r *http.Request, userID int64) {
	ctrl.renderer.Render(w, http.StatusOK, "changepassword", map[string]any{"LoggedIn": true})
}

func (ctrl *Controller) ChangePassword(w http.ResponseWriter, r *http.Request, userID int64) {
	ctx := utils.CreateCtxWithRqID(r)

	password := r.PostFormValue("password")
	confirmation := r.PostFormValue("confirmation")

	if password == "" || confirmation == "" {
		ctrl.apology(w, http.StatusForbidden, "must provide password and confirmation", true)
		return
	}
	if password != confirmation {
		ctrl.apology(w, http.StatusForbidden, "password and confirmation do not match", true)
		return
	}

	if err := ctrl.brokerageService.ChangePassword(ctx, userID, password); err != nil {
		ctrl.apologyForErr(w, err, true)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (ctrl *Controller) Statement(w http.ResponseWriter, r *http.Request, userID int64) {
	ctx := utils.CreateCtxWithRqID(r)

	fileBytes, fileExtension, err := ctrl.brokerageService.BuildStatement(ctx, userID)
	if err != nil {
		ctrl.apologyForErr(w, err, true)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=statement"+fileExtension)
	_, _ = w.Write(fileBytes)
}
