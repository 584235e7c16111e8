package brokerageservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/vlasovmx/stockfolio/config"
	"github.com/vlasovmx/stockfolio/data/repository"
	"github.com/vlasovmx/stockfolio/internal/externalapi"
	"github.com/vlasovmx/stockfolio/internal/model"
	"github.com/vlasovmx/stockfolio/internal/service"
	"github.com/vlasovmx/stockfolio/utils"
	"golang.org/x/crypto/bcrypt"
)

type QuoteApi interface {
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
}

type Cache interface {
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
	SetQuote(ctx context.Context, quote model.Quote) error
	SetQuotes(ctx context.Context, quotes []model.Quote) error
}

type Repository interface {
	WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error
	InsertUser(ctx context.Context, username, passwordHash string, cash decimal.Decimal) (userID int64, err error)
	GetUserByUsername(ctx context.Context, username string) (user model.User, err error)
	GetCash(ctx context.Context, userID int64) (cash decimal.Decimal, err error)
	UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error
	DebitCash(ctx context.Context, userID int64, amount decimal.Decimal) error
	CreditCash(ctx context.Context, userID int64, amount decimal.Decimal) error
	InsertTransaction(ctx context.Context, userID int64, symbol string, shares int, price decimal.Decimal) error
	GetTransactions(ctx context.Context, userID int64) ([]model.Transaction, error)
	UpsertHolding(ctx context.Context, userID int64, symbol string, shares int) error
	DeductHolding(ctx context.Context, userID int64, symbol string, shares int) error
	DeleteEmptyHolding(ctx context.Context, userID int64, symbol string) error
	GetHoldings(ctx context.Context, userID int64) ([]model.Holding, error)
	GetHeldSymbols(ctx context.Context) ([]string, error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, portfolio model.Portfolio, transactions []model.Transaction) (fileBytes []byte, fileExtension string, err error)
}

type BrokerageService struct {
	repo         Repository
	cache        Cache
	quoteApi     QuoteApi
	reportGen    ReportGenerator
	startingCash decimal.Decimal
}

func New(cfg *config.Config, repo Repository, cache Cache, quoteApi QuoteApi, reportGen ReportGenerator) *BrokerageService {
	startingCash, err := decimal.NewFromString(cfg.StartingCash)
	if err != nil {
		slog.Error("invalid STARTING_CASH value", slog.String("value", cfg.StartingCash))
		panic(err)
	}

	return &BrokerageService{
		repo:         repo,
		cache:        cache,
		quoteApi:     quoteApi,
		reportGen:    reportGen,
		startingCash: startingCash,
	}
}

// Register creates a user with the default starting cash and returns the new
// user id. A taken username maps to service.ErrUsernameTaken.
func (s *BrokerageService) Register(ctx context.Context, username, password string) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BrokerageService.Register"

	slog.Debug("Register start", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	defer func() {
		slog.Debug("Register finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	}()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("got error from bcrypt.GenerateFromPassword", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	userID, err = s.repo.InsertUser(ctx, username, string(hash), s.startingCash)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return 0, service.ErrUsernameTaken
		}
		slog.Error("got error from repo.InsertUser", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	return userID, nil
}

// Authenticate verifies credentials and returns the user id. Unknown
// username and wrong password both map to the same error so callers can't
// tell which part failed.
func (s *BrokerageService) Authenticate(ctx context.Context, username, password string) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BrokerageService.Authenticate"

	slog.Debug("Authenticate start", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	defer func() {
		slog.Debug("Authenticate finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	}()

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, service.ErrInvalidCredentials
		}
		slog.Error("got error from repo.GetUserByUsername", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return 0, service.ErrInvalidCredentials
	}

	return user.UserID, nil
}

func (s *BrokerageService) ChangePassword(ctx context.Context, userID int64, password string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BrokerageService.ChangePassword"

	slog.Debug("ChangePassword start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("ChangePassword finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("got error from bcrypt.GenerateFromPassword", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	err = s.repo.UpdatePasswordHash(ctx, userID, string(hash))
	if err != nil {
		slog.Error("got error from repo.UpdatePasswordHash", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// GetQuote resolves a symbol cache-first, falling back to the provider.
// Unknown symbols map to service.ErrNotFound.
func (s *BrokerageService) GetQuote(ctx context.Context, symbol string) (quote model.Quote, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BrokerageService.GetQuote"

	slog.Debug("GetQuote start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	defer func() {
		slog.Debug("GetQuote finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	}()

	quote, err = s.cache.GetQuote(ctx, symbol)
	if err == nil {
		return quote, nil
	}

	quote, err = s.quoteApi.GetQuote(ctx, symbol)
	if err != nil {
		if errors.Is(err, externalapi.ErrNotFound) {
			slog.Warn("symbol not found in quoteApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
			return model.Quote{}, service.ErrNotFound
		}
		slog.Error("can't get quote from quoteApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		// an unreachable provider means the symbol can't be confirmed
		return model.Quote{}, service.ErrNotFound
	}

	go s.cache.SetQuote(context.WithoutCancel(ctx), quote)

	return quote, nil
}

// Buy purchases shares at the current quote. Debit, ledger append and
// holding upsert commit as one transaction or not at all.
func (s *BrokerageService) Buy(ctx context.Context, userID int64, symbol string, shares int) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BrokerageService.Buy"

	slog.Debug("Buy start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.String("symbol", symbol), slog.Int("shares", shares))
	defer func() {
		slog.Debug("Buy finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.String("symbol", symbol))
	}()

	quote, err := s.GetQuote(ctx, symbol)
	if err != nil {
		return err
	}

	cost := quote.Price.Mul(decimal.NewFromInt(int64(shares)))

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.DebitCash(ctx, userID, cost); err != nil {
			if errors.Is(err, repository.ErrInsufficientFunds) {
				return service.ErrInsufficientFunds
			}
			return fmt.Errorf("debit cash: %w", err)
		}

		if err := s.repo.InsertTransaction(ctx, userID, quote.Symbol, shares, quote.Price); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		if err := s.repo.UpsertHolding(ctx, userID, quote.Symbol, shares); err != nil {
			return fmt.Errorf("upsert holding: %w", err)
		}

		return nil
	})

	if err != nil {
		if !errors.Is(err, service.ErrInsufficientFunds) {
			slog.Error("Buy transaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
		return err
	}

	return nil
}

// Sell disposes shares at the current quote. Holding decrement, cash credit
// and ledger append commit as one transaction; the emptied holding row is
// removed for this (user, symbol) only.
func (s *BrokerageService) Sell(ctx context.Context, userID int64, symbol string, shares int) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BrokerageService.Sell"

	slog.Debug("Sell start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.String("symbol", symbol), slog.Int("shares", shares))
	defer func() {
		slog.Debug("Sell finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.String("symbol", symbol))
	}()

	quote, err := s.GetQuote(ctx, symbol)
	if err != nil {
		return err
	}

	worth := quote.Price.Mul(decimal.NewFromInt(int64(shares)))

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.DeductHolding(ctx, userID, quote.Symbol, shares); err != nil {
			if errors.Is(err, repository.ErrInsufficientShares) {
				return service.ErrInsufficientShares
			}
			return fmt.Errorf("deduct holding: %w", err)
		}

		if err := s.repo.CreditCash(ctx, userID, worth); err != nil {
			return fmt.Errorf("credit cash: %w", err)
		}

		if err := s.repo.InsertTransaction(ctx, userID, quote.Symbol, -shares, quote.Price); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		if err := s.repo.DeleteEmptyHolding(ctx, userID, quote.Symbol); err != nil {
			return fmt.Errorf("delete empty holding: %w", err)
		}

		return nil
	})

	if err != nil {
		if !errors.Is(err, service.ErrInsufficientShares) {
			slog.Error("Sell transaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
		return err
	}

	return nil
}

// GetPortfolio reads cash and holdings and prices every position at the
// current quote. Total estate is cash plus the sum of position totals.
func (s *BrokerageService) GetPortfolio(ctx context.Context, userID int64) (portfolio model.Portfolio, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BrokerageService.GetPortfolio"

	slog.Debug("GetPortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("GetPortfolio finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	cash, err := s.repo.GetCash(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetCash", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Portfolio{}, err
	}

	holdings, err := s.repo.GetHoldings(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetHoldings", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Portfolio{}, err
	}

	portfolio.Cash = cash
	portfolio.TotalEstate = cash

	for _, holding := range holdings {
		quote, err := s.GetQuote(ctx, holding.Symbol)
		if err != nil {
			slog.Error("can't resolve quote for held symbol", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", holding.Symbol), slog.String("err", err.Error()))
			return model.Portfolio{}, err
		}

		total := quote.Price.Mul(decimal.NewFromInt(int64(holding.Shares)))

		portfolio.Positions = append(portfolio.Positions, model.Position{
			Symbol: holding.Symbol,
			Name:   quote.Name,
			Shares: holding.Shares,
			Price:  quote.Price,
			Total:  total,
		})

		portfolio.TotalEstate = portfolio.TotalEstate.Add(total)
	}

	return portfolio, nil
}

// GetHoldings lists the user's current positions without pricing them.
// Used by the sell form.
func (s *BrokerageService) GetHoldings(ctx context.Context, userID int64) (holdings []model.Holding, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BrokerageService.GetHoldings"

	slog.Debug("GetHoldings start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("GetHoldings finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	holdings, err = s.repo.GetHoldings(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetHoldings", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	return holdings, nil
}

func (s *BrokerageService) GetHistory(ctx context.Context, userID int64) (transactions []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BrokerageService.GetHistory"

	slog.Debug("GetHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("GetHistory finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	transactions, err = s.repo.GetTransactions(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	return transactions, nil
}

// RefreshQuoteCache re-fetches quotes for every symbol anyone currently
// holds. Scheduled as a background job.
func (s *BrokerageService) RefreshQuoteCache(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BrokerageService.RefreshQuoteCache"

	slog.Debug("RefreshQuoteCache start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("RefreshQuoteCache finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	symbols, err := s.repo.GetHeldSymbols(ctx)
	if err != nil {
		slog.Error("got error from repo.GetHeldSymbols", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	quotes := make([]model.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		quote, err := s.quoteApi.GetQuote(ctx, symbol)
		if err != nil {
			slog.Warn("skipping symbol in RefreshQuoteCache", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.String("err", err.Error()))
			continue
		}
		quotes = append(quotes, quote)
	}

	if len(quotes) == 0 {
		return nil
	}

	err = s.cache.SetQuotes(ctx, quotes)
	if err != nil {
		slog.Error("got error from cache.SetQuotes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// BuildStatement renders the user's portfolio and history as an XLSX file.
func (s *BrokerageService) BuildStatement(ctx context.Context, userID int64) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BrokerageService.BuildStatement"

	slog.Debug("BuildStatement start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("BuildStatement finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	portfolio, err := s.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	transactions, err := s.GetHistory(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	fileBytes, fileExtension, err = s.reportGen.Generate(ctx, portfolio, transactions)
	if err != nil {
		slog.Error("got error from reportGen.Generate", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	return fileBytes, fileExtension, nil
}
