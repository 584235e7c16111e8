package quoteapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/vlasovmx/stockfolio/config"
	"github.com/vlasovmx/stockfolio/internal/externalapi"
	"github.com/vlasovmx/stockfolio/internal/model"
	"github.com/vlasovmx/stockfolio/utils"
)

// QuoteApi resolves ticker symbols against an IEX-style quote endpoint.
type QuoteApi struct {
	client *resty.Client
	apiKey string
}

type rawQuote struct {
	Symbol      string   `json:"symbol"`
	CompanyName string   `json:"companyName"`
	LatestPrice *float64 `json:"latestPrice"`
}

func New(cfg *config.Config) *QuoteApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.QuoteApi.Url)
	return &QuoteApi{client: client, apiKey: cfg.API.QuoteApi.Key}
}

// GetQuote returns the current quote for ticker. Unknown symbols map to
// externalapi.ErrNotFound.
func (a *QuoteApi) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	endpoint := fmt.Sprintf("/stable/stock/%s/quote", url.PathEscape(strings.ToUpper(symbol)))
	params := map[string]string{
		"token": a.apiKey,
	}

	slog.Debug("start QuoteApi.GetQuote request", slog.String("rqID", rqID), slog.String("symbol", symbol))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get(endpoint)

	if err != nil {
		slog.Error("error while dialing QuoteApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Quote{}, err
	}

	if resp.StatusCode() == http.StatusNotFound {
		return model.Quote{}, externalapi.ErrNotFound
	}

	if resp.IsError() {
		slog.Error("QuoteApi returned error status", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return model.Quote{}, fmt.Errorf("quote api status %d", resp.StatusCode())
	}

	raw := rawQuote{}
	err = json.Unmarshal(resp.Body(), &raw)
	if err != nil {
		slog.Error("can't unmarshall response into rawQuote", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Quote{}, err
	}

	quote, err := a.parseRawQuote(raw)
	if err != nil {
		slog.Error("can't parse raw quote", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Quote{}, err
	}

	slog.Debug("QuoteApi.GetQuote request complete", slog.String("rqID", rqID))

	return quote, nil
}

func (a *QuoteApi) parseRawQuote(raw rawQuote) (model.Quote, error) {
	// the provider answers 200 with empty fields for some delisted tickers
	if raw.Symbol == "" || raw.LatestPrice == nil {
		return model.Quote{}, externalapi.ErrNotFound
	}

	price := decimal.NewFromFloat(*raw.LatestPrice)
	if price.IsNegative() || price.IsZero() {
		return model.Quote{}, externalapi.ErrNotFound
	}

	return model.Quote{
		Symbol: strings.ToUpper(raw.Symbol),
		Name:   raw.CompanyName,
		Price:  price,
	}, nil
}
