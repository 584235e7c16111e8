package postgres

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/vlasovmx/stockfolio/data/repository"
	"github.com/vlasovmx/stockfolio/internal/converter/dbconverter"
	"github.com/vlasovmx/stockfolio/internal/model"
	"github.com/vlasovmx/stockfolio/internal/model/dbmodel"
	"github.com/vlasovmx/stockfolio/utils"
)

// InsertTransaction appends one row to the ledger. Shares are positive for
// a buy and negative for a sell; rows are never updated afterwards.
func (r *Postgres) InsertTransaction(ctx context.Context, userID int64, symbol string, shares int, price decimal.Decimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.InsertTransaction"
	params := map[string]any{
		"userID": userID,
		"symbol": symbol,
		"shares": shares,
		"price":  price,
	}
	query := `
		INSERT INTO transactions(user_id, symbol, shares, price)
		VALUES ($1, $2, $3, $4)
		`

	slog.Debug("InsertTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("params", params))
	defer func() {
		if err != nil {
			slog.Error("InsertTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertTransaction completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, userID, symbol, shares, price)
	if err != nil {
		return err
	}

	return nil
}

func (r *Postgres) GetTransactions(ctx context.Context, userID int64) (transactions []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetTransactions"
	params := map[string]any{
		"userID": userID,
	}
	query := `
		SELECT trx_id, user_id, symbol, shares, price, dt_create
		FROM transactions
		WHERE user_id = $1
		ORDER BY dt_create, trx_id
		`

	slog.Debug("GetTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("params", params))
	defer func() {
		if err != nil {
			slog.Error("GetTransactions failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetTransactions completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var trx dbmodel.Transaction
		err = rows.StructScan(&trx)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, dbconverter.ConvertTransaction(trx))
	}

	return transactions, nil
}

// UpsertHolding adds shares to the (user, symbol) holding, creating the row
// on the first buy of the symbol.
func (r *Postgres) UpsertHolding(ctx context.Context, userID int64, symbol string, shares int) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpsertHolding"
	params := map[string]any{
		"userID": userID,
		"symbol": symbol,
		"shares": shares,
	}
	query := `
		INSERT INTO holdings(user_id, symbol, shares)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, symbol)
		DO UPDATE SET shares = holdings.shares + EXCLUDED.shares
		`

	slog.Debug("UpsertHolding start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("params", params))
	defer func() {
		if err != nil {
			slog.Error("UpsertHolding failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertHolding completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, userID, symbol, shares)
	if err != nil {
		return err
	}

	return nil
}

// DeductHolding decrements the holding in a single conditional statement.
// Returns repository.ErrInsufficientShares when the row is missing or holds
// fewer shares than requested; the row stays untouched in that case.
func (r *Postgres) DeductHolding(ctx context.Context, userID int64, symbol string, shares int) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.DeductHolding"
	params := map[string]any{
		"userID": userID,
		"symbol": symbol,
		"shares": shares,
	}
	query := `
		UPDATE holdings
		SET shares = shares - $1
		WHERE user_id = $2
		AND symbol = $3
		AND shares >= $1
		`

	slog.Debug("DeductHolding start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("params", params))
	defer func() {
		if err != nil {
			slog.Error("DeductHolding failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeductHolding completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	res, err := r.txOrDb(ctx).ExecContext(ctx, query, shares, userID, symbol)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return repository.ErrInsufficientShares
	}

	return nil
}

// DeleteEmptyHolding removes the (user, symbol) row once its share count
// reached zero. Scoped to the exact row just mutated, never table-wide.
func (r *Postgres) DeleteEmptyHolding(ctx context.Context, userID int64, symbol string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.DeleteEmptyHolding"
	params := map[string]any{
		"userID": userID,
		"symbol": symbol,
	}
	query := `
		DELETE FROM holdings
		WHERE user_id = $1
		AND symbol = $2
		AND shares = 0
		`

	slog.Debug("DeleteEmptyHolding start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("params", params))
	defer func() {
		if err != nil {
			slog.Error("DeleteEmptyHolding failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteEmptyHolding completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, userID, symbol)
	if err != nil {
		return err
	}

	return nil
}

func (r *Postgres) GetHoldings(ctx context.Context, userID int64) (holdings []model.Holding, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetHoldings"
	params := map[string]any{
		"userID": userID,
	}
	query := `
		SELECT user_id, symbol, shares
		FROM holdings
		WHERE user_id = $1
		ORDER BY symbol
		`

	slog.Debug("GetHoldings start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("params", params))
	defer func() {
		if err != nil {
			slog.Error("GetHoldings failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetHoldings completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var holding dbmodel.Holding
		err = rows.StructScan(&holding)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, dbconverter.ConvertHolding(holding))
	}

	return holdings, nil
}

// GetHeldSymbols returns every symbol currently held by any user. Used by
// the quote cache refresh job.
func (r *Postgres) GetHeldSymbols(ctx context.Context) (symbols []string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetHeldSymbols"
	query := `SELECT DISTINCT symbol FROM holdings ORDER BY symbol`

	slog.Debug("GetHeldSymbols start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetHeldSymbols failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetHeldSymbols completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).SelectContext(ctx, &symbols, query)
	if err != nil {
		return nil, err
	}

	return symbols, nil
}
