package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/shopspring/decimal"
	"github.com/vlasovmx/stockfolio/data/repository"
	"github.com/vlasovmx/stockfolio/internal/converter/dbconverter"
	"github.com/vlasovmx/stockfolio/internal/model"
	"github.com/vlasovmx/stockfolio/internal/model/dbmodel"
	"github.com/vlasovmx/stockfolio/utils"
)

func (r *Postgres) InsertUser(ctx context.Context, username, passwordHash string, cash decimal.Decimal) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.InsertUser"
	query := `INSERT INTO users(username, password_hash, cash) VALUES($1, $2, $3) RETURNING user_id`

	slog.Debug("InsertUser start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("InsertUser failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertUser completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(ctx, query, username, passwordHash, cash).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return 0, repository.ErrAlreadyExists
			}
		}
		return 0, err
	}

	return userID, nil
}

func (r *Postgres) GetUserByUsername(ctx context.Context, username string) (user model.User, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetUserByUsername"
	query := `SELECT user_id, username, password_hash, cash FROM users WHERE username = $1`

	slog.Debug("GetUserByUsername start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetUserByUsername failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetUserByUsername completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	dbUser := dbmodel.User{}
	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, username).StructScan(&dbUser)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, repository.ErrNotFound
		}
		return model.User{}, err
	}

	return dbconverter.ConvertUser(dbUser), nil
}

func (r *Postgres) GetCash(ctx context.Context, userID int64) (cash decimal.Decimal, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetCash"
	query := `SELECT cash FROM users WHERE user_id = $1`

	slog.Debug("GetCash start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetCash failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetCash completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, userID).Scan(&cash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Decimal{}, repository.ErrNotFound
		}
		return decimal.Decimal{}, err
	}

	return cash, nil
}

func (r *Postgres) UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpdatePasswordHash"
	query := `UPDATE users SET password_hash = $1 WHERE user_id = $2`

	slog.Debug("UpdatePasswordHash start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpdatePasswordHash failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdatePasswordHash completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, passwordHash, userID)
	if err != nil {
		return err
	}

	return nil
}

// DebitCash subtracts amount from the user's cash in a single conditional
// statement. Returns repository.ErrInsufficientFunds when cash < amount,
// leaving the row untouched.
func (r *Postgres) DebitCash(ctx context.Context, userID int64, amount decimal.Decimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.DebitCash"
	params := map[string]any{
		"userID": userID,
		"amount": amount,
	}
	query := `
		UPDATE users
		SET cash = cash - $1
		WHERE user_id = $2
		AND cash >= $1
		`

	slog.Debug("DebitCash start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("params", params))
	defer func() {
		if err != nil {
			slog.Error("DebitCash failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("DebitCash completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	res, err := r.txOrDb(ctx).ExecContext(ctx, query, amount, userID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return repository.ErrInsufficientFunds
	}

	return nil
}

func (r *Postgres) CreditCash(ctx context.Context, userID int64, amount decimal.Decimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.CreditCash"
	params := map[string]any{
		"userID": userID,
		"amount": amount,
	}
	query := `UPDATE users SET cash = cash + $1 WHERE user_id = $2`

	slog.Debug("CreditCash start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("params", params))
	defer func() {
		if err != nil {
			slog.Error("CreditCash failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreditCash completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	res, err := r.txOrDb(ctx).ExecContext(ctx, query, amount, userID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return repository.ErrNotFound
	}

	return nil
}
