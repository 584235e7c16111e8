package dbmodel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Holding struct {
	UserID int64  `db:"user_id"`
	Symbol string `db:"symbol"`
	Shares int    `db:"shares"`
}

type Transaction struct {
	TrxID     int64           `db:"trx_id"`
	UserID    int64           `db:"user_id"`
	Symbol    string          `db:"symbol"`
	Shares    int             `db:"shares"`
	Price     decimal.Decimal `db:"price"`
	CreatedAt time.Time       `db:"dt_create"`
}
