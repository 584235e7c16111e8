package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Holding struct {
	Symbol string
	Shares int
}

// Position is a holding enriched with the current quote.
type Position struct {
	Symbol string
	Name   string
	Shares int
	Price  decimal.Decimal
	Total  decimal.Decimal
}

type Portfolio struct {
	Cash        decimal.Decimal
	Positions   []Position
	TotalEstate decimal.Decimal
}

type Transaction struct {
	TrxID     int64
	Symbol    string
	Shares    int
	Price     decimal.Decimal
	CreatedAt time.Time
}
