package model

import "github.com/shopspring/decimal"

// Quote is a resolved ticker: current price and company name.
type Quote struct {
	Symbol string
	Name   string
	Price  decimal.Decimal
}
