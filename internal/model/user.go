package model

import "github.com/shopspring/decimal"

type User struct {
	UserID       int64
	Username     string
	PasswordHash string
	Cash         decimal.Decimal
}
