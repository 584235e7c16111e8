package dbconverter

import (
	"github.com/vlasovmx/stockfolio/internal/model"
	"github.com/vlasovmx/stockfolio/internal/model/dbmodel"
)

func ConvertUser(u dbmodel.User) model.User {
	return model.User{
		UserID:       u.UserID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Cash:         u.Cash,
	}
}

func ConvertHolding(h dbmodel.Holding) model.Holding {
	return model.Holding{
		Symbol: h.Symbol,
		Shares: h.Shares,
	}
}

func ConvertTransaction(t dbmodel.Transaction) model.Transaction {
	return model.Transaction{
		TrxID:     t.TrxID,
		Symbol:    t.Symbol,
		Shares:    t.Shares,
		Price:     t.Price,
		CreatedAt: t.CreatedAt,
	}
}
