package xlsxgenerator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vlasovmx/stockfolio/internal/model"
	"github.com/vlasovmx/stockfolio/utils"
	"github.com/xuri/excelize/v2"
)

type XLSXGenerator struct{}

func New() *XLSXGenerator {
	return &XLSXGenerator{}
}

// Generate builds an account statement workbook with a portfolio sheet and
// a transaction history sheet.
func (g *XLSXGenerator) Generate(ctx context.Context, portfolio model.Portfolio, transactions []model.Transaction) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.Generate"

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	if err := g.fillPortfolioSheet(f, portfolio); err != nil {
		return nil, "", err
	}

	if err := g.fillHistorySheet(f, transactions); err != nil {
		return nil, "", err
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XLSXGenerator) headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{"#cfe2f3"},
		},
	})
}

func (g *XLSXGenerator) fillPortfolioSheet(f *excelize.File, portfolio model.Portfolio) error {
	sheetName := "Portfolio"
	_, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	styleID, err := g.headerStyle(f)
	if err != nil {
		return err
	}

	_ = f.SetCellStr(sheetName, "A1", "symbol")
	_ = f.SetCellStr(sheetName, "B1", "name")
	_ = f.SetCellStr(sheetName, "C1", "shares")
	_ = f.SetCellStr(sheetName, "D1", "price")
	_ = f.SetCellStr(sheetName, "E1", "total")

	if err := f.SetCellStyle(sheetName, "A1", "E1", styleID); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	row := 2
	for _, position := range portfolio.Positions {
		_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", row), position.Symbol)
		_ = f.SetCellStr(sheetName, fmt.Sprintf("B%d", row), position.Name)
		_ = f.SetCellInt(sheetName, fmt.Sprintf("C%d", row), int64(position.Shares))
		_ = f.SetCellStr(sheetName, fmt.Sprintf("D%d", row), position.Price.StringFixed(2))
		_ = f.SetCellStr(sheetName, fmt.Sprintf("E%d", row), position.Total.StringFixed(2))
		row++
	}

	row++
	_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", row), "cash")
	_ = f.SetCellStr(sheetName, fmt.Sprintf("E%d", row), portfolio.Cash.StringFixed(2))
	row++
	_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", row), "total estate")
	_ = f.SetCellStr(sheetName, fmt.Sprintf("E%d", row), portfolio.TotalEstate.StringFixed(2))

	return nil
}

func (g *XLSXGenerator) fillHistorySheet(f *excelize.File, transactions []model.Transaction) error {
	sheetName := "History"
	_, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	styleID, err := g.headerStyle(f)
	if err != nil {
		return err
	}

	_ = f.SetCellStr(sheetName, "A1", "date")
	_ = f.SetCellStr(sheetName, "B1", "symbol")
	_ = f.SetCellStr(sheetName, "C1", "shares")
	_ = f.SetCellStr(sheetName, "D1", "price")

	if err := f.SetCellStyle(sheetName, "A1", "D1", styleID); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	row := 2
	for _, trx := range transactions {
		_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", row), trx.CreatedAt.Format("2006-01-02 15:04:05"))
		_ = f.SetCellStr(sheetName, fmt.Sprintf("B%d", row), trx.Symbol)
		_ = f.SetCellInt(sheetName, fmt.Sprintf("C%d", row), int64(trx.Shares))
		_ = f.SetCellStr(sheetName, fmt.Sprintf("D%d", row), trx.Price.StringFixed(2))
		row++
	}

	return nil
}
