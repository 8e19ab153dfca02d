package service

import (
	"strconv"
	"strings"

	"github.com/smallbiznis/paymatrix/internal/export/domain"
	methodsdomain "github.com/smallbiznis/paymatrix/internal/methods/domain"
	"github.com/smallbiznis/paymatrix/internal/methods/engine"
)

const recommendedMark = "*"

// Rows renders a ranked GEO view. Row order is the view's order.
func Rows(view methodsdomain.GeoView) []domain.Row {
	currency := strings.TrimSpace(view.Currency)
	if currency == "" {
		currency = methodsdomain.CurrencyUnknown
	}
	status := "STAGE"
	if view.Env == methodsdomain.EnvProd {
		status = "PROD"
	}

	rows := make([]domain.Row, 0, len(view.Rows))
	for _, g := range view.Rows {
		title := g.Title
		if g.IsRecommended {
			title += recommendedMark
		}
		rows = append(rows, domain.Row{
			Paymethod:   title,
			PaymentName: strings.Join(g.Names, "\n"),
			Currency:    currency,
			Deposit:     yesNo(g.HasDeposit),
			Withdraw:    yesNo(g.HasWithdraw),
			Status:      status,
			Details:     engine.FormatConditions(g.Conditions),
			MinDep:      formatMinDeposit(g.MinDeposit, currency),
		})
	}
	return rows
}

func yesNo(v bool) string {
	if v {
		return "YES"
	}
	return "NO"
}

func formatMinDeposit(v *float64, currency string) string {
	if v == nil {
		return methodsdomain.CurrencyUnknown
	}
	amount := strconv.FormatFloat(*v, 'f', -1, 64)
	if currency == "" || currency == methodsdomain.CurrencyUnknown {
		return amount
	}
	return amount + " " + currency
}
