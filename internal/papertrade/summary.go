package papertrade

import (
	"tradebot-architect/internal/database"

	"github.com/shopspring/decimal"
)

// Summary aggregates a set of paper trades
type Summary struct {
	TotalTrades   int             `json:"total_trades"`
	WinningTrades int             `json:"winning_trades"`
	LosingTrades  int             `json:"losing_trades"`
	WinRate       decimal.Decimal `json:"win_rate"` // percent
	NetPnL        decimal.Decimal `json:"net_pnl"`
	GrossProfit   decimal.Decimal `json:"gross_profit"`
	GrossLoss     decimal.Decimal `json:"gross_loss"`
	AverageWin    decimal.Decimal `json:"average_win"`
	AverageLoss   decimal.Decimal `json:"average_loss"`
	LargestWin    decimal.Decimal `json:"largest_win"`
	LargestLoss   decimal.Decimal `json:"largest_loss"`
	ProfitFactor  decimal.Decimal `json:"profit_factor"`
	MaxDrawdown   decimal.Decimal `json:"max_drawdown"`
}

// Summarize computes win rate, net PnL and drawdown over trades in order
func Summarize(trades []*database.PaperTrade) Summary {
	s := Summary{}
	if len(trades) == 0 {
		return s
	}

	s.TotalTrades = len(trades)

	var equity, peak decimal.Decimal
	for _, t := range trades {
		s.NetPnL = s.NetPnL.Add(t.PnL)

		if t.PnL.IsPositive() {
			s.WinningTrades++
			s.GrossProfit = s.GrossProfit.Add(t.PnL)
			if t.PnL.GreaterThan(s.LargestWin) {
				s.LargestWin = t.PnL
			}
		} else {
			s.LosingTrades++
			s.GrossLoss = s.GrossLoss.Add(t.PnL)
			if t.PnL.LessThan(s.LargestLoss) {
				s.LargestLoss = t.PnL
			}
		}

		equity = equity.Add(t.PnL)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if dd := peak.Sub(equity); dd.GreaterThan(s.MaxDrawdown) {
			s.MaxDrawdown = dd
		}
	}

	hundred := decimal.NewFromInt(100)
	s.WinRate = decimal.NewFromInt(int64(s.WinningTrades)).Mul(hundred).
		Div(decimal.NewFromInt(int64(s.TotalTrades))).Round(2)

	if s.WinningTrades > 0 {
		s.AverageWin = s.GrossProfit.Div(decimal.NewFromInt(int64(s.WinningTrades))).Round(2)
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = s.GrossLoss.Div(decimal.NewFromInt(int64(s.LosingTrades))).Round(2)
	}
	if !s.GrossLoss.IsZero() {
		s.ProfitFactor = s.GrossProfit.Div(s.GrossLoss.Neg()).Round(2)
	}
	return s
}
