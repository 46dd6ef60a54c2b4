package papertrade

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"tradebot-architect/internal/conversation"
	"tradebot-architect/internal/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTradeCount = 20
	MaxTradeCount     = 200

	// maxConcurrentSims bounds SimulateAll
	maxConcurrentSims = 8
)

var (
	ErrNoConfig     = errors.New("bot has no configuration")
	ErrInvalidCount = fmt.Errorf("trade count must be between 1 and %d", MaxTradeCount)
)

// winProbability is the chance a trade closes at take profit
var winProbability = map[conversation.RiskLevel]float64{
	conversation.RiskLow:    0.58,
	conversation.RiskMedium: 0.52,
	conversation.RiskHigh:   0.47,
}

// referencePrices seed the synthetic price path per base coin
var referencePrices = map[string]float64{
	"BTC":  65000,
	"ETH":  3200,
	"BNB":  580,
	"SOL":  150,
	"XRP":  0.55,
	"ADA":  0.45,
	"DOGE": 0.15,
	"DOT":  7,
	"AVAX": 35,
	"LINK": 15,
}

var timeframeDurations = map[conversation.Timeframe]time.Duration{
	conversation.Timeframe1m:  time.Minute,
	conversation.Timeframe5m:  5 * time.Minute,
	conversation.Timeframe15m: 15 * time.Minute,
	conversation.Timeframe1h:  time.Hour,
	conversation.Timeframe4h:  4 * time.Hour,
	conversation.Timeframe1d:  24 * time.Hour,
}

// Simulator produces synthetic trades for a bot. The same bot always yields
// the same trades.
type Simulator struct{}

// NewSimulator creates a new simulator
func NewSimulator() *Simulator {
	return &Simulator{}
}

// Simulate produces n trades for bot. Winning trades close at take profit,
// losing ones at stop loss.
func (s *Simulator) Simulate(bot *database.Bot, n int) ([]*database.PaperTrade, error) {
	if bot.Config == nil {
		return nil, ErrNoConfig
	}
	if n < 1 || n > MaxTradeCount {
		return nil, ErrInvalidCount
	}
	spec := bot.Config
	rng := rand.New(rand.NewSource(seed(bot.ID)))

	pWin, ok := winProbability[spec.RiskLevel]
	if !ok {
		pWin = winProbability[conversation.RiskMedium]
	}

	leverage := 1
	if spec.TradeType == conversation.TradeTypeFutures && spec.Leverage > 1 {
		leverage = int(math.Round(spec.Leverage))
	}
	lev := decimal.NewFromInt(int64(leverage))

	notional := decimal.NewFromFloat(spec.AdvancedSettings.OrderManagement.BaseOrderSize)
	if !notional.IsPositive() {
		notional = decimal.NewFromInt(int64(spec.TradingCapitalUSD)).Div(decimal.NewFromInt(10))
	}
	exposure := notional.Mul(lev)

	takeProfit := decimal.NewFromFloat(spec.AdvancedSettings.RiskManagement.TakeProfitPercent)
	stopLoss := decimal.NewFromFloat(spec.AdvancedSettings.RiskManagement.StopLossPercent)

	baseCoin := strings.ToUpper(spec.BaseCoin)
	quoteCoin := spec.QuoteCoin
	if quoteCoin == "" {
		quoteCoin = conversation.QuoteCoin
	}
	price, ok := referencePrices[baseCoin]
	if !ok {
		price = 100
	}

	bar, ok := timeframeDurations[spec.Timeframe]
	if !ok {
		bar = time.Hour
	}
	clock := bot.CreatedAt

	hundred := decimal.NewFromInt(100)
	trades := make([]*database.PaperTrade, 0, n)
	for i := 0; i < n; i++ {
		// Random walk between trades, +-2%
		price *= 1 + (rng.Float64()*4-2)/100
		entry := decimal.NewFromFloat(price).Round(priceDecimals(price))

		side := "BUY"
		if spec.TradeType == conversation.TradeTypeFutures && rng.Intn(2) == 1 {
			side = "SELL"
		}

		outcome := database.OutcomeLoss
		move := stopLoss.Neg()
		if rng.Float64() < pWin {
			outcome = database.OutcomeWin
			move = takeProfit
		}

		// Price moves against a short the opposite way
		priceMove := move
		if side == "SELL" {
			priceMove = move.Neg()
		}
		exit := entry.Mul(hundred.Add(priceMove)).Div(hundred).Round(priceDecimals(price))

		opened := clock.Add(time.Duration(1+rng.Intn(6)) * bar)
		closed := opened.Add(time.Duration(1+rng.Intn(12)) * bar)
		clock = closed

		trades = append(trades, &database.PaperTrade{
			ID:         uuid.NewString(),
			BotID:      bot.ID,
			UserID:     bot.UserID,
			Symbol:     baseCoin + quoteCoin,
			Side:       side,
			EntryPrice: entry,
			ExitPrice:  exit,
			Quantity:   exposure.Div(entry).Round(8),
			Leverage:   leverage,
			PnL:        exposure.Mul(move).Div(hundred).Round(2),
			PnLPercent: move.Mul(lev).Round(2),
			Outcome:    outcome,
			OpenedAt:   opened,
			ClosedAt:   closed,
		})
	}
	return trades, nil
}

// SimulateAll runs Simulate for several bots concurrently. The result is keyed
// by bot id.
func (s *Simulator) SimulateAll(ctx context.Context, bots []*database.Bot, n int) (map[string][]*database.PaperTrade, error) {
	results := make([][]*database.PaperTrade, len(bots))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSims)
	for i, bot := range bots {
		i, bot := i, bot
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			trades, err := s.Simulate(bot, n)
			if err != nil {
				return fmt.Errorf("bot %s: %w", bot.ID, err)
			}
			results[i] = trades
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]*database.PaperTrade, len(bots))
	for i, bot := range bots {
		out[bot.ID] = results[i]
	}
	return out, nil
}

func seed(botID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(botID))
	return int64(h.Sum64())
}

func priceDecimals(price float64) int32 {
	switch {
	case price >= 1000:
		return 2
	case price >= 1:
		return 4
	default:
		return 6
	}
}
