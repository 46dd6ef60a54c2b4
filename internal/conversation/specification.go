package conversation

// StrategyType is the trading approach a bot runs
type StrategyType string

const (
	StrategyMomentum      StrategyType = "momentum"
	StrategyScalping      StrategyType = "scalping"
	StrategyMeanReversion StrategyType = "mean_reversion"
	StrategyGrid          StrategyType = "grid"
	StrategyDCA           StrategyType = "dca"
	StrategySwing         StrategyType = "swing"
)

// TradeType is the market a bot trades on
type TradeType string

const (
	TradeTypeSpot    TradeType = "spot"
	TradeTypeFutures TradeType = "futures"
)

// RiskLevel is the user's risk appetite
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Timeframe is the candle interval signals are evaluated on
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

const (
	QuoteCoin         = "USDT"
	DefaultBaseCoin   = "BTC"
	DefaultCapitalUSD = 10000
	MinCapitalUSD     = 1000
	MaxCapitalUSD     = 1000000
	SignalBarClosing  = "bar_closing"
)

// BotSpecification is the complete configuration produced at the end of a
// conversation. It is built once and not modified afterwards.
type BotSpecification struct {
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	BaseCoin          string           `json:"base_coin"`
	QuoteCoin         string           `json:"quote_coin"`
	TradeType         TradeType        `json:"trade_type"`
	TradingCapitalUSD int              `json:"trading_capital_usd"`
	Leverage          float64          `json:"leverage"`
	StrategyType      StrategyType     `json:"strategy_type"`
	Timeframe         Timeframe        `json:"timeframe"`
	RiskLevel         RiskLevel        `json:"risk_level"`
	AdvancedSettings  AdvancedSettings `json:"advanced_settings"`
}

// AdvancedSettings holds the execution rules of a bot
type AdvancedSettings struct {
	EntryConditions     []string            `json:"entry_conditions"`
	ExitConditions      []string            `json:"exit_conditions"`
	TechnicalIndicators TechnicalIndicators `json:"technical_indicators"`
	GridSettings        *GridSettings       `json:"grid_settings"`
	RiskManagement      RiskManagement      `json:"risk_management"`
	OrderManagement     OrderManagement     `json:"order_management"`
}

type TechnicalIndicators struct {
	Primary    string    `json:"primary"`
	Interval   Timeframe `json:"interval"`
	SignalType string    `json:"signal_type"`
}

type GridSettings struct {
	OrdersCount          int     `json:"orders_count"`
	SpacingType          string  `json:"spacing_type"`
	SpacingPercentage    float64 `json:"spacing_percentage"`
	MartingaleMultiplier float64 `json:"martingale_multiplier"`
}

type RiskManagement struct {
	StopLossPercent   float64 `json:"stop_loss_percent"`
	TakeProfitPercent float64 `json:"take_profit_percent"`
	MaxPositions      int     `json:"max_positions"`
	RiskPerTrade      float64 `json:"risk_per_trade"`
	MaxDrawdown       float64 `json:"max_drawdown"`
}

type OrderManagement struct {
	BaseOrderSize     float64 `json:"base_order_size"`
	SafetyOrderSize   float64 `json:"safety_order_size"`
	SafetyOrdersCount int     `json:"safety_orders_count"`
	PriceDeviation    float64 `json:"price_deviation"`
}

// riskProfile is one row of the stop loss / take profit table
type riskProfile struct {
	stopLoss     float64
	takeProfit   float64
	maxPositions int
}

var riskProfiles = map[RiskLevel]riskProfile{
	RiskLow:    {stopLoss: 2.0, takeProfit: 3.0, maxPositions: 1},
	RiskMedium: {stopLoss: 3.0, takeProfit: 5.0, maxPositions: 2},
	RiskHigh:   {stopLoss: 5.0, takeProfit: 8.0, maxPositions: 3},
}

// Strategy overrides replace stop loss and take profit but keep max positions.
var strategyRiskOverrides = map[StrategyType]riskProfile{
	StrategyScalping: {stopLoss: 1.5, takeProfit: 2.0},
	StrategySwing:    {stopLoss: 5.0, takeProfit: 10.0},
}

func defaultGridSettings() *GridSettings {
	return &GridSettings{
		OrdersCount:          10,
		SpacingType:          "linear",
		SpacingPercentage:    2.0,
		MartingaleMultiplier: 1.2,
	}
}

// AllStrategies lists every strategy the generator can emit
func AllStrategies() []StrategyType {
	return []StrategyType{
		StrategyMomentum, StrategyScalping, StrategyMeanReversion, StrategyGrid, StrategyDCA, StrategySwing,
	}
}

// AllRiskLevels lists every risk level the generator can emit
func AllRiskLevels() []RiskLevel {
	return []RiskLevel{RiskLow, RiskMedium, RiskHigh}
}
