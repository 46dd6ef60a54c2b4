package conversation

// Keyword tables. Every lookup is a case-insensitive substring test over the
// lower-cased user input, so a keyword inside a longer word still matches.

var (
	capitalKeywords = []string{"$", "capital", "usd", "dollar", "budget", "invest", "fund", "balance"}

	leverageKeywords = []string{"leverage", "1x", "2x", "3x", "5x", "10x", "20x", "margin"}

	instrumentKeywords = []string{"spot", "futures", "perpetual", "perp", "margin", "derivative"}

	// scalping and swing pin their own stop loss / take profit, so naming
	// either answers the risk question.
	riskKeywords = []string{
		"risk", "stop loss", "stop-loss", "stoploss", "take profit", "take-profit",
		"conservative", "moderate", "aggressive", "safe", "drawdown", "scalping", "swing",
	}

	strategyKeywords = []string{
		"momentum", "scalping", "mean", "trend", "grid", "arbitrage", "dca", "swing", "reversal", "following",
	}

	timeframeKeywords = []string{
		"1m", "5m", "15m", "1h", "4h", "1d", "minute", "hour", "daily", "timeframe",
	}

	botNameKeywords = []string{"name", "call it", "called"}

	tradingPairKeywords = []string{
		"btc", "bitcoin", "eth", "ether", "sol", "doge", "usdt", "altcoin", "pair",
	}

	entryConditionKeywords = []string{"entry", "enter", "buy when", "crossover", "breakout", "signal"}

	exitConditionKeywords = []string{"exit", "sell when", "take profit", "stop loss", "target", "close"}

	indicatorKeywords = []string{
		"rsi", "macd", "ema", "sma", "bollinger", "moving average", "vwap", "stochastic", "atr", "indicator",
	}

	gridKeywords = []string{"grid", "spacing", "levels"}

	riskManagementKeywords = []string{
		"stop loss", "take profit", "position size", "max drawdown", "risk per trade", "trailing",
	}

	orderManagementKeywords = []string{
		"order size", "safety order", "base order", "martingale", "averaging", "dca",
	}

	editingKeywords = []string{"modify", "edit", "change"}
)

// keywordFamily maps an ordered group of keywords to a value; the first
// family with a match wins.
type keywordFamily[T any] struct {
	value    T
	keywords []string
}

var coinFamilies = []keywordFamily[string]{
	{"ETH", []string{"ethereum", "eth", "ether"}},
	{"ALT", []string{"altcoin", "alt"}},
	{"SOL", []string{"solana", "sol"}},
	{"DOGE", []string{"dogecoin", "doge"}},
}

var strategyFamilies = []keywordFamily[StrategyType]{
	{StrategyScalping, []string{"scalping"}},
	{StrategyMeanReversion, []string{"mean reversion", "mean", "reversal"}},
	{StrategyGrid, []string{"grid", "range"}},
	{StrategyDCA, []string{"dca", "dollar cost", "averaging"}},
	{StrategySwing, []string{"swing", "position"}},
}

var riskFamilies = []keywordFamily[RiskLevel]{
	{RiskLow, []string{"conservative", "safe", "low risk"}},
	{RiskHigh, []string{"aggressive", "high risk", "risky"}},
}

// "2-5x" and "3-5x" sit ahead of the bare "5x" so ranges resolve to their floor.
var leverageFamilies = []keywordFamily[float64]{
	{2.0, []string{"2x", "2-5x"}},
	{3.0, []string{"3x", "3-5x"}},
	{5.0, []string{"5x"}},
	{10.0, []string{"10x"}},
}

var futuresKeywords = []string{"futures", "perpetual", "leverage"}

// "15m" precedes "5m" because the latter is a substring of the former.
var timeframeFamilies = []keywordFamily[Timeframe]{
	{Timeframe15m, []string{"15m", "15 minute", "fifteen minute"}},
	{Timeframe5m, []string{"5m", "5 minute", "five minute"}},
	{Timeframe1m, []string{"1m", "1 minute", "one minute"}},
	{Timeframe4h, []string{"4h", "4 hour", "four hour"}},
	{Timeframe1h, []string{"1h", "1 hour", "one hour", "hourly"}},
	{Timeframe1d, []string{"1d", "daily", "1 day", "one day"}},
}

var indicatorEntryConditions = []keywordFamily[string]{
	{"RSI crosses back above 30", []string{"rsi"}},
	{"MACD line crosses above the signal line", []string{"macd"}},
	{"Price closes above EMA 20", []string{"ema"}},
	{"Price closes above SMA 50", []string{"sma", "moving average"}},
	{"Price touches the lower Bollinger Band", []string{"bollinger"}},
	{"Price reclaims VWAP", []string{"vwap"}},
	{"Stochastic %K crosses above %D below 20", []string{"stochastic"}},
	{"Volume exceeds the 20-period average", []string{"volume"}},
}

var defaultEntryConditions = map[StrategyType][]string{
	StrategyMomentum:      {"Price breaks above the 20-period high", "Volume exceeds the 20-period average"},
	StrategyScalping:      {"RSI crosses back above 30 on the entry timeframe", "Price holds above VWAP"},
	StrategyMeanReversion: {"RSI drops below 30", "Price closes below the lower Bollinger Band"},
	StrategyGrid:          {"Price trades inside the configured grid range", "A grid level is touched"},
	StrategyDCA:           {"Scheduled buy interval reached", "Price is below the average entry price"},
	StrategySwing:         {"Price closes above EMA 50", "MACD line crosses above the signal line"},
}

var primaryIndicators = map[StrategyType]string{
	StrategyMomentum:      "MACD",
	StrategyScalping:      "RSI",
	StrategyMeanReversion: "Bollinger Bands",
	StrategyGrid:          "Price Levels",
	StrategyDCA:           "SMA",
	StrategySwing:         "EMA",
}

var namingWords = []string{"bot", "trader", "pro", "master", "engine"}
