package conversation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	capitalPattern = regexp.MustCompile(`\$?(\d{1,3}(?:,\d{3})+|\d+)(k)?`)

	// explicit naming phrases, matched against the original casing
	namePhrasePattern = regexp.MustCompile(`(?i)\b(?:name it|call it|named|called|name is|name:)\s*["']?([\p{L}\p{N}][^,.;!?\n"']*)`)
)

const (
	maxShortNameLen = 50
	maxNameLen      = 50
)

func matchFamily[T any](text string, families []keywordFamily[T]) (T, bool) {
	for _, f := range families {
		if containsAny(text, f.keywords) {
			return f.value, true
		}
	}
	var zero T
	return zero, false
}

// extractCapital returns the first amount in range, treating a "k" suffix on
// values below 1000 as thousands.
func extractCapital(text string) int {
	for _, m := range capitalPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			continue
		}
		if m[2] != "" && n < 1000 {
			n *= 1000
		}
		if n >= MinCapitalUSD && n <= MaxCapitalUSD {
			return n
		}
	}
	return DefaultCapitalUSD
}

func extractLeverage(text string) float64 {
	if lev, ok := matchFamily(text, leverageFamilies); ok {
		return lev
	}
	if strings.Contains(text, "futures") {
		return 3.0
	}
	return 1.0
}

func extractCoin(text string) string {
	if coin, ok := matchFamily(text, coinFamilies); ok {
		return coin
	}
	return DefaultBaseCoin
}

func extractStrategy(text string) StrategyType {
	if st, ok := matchFamily(text, strategyFamilies); ok {
		return st
	}
	return StrategyMomentum
}

func extractTradeType(text string) TradeType {
	if containsAny(text, futuresKeywords) {
		return TradeTypeFutures
	}
	return TradeTypeSpot
}

func extractRiskLevel(text string) RiskLevel {
	if lvl, ok := matchFamily(text, riskFamilies); ok {
		return lvl
	}
	return RiskMedium
}

func extractTimeframe(text string, strategy StrategyType) Timeframe {
	if tf, ok := matchFamily(text, timeframeFamilies); ok {
		return tf
	}
	switch strategy {
	case StrategyScalping:
		return Timeframe5m
	case StrategySwing:
		return Timeframe4h
	default:
		return Timeframe15m
	}
}

// resolveRiskProfile applies the risk level row first and then the strategy override.
func resolveRiskProfile(level RiskLevel, strategy StrategyType) riskProfile {
	p, ok := riskProfiles[level]
	if !ok {
		p = riskProfiles[RiskMedium]
	}
	if o, ok := strategyRiskOverrides[strategy]; ok {
		p.stopLoss = o.stopLoss
		p.takeProfit = o.takeProfit
	}
	return p
}

// extractBotName picks the bot name: an explicit naming phrase, then a short
// message that reads like a name, then the latest naming phrase of earlier
// user messages, then a generated one. Names keep the user's casing.
func extractBotName(currentMessage string, userMessages []string, coin string, strategy StrategyType) string {
	if name := namedPhrase(currentMessage); name != "" {
		return name
	}
	trimmed := strings.TrimSpace(currentMessage)
	if trimmed != "" && utf8.RuneCountInString(trimmed) < maxShortNameLen && containsAny(strings.ToLower(trimmed), namingWords) {
		return trimmed
	}
	for i := len(userMessages) - 1; i >= 0; i-- {
		if name := namedPhrase(userMessages[i]); name != "" {
			return name
		}
	}
	return fmt.Sprintf("%s %s Pro", coin, strategyTitle(strategy))
}

func namedPhrase(text string) string {
	m := namePhrasePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	name := strings.TrimSpace(m[1])
	if utf8.RuneCountInString(name) > maxNameLen {
		name = strings.TrimSpace(string([]rune(name)[:maxNameLen]))
	}
	return name
}

func strategyTitle(s StrategyType) string {
	return titleCase(strings.ReplaceAll(string(s), "_", " "))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

func entryConditions(text string, strategy StrategyType) []string {
	var out []string
	for _, f := range indicatorEntryConditions {
		if containsAny(text, f.keywords) {
			out = append(out, f.value)
		}
	}
	if len(out) > 0 {
		return out
	}
	return append([]string(nil), defaultEntryConditions[strategy]...)
}

func exitConditions(p riskProfile) []string {
	return []string{
		fmt.Sprintf("Take profit at +%.1f%%", p.takeProfit),
		fmt.Sprintf("Stop loss at -%.1f%%", p.stopLoss),
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// BuildSpecification synthesizes the final bot configuration from the state
// and the message that completed it.
func BuildSpecification(state State, currentMessage string) *BotSpecification {
	text := state.UserInput

	capital := extractCapital(text)
	coin := extractCoin(text)
	strategy := extractStrategy(text)
	tradeType := extractTradeType(text)
	risk := extractRiskLevel(text)
	timeframe := extractTimeframe(text, strategy)
	profile := resolveRiskProfile(risk, strategy)

	capitalF := float64(capital)
	baseOrderPct := 0.10
	if strategy == StrategyScalping {
		baseOrderPct = 0.05
	}

	var grid *GridSettings
	if strategy == StrategyGrid || state.HasGridSettings {
		grid = defaultGridSettings()
	}

	return &BotSpecification{
		Name:              extractBotName(currentMessage, state.UserMessages, coin, strategy),
		Description:       describe(strategy, coin, tradeType, risk),
		BaseCoin:          coin,
		QuoteCoin:         QuoteCoin,
		TradeType:         tradeType,
		TradingCapitalUSD: capital,
		Leverage:          extractLeverage(text),
		StrategyType:      strategy,
		Timeframe:         timeframe,
		RiskLevel:         risk,
		AdvancedSettings: AdvancedSettings{
			EntryConditions: entryConditions(text, strategy),
			ExitConditions:  exitConditions(profile),
			TechnicalIndicators: TechnicalIndicators{
				Primary:    primaryIndicators[strategy],
				Interval:   timeframe,
				SignalType: SignalBarClosing,
			},
			GridSettings: grid,
			RiskManagement: RiskManagement{
				StopLossPercent:   profile.stopLoss,
				TakeProfitPercent: profile.takeProfit,
				MaxPositions:      profile.maxPositions,
				RiskPerTrade:      roundCents(math.Min(capitalF*0.02, 200)),
				MaxDrawdown:       roundCents(capitalF * 0.15),
			},
			OrderManagement: OrderManagement{
				BaseOrderSize:     roundCents(capitalF * baseOrderPct),
				SafetyOrderSize:   roundCents(capitalF * 0.05),
				SafetyOrdersCount: 3,
				PriceDeviation:    2.5,
			},
		},
	}
}

func describe(strategy StrategyType, coin string, tradeType TradeType, risk RiskLevel) string {
	return fmt.Sprintf("Automated %s strategy trading %s/%s on the %s market with %s risk",
		strings.ReplaceAll(string(strategy), "_", " "), coin, QuoteCoin, tradeType, risk)
}
