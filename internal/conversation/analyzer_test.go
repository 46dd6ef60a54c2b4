package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func userTurn(text string) Turn      { return Turn{Role: RoleUser, Text: text} }
func assistantTurn(text string) Turn { return Turn{Role: RoleAssistant, Text: text, Stage: StageClarification} }

func TestAnalyzeState_Empty(t *testing.T) {
	s := AnalyzeState(nil, "")
	assert.Equal(t, State{}, s)
}

func TestAnalyzeState_ColdStart(t *testing.T) {
	s := AnalyzeState(nil, "I want to trade crypto")

	assert.False(t, s.HasCapital)
	assert.False(t, s.HasLeverage)
	assert.False(t, s.HasInstruments)
	assert.False(t, s.HasRisk)
	assert.False(t, s.HasStrategy)
	assert.False(t, s.HasBotName, "five words is not a short name")
	assert.False(t, s.HasTradingPair)
	assert.Equal(t, "i want to trade crypto", s.UserInput)
	assert.Equal(t, 0, s.QuestionCount)
	assert.False(t, s.HasComprehensiveRequest)
}

func TestAnalyzeState_JoinsOnlyUserTurns(t *testing.T) {
	prior := []Turn{
		userTurn("Hello THERE"),
		assistantTurn("Which strategy: momentum, grid or swing?"),
		userTurn("Budget is $5,000"),
		assistantTurn("Spot or futures?"),
	}
	s := AnalyzeState(prior, "Futures please")

	assert.Equal(t, "hello there budget is $5,000 futures please", s.UserInput)
	assert.Equal(t, 2, s.QuestionCount)
	assert.True(t, s.HasCapital)
	assert.True(t, s.HasInstruments)
	assert.False(t, s.HasStrategy, "assistant text must not count as evidence")
}

func TestAnalyzeState_ShortMessageCountsAsName(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Lightning Bot", true},
		{"Alpha", true},
		{"my shiny new btc bot", false},
		{"call it Zeus", true},
		{"please give it a good name when we finish", true},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, AnalyzeState(nil, tt.msg).HasBotName)
		})
	}
}

func TestAnalyzeState_ShortNameUsesCurrentMessageOnly(t *testing.T) {
	prior := []Turn{userTurn("Alpha")}
	s := AnalyzeState(prior, "I would like a momentum strategy")
	assert.False(t, s.HasBotName)
}

func TestAnalyzeState_SubstringMatching(t *testing.T) {
	// "sol" inside "console" still counts as a trading pair mention
	s := AnalyzeState(nil, "I read the console output every morning")
	assert.True(t, s.HasTradingPair)
}

func TestAnalyzeState_EditingAndComprehensive(t *testing.T) {
	s := AnalyzeState(nil, "Please change the leverage")
	assert.True(t, s.IsEditingMode)
	assert.False(t, s.HasComprehensiveRequest)

	long := "I want a bot that trades bitcoin futures with three times leverage and a careful approach to drawdowns overall"
	s = AnalyzeState(nil, long)
	assert.True(t, s.HasComprehensiveRequest)
	assert.False(t, s.IsEditingMode)
}

func TestAnalyzeState_Deterministic(t *testing.T) {
	prior := []Turn{
		userTurn("I have 25k to invest in ETH"),
		assistantTurn("Spot or futures?"),
		userTurn("futures with 5x leverage, RSI and MACD entries"),
	}
	first := AnalyzeState(prior, "grid strategy, aggressive")
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, AnalyzeState(prior, "grid strategy, aggressive"))
	}
}

func TestAnalyzeState_Monotonic(t *testing.T) {
	messages := []string{
		"I would like to start with $20,000 of capital",
		"Trade ETH perpetual futures using 3x leverage",
		"Keep the risk conservative with a tight stop loss",
		"Run a grid strategy on the 1h timeframe please",
		"Use RSI and MACD as entry signal confirmation",
		"Exit at the take profit target, add safety order steps",
	}

	var prior []Turn
	prev := AnalyzeState(nil, "")
	for _, msg := range messages {
		cur := AnalyzeState(prior, msg)
		for name, was := range flagSet(prev) {
			if was && name != "has_botname" {
				assert.True(t, flagSet(cur)[name], "%s flipped back to false after %q", name, msg)
			}
		}
		prior = append(prior, userTurn(msg), assistantTurn("ok"))
		prev = cur
	}
	assert.True(t, prev.HasOrderManagement)
	assert.True(t, prev.HasExitConditions)
}

func flagSet(s State) map[string]bool {
	return map[string]bool{
		"has_capital":          s.HasCapital,
		"has_leverage":         s.HasLeverage,
		"has_instruments":      s.HasInstruments,
		"has_risk":             s.HasRisk,
		"has_strategy":         s.HasStrategy,
		"has_timeframe":        s.HasTimeframe,
		"has_botname":          s.HasBotName,
		"has_trading_pair":     s.HasTradingPair,
		"has_entry_conditions": s.HasEntryConditions,
		"has_exit_conditions":  s.HasExitConditions,
		"has_indicators":       s.HasIndicators,
		"has_grid_settings":    s.HasGridSettings,
		"has_risk_management":  s.HasRiskManagement,
		"has_order_management": s.HasOrderManagement,
	}
}

func TestState_NextMissingOrder(t *testing.T) {
	s := State{}
	topic, ok := s.NextMissing()
	assert.True(t, ok)
	assert.Equal(t, TopicCapital, topic)

	s.HasCapital = true
	s.HasLeverage = true
	topic, _ = s.NextMissing()
	assert.Equal(t, TopicLeverageAndInstruments, topic, "leverage alone is not enough")

	s.HasInstruments = true
	topic, _ = s.NextMissing()
	assert.Equal(t, TopicRisk, topic)

	s.HasRisk = true
	topic, _ = s.NextMissing()
	assert.Equal(t, TopicStrategy, topic)

	s.HasStrategy = true
	topic, _ = s.NextMissing()
	assert.Equal(t, TopicBotName, topic)

	s.HasBotName = true
	_, ok = s.NextMissing()
	assert.False(t, ok)
	assert.True(t, s.ReadyToFinalize())
}
