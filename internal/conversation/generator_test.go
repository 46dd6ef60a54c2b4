package conversation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStep_ColdStart(t *testing.T) {
	msg := "I want to trade crypto"
	text, final, spec := NextStep(AnalyzeState(nil, msg), msg, "gpt-4o")

	assert.False(t, final)
	assert.Nil(t, spec)
	assert.True(t, strings.HasPrefix(text, "[GPT-4o] "))
	assert.Contains(t, text, topicQuestions[TopicCapital])
}

func TestNextStep_AsksInFixedOrder(t *testing.T) {
	turns := []struct {
		user string
		want Topic
	}{
		{"I want to trade crypto", TopicCapital},
		{"I can put $5,000 into this", TopicLeverageAndInstruments},
		{"Use 3x leverage on futures", TopicRisk},
		{"Keep the risk conservative please", TopicStrategy},
		{"I would like a momentum strategy", TopicBotName},
	}

	var history []Turn
	for i, tt := range turns {
		state := AnalyzeState(history, tt.user)
		text, final, spec := NextStep(state, tt.user, "claude-3-7-sonnet")

		require.False(t, final, "turn %d", i)
		require.Nil(t, spec)
		assert.Contains(t, text, topicQuestions[tt.want], "turn %d should ask about %s", i, tt.want)
		for other, q := range topicQuestions {
			if other != tt.want {
				assert.NotContains(t, text, q, "turn %d", i)
			}
		}

		history = append(history, Turn{Role: RoleUser, Text: tt.user}, Turn{Role: RoleAssistant, Text: text, Stage: StageClarification})
	}

	state := AnalyzeState(history, "Alpha Trader")
	text, final, spec := NextStep(state, "Alpha Trader", "claude-3-7-sonnet")
	require.True(t, final)
	require.NotNil(t, spec)
	assert.True(t, strings.HasPrefix(text, "[Claude 3.7 Sonnet] "))

	assert.Equal(t, "Alpha Trader", spec.Name)
	assert.Equal(t, 5000, spec.TradingCapitalUSD)
	assert.Equal(t, 3.0, spec.Leverage)
	assert.Equal(t, TradeTypeFutures, spec.TradeType)
	assert.Equal(t, RiskLow, spec.RiskLevel)
	assert.Equal(t, StrategyMomentum, spec.StrategyType)
	assert.Equal(t, Timeframe15m, spec.Timeframe)
	assert.Equal(t, "BTC", spec.BaseCoin)
	rm := spec.AdvancedSettings.RiskManagement
	assert.Equal(t, 2.0, rm.StopLossPercent)
	assert.Equal(t, 3.0, rm.TakeProfitPercent)
	assert.Equal(t, 1, rm.MaxPositions)
}

func TestNextStep_FirstTurnAcknowledgesWhatItRecognized(t *testing.T) {
	msg := "I want to trade ETH with RSI signals"
	text, final, _ := NextStep(AnalyzeState(nil, msg), msg, "")

	assert.False(t, final)
	assert.Contains(t, text, "I picked up your trading pair and indicators.")
	assert.Contains(t, text, topicQuestions[TopicCapital])
	assert.Less(t, strings.Index(text, "picked up"), strings.Index(text, topicQuestions[TopicCapital]))
}

func TestNextStep_FirstTurnAcknowledgementKeepsOrder(t *testing.T) {
	msg := "scalping bitcoin with a conservative approach and a budget of $3,000"
	state := AnalyzeState(nil, msg)
	text, final, _ := NextStep(state, msg, "")

	assert.False(t, final)
	assert.Contains(t, text, "capital")
	assert.Contains(t, text, topicQuestions[TopicLeverageAndInstruments])
}

func TestNextStep_CapitalThenStop(t *testing.T) {
	msg := "$10,000 capital, 3x leverage, futures, scalping strategy, name it Lightning Bot"

	check := func(t *testing.T, text string, final bool, spec *BotSpecification) {
		require.True(t, final)
		require.NotNil(t, spec)
		assert.Equal(t, StrategyScalping, spec.StrategyType)
		assert.Equal(t, 1.5, spec.AdvancedSettings.RiskManagement.StopLossPercent)
		assert.Equal(t, 2.0, spec.AdvancedSettings.RiskManagement.TakeProfitPercent)
		assert.Equal(t, 3.0, spec.Leverage)
		assert.Equal(t, TradeTypeFutures, spec.TradeType)
		assert.Equal(t, "Lightning Bot", spec.Name)
		assert.Equal(t, 10000, spec.TradingCapitalUSD)
		assert.Equal(t, Timeframe5m, spec.Timeframe)
		assert.Equal(t, 500.0, spec.AdvancedSettings.OrderManagement.BaseOrderSize)
		assert.Contains(t, text, "```json")
	}

	t.Run("as current message", func(t *testing.T) {
		text, final, spec := NextStep(AnalyzeState(nil, msg), msg, "gpt-4o")
		check(t, text, final, spec)
	})

	t.Run("as prior turn", func(t *testing.T) {
		prior := []Turn{{Role: RoleUser, Text: msg}}
		text, final, spec := NextStep(AnalyzeState(prior, ""), "", "gpt-4o")
		check(t, text, final, spec)
	})
}

func TestNextStep_FinalizationGate(t *testing.T) {
	full := State{HasCapital: true, HasLeverage: true, HasInstruments: true, HasRisk: true, HasStrategy: true, HasBotName: true}
	_, final, spec := NextStep(full, "", "")
	require.True(t, final)
	require.NotNil(t, spec)

	clear := []func(*State){
		func(s *State) { s.HasCapital = false },
		func(s *State) { s.HasLeverage = false },
		func(s *State) { s.HasInstruments = false },
		func(s *State) { s.HasRisk = false },
		func(s *State) { s.HasStrategy = false },
		func(s *State) { s.HasBotName = false },
	}
	for i, unset := range clear {
		s := full
		unset(&s)
		text, final, spec := NextStep(s, "", "")
		assert.False(t, final, "case %d", i)
		assert.Nil(t, spec, "case %d", i)
		assert.NotEmpty(t, text)
	}
}

func TestNextStep_CoinDefault(t *testing.T) {
	msg := "$20,000 on futures at 5x, aggressive momentum, name it Rocket"
	_, final, spec := NextStep(AnalyzeState(nil, msg), msg, "")
	require.True(t, final)
	assert.Equal(t, "BTC", spec.BaseCoin)
	assert.Equal(t, "Rocket", spec.Name)
	assert.Equal(t, RiskHigh, spec.RiskLevel)
	assert.Equal(t, 5.0, spec.Leverage)
}

func TestNextStep_EditingMode(t *testing.T) {
	prior := []Turn{
		{Role: RoleUser, Text: "I want to trade crypto"},
		{Role: RoleAssistant, Text: "capital?"},
	}
	msg := "actually change it to a swing approach"
	text, final, _ := NextStep(AnalyzeState(prior, msg), msg, "")
	assert.False(t, final)
	assert.True(t, strings.HasPrefix(text, "Got it, I've noted the change."))
	assert.Contains(t, text, topicQuestions[TopicCapital])
}

func TestSummarize_EmbedsSpecification(t *testing.T) {
	msg := "grid trading with 10 orders on solana, $12,500, spot, safe, name it Grid Master"
	state := AnalyzeState(nil, msg)
	spec := BuildSpecification(state, msg)
	text := Summarize(state, spec)

	start := strings.Index(text, "```json\n")
	end := strings.LastIndex(text, "\n```")
	require.True(t, start >= 0 && end > start)

	var decoded BotSpecification
	require.NoError(t, json.Unmarshal([]byte(text[start+len("```json\n"):end]), &decoded))
	assert.Equal(t, *spec, decoded)
	assert.Contains(t, text, "- Capital: $12,500")
	assert.Contains(t, text, "- Grid: 10 linear orders spaced 2.0%")
	assert.Contains(t, text, "**Grid Master**")
}

func TestDisplayNameAndBadge(t *testing.T) {
	assert.Equal(t, "Gemini 2.0 Flash", DisplayName("gemini-2.0-flash"))
	assert.Equal(t, "custom", DisplayName("custom"))
	assert.Equal(t, "[custom] hi", WithBadge("custom", "hi"))
	assert.Equal(t, "hi", WithBadge("", "hi"))

	m, ok := ParseModel("")
	assert.True(t, ok)
	assert.Equal(t, ModelGPT4o, m)
	_, ok = ParseModel("gpt-2")
	assert.False(t, ok)
}

func TestGroupThousands(t *testing.T) {
	assert.Equal(t, "999", groupThousands(999))
	assert.Equal(t, "1,000", groupThousands(1000))
	assert.Equal(t, "12,500", groupThousands(12500))
	assert.Equal(t, "1,000,000", groupThousands(1000000))
}
