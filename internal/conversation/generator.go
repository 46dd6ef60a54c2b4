package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

var topicQuestions = map[Topic]string{
	TopicCapital: "How much capital would you like this bot to trade with? " +
		"For example $5,000 or 10k USDT.",
	TopicLeverageAndInstruments: "Should the bot trade spot or futures, and with what leverage? " +
		"For example spot with no leverage, or futures at 3x.",
	TopicRisk: "How should the bot handle risk? Tell me whether you prefer a conservative, " +
		"moderate or aggressive approach, or give me your stop loss and take profit.",
	TopicStrategy: "Which strategy should it run: momentum, scalping, mean reversion, grid, DCA or swing?",
	TopicBotName:  "Last step: what would you like to call your bot?",
}

// NextStep decides the assistant's reply for this turn. While a required
// topic is missing it returns the next question with final=false and a nil
// specification. Once everything is known it returns a confirmation summary,
// final=true and the synthesized specification.
func NextStep(state State, currentMessage, modelLabel string) (text string, final bool, spec *BotSpecification) {
	topic, missing := state.NextMissing()
	if missing {
		return WithBadge(modelLabel, clarification(state, topic)), false, nil
	}
	spec = BuildSpecification(state, currentMessage)
	return WithBadge(modelLabel, Summarize(state, spec)), true, spec
}

func clarification(state State, topic Topic) string {
	question := topicQuestions[topic]
	if state.QuestionCount == 0 {
		if recognized := state.Recognized(); len(recognized) > 0 {
			return fmt.Sprintf("Great start! I picked up your %s. %s", joinList(recognized), question)
		}
		return "Let's design your trading bot together. " + question
	}
	if state.IsEditingMode {
		return "Got it, I've noted the change. " + question
	}
	return question
}

// Summarize renders the confirmation message with the specification embedded
// as a fenced JSON block.
func Summarize(state State, spec *BotSpecification) string {
	rm := spec.AdvancedSettings.RiskManagement

	var b strings.Builder
	if state.IsEditingMode && state.QuestionCount > 0 {
		b.WriteString("Updated! ")
	}
	b.WriteString("Your bot is ready to create.\n\n")
	fmt.Fprintf(&b, "**%s**\n%s.\n\n", spec.Name, spec.Description)
	fmt.Fprintf(&b, "- Capital: $%s\n", groupThousands(spec.TradingCapitalUSD))
	fmt.Fprintf(&b, "- Market: %s/%s %s at %gx leverage\n", spec.BaseCoin, spec.QuoteCoin, spec.TradeType, spec.Leverage)
	fmt.Fprintf(&b, "- Strategy: %s on the %s timeframe\n", strategyTitle(spec.StrategyType), spec.Timeframe)
	fmt.Fprintf(&b, "- Risk: %s, stop loss %.1f%%, take profit %.1f%%, up to %d open positions\n",
		spec.RiskLevel, rm.StopLossPercent, rm.TakeProfitPercent, rm.MaxPositions)
	if g := spec.AdvancedSettings.GridSettings; g != nil {
		fmt.Fprintf(&b, "- Grid: %d %s orders spaced %.1f%%\n", g.OrdersCount, g.SpacingType, g.SpacingPercentage)
	}

	raw, err := json.MarshalIndent(spec, "", "  ")
	if err == nil {
		b.WriteString("\n```json\n")
		b.Write(raw)
		b.WriteString("\n```\n")
	}
	b.WriteString("\nConfirm to create the bot, or tell me what you'd like to change.")
	return b.String()
}

// WithBadge prefixes text with the display name of the model that is
// answering, e.g. "[GPT-4o] ...".
func WithBadge(modelLabel, text string) string {
	if modelLabel == "" {
		return text
	}
	return fmt.Sprintf("[%s] %s", DisplayName(modelLabel), text)
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

func groupThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
