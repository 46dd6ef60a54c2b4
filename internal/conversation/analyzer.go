package conversation

import "strings"

// comprehensiveWordCount is the word count above which the user input is
// treated as an information-dense request.
const comprehensiveWordCount = 15

// shortNameWordCount is the largest current message still read as a likely bot name.
const shortNameWordCount = 4

// State describes which trading parameters the user has mentioned so far.
// It is recomputed from the full transcript on every turn and never stored.
type State struct {
	HasCapital         bool `json:"has_capital"`
	HasLeverage        bool `json:"has_leverage"`
	HasInstruments     bool `json:"has_instruments"`
	HasRisk            bool `json:"has_risk"`
	HasStrategy        bool `json:"has_strategy"`
	HasTimeframe       bool `json:"has_timeframe"`
	HasBotName         bool `json:"has_botname"`
	HasTradingPair     bool `json:"has_trading_pair"`
	HasEntryConditions bool `json:"has_entry_conditions"`
	HasExitConditions  bool `json:"has_exit_conditions"`
	HasIndicators      bool `json:"has_indicators"`
	HasGridSettings    bool `json:"has_grid_settings"`
	HasRiskManagement  bool `json:"has_risk_management"`
	HasOrderManagement bool `json:"has_order_management"`

	UserInput               string `json:"user_input"`
	QuestionCount           int    `json:"question_count"`
	IsEditingMode           bool   `json:"is_editing_mode"`
	HasComprehensiveRequest bool   `json:"has_comprehensive_request"`

	// UserMessages holds the user turns in their original case, oldest first
	UserMessages []string `json:"-"`
}

// AnalyzeState derives the conversation state from the prior turns (oldest
// first) and the newly arrived user message. It has no side effects.
func AnalyzeState(priorTurns []Turn, currentMessage string) State {
	parts := make([]string, 0, len(priorTurns)+1)
	var originals []string
	questions := 0
	for _, t := range priorTurns {
		switch t.Role {
		case RoleUser:
			parts = append(parts, strings.ToLower(t.Text))
			originals = append(originals, t.Text)
		case RoleAssistant:
			questions++
		}
	}
	if currentMessage != "" {
		parts = append(parts, strings.ToLower(currentMessage))
		originals = append(originals, currentMessage)
	}
	input := strings.Join(parts, " ")

	currentWords := len(strings.Fields(currentMessage))

	return State{
		HasCapital:         containsAny(input, capitalKeywords),
		HasLeverage:        containsAny(input, leverageKeywords),
		HasInstruments:     containsAny(input, instrumentKeywords),
		HasRisk:            containsAny(input, riskKeywords),
		HasStrategy:        containsAny(input, strategyKeywords),
		HasTimeframe:       containsAny(input, timeframeKeywords),
		HasBotName:         containsAny(input, botNameKeywords) || (currentWords > 0 && currentWords <= shortNameWordCount),
		HasTradingPair:     containsAny(input, tradingPairKeywords),
		HasEntryConditions: containsAny(input, entryConditionKeywords),
		HasExitConditions:  containsAny(input, exitConditionKeywords),
		HasIndicators:      containsAny(input, indicatorKeywords),
		HasGridSettings:    containsAny(input, gridKeywords),
		HasRiskManagement:  containsAny(input, riskManagementKeywords),
		HasOrderManagement: containsAny(input, orderManagementKeywords),

		UserInput:               input,
		UserMessages:            originals,
		QuestionCount:           questions,
		IsEditingMode:           containsAny(input, editingKeywords),
		HasComprehensiveRequest: len(strings.Fields(input)) > comprehensiveWordCount,
	}
}

// Topic is one of the required parameters the assistant asks about
type Topic int

const (
	TopicCapital Topic = iota
	TopicLeverageAndInstruments
	TopicRisk
	TopicStrategy
	TopicBotName
)

func (t Topic) String() string {
	switch t {
	case TopicCapital:
		return "capital"
	case TopicLeverageAndInstruments:
		return "leverage"
	case TopicRisk:
		return "risk"
	case TopicStrategy:
		return "strategy"
	case TopicBotName:
		return "botname"
	default:
		return "unknown"
	}
}

// NextMissing returns the first unanswered topic in asking order.
// ok is false once every required topic has been covered.
func (s State) NextMissing() (topic Topic, ok bool) {
	switch {
	case !s.HasCapital:
		return TopicCapital, true
	case !(s.HasLeverage && s.HasInstruments):
		return TopicLeverageAndInstruments, true
	case !s.HasRisk:
		return TopicRisk, true
	case !s.HasStrategy:
		return TopicStrategy, true
	case !s.HasBotName:
		return TopicBotName, true
	}
	return 0, false
}

// ReadyToFinalize reports whether every required topic is covered
func (s State) ReadyToFinalize() bool {
	_, missing := s.NextMissing()
	return !missing
}

// Recognized lists the categories already supplied, in acknowledgement order
func (s State) Recognized() []string {
	var out []string
	add := func(ok bool, label string) {
		if ok {
			out = append(out, label)
		}
	}
	add(s.HasTradingPair, "trading pair")
	add(s.HasLeverage, "leverage")
	add(s.HasIndicators, "indicators")
	add(s.HasCapital, "capital")
	add(s.HasRisk, "risk preferences")
	add(s.HasStrategy, "strategy")
	return out
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
