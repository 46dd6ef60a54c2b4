package conversation

// Role identifies who authored a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Stage labels recorded with assistant turns. Informational only.
const (
	StageClarification = "clarification"
	StageFinalization  = "finalization"
)

// Turn is one recorded chat message. Turns are never mutated once stored.
type Turn struct {
	Role  Role   `json:"role"`
	Text  string `json:"text"`
	Stage string `json:"stage,omitempty"`
}

// Model is the AI model label a client picks for a chat session
type Model string

const (
	ModelGPT4o          Model = "gpt-4o"
	ModelClaude37Sonnet Model = "claude-3-7-sonnet"
	ModelGemini20Flash  Model = "gemini-2.0-flash"
)

// DefaultModel is used when a request does not name one
const DefaultModel = ModelGPT4o

var modelDisplayNames = map[Model]string{
	ModelGPT4o:          "GPT-4o",
	ModelClaude37Sonnet: "Claude 3.7 Sonnet",
	ModelGemini20Flash:  "Gemini 2.0 Flash",
}

// ParseModel maps a client label to a known model. Empty selects the default.
func ParseModel(label string) (Model, bool) {
	if label == "" {
		return DefaultModel, true
	}
	m := Model(label)
	if _, ok := modelDisplayNames[m]; !ok {
		return "", false
	}
	return m, true
}

// DisplayName returns the human readable badge for a model label
func DisplayName(label string) string {
	if name, ok := modelDisplayNames[Model(label)]; ok {
		return name
	}
	return label
}
