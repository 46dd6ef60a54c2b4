package llm

import (
	"fmt"
	"strings"

	"tradebot-architect/internal/conversation"
)

// SystemPromptBotArchitect steers the opportunistic early-turn replies. The
// model only converses; the final configuration always comes from the
// deterministic generator.
const SystemPromptBotArchitect = `You are a friendly crypto trading bot architect helping a user design an automated trading bot.

Over the conversation you need to learn:
1. Trading capital in USD (between $1,000 and $1,000,000)
2. Spot or futures, and the leverage to use
3. Risk appetite (conservative, moderate or aggressive) or explicit stop loss / take profit
4. Strategy: momentum, scalping, mean reversion, grid, DCA or swing
5. A name for the bot

Rules:
- Acknowledge anything the user already told you, then ask about the first missing item in the order above.
- Ask one question at a time and keep replies under 120 words.
- Never output JSON, code blocks or a final configuration. Never promise profits.`

// BuildMessages converts stored turns plus the new user message into provider messages
func BuildMessages(history []conversation.Turn, current string) []Message {
	msgs := make([]Message, 0, len(history)+1)
	for _, t := range history {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		role := "user"
		if t.Role == conversation.RoleAssistant {
			role = "assistant"
		}
		msgs = append(msgs, Message{Role: role, Content: t.Text})
	}
	msgs = append(msgs, Message{Role: "user", Content: current})
	return msgs
}

// BuildSystemPrompt appends what has already been recognized so the model does not ask again
func BuildSystemPrompt(state conversation.State) string {
	recognized := state.Recognized()
	if len(recognized) == 0 {
		return SystemPromptBotArchitect
	}
	return fmt.Sprintf("%s\n\nAlready provided by the user: %s.", SystemPromptBotArchitect, strings.Join(recognized, ", "))
}
