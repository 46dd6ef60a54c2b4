// Package chat runs one conversational turn: it loads the transcript, lets an
// LLM answer the first couple of turns when one is reachable, and otherwise
// falls back to the deterministic bot designer in package conversation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"tradebot-architect/config"
	"tradebot-architect/internal/conversation"
	"tradebot-architect/internal/database"
	"tradebot-architect/internal/events"
	"tradebot-architect/internal/logging"

	"github.com/google/uuid"
)

var (
	ErrUnknownModel    = errors.New("unknown ai model")
	ErrInvalidSession  = errors.New("invalid session id")
	ErrEmptyMessage    = errors.New("message is required")
	ErrMessageTooLong  = errors.New("message is too long")
	ErrSessionNotFound = errors.New("chat session not found")
)

// Reply sources
const (
	SourceLLM    = "llm"
	SourceEngine = "engine"
)

// TranscriptStore is the durable home of chat turns
type TranscriptStore interface {
	ListTurns(ctx context.Context, userID, sessionID string) ([]conversation.Turn, error)
	AppendTurns(ctx context.Context, userID, sessionID, model string, turns ...conversation.Turn) error
	DeleteSession(ctx context.Context, userID, sessionID string) (int64, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]*database.ChatSession, error)
}

// TranscriptCache fronts the store. Any error from Get is treated as a miss.
type TranscriptCache interface {
	Get(ctx context.Context, userID, sessionID string) ([]conversation.Turn, error)
	Set(ctx context.Context, userID, sessionID string, turns []conversation.Turn) error
	Invalidate(ctx context.Context, userID, sessionID string) error
}

// BotStore persists finalized specifications. A session owns at most one bot.
type BotStore interface {
	SaveSessionBot(ctx context.Context, userID, sessionID string, spec *conversation.BotSpecification) (*database.Bot, bool, error)
}

// Responder produces a free-form reply from an external model. Any error
// means "unavailable".
type Responder interface {
	Available(model conversation.Model) bool
	Reply(ctx context.Context, model conversation.Model, state conversation.State, history []conversation.Turn, message string) (string, error)
}

// TurnRequest is one inbound user message
type TurnRequest struct {
	UserID    string
	SessionID string
	AIModel   string
	Message   string
}

// TurnReply is what the caller shows the user
type TurnReply struct {
	SessionID     string                         `json:"session_id"`
	Message       string                         `json:"message"`
	ReadyToCreate bool                           `json:"ready_to_create"`
	BotConfig     *conversation.BotSpecification `json:"bot_config"`
	BotID         *string                        `json:"bot_id"`
	Source        string                         `json:"source"`
	Model         string                         `json:"model"`
}

// Service orchestrates chat turns
type Service struct {
	cfg       config.ChatConfig
	store     TranscriptStore
	bots      BotStore
	cache     TranscriptCache
	responder Responder
	publisher events.Publisher
}

// NewService creates a chat service. The cache, responder and publisher are
// optional and attached with the setters.
func NewService(cfg config.ChatConfig, store TranscriptStore, bots BotStore) *Service {
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 15 * time.Second
	}
	if cfg.MinLLMResponseChars <= 0 {
		cfg.MinLLMResponseChars = 100
	}
	return &Service{cfg: cfg, store: store, bots: bots}
}

// SetCache attaches a transcript cache
func (s *Service) SetCache(c TranscriptCache) {
	s.cache = c
}

// SetResponder attaches the opportunistic LLM responder
func (s *Service) SetResponder(r Responder) {
	s.responder = r
}

// SetPublisher attaches an event publisher
func (s *Service) SetPublisher(p events.Publisher) {
	s.publisher = p
}

// ProcessTurn handles one user message and returns the assistant reply.
// Only transcript and bot persistence failures are returned as errors; LLM
// problems always fall back to the deterministic engine.
func (s *Service) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnReply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if s.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(message) > s.cfg.MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	model, ok := conversation.ParseModel(req.AIModel)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, req.AIModel)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	} else if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ErrInvalidSession
	}

	log := logging.ChatContext(req.UserID, sessionID, string(model))

	history, err := s.transcript(ctx, req.UserID, sessionID)
	if err != nil {
		return nil, err
	}

	state := conversation.AnalyzeState(history, message)
	log.Debug("Conversation state",
		"capital", state.HasCapital,
		"leverage", state.HasLeverage,
		"instruments", state.HasInstruments,
		"risk", state.HasRisk,
		"strategy", state.HasStrategy,
		"botname", state.HasBotName,
		"question_count", state.QuestionCount,
		"editing", state.IsEditingMode,
		"comprehensive", state.HasComprehensiveRequest,
	)

	reply := &TurnReply{SessionID: sessionID, Model: string(model), Source: SourceEngine}

	var text string
	if !state.ReadyToFinalize() {
		if llmText, ok := s.opportunistic(ctx, log, model, state, history, message); ok {
			text = llmText
			reply.Source = SourceLLM
		}
	}
	if reply.Source == SourceEngine {
		text, reply.ReadyToCreate, reply.BotConfig = conversation.NextStep(state, message, string(model))
	}
	reply.Message = text

	// The bot is saved before the turn is recorded; a failed save must not
	// leave a finalization reply in the transcript.
	stage := conversation.StageClarification
	if reply.ReadyToCreate {
		bot, created, err := s.bots.SaveSessionBot(ctx, req.UserID, sessionID, reply.BotConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to save bot: %w", err)
		}
		reply.BotID = &bot.ID
		if created {
			log.Info("Bot created from chat", "bot_id", bot.ID, "strategy", bot.StrategyType)
			s.publish(events.BotCreated(req.UserID, bot.ID, bot.Name, sessionID))
		}
		stage = conversation.StageFinalization
	}

	err = s.store.AppendTurns(ctx, req.UserID, sessionID, string(model),
		conversation.Turn{Role: conversation.RoleUser, Text: message},
		conversation.Turn{Role: conversation.RoleAssistant, Text: text, Stage: stage},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record chat turn: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, req.UserID, sessionID); err != nil {
			log.Debug("Transcript cache invalidation failed", "error", err)
		}
	}

	s.publish(events.ChatTurn(req.UserID, sessionID, reply.Source, reply.ReadyToCreate))
	return reply, nil
}

// opportunistic makes the single early-turn LLM attempt. ok is false when
// the attempt was skipped or its answer discarded.
func (s *Service) opportunistic(ctx context.Context, log *logging.Logger, model conversation.Model, state conversation.State, history []conversation.Turn, message string) (string, bool) {
	if s.responder == nil || len(history) > s.cfg.OpportunisticMaxHistory {
		return "", false
	}
	if !s.responder.Available(model) {
		return "", false
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	start := time.Now()
	text, err := s.responder.Reply(callCtx, model, state, history, message)
	if err != nil {
		log.WithError(err).WithDuration(time.Since(start)).Warn("LLM reply unavailable, using engine")
		return "", false
	}
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n < s.cfg.MinLLMResponseChars {
		log.Warn("LLM reply too short, using engine", "chars", n)
		return "", false
	}
	return conversation.WithBadge(string(model), text), true
}

// transcript reads through the cache
func (s *Service) transcript(ctx context.Context, userID, sessionID string) ([]conversation.Turn, error) {
	if s.cache != nil {
		if turns, err := s.cache.Get(ctx, userID, sessionID); err == nil {
			return turns, nil
		}
	}

	turns, err := s.store.ListTurns(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, userID, sessionID, turns)
	}
	return turns, nil
}

// Transcript returns the turns of a session
func (s *Service) Transcript(ctx context.Context, userID, sessionID string) ([]conversation.Turn, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ErrInvalidSession
	}
	turns, err := s.transcript(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, ErrSessionNotFound
	}
	return turns, nil
}

// DeleteSession clears a session transcript
func (s *Service) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return ErrInvalidSession
	}
	n, err := s.store.DeleteSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, userID, sessionID)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Sessions lists the sessions of a user
func (s *Service) Sessions(ctx context.Context, userID string) ([]*database.ChatSession, error) {
	return s.store.ListSessions(ctx, userID, 50)
}

func (s *Service) publish(e events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(e)
	}
}
