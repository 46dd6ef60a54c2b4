package papertrade

import (
	"context"

	"tradebot-architect/internal/database"
	"tradebot-architect/internal/events"
	"tradebot-architect/internal/logging"
)

// Store reads bots and persists their paper trades
type Store interface {
	GetBot(ctx context.Context, userID, botID string) (*database.Bot, error)
	ReplacePaperTrades(ctx context.Context, userID, botID string, trades []*database.PaperTrade) error
	ListPaperTrades(ctx context.Context, userID, botID string, limit int) ([]*database.PaperTrade, error)
	DeletePaperTrades(ctx context.Context, userID, botID string) (int64, error)
}

// Report is a bot's paper trades with their summary
type Report struct {
	BotID   string                 `json:"bot_id"`
	Trades  []*database.PaperTrade `json:"trades"`
	Summary Summary                `json:"summary"`
}

// Service runs and stores paper trading sessions
type Service struct {
	store     Store
	sim       *Simulator
	publisher events.Publisher
}

// NewService creates a new paper trading service
func NewService(store Store, sim *Simulator) *Service {
	return &Service{store: store, sim: sim}
}

// SetPublisher sets the event publisher
func (s *Service) SetPublisher(p events.Publisher) {
	s.publisher = p
}

// Run simulates count trades for one of the caller's bots and replaces its
// previous paper history. count 0 means DefaultTradeCount.
func (s *Service) Run(ctx context.Context, userID, botID string, count int) (*Report, error) {
	if count == 0 {
		count = DefaultTradeCount
	}
	if count < 1 || count > MaxTradeCount {
		return nil, ErrInvalidCount
	}

	bot, err := s.store.GetBot(ctx, userID, botID)
	if err != nil {
		return nil, err
	}
	trades, err := s.sim.Simulate(bot, count)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplacePaperTrades(ctx, userID, botID, trades); err != nil {
		return nil, err
	}

	report := &Report{BotID: botID, Trades: trades, Summary: Summarize(trades)}
	logging.BotContext(userID, botID).Info("Paper trades simulated",
		"count", count, "win_rate", report.Summary.WinRate.String(), "net_pnl", report.Summary.NetPnL.String())

	if s.publisher != nil {
		s.publisher.Publish(events.PaperTradesReady(userID, botID, count, report.Summary.NetPnL.StringFixed(2)))
	}
	return report, nil
}

// Get returns the stored paper trades of a bot
func (s *Service) Get(ctx context.Context, userID, botID string) (*Report, error) {
	if _, err := s.store.GetBot(ctx, userID, botID); err != nil {
		return nil, err
	}
	trades, err := s.store.ListPaperTrades(ctx, userID, botID, MaxTradeCount)
	if err != nil {
		return nil, err
	}
	return &Report{BotID: botID, Trades: trades, Summary: Summarize(trades)}, nil
}

// Clear removes a bot's paper trades
func (s *Service) Clear(ctx context.Context, userID, botID string) (int64, error) {
	if _, err := s.store.GetBot(ctx, userID, botID); err != nil {
		return 0, err
	}
	return s.store.DeletePaperTrades(ctx, userID, botID)
}

// Previews simulates trades for bots without storing them and returns one
// summary per bot id. Used to rank marketplace listings.
func (s *Service) Previews(ctx context.Context, bots []*database.Bot, count int) (map[string]Summary, error) {
	withConfig := make([]*database.Bot, 0, len(bots))
	for _, b := range bots {
		if b.Config != nil {
			withConfig = append(withConfig, b)
		}
	}
	results, err := s.sim.SimulateAll(ctx, withConfig, count)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Summary, len(results))
	for id, trades := range results {
		out[id] = Summarize(trades)
	}
	return out, nil
}
