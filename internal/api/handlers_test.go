package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"tradebot-architect/config"
	"tradebot-architect/internal/auth"
	"tradebot-architect/internal/cache"
	"tradebot-architect/internal/chat"
	"tradebot-architect/internal/conversation"
	"tradebot-architect/internal/database"
	"tradebot-architect/internal/events"
	"tradebot-architect/internal/exchangekeys"
	"tradebot-architect/internal/papertrade"
	"tradebot-architect/internal/payments"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "11111111-1111-1111-1111-111111111111"

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeChat records the last request and returns canned results
type fakeChat struct {
	got   chat.TurnRequest
	reply *chat.TurnReply
	err   error
}

func (f *fakeChat) ProcessTurn(_ context.Context, req chat.TurnRequest) (*chat.TurnReply, error) {
	f.got = req
	return f.reply, f.err
}

func (f *fakeChat) Transcript(_ context.Context, _, _ string) ([]conversation.Turn, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []conversation.Turn{{Role: conversation.RoleUser, Text: "hi"}}, nil
}

func (f *fakeChat) DeleteSession(_ context.Context, _, _ string) error { return f.err }

func (f *fakeChat) Sessions(_ context.Context, _ string) ([]*database.ChatSession, error) {
	return []*database.ChatSession{{SessionID: "s-1", MessageCount: 2}}, f.err
}

// fakeBots keeps bots in memory
type fakeBots struct {
	mu   sync.Mutex
	bots map[string]*database.Bot
	err  error
}

func newFakeBots(bots ...*database.Bot) *fakeBots {
	f := &fakeBots{bots: make(map[string]*database.Bot)}
	for _, b := range bots {
		f.bots[b.ID] = b
	}
	return f
}

func (f *fakeBots) CreateBot(_ context.Context, userID, _ string, spec *conversation.BotSpecification) (*database.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := &database.Bot{ID: "new-bot", UserID: userID, Name: spec.Name, Status: database.BotStatusActive, Config: spec}
	f.bots[b.ID] = b
	return b, nil
}

func (f *fakeBots) GetBot(_ context.Context, userID, botID string) (*database.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bots[botID]
	if !ok || b.UserID != userID {
		return nil, database.ErrNotFound
	}
	return b, nil
}

func (f *fakeBots) ListBots(_ context.Context, userID string) ([]*database.Bot, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*database.Bot
	for _, b := range f.bots {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBots) UpdateBotStatus(ctx context.Context, userID, botID, status string) (*database.Bot, error) {
	b, err := f.GetBot(ctx, userID, botID)
	if err != nil {
		return nil, err
	}
	b.Status = status
	return b, nil
}

func (f *fakeBots) SetBotPublic(ctx context.Context, userID, botID string, public bool) (*database.Bot, error) {
	b, err := f.GetBot(ctx, userID, botID)
	if err != nil {
		return nil, err
	}
	b.IsPublic = public
	return b, nil
}

func (f *fakeBots) DeleteBot(ctx context.Context, userID, botID string) error {
	if _, err := f.GetBot(ctx, userID, botID); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.bots, botID)
	f.mu.Unlock()
	return nil
}

func (f *fakeBots) ListPublicBots(_ context.Context, _ string, _, _ int) ([]*database.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*database.Bot
	for _, b := range f.bots {
		if b.IsPublic {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBots) CloneBot(_ context.Context, userID, botID string) (*database.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.bots[botID]
	if !ok || !src.IsPublic {
		return nil, database.ErrNotFound
	}
	clone := *src
	clone.ID = "clone-" + botID
	clone.UserID = userID
	clone.IsPublic = false
	clone.Status = database.BotStatusPaused
	clone.ClonedFrom = &src.ID
	f.bots[clone.ID] = &clone
	return &clone, nil
}

// fakePaper returns a fixed summary for every bot
type fakePaper struct {
	gotCount int
	err      error
}

func (f *fakePaper) Run(_ context.Context, _, botID string, count int) (*papertrade.Report, error) {
	f.gotCount = count
	if f.err != nil {
		return nil, f.err
	}
	return &papertrade.Report{BotID: botID, Summary: papertrade.Summary{TotalTrades: count}}, nil
}

func (f *fakePaper) Get(_ context.Context, _, botID string) (*papertrade.Report, error) {
	return &papertrade.Report{BotID: botID}, f.err
}

func (f *fakePaper) Clear(_ context.Context, _, _ string) (int64, error) { return 20, f.err }

func (f *fakePaper) Previews(_ context.Context, bots []*database.Bot, count int) (map[string]papertrade.Summary, error) {
	out := make(map[string]papertrade.Summary, len(bots))
	for _, b := range bots {
		out[b.ID] = papertrade.Summary{TotalTrades: count}
	}
	return out, nil
}

// fakePayments returns err from every call when set
type fakePayments struct {
	err       error
	gotSig    string
	gotStatus string
}

func (f *fakePayments) CreateInvoice(_ context.Context, userID string, req payments.CreateInvoiceRequest) (*database.Payment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &database.Payment{OrderID: "order-1", UserID: userID, Plan: &req.Plan, Status: database.PaymentStatusWaiting}, nil
}

func (f *fakePayments) HandleWebhook(_ context.Context, _ []byte, signature string) (*database.Payment, error) {
	f.gotSig = signature
	if f.err != nil {
		return nil, f.err
	}
	return &database.Payment{OrderID: "order-1", Status: database.PaymentStatusFinished}, nil
}

func (f *fakePayments) RequestWithdrawal(_ context.Context, userID string, req payments.WithdrawalRequest) (*database.Withdrawal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &database.Withdrawal{ID: "w-1", UserID: userID, AmountUSD: req.AmountUSD}, nil
}

func (f *fakePayments) Balance(_ context.Context, _ string) (decimal.Decimal, error) {
	return decimal.RequireFromString("12.5"), f.err
}

func (f *fakePayments) Subscription(_ context.Context, userID string) (*database.Subscription, error) {
	return &database.Subscription{UserID: userID, Plan: payments.PlanPro, Status: "active"}, f.err
}

func (f *fakePayments) Payments(_ context.Context, _ string) ([]*database.Payment, error) {
	return nil, f.err
}

func (f *fakePayments) Withdrawals(_ context.Context, _ string) ([]*database.Withdrawal, error) {
	return nil, f.err
}

func (f *fakePayments) AllPayments(_ context.Context, status string, _, _ int) ([]*database.Payment, error) {
	f.gotStatus = status
	return []*database.Payment{}, f.err
}

type fakeKeys struct {
	err error
}

func (f *fakeKeys) Create(_ context.Context, _ string, req exchangekeys.CreateRequest) (*exchangekeys.KeyView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &exchangekeys.KeyView{ID: "k-1", Exchange: req.Exchange, APIKey: exchangekeys.MaskKey(req.APIKey)}, nil
}

func (f *fakeKeys) List(_ context.Context, _ string) ([]*exchangekeys.KeyView, error) {
	return []*exchangekeys.KeyView{}, f.err
}

func (f *fakeKeys) Delete(_ context.Context, _, _ string) error { return f.err }

func (f *fakeKeys) Test(_ context.Context, _, _ string) (*exchangekeys.AccountCheck, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &exchangekeys.AccountCheck{CanTrade: true}, nil
}

type fixture struct {
	server *Server
	chat   *fakeChat
	bots   *fakeBots
	paper  *fakePaper
	pay    *fakePayments
	keys   *fakeKeys
	bus    *events.EventBus
}

func newFixture(t *testing.T, mutate func(*Deps, *config.ServerConfig)) *fixture {
	t.Helper()
	f := &fixture{
		chat:  &fakeChat{},
		bots:  newFakeBots(),
		paper: &fakePaper{},
		pay:   &fakePayments{},
		keys:  &fakeKeys{},
		bus:   events.NewEventBus(),
	}
	deps := Deps{
		Chat:         f.chat,
		Bots:         f.bots,
		PaperTrades:  f.paper,
		Payments:     f.pay,
		ExchangeKeys: f.keys,
		EventBus:     f.bus,
	}
	cfg := config.ServerConfig{AllowedOrigins: "*", RateLimit: 1000}
	if mutate != nil {
		mutate(&deps, &cfg)
	}
	f.server = NewServer(cfg, config.AuthConfig{DefaultUserID: testUser}, deps)
	t.Cleanup(f.server.hub.Stop)
	return f
}

func (f *fixture) do(method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name   string
		probes []HealthProbe
		status int
	}{
		{"no probes", nil, http.StatusOK},
		{"all ok", []HealthProbe{
			{Name: "database", Critical: true, Check: func(context.Context) error { return nil }},
		}, http.StatusOK},
		{"optional probe down", []HealthProbe{
			{Name: "database", Critical: true, Check: func(context.Context) error { return nil }},
			{Name: "redis", Check: func(context.Context) error { return down }},
		}, http.StatusOK},
		{"database down", []HealthProbe{
			{Name: "database", Critical: true, Check: func(context.Context) error { return down }},
		}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(d *Deps, _ *config.ServerConfig) { d.Probes = tt.probes })
			w := f.do(http.MethodGet, "/health", nil)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHealth_ReportsChecks(t *testing.T) {
	f := newFixture(t, func(d *Deps, _ *config.ServerConfig) {
		d.Probes = []HealthProbe{{Name: "redis", Check: func(context.Context) error { return errors.New("timeout") }}}
	})
	body := decode(t, f.do(http.MethodGet, "/health", nil))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "timeout", body["checks"].(map[string]interface{})["redis"])
}

func TestChat(t *testing.T) {
	f := newFixture(t, nil)
	f.chat.reply = &chat.TurnReply{SessionID: "s-1", Message: "What coin?", Source: chat.SourceEngine}

	w := f.do(http.MethodPost, "/api/chat", gin.H{"message": "build me a bot", "ai_model": "gpt-4o"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, testUser, f.chat.got.UserID)
	assert.Equal(t, "build me a bot", f.chat.got.Message)
	assert.Equal(t, "gpt-4o", f.chat.got.AIModel)

	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "s-1", data["session_id"])
	assert.Equal(t, "engine", data["source"])
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{chat.ErrEmptyMessage, http.StatusBadRequest},
		{chat.ErrMessageTooLong, http.StatusBadRequest},
		{chat.ErrUnknownModel, http.StatusBadRequest},
		{chat.ErrInvalidSession, http.StatusBadRequest},
		{errors.New("pool exhausted"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			f := newFixture(t, nil)
			f.chat.err = tt.err
			w := f.do(http.MethodPost, "/api/chat", gin.H{"message": "x"})
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestChat_InternalErrorIsHidden(t *testing.T) {
	f := newFixture(t, nil)
	f.chat.err = errors.New("password authentication failed for user postgres")

	w := f.do(http.MethodPost, "/api/chat", gin.H{"message": "x"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "postgres")
}

func TestChatSessions(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/api/chat/sessions", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/chat/sessions/s-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"messages"`)
	assert.Contains(t, w.Body.String(), `"text":"hi"`)

	f.chat.err = chat.ErrSessionNotFound
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/chat/sessions/s-2", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/chat/sessions/s-2", nil).Code)
}

func validSpec(t *testing.T) json.RawMessage {
	t.Helper()
	msg := "scalping bot on BTC futures with $5000, medium risk and 5x leverage"
	spec := conversation.BuildSpecification(conversation.AnalyzeState(nil, msg), msg)
	raw, err := json.Marshal(spec)
	require.NoError(t, err)
	return raw
}

func TestCreateBot(t *testing.T) {
	f := newFixture(t, nil)
	got := make(chan events.Event, 1)
	f.bus.Subscribe(events.EventBotCreated, func(e events.Event) { got <- e })

	w := f.do(http.MethodPost, "/api/bots", gin.H{"bot_config": validSpec(t)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	select {
	case e := <-got:
		assert.Equal(t, testUser, e.UserID)
		assert.Equal(t, "new-bot", e.Data["bot_id"])
	case <-time.After(time.Second):
		t.Fatal("no BOT_CREATED event")
	}
}

func TestCreateBot_Rejects(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/bots", gin.H{}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/bots", gin.H{"bot_config": gin.H{"name": "x"}}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/bots", "{not json").Code)
}

func TestBotLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	f.bots.bots["b-1"] = &database.Bot{ID: "b-1", UserID: testUser, Status: database.BotStatusActive}
	f.bots.bots["b-2"] = &database.Bot{ID: "b-2", UserID: "someone-else"}

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/bots/b-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/bots/b-2", nil).Code)

	w := f.do(http.MethodPatch, "/api/bots/b-1/status", gin.H{"status": "Paused"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, database.BotStatusPaused, f.bots.bots["b-1"].Status)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPatch, "/api/bots/b-1/status", gin.H{"status": "running"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPatch, "/api/bots/b-1/status", gin.H{}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPatch, "/api/bots/b-2/status", gin.H{"status": "paused"}).Code)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/bots/b-1/publish", nil).Code)
	assert.True(t, f.bots.bots["b-1"].IsPublic)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/bots/b-1/publish", gin.H{"public": false}).Code)
	assert.False(t, f.bots.bots["b-1"].IsPublic)

	assert.Equal(t, http.StatusOK, f.do(http.MethodDelete, "/api/bots/b-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/bots/b-1", nil).Code)
}

func TestPaperTrades(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/bots/b-1/paper-trades", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, papertrade.DefaultTradeCount, f.paper.gotCount)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/bots/b-1/paper-trades", gin.H{"count": 50}).Code)
	assert.Equal(t, 50, f.paper.gotCount)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/bots/b-1/paper-trades", nil).Code)

	w = f.do(http.MethodDelete, "/api/bots/b-1/paper-trades", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(20), decode(t, w)["data"].(map[string]interface{})["deleted"])

	f.paper.err = papertrade.ErrInvalidCount
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/bots/b-1/paper-trades", gin.H{"count": 500}).Code)
	f.paper.err = database.ErrNotFound
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/bots/b-1/paper-trades", nil).Code)
}

func TestMarketplace(t *testing.T) {
	f := newFixture(t, nil)
	f.bots.bots["pub"] = &database.Bot{ID: "pub", UserID: "author", Name: "Grid BTC", IsPublic: true}
	f.bots.bots["priv"] = &database.Bot{ID: "priv", UserID: "author"}

	w := f.do(http.MethodGet, "/api/marketplace/bots?limit=500", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(100), data["limit"])
	list := data["bots"].([]interface{})
	require.Len(t, list, 1)
	entry := list[0].(map[string]interface{})
	assert.Equal(t, "pub", entry["id"])
	assert.Equal(t, float64(marketplacePreviewTrades), entry["paper_preview"].(map[string]interface{})["total_trades"])

	w = f.do(http.MethodPost, "/api/marketplace/bots/pub/clone", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	clone := f.bots.bots["clone-pub"]
	require.NotNil(t, clone)
	assert.Equal(t, testUser, clone.UserID)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/marketplace/bots/priv/clone", nil).Code)
}

func TestPayments(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/payments/invoices", gin.H{"plan": "pro"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodGet, "/api/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12.50", decode(t, w)["data"].(map[string]interface{})["balance_usd"])

	w = f.do(http.MethodGet, "/api/subscriptions/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"plan":{`)

	w = f.do(http.MethodGet, "/api/subscriptions/plans", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], len(payments.Plans()))

	w = f.do(http.MethodPost, "/api/withdrawals", gin.H{"amount_usd": 25, "address": "TXYZ"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestPayments_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"disabled", payments.ErrPaymentsDisabled, http.StatusServiceUnavailable},
		{"unknown plan", payments.ErrUnknownPlan, http.StatusBadRequest},
		{"small amount", payments.ErrInvalidAmount, http.StatusBadRequest},
		{"gateway", &payments.APIError{StatusCode: 500, Message: "down"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.pay.err = tt.err
			assert.Equal(t, tt.status, f.do(http.MethodPost, "/api/payments/invoices", gin.H{"plan": "pro"}).Code)
		})
	}
}

func TestWithdrawal_ErrorMapping(t *testing.T) {
	f := newFixture(t, nil)

	f.pay.err = database.ErrInsufficientBalance
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/withdrawals", gin.H{"amount_usd": 25, "address": "T"}).Code)

	f.pay.err = payments.ErrPayoutFailed
	assert.Equal(t, http.StatusBadGateway, f.do(http.MethodPost, "/api/withdrawals", gin.H{"amount_usd": 25, "address": "T"}).Code)
}

func TestPaymentWebhook(t *testing.T) {
	f := newFixture(t, func(d *Deps, _ *config.ServerConfig) {
		d.JWT = auth.NewJWTManager(config.AuthConfig{JWTSecret: "secret", AccessTokenDuration: time.Hour})
	})

	w := f.do(http.MethodPost, "/api/payments/webhook", `{"order_id":"order-1"}`, signatureHeader, "abc")
	require.Equal(t, http.StatusOK, w.Code, "webhook must not require a user token")
	assert.Equal(t, "abc", f.pay.gotSig)

	f.pay.err = payments.ErrInvalidSignature
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/payments/webhook", `{}`).Code)

	f.pay.err = payments.ErrInvalidPayload
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/payments/webhook", `{}`).Code)
}

func TestExchangeKeys(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/exchange-keys", gin.H{"exchange": "binance", "api_key": "ABCDEFGHIJKL", "secret_key": "s"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "ABCD****IJKL")

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/exchange-keys", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/exchange-keys/k-1/test", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodDelete, "/api/exchange-keys/k-1", nil).Code)

	f.keys.err = exchangekeys.ErrRejected
	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodPost, "/api/exchange-keys/k-1/test", nil).Code)

	f.keys.err = exchangekeys.ErrUnsupportedExchange
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/exchange-keys", gin.H{"exchange": "kraken"}).Code)
}

func TestAuthEnabled(t *testing.T) {
	jwtManager := auth.NewJWTManager(config.AuthConfig{
		JWTSecret:           "super-secret-jwt-token-with-at-least-32-characters",
		Audience:            "authenticated",
		AccessTokenDuration: time.Hour,
	})
	f := newFixture(t, func(d *Deps, _ *config.ServerConfig) { d.JWT = jwtManager })

	userToken, err := jwtManager.GenerateAccessToken(auth.UserClaims{UserID: "u-1"})
	require.NoError(t, err)
	adminToken, err := jwtManager.GenerateAccessToken(auth.UserClaims{UserID: "admin", IsAdmin: true})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/bots", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/bots", nil, "Authorization", "Bearer "+userToken).Code)

	// Marketplace browsing is public
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/marketplace/bots", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/marketplace/bots/x/clone", nil).Code)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/admin/payments", nil, "Authorization", "Bearer "+userToken).Code)
	w := f.do(http.MethodGet, "/api/admin/payments?status=Finished&limit=10", nil, "Authorization", "Bearer "+adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "finished", f.pay.gotStatus)
}

func TestAuthDisabled_NoAdmin(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/admin/payments", nil).Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(_ *Deps, cfg *config.ServerConfig) { cfg.RateLimit = 2 })

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/bots", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/bots", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/api/bots", nil).Code)

	// Health is never limited
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", nil).Code)
}

func TestRateLimit_SharedThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cs, err := cache.NewCacheService(config.RedisConfig{Enabled: true, Address: mr.Addr()})
	require.NoError(t, err)
	defer cs.Close()

	newInstance := func() *fixture {
		return newFixture(t, func(d *Deps, cfg *config.ServerConfig) {
			d.Cache = cs
			cfg.RateLimit = 3
		})
	}
	a, b := newInstance(), newInstance()

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/bots", nil).Code)
	assert.Equal(t, http.StatusOK, b.do(http.MethodGet, "/api/bots", nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/bots", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, b.do(http.MethodGet, "/api/bots", nil).Code)
}

func TestRateLimiter_Window(t *testing.T) {
	rl := NewRateLimiter(1, 50*time.Millisecond)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow("a"))
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"https://a.io", "https://b.io"}, splitOrigins(" https://a.io, ,https://b.io "))
	assert.NotEmpty(t, splitOrigins(""))
}

func TestPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		query          string
		limit, offset int
	}{
		{"", 20, 0},
		{"?limit=5&offset=10", 5, 10},
		{"?limit=-1&offset=-3", 20, 0},
		{"?limit=abc", 20, 0},
		{"?limit=1000", 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			limit, offset := pagination(c, 20, 100)
			assert.Equal(t, tt.limit, limit)
			assert.Equal(t, tt.offset, offset)
		})
	}
}
