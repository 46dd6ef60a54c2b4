package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"tradebot-architect/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// kvServer is a minimal KV v2 fake: it keeps the latest data per path.
type kvServer struct {
	mu      sync.Mutex
	secrets map[string]map[string]interface{}
	token   string
}

func (s *kvServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Vault-Token") != s.token {
		http.Error(w, `{"errors":["permission denied"]}`, http.StatusForbidden)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodPut || r.Method == http.MethodPost:
		var body struct {
			Data map[string]interface{} `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.secrets[path] = body.Data
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"version":1}}`))
	case r.Method == http.MethodGet:
		data, ok := s.secrets[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"data": data, "metadata": map[string]interface{}{"version": 1}},
		})
	case r.Method == http.MethodDelete:
		delete(s.secrets, strings.Replace(path, "/metadata/", "/data/", 1))
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newServerClient(t *testing.T) (*Client, *kvServer) {
	t.Helper()
	fake := &kvServer{secrets: make(map[string]map[string]interface{}), token: "root"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.VaultConfig{
		Enabled:    true,
		Address:    srv.URL,
		Token:      "root",
		MountPath:  "secret",
		SecretPath: "tradebot/exchange-keys",
	})
	require.NoError(t, err)
	return c, fake
}

func TestClient_KVRoundTrip(t *testing.T) {
	c, fake := newServerClient(t)
	ctx := context.Background()
	cred := Credential{Exchange: "binance", APIKey: "AK", SecretKey: "SK-123456"}

	require.NoError(t, c.Store(ctx, "user-1", "key-1", cred))
	assert.Contains(t, fake.secrets, "secret/data/tradebot/exchange-keys/user-1/key-1")

	got, err := c.Get(ctx, "user-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, cred, *got)

	_, err = c.Get(ctx, "user-2", "key-1")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, c.Delete(ctx, "user-1", "key-1"))
	_, err = c.Get(ctx, "user-1", "key-1")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestClient_BadToken(t *testing.T) {
	c, _ := newServerClient(t)
	c.client.SetToken("wrong")

	err := c.Store(context.Background(), "user-1", "key-1", Credential{})
	assert.Error(t, err)
}

func TestMemoryClient(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()
	assert.False(t, c.IsEnabled())
	assert.NoError(t, c.Health(ctx))

	_, err := c.Get(ctx, "u", "k")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, c.Store(ctx, "u", "k", Credential{APIKey: "a", SecretKey: "s"}))
	got, err := c.Get(ctx, "u", "k")
	require.NoError(t, err)
	assert.Equal(t, "s", got.SecretKey)

	_, err = c.Get(ctx, "other", "k")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, c.Delete(ctx, "u", "k"))
	_, err = c.Get(ctx, "u", "k")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}
