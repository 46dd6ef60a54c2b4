package exchangekeys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradebot-architect/internal/database"
	"tradebot-architect/internal/logging"
	"tradebot-architect/internal/vault"

	"github.com/google/uuid"
)

// ExchangeBinance is the only exchange credentials can be stored for
const ExchangeBinance = "binance"

var (
	ErrUnsupportedExchange = errors.New("unsupported exchange")
	ErrMissingCredentials  = errors.New("api_key and secret_key are required")
)

func log() *logging.Logger {
	return logging.WithComponent("exchangekeys")
}

// Store persists credential rows
type Store interface {
	CreateExchangeKey(ctx context.Context, k *database.ExchangeKey) error
	GetExchangeKey(ctx context.Context, userID, id string) (*database.ExchangeKey, error)
	ListExchangeKeys(ctx context.Context, userID string) ([]*database.ExchangeKey, error)
	TouchExchangeKey(ctx context.Context, userID, id string) error
	DeleteExchangeKey(ctx context.Context, userID, id string) error
}

// SecretStore keeps secrets outside the database when enabled
type SecretStore interface {
	IsEnabled() bool
	Store(ctx context.Context, userID, keyID string, cred vault.Credential) error
	Get(ctx context.Context, userID, keyID string) (*vault.Credential, error)
	Delete(ctx context.Context, userID, keyID string) error
}

// CreateRequest is the body of POST /api/exchange-keys
type CreateRequest struct {
	Exchange  string `json:"exchange"`
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Label     string `json:"label"`
}

// KeyView is a credential as shown to its owner. Secrets never leave the service.
type KeyView struct {
	ID           string     `json:"id"`
	Exchange     string     `json:"exchange"`
	Label        *string    `json:"label,omitempty"`
	APIKey       string     `json:"api_key"`
	SecretLast4  string     `json:"secret_last4"`
	VaultStored  bool       `json:"vault_stored"`
	LastTestedAt *time.Time `json:"last_tested_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Service manages exchange credentials
type Service struct {
	store    Store
	secrets  SecretStore
	sealer   *Sealer
	verifier Verifier
}

// NewService creates a new exchange key service. secrets may be nil.
func NewService(store Store, secrets SecretStore, sealer *Sealer, verifier Verifier) *Service {
	return &Service{
		store:    store,
		secrets:  secrets,
		sealer:   sealer,
		verifier: verifier,
	}
}

func (s *Service) vaultEnabled() bool {
	return s.secrets != nil && s.secrets.IsEnabled()
}

// Create stores a credential. With Vault enabled the secret goes to Vault and
// the row only keeps its last four characters.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*KeyView, error) {
	exchange := strings.ToLower(strings.TrimSpace(req.Exchange))
	if exchange == "" {
		exchange = ExchangeBinance
	}
	if exchange != ExchangeBinance {
		return nil, ErrUnsupportedExchange
	}
	apiKey := strings.TrimSpace(req.APIKey)
	secret := strings.TrimSpace(req.SecretKey)
	if apiKey == "" || secret == "" {
		return nil, ErrMissingCredentials
	}

	k := &database.ExchangeKey{
		ID:          uuid.NewString(),
		UserID:      userID,
		Exchange:    exchange,
		APIKey:      apiKey,
		SecretLast4: last4(secret),
	}
	if label := strings.TrimSpace(req.Label); label != "" {
		k.Label = &label
	}

	if s.vaultEnabled() {
		cred := vault.Credential{Exchange: exchange, APIKey: apiKey, SecretKey: secret}
		if err := s.secrets.Store(ctx, userID, k.ID, cred); err != nil {
			return nil, err
		}
		k.VaultStored = true
	} else {
		sealed, err := s.sealer.Seal(secret, binding(userID, k.ID))
		if err != nil {
			return nil, err
		}
		k.SecretCiphertext = sealed
	}

	if err := s.store.CreateExchangeKey(ctx, k); err != nil {
		if k.VaultStored {
			if derr := s.secrets.Delete(ctx, userID, k.ID); derr != nil {
				log().WithError(derr).Warn("Failed to remove orphaned vault secret", "key_id", k.ID)
			}
		}
		return nil, fmt.Errorf("failed to store exchange key: %w", err)
	}

	log().Info("Exchange key stored", "user_id", userID, "key_id", k.ID, "vault", k.VaultStored)
	return toView(k), nil
}

// List returns the caller's credentials with the api key masked
func (s *Service) List(ctx context.Context, userID string) ([]*KeyView, error) {
	keys, err := s.store.ListExchangeKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]*KeyView, 0, len(keys))
	for _, k := range keys {
		views = append(views, toView(k))
	}
	return views, nil
}

// Delete removes a credential and its Vault secret
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	k, err := s.store.GetExchangeKey(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteExchangeKey(ctx, userID, id); err != nil {
		return err
	}
	if k.VaultStored && s.secrets != nil {
		if err := s.secrets.Delete(ctx, userID, id); err != nil {
			log().WithError(err).Warn("Failed to delete vault secret", "key_id", id)
		}
	}
	return nil
}

// Test checks the credential against the exchange and records the time of a
// successful check
func (s *Service) Test(ctx context.Context, userID, id string) (*AccountCheck, error) {
	k, err := s.store.GetExchangeKey(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	apiKey, secret, err := s.reveal(ctx, k)
	if err != nil {
		return nil, err
	}

	check, err := s.verifier.Verify(ctx, apiKey, secret)
	if err != nil {
		log().WithError(err).Info("Exchange key test failed", "user_id", userID, "key_id", id)
		return nil, err
	}

	if err := s.store.TouchExchangeKey(ctx, userID, id); err != nil {
		log().WithError(err).Warn("Failed to record exchange key test", "key_id", id)
	}
	return check, nil
}

func (s *Service) reveal(ctx context.Context, k *database.ExchangeKey) (string, string, error) {
	if k.VaultStored {
		if s.secrets == nil {
			return "", "", fmt.Errorf("key %s is stored in vault but vault is not configured", k.ID)
		}
		cred, err := s.secrets.Get(ctx, k.UserID, k.ID)
		if err != nil {
			return "", "", err
		}
		return cred.APIKey, cred.SecretKey, nil
	}

	secret, err := s.sealer.Open(k.SecretCiphertext, binding(k.UserID, k.ID))
	if err != nil {
		return "", "", err
	}
	return k.APIKey, secret, nil
}

func toView(k *database.ExchangeKey) *KeyView {
	return &KeyView{
		ID:           k.ID,
		Exchange:     k.Exchange,
		Label:        k.Label,
		APIKey:       MaskKey(k.APIKey),
		SecretLast4:  k.SecretLast4,
		VaultStored:  k.VaultStored,
		LastTestedAt: k.LastTestedAt,
		CreatedAt:    k.CreatedAt,
	}
}

// MaskKey keeps the first and last four characters of a key
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func last4(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}

func binding(userID, keyID string) string {
	return userID + "/" + keyID
}
