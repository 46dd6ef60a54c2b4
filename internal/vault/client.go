package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tradebot-architect/config"
	"tradebot-architect/internal/logging"

	"github.com/hashicorp/vault/api"
)

// ErrSecretNotFound is returned when no secret exists at the requested path
var ErrSecretNotFound = errors.New("vault: secret not found")

// Credential is the exchange secret material kept in Vault
type Credential struct {
	Exchange  string `json:"exchange"`
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
}

// Client wraps the HashiCorp Vault KV v2 API. With Vault disabled it keeps
// credentials in process memory, which is only suitable for development.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu     sync.RWMutex
	memory map[string]Credential
}

func log() *logging.Logger {
	return logging.WithComponent("vault")
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	c := &Client{
		config: cfg,
		memory: make(map[string]Credential),
	}
	if !cfg.Enabled {
		log().Warn("Vault disabled, exchange credentials stay in memory")
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	c.client = client

	log().Info("Vault client ready", "address", cfg.Address, "mount", cfg.MountPath)
	return c, nil
}

// NewMemoryClient returns a client that never talks to a Vault server
func NewMemoryClient() *Client {
	c, _ := NewClient(config.VaultConfig{Enabled: false})
	return c
}

// IsEnabled returns whether a Vault server backs this client
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Store writes the credential for (userID, keyID), replacing any previous version
func (c *Client) Store(ctx context.Context, userID, keyID string, cred Credential) error {
	if !c.config.Enabled {
		c.mu.Lock()
		c.memory[memoryKey(userID, keyID)] = cred
		c.mu.Unlock()
		return nil
	}

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"exchange":   cred.Exchange,
			"api_key":    cred.APIKey,
			"secret_key": cred.SecretKey,
		},
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, c.dataPath(userID, keyID), payload); err != nil {
		return fmt.Errorf("failed to store credential in vault: %w", err)
	}
	return nil
}

// Get reads the credential for (userID, keyID)
func (c *Client) Get(ctx context.Context, userID, keyID string) (*Credential, error) {
	if !c.config.Enabled {
		c.mu.RLock()
		defer c.mu.RUnlock()
		cred, ok := c.memory[memoryKey(userID, keyID)]
		if !ok {
			return nil, ErrSecretNotFound
		}
		return &cred, nil
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.dataPath(userID, keyID))
	if err != nil {
		return nil, fmt.Errorf("failed to read credential from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrSecretNotFound
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format at %s", c.dataPath(userID, keyID))
	}

	return &Credential{
		Exchange:  getString(data, "exchange"),
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
	}, nil
}

// Delete removes every version of the credential for (userID, keyID)
func (c *Client) Delete(ctx context.Context, userID, keyID string) error {
	if !c.config.Enabled {
		c.mu.Lock()
		delete(c.memory, memoryKey(userID, keyID))
		c.mu.Unlock()
		return nil
	}

	if _, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath(userID, keyID)); err != nil {
		return fmt.Errorf("failed to delete credential from vault: %w", err)
	}
	return nil
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return errors.New("vault is sealed")
	}
	return nil
}

func (c *Client) dataPath(userID, keyID string) string {
	return fmt.Sprintf("%s/data/%s/%s/%s", c.config.MountPath, c.config.SecretPath, userID, keyID)
}

func (c *Client) metadataPath(userID, keyID string) string {
	return fmt.Sprintf("%s/metadata/%s/%s/%s", c.config.MountPath, c.config.SecretPath, userID, keyID)
}

func memoryKey(userID, keyID string) string {
	return userID + "/" + keyID
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
