package auth

import (
	"errors"
	"fmt"
	"time"

	"tradebot-architect/config"

	"github.com/golang-jwt/jwt/v5"
)

// JWTManager verifies Supabase-issued HS256 access tokens. It can also mint
// tokens with the same shape for local development and tests.
type JWTManager struct {
	secret              []byte
	issuer              string
	audience            string
	accessTokenDuration time.Duration
}

// Claims represents the JWT claims
type Claims struct {
	Email       string      `json:"email,omitempty"`
	Role        string      `json:"role,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(cfg config.AuthConfig) *JWTManager {
	d := cfg.AccessTokenDuration
	if d <= 0 {
		d = time.Hour
	}
	return &JWTManager{
		secret:              []byte(cfg.JWTSecret),
		issuer:              cfg.Issuer,
		audience:            cfg.Audience,
		accessTokenDuration: d,
	}
}

// GenerateAccessToken signs a token for claims
func (m *JWTManager) GenerateAccessToken(claims UserClaims) (string, error) {
	now := time.Now()

	registered := jwt.RegisteredClaims{
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTokenDuration)),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    m.issuer,
	}
	if m.audience != "" {
		registered.Audience = jwt.ClaimStrings{m.audience}
	}

	role := claims.Role
	if role == "" {
		role = RoleAuthenticated
	}
	meta := AppMetadata{Provider: "email"}
	if claims.IsAdmin {
		meta.Role = RoleAdmin
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:            claims.Email,
		Role:             role,
		AppMetadata:      meta,
		RegisteredClaims: registered,
	})

	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// ValidateAccessToken validates an access token and returns the claims
func (m *JWTManager) ValidateAccessToken(tokenString string) (*UserClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &UserClaims{
		UserID:  claims.Subject,
		Email:   claims.Email,
		Role:    claims.Role,
		IsAdmin: claims.Role == RoleServiceRole || claims.AppMetadata.Role == RoleAdmin,
	}, nil
}

// GetAccessTokenDuration returns the access token duration in seconds
func (m *JWTManager) GetAccessTokenDuration() int64 {
	return int64(m.accessTokenDuration.Seconds())
}
