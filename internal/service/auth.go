package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/llmrelay/llmrelay/internal/config"
	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/repository"
)

// AuthError classifies a failed client-credential check. Detail is what gets
// persisted in the 401 call log; Missing distinguishes an absent credential
// from an unknown or revoked one.
type AuthError struct {
	Detail  string
	Missing bool
}

func (e *AuthError) Error() string {
	return e.Detail
}

// AuthService validates client API keys and handles the admin login flow.
type AuthService struct {
	keys   repository.APIKeyRepository
	cfg    config.AuthConfig
	logger *zap.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(keys repository.APIKeyRepository, cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	return &AuthService{keys: keys, cfg: cfg, logger: logger}
}

// ValidateAPIKey resolves a raw credential to an active API key and
// refreshes its last-used stamp. Failures return an *AuthError.
func (s *AuthService) ValidateAPIKey(ctx context.Context, rawKey string) (*models.APIKey, error) {
	if rawKey == "" {
		return nil, &AuthError{Detail: "No API key provided.", Missing: true}
	}

	key, err := s.keys.FindByKey(ctx, rawKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	if key == nil || !key.IsActive {
		return nil, &AuthError{
			Detail: fmt.Sprintf("Incorrect API key provided or key has been revoked: %s...", keyPrefix(rawKey)),
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.keys.TouchLastUsed(ctx, key.ID); err != nil {
			s.logger.Debug("failed to update api key last used", zap.Error(err))
		}
	}()

	return key, nil
}

// keyPrefix returns the first characters of a credential for log lines,
// never the whole token.
func keyPrefix(key string) string {
	if len(key) > 10 {
		return key[:10]
	}
	return key
}

// Login verifies the configured admin credentials and mints a bearer token.
func (s *AuthService) Login(username, password string) (string, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.AdminUsername)) == 1
	if !userOK || !verifyAdminPassword(password, s.cfg.AdminPassword) {
		return "", fmt.Errorf("incorrect username or password")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyAdminToken parses a bearer token and returns the admin username it
// was issued to.
func (s *AuthService) VerifyAdminToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("could not validate credentials")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("could not validate credentials")
	}
	if subject != s.cfg.AdminUsername {
		return "", fmt.Errorf("could not validate credentials")
	}
	return subject, nil
}

// verifyAdminPassword compares the presented password with the configured
// one. A configured value in bcrypt format ($2a$/$2b$/$2y$) is treated as a
// hash so deployments never need the plaintext in the environment.
func verifyAdminPassword(password, configured string) bool {
	if len(configured) > 3 && configured[0] == '$' && configured[1] == '2' {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(configured)) == 1
}

const apiKeyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateAPIKey returns a fresh client credential: "sk-" followed by 48
// high-entropy alphanumeric characters.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	for i, b := range buf {
		buf[i] = apiKeyAlphabet[int(b)%len(apiKeyAlphabet)]
	}
	return "sk-" + string(buf), nil
}
