package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/lshigami/Pangolin/config"
)

// Credential is a short-lived, attempt-scoped grant for joining the media
// gateway. One credential is good for exactly one attempt.
type Credential struct {
	Token     string
	Endpoint  string
	ExpiresAt time.Time
}

// CredentialIssuer hands out media-gateway access credentials scoped to a
// single attempt.
type CredentialIssuer interface {
	Issue(studentKey, attemptID string) (*Credential, error)
}

type jwtCredentialIssuer struct {
	secret   []byte
	endpoint string
	ttl      time.Duration
}

func NewCredentialIssuer(cfg *config.Config) (CredentialIssuer, error) {
	if cfg.Auth.TokenSecret == "" {
		return nil, fmt.Errorf("AUTH_TOKEN_SECRET is not set")
	}
	ttl := cfg.Auth.TokenTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &jwtCredentialIssuer{
		secret:   []byte(cfg.Auth.TokenSecret),
		endpoint: cfg.Media.Endpoint,
		ttl:      ttl,
	}, nil
}

func (i *jwtCredentialIssuer) Issue(studentKey, attemptID string) (*Credential, error) {
	if studentKey == "" || attemptID == "" {
		return nil, fmt.Errorf("student key and attempt id are required to issue a credential")
	}

	expiresAt := time.Now().Add(i.ttl)
	claims := jwt.MapClaims{
		"sub":        studentKey,
		"attempt_id": attemptID,
		"scope":      "exam:attempt",
		"iat":        time.Now().Unix(),
		"exp":        expiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign media credential: %w", err)
	}

	return &Credential{Token: signed, Endpoint: i.endpoint, ExpiresAt: expiresAt}, nil
}

// VerifyCredential parses and checks a media credential, returning the
// studentKey and attemptID it was issued for. Used by the result intake
// endpoint to tie an agent callback to its attempt.
func VerifyCredential(cfg *config.Config, tokenString string) (studentKey, attemptID string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.Auth.TokenSecret), nil
	})
	if err != nil {
		return "", "", fmt.Errorf("invalid media credential: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("invalid media credential claims")
	}
	if scope, _ := claims["scope"].(string); scope != "exam:attempt" {
		return "", "", fmt.Errorf("credential has wrong scope")
	}

	studentKey, _ = claims["sub"].(string)
	attemptID, _ = claims["attempt_id"].(string)
	if studentKey == "" || attemptID == "" {
		return "", "", fmt.Errorf("credential is missing subject or attempt id")
	}
	return studentKey, attemptID, nil
}
