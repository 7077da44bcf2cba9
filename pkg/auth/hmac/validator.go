// Package hmac validates HS256 bearer tokens signed with a shared secret.
package hmac

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/osvaldoandrade/gaitkeepr/pkg/auth"
)

// Config is the provider config accepted by NewValidatorFromJSON.
type Config struct {
	Secret           string `json:"secret"`
	Issuer           string `json:"issuer,omitempty"`
	Audience         string `json:"audience,omitempty"`
	ClockSkewSeconds int    `json:"clockSkewSeconds,omitempty"`
}

const minSecretLen = 16

type Validator struct {
	secret []byte
	parser *jwt.Parser
}

func NewValidator(cfg Config) (*Validator, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("hmac auth: secret must be at least %d characters", minSecretLen)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.ClockSkewSeconds > 0 {
		opts = append(opts, jwt.WithLeeway(time.Duration(cfg.ClockSkewSeconds)*time.Second))
	}
	return &Validator{secret: []byte(secret), parser: jwt.NewParser(opts...)}, nil
}

func NewValidatorFromJSON(raw json.RawMessage) (auth.Validator, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("hmac auth: invalid config: %w", err)
	}
	return NewValidator(cfg)
}

// Validate parses tokenString and maps its registered claims.
func (v *Validator) Validate(tokenString string) (*auth.Claims, error) {
	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	out := &auth.Claims{Raw: claims}
	out.Subject, _ = claims.GetSubject()
	out.Issuer, _ = claims.GetIssuer()
	if aud, err := claims.GetAudience(); err == nil {
		out.Audience = aud
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if scope, ok := claims["scope"].(string); ok {
		out.Scopes = strings.Fields(scope)
	}
	return out, nil
}

// Issue signs a token for subject that expires ttl after now.
func Issue(cfg Config, subject string, ttl time.Duration, now time.Time) (string, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if len(secret) < minSecretLen {
		return "", fmt.Errorf("hmac auth: secret must be at least %d characters", minSecretLen)
	}
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if cfg.Audience != "" {
		rc.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, rc).SignedString([]byte(secret))
}

func init() {
	auth.RegisterProvider("hmac", NewValidatorFromJSON)
}
