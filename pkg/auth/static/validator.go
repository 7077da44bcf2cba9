// Package static validates bearer tokens against a fixed set configured at
// startup. Each token maps to the subject reported in its claims.
package static

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/osvaldoandrade/gaitkeepr/pkg/auth"
)

const defaultSubject = "runner"

var errInvalidToken = errors.New("invalid token")

// Config accepts a single Token (with Subject) and/or a Tokens map from
// token to subject. Scopes apply to every token.
type Config struct {
	Token   string            `json:"token,omitempty"`
	Subject string            `json:"subject,omitempty"`
	Tokens  map[string]string `json:"tokens,omitempty"`
	Scopes  []string          `json:"scopes,omitempty"`
}

type entry struct {
	token   []byte
	subject string
}

type validator struct {
	entries []entry
	scopes  []string
}

// NewValidatorFromJSON accepts a Config object or a bare JSON string holding
// the token.
func NewValidatorFromJSON(raw json.RawMessage) (auth.Validator, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, errors.New("static auth: missing config")
	}

	var cfg Config
	target := any(&cfg)
	if raw[0] == '"' {
		target = &cfg.Token
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("static auth: invalid config: %w", err)
	}
	return New(cfg)
}

// New builds a validator from cfg. At least one non-blank token is required.
func New(cfg Config) (auth.Validator, error) {
	v := &validator{scopes: cfg.Scopes}
	add := func(token, subject string) {
		token = strings.TrimSpace(token)
		if token == "" {
			return
		}
		subject = strings.TrimSpace(subject)
		if subject == "" {
			subject = defaultSubject
		}
		v.entries = append(v.entries, entry{token: []byte(token), subject: subject})
	}
	add(cfg.Token, cfg.Subject)
	for token, subject := range cfg.Tokens {
		add(token, subject)
	}
	if len(v.entries) == 0 {
		return nil, errors.New("static auth: token is required")
	}
	return v, nil
}

// Validate compares token against every configured entry so the time taken
// does not depend on which one matched.
func (v *validator) Validate(token string) (*auth.Claims, error) {
	given := []byte(strings.TrimSpace(token))
	match := -1
	for i, e := range v.entries {
		if subtle.ConstantTimeCompare(given, e.token) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return nil, errInvalidToken
	}
	return &auth.Claims{
		Subject: v.entries[match].subject,
		Scopes:  v.scopes,
		Raw:     map[string]interface{}{},
	}, nil
}

func init() {
	auth.RegisterProvider("static", NewValidatorFromJSON)
}
