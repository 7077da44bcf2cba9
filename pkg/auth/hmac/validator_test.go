package hmac

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/osvaldoandrade/gaitkeepr/pkg/auth"
)

const testSecret = "0123456789abcdef0123"

func TestIssueAndValidate(t *testing.T) {
	cfg := Config{Secret: testSecret, Issuer: "gaitkeepr-dev", Audience: "gaitkeepr"}
	tok, err := Issue(cfg, "runner-1", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	v, err := NewValidator(cfg)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	claims, err := v.Validate(tok)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "runner-1" || claims.Issuer != "gaitkeepr-dev" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "gaitkeepr" {
		t.Fatalf("audience = %v", claims.Audience)
	}
}

func TestValidateRejects(t *testing.T) {
	cfg := Config{Secret: testSecret, Issuer: "gaitkeepr-dev", Audience: "gaitkeepr"}
	v, err := NewValidator(cfg)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	now := time.Now()

	expired, _ := Issue(cfg, "u", time.Minute, now.Add(-time.Hour))
	wrongAud, _ := Issue(Config{Secret: testSecret, Issuer: "gaitkeepr-dev", Audience: "other"}, "u", time.Hour, now)
	wrongSecret, _ := Issue(Config{Secret: strings.Repeat("x", 20), Issuer: "gaitkeepr-dev", Audience: "gaitkeepr"}, "u", time.Hour, now)
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u", "iss": "gaitkeepr-dev", "aud": "gaitkeepr"}).SignedString([]byte(testSecret))
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"expired":  expired,
		"audience": wrongAud,
		"secret":   wrongSecret,
		"no exp":   noExp,
		"alg none": none,
		"garbage":  "not-a-jwt",
	} {
		if _, err := v.Validate(tok); err == nil {
			t.Errorf("%s: expected rejection", name)
		}
	}
}

func TestNewValidatorShortSecret(t *testing.T) {
	if _, err := NewValidator(Config{Secret: "short"}); err == nil {
		t.Fatal("expected error for short secret")
	}
	if _, err := Issue(Config{Secret: "short"}, "u", time.Hour, time.Now()); err == nil {
		t.Fatal("expected Issue error for short secret")
	}
}

func TestHMACRegistered(t *testing.T) {
	v, err := auth.Build("hmac", Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tok, _ := Issue(Config{Secret: testSecret}, "u", time.Hour, time.Now())
	if _, err := v.Validate(tok); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
