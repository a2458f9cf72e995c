package quote

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/brokerwell/brokerwell/internal/platform/errors"
)

// acceptGrantEnv holds raw env values before post-parse validation.
type acceptGrantEnv struct {
	Issuer     string        `env:"BROKERWELL_ACCEPT_GRANT_ISSUER"`
	Audience   string        `env:"BROKERWELL_ACCEPT_GRANT_AUDIENCE"`
	PrivateKey string        `env:"BROKERWELL_ACCEPT_GRANT_PRIVATE_KEY"`
	PublicKey  string        `env:"BROKERWELL_ACCEPT_GRANT_PUBLIC_KEY"`
	TTL        time.Duration `env:"BROKERWELL_ACCEPT_GRANT_TTL"         envDefault:"72h"`
}

// GrantConfig defines how accept grants are signed and verified. A config
// used only for verification may leave SigningKey nil.
type GrantConfig struct {
	Issuer     string
	Audience   string
	SigningKey ed25519.PrivateKey
	VerifyKey  ed25519.PublicKey
	TTL        time.Duration
	Now        func() time.Time
}

// GrantBinding identifies the quote an accept grant authorizes.
type GrantBinding struct {
	QuoteID      string
	SubmissionID string
	AgencyID     string
}

// GrantClaims captures validated accept grant claims.
type GrantClaims struct {
	Issuer       string
	ExpiresAt    time.Time
	JWTID        string
	QuoteID      string
	SubmissionID string
	AgencyID     string
}

// acceptGrantClaims is the internal claims type used for JWT parsing.
type acceptGrantClaims struct {
	jwt.RegisteredClaims
	QuoteID      string `json:"quote_id"`
	SubmissionID string `json:"submission_id"`
	AgencyID     string `json:"agency_id"`
}

// LoadGrantConfigFromEnv reads accept grant configuration. The private key
// is optional so verify-only deployments need not carry it.
func LoadGrantConfigFromEnv(now func() time.Time) (GrantConfig, error) {
	var raw acceptGrantEnv
	if err := env.Parse(&raw); err != nil {
		return GrantConfig{}, fmt.Errorf("parse accept grant env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return GrantConfig{}, fmt.Errorf("BROKERWELL_ACCEPT_GRANT_ISSUER is required")
	}
	if audience == "" {
		return GrantConfig{}, fmt.Errorf("BROKERWELL_ACCEPT_GRANT_AUDIENCE is required")
	}
	if publicKey == "" {
		return GrantConfig{}, fmt.Errorf("BROKERWELL_ACCEPT_GRANT_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return GrantConfig{}, fmt.Errorf("decode accept grant public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return GrantConfig{}, fmt.Errorf("accept grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	if raw.TTL <= 0 {
		return GrantConfig{}, fmt.Errorf("accept grant ttl must be positive")
	}

	cfg := GrantConfig{
		Issuer:    issuer,
		Audience:  audience,
		VerifyKey: ed25519.PublicKey(keyBytes),
		TTL:       raw.TTL,
		Now:       now,
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if privateKey := strings.TrimSpace(raw.PrivateKey); privateKey != "" {
		privBytes, err := decodeBase64(privateKey)
		if err != nil {
			return GrantConfig{}, fmt.Errorf("decode accept grant private key: %w", err)
		}
		if len(privBytes) != ed25519.PrivateKeySize {
			return GrantConfig{}, fmt.Errorf("accept grant private key must be %d bytes", ed25519.PrivateKeySize)
		}
		cfg.SigningKey = ed25519.PrivateKey(privBytes)
	}
	return cfg, nil
}

// IssueAcceptGrant signs a grant token binding a quote, its submission, and
// the owning agency.
func IssueAcceptGrant(cfg GrantConfig, binding GrantBinding, jwtID string) (string, error) {
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.SigningKey) != ed25519.PrivateKeySize {
		return "", errors.New("accept grant signer is not configured")
	}
	if binding.QuoteID == "" || binding.SubmissionID == "" || binding.AgencyID == "" {
		return "", errors.New("accept grant binding is incomplete")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	issuedAt := now().UTC()

	claims := acceptGrantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(cfg.TTL)),
			ID:        jwtID,
		},
		QuoteID:      binding.QuoteID,
		SubmissionID: binding.SubmissionID,
		AgencyID:     binding.AgencyID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(cfg.SigningKey)
}

// ValidateAcceptGrant verifies a grant token and checks its binding against
// the quote being accepted.
func ValidateAcceptGrant(grant string, expected GrantBinding, cfg GrantConfig) (GrantClaims, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return GrantClaims{}, apperrors.New(apperrors.CodeAcceptGrantInvalid, "accept grant is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.VerifyKey) != ed25519.PublicKeySize {
		return GrantClaims{}, errors.New("accept grant verifier is not configured")
	}

	var parsed acceptGrantClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.VerifyKey, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return GrantClaims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return GrantClaims{}, apperrors.WithMetadata(apperrors.CodeAcceptGrantMismatch,
			"accept grant issuer mismatch", map[string]string{"field": "issuer"})
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return GrantClaims{}, apperrors.WithMetadata(apperrors.CodeAcceptGrantMismatch,
			"accept grant audience mismatch", map[string]string{"field": "audience"})
	}
	if parsed.ExpiresAt == nil {
		return GrantClaims{}, apperrors.New(apperrors.CodeAcceptGrantInvalid, "accept grant exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return GrantClaims{}, apperrors.New(apperrors.CodeAcceptGrantExpired, "accept grant is expired")
	}

	if strings.TrimSpace(parsed.QuoteID) == "" || parsed.QuoteID != expected.QuoteID {
		return GrantClaims{}, apperrors.WithMetadata(apperrors.CodeAcceptGrantMismatch,
			"accept grant quote mismatch", map[string]string{"field": "quote_id"})
	}
	if strings.TrimSpace(parsed.SubmissionID) == "" || parsed.SubmissionID != expected.SubmissionID {
		return GrantClaims{}, apperrors.WithMetadata(apperrors.CodeAcceptGrantMismatch,
			"accept grant submission mismatch", map[string]string{"field": "submission_id"})
	}
	if strings.TrimSpace(parsed.AgencyID) == "" || parsed.AgencyID != expected.AgencyID {
		return GrantClaims{}, apperrors.WithMetadata(apperrors.CodeAcceptGrantMismatch,
			"accept grant agency mismatch", map[string]string{"field": "agency_id"})
	}

	return GrantClaims{
		Issuer:       parsed.Issuer,
		ExpiresAt:    exp,
		JWTID:        parsed.ID,
		QuoteID:      parsed.QuoteID,
		SubmissionID: parsed.SubmissionID,
		AgencyID:     parsed.AgencyID,
	}, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeAcceptGrantInvalid, "accept grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeAcceptGrantInvalid, "accept grant alg is invalid")
	}
	return apperrors.Wrap(apperrors.CodeAcceptGrantInvalid, "accept grant is malformed", err)
}

func audienceContains(audience jwt.ClaimStrings, expected string) bool {
	for _, candidate := range audience {
		if candidate == expected {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
