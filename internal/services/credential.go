package services

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mementolink/mementolink-backend/internal/platform/logger"
)

const (
	// DefaultClaimTokenTTL bounds the JWT claim-link path.
	DefaultClaimTokenTTL = 72 * time.Hour
	// SecretKeyTTL bounds the legacy secret-key path, measured from payment.
	SecretKeyTTL = 30 * 24 * time.Hour

	secretKeyLength  = 16
	secretKeyCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var secretKeyPattern = regexp.MustCompile(`^[A-Z0-9]{16}$`)

// ClaimTokenClaims is the payload of the signed claim link credential.
type ClaimTokenClaims struct {
	Email  string `json:"email"`
	Tenant string `json:"tenant"`
	LpID   string `json:"lp_id,omitempty"`
	jwt.RegisteredClaims
}

// CredentialIssuer mints the two credential kinds of the claim lifecycle:
// the signed, time-boxed claim token embedded in emailed links, and the
// opaque legacy secret key whose validity lives entirely server-side.
// Issue is a pure function of its inputs plus the clock; nothing persists.
type CredentialIssuer interface {
	Issue(claimRequestID uuid.UUID, email, tenant, lpID string, ttl time.Duration) (string, error)
	Parse(token string) (*ClaimTokenClaims, error)
	NewSecretKey() (string, error)
}

type credentialIssuer struct {
	log       *logger.Logger
	secretKey string
	now       func() time.Time
}

func NewCredentialIssuer(baseLog *logger.Logger, jwtSecretKey string) (CredentialIssuer, error) {
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("missing jwt secret key")
	}
	return &credentialIssuer{
		log:       baseLog.With("service", "CredentialIssuer"),
		secretKey: jwtSecretKey,
		now:       time.Now,
	}, nil
}

func (ci *credentialIssuer) Issue(claimRequestID uuid.UUID, email, tenant, lpID string, ttl time.Duration) (string, error) {
	if claimRequestID == uuid.Nil {
		return "", fmt.Errorf("missing claim request id")
	}
	if email == "" {
		return "", fmt.Errorf("missing email")
	}
	if ttl <= 0 {
		ttl = DefaultClaimTokenTTL
	}
	now := ci.now()
	claims := ClaimTokenClaims{
		Email:  email,
		Tenant: tenant,
		LpID:   lpID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claimRequestID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(ci.secretKey))
}

// Parse validates signature and expiry and returns the decoded claims.
// Expiry failures surface as jwt.ErrTokenExpired via errors.Is.
func (ci *credentialIssuer) Parse(token string) (*ClaimTokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &ClaimTokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(ci.secretKey), nil
	}, jwt.WithTimeFunc(ci.now))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*ClaimTokenClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid claim token")
	}
	return claims, nil
}

// NewSecretKey samples 16 characters from [A-Z0-9] using crypto/rand.
func (ci *credentialIssuer) NewSecretKey() (string, error) {
	buf := make([]byte, secretKeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("secret key entropy: %w", err)
	}
	out := make([]byte, secretKeyLength)
	for i, b := range buf {
		out[i] = secretKeyCharset[int(b)%len(secretKeyCharset)]
	}
	return string(out), nil
}

// ValidSecretKeyFormat is the pure format check for the legacy credential:
// exactly 16 characters from [A-Z0-9]. Validity beyond shape is a server
// lookup against the order's secret_key_expires_at.
func ValidSecretKeyFormat(key string) bool {
	return secretKeyPattern.MatchString(key)
}
