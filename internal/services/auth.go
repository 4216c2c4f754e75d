package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/mementolink/mementolink-backend/internal/platform/apierr"
	"github.com/mementolink/mementolink-backend/internal/platform/ctxutil"
	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/repos"
	"github.com/mementolink/mementolink-backend/internal/types"
)

const accessTokenTTL = 24 * time.Hour

type accessTokenClaims struct {
	Email  string `json:"email"`
	Tenant string `json:"tenant"`
	jwt.RegisteredClaims
}

// AuthService manages claimant accounts. Accounts come into existence when a
// verified claim sets its first password; there is no open signup.
type AuthService interface {
	// SetPassword creates or updates the account for a verified claim.
	// Returns the account and a fresh access token.
	SetPassword(ctx context.Context, email, tenant, password string) (*types.User, string, error)
	Login(ctx context.Context, email, tenant, password string) (*types.User, string, error)
	// SetContextFromToken validates an access token and attaches the
	// claimant identity to the context.
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
}

type authService struct {
	db        *gorm.DB
	log       *logger.Logger
	users     repos.UserRepo
	identity  IdentityResolver
	jwtSecret []byte
	now       func() time.Time
}

func NewAuthService(db *gorm.DB, baseLog *logger.Logger, users repos.UserRepo, identity IdentityResolver, jwtSecretKey string) (AuthService, error) {
	if strings.TrimSpace(jwtSecretKey) == "" {
		return nil, fmt.Errorf("jwt secret key is required")
	}
	return &authService{
		db:        db,
		log:       baseLog.With("service", "AuthService"),
		users:     users,
		identity:  identity,
		jwtSecret: []byte(jwtSecretKey),
		now:       time.Now,
	}, nil
}

func (as *authService) SetPassword(ctx context.Context, email, tenant, password string) (*types.User, string, error) {
	if as == nil || as.db == nil {
		return nil, "", fmt.Errorf("auth service not configured")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || tenant == "" {
		return nil, "", apierr.Validation(fmt.Errorf("email and tenant are required"))
	}
	if len(password) < 8 {
		return nil, "", apierr.Validation(fmt.Errorf("password must be at least 8 characters"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := as.findUser(ctx, email, tenant)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		created, err := as.users.Create(ctx, nil, []*types.User{{
			ID:       uuid.New(),
			Email:    email,
			Tenant:   tenant,
			Password: string(hash),
		}})
		if err != nil {
			return nil, "", fmt.Errorf("create claimant account: %w", err)
		}
		user = created[0]
	} else {
		if err := as.users.UpdatePassword(ctx, nil, user.ID, string(hash)); err != nil {
			return nil, "", fmt.Errorf("update password: %w", err)
		}
		user.Password = string(hash)
	}

	token, err := as.issueAccessToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (as *authService) Login(ctx context.Context, email, tenant, password string) (*types.User, string, error) {
	if as == nil || as.db == nil {
		return nil, "", fmt.Errorf("auth service not configured")
	}
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := as.findUser(ctx, email, tenant)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", apierr.NotFound(fmt.Errorf("no account for this email"))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", apierr.MalformedCredential(fmt.Errorf("invalid credentials"))
	}

	token, err := as.issueAccessToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, apierr.MalformedCredential(fmt.Errorf("missing access token"))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &accessTokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return as.jwtSecret, nil
	}, jwt.WithTimeFunc(as.now))
	if err != nil {
		if strings.Contains(err.Error(), jwt.ErrTokenExpired.Error()) {
			return ctx, apierr.CredentialExpired(err)
		}
		return ctx, apierr.MalformedCredential(err)
	}
	claims, ok := parsed.Claims.(*accessTokenClaims)
	if !ok || !parsed.Valid {
		return ctx, apierr.MalformedCredential(fmt.Errorf("invalid access token claims"))
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, apierr.MalformedCredential(fmt.Errorf("invalid token subject"))
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{
		UserID:      userID,
		Email:       claims.Email,
		Tenant:      claims.Tenant,
		TokenString: tokenString,
	}), nil
}

// findUser looks the account up across the tenant's alias set so a login
// against any alias of the same tenant reaches the same account.
func (as *authService) findUser(ctx context.Context, email, tenant string) (*types.User, error) {
	aliases, err := as.identity.Resolve(ctx, &tenant)
	if err != nil {
		return nil, err
	}
	users, err := as.users.GetByEmailTenants(ctx, nil, email, aliases)
	if err != nil {
		return nil, fmt.Errorf("lookup claimant account: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return users[0], nil
}

func (as *authService) issueAccessToken(user *types.User) (string, error) {
	now := as.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessTokenClaims{
		Email:  user.Email,
		Tenant: user.Tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
		},
	})
	signed, err := token.SignedString(as.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}
