package auth

import (
	"fmt"
	"time"

	"token_auth_service/internal/common"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

type AccessClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Keys holds the two signing secrets. They must differ so that one token
// kind can never be accepted as the other.
type Keys struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type Issuer struct {
	keys Keys
	now  func() time.Time
}

func NewIssuer(keys Keys, now func() time.Time) *Issuer {
	if keys.AccessTTL <= 0 {
		keys.AccessTTL = DefaultAccessTTL
	}
	if keys.RefreshTTL <= 0 {
		keys.RefreshTTL = DefaultRefreshTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{keys: keys, now: now}
}

func (i *Issuer) IssueAccessToken(userID uuid.UUID, email string) (string, error) {
	const op = "auth.IssueAccessToken"

	registered, err := i.registered(i.keys.AccessTTL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	claims := &AccessClaims{
		UserID:           userID.String(),
		Email:            email,
		RegisteredClaims: registered,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.keys.AccessSecret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

func (i *Issuer) IssueRefreshToken(userID uuid.UUID) (string, error) {
	const op = "auth.IssueRefreshToken"

	registered, err := i.registered(i.keys.RefreshTTL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	claims := &RefreshClaims{
		UserID:           userID.String(),
		RegisteredClaims: registered,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.keys.RefreshSecret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

func (i *Issuer) IssuePair(userID uuid.UUID, email string) (TokenPair, error) {
	access, err := i.IssueAccessToken(userID, email)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := i.IssueRefreshToken(userID)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// registered stamps a random jti so that two tokens issued within the same
// second for the same user are still distinct.
func (i *Issuer) registered(ttl time.Duration) (jwt.RegisteredClaims, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return jwt.RegisteredClaims{}, err
	}

	now := i.now()
	return jwt.RegisteredClaims{
		ID:        jti.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}, nil
}

// Verifier checks signature and expiry only. It never looks at storage.
type Verifier struct {
	keys Keys
	now  func() time.Time
}

func NewVerifier(keys Keys, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{keys: keys, now: now}
}

func (v *Verifier) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := v.parse(token, claims, v.keys.AccessSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, common.ErrTokenInvalid
	}

	return claims, nil
}

func (v *Verifier) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := v.parse(token, claims, v.keys.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, common.ErrTokenInvalid
	}

	return claims, nil
}

// parse collapses every failure into ErrTokenInvalid.
func (v *Verifier) parse(token string, claims jwt.Claims, secret []byte) error {
	if token == "" {
		return common.ErrTokenInvalid
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !parsed.Valid {
		return common.ErrTokenInvalid
	}

	return nil
}
