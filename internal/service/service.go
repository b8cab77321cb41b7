package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"token_auth_service/internal/auth"
	"token_auth_service/internal/common"
	"token_auth_service/internal/models"
	"token_auth_service/internal/storage"

	"github.com/gofrs/uuid"
)

const (
	msgUserCreated     = "User created successfully"
	msgLoginSuccessful = "Login successful"
	msgTokensRefreshed = "Tokens refreshed"
)

// metric outcomes
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

type Service interface {
	Register(ctx context.Context, email, password string) (models.AuthResult, error)
	Login(ctx context.Context, email, password string) (models.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (models.AuthResult, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	ValidateToken(ctx context.Context, token string) (models.ValidateResult, error)
	ValidateUserExists(ctx context.Context, userID string) (models.ExistsResult, error)
}

type CredentialHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
	HashToken(token string) (string, error)
	VerifyToken(token, digest string) bool
	Burn(plaintext string)
}

type TokenIssuer interface {
	IssuePair(userID uuid.UUID, email string) (auth.TokenPair, error)
}

type TokenVerifier interface {
	VerifyAccess(token string) (*auth.AccessClaims, error)
	VerifyRefresh(token string) (*auth.RefreshClaims, error)
}

type AuthService struct {
	storage  storage.Storage
	hasher   CredentialHasher
	issuer   TokenIssuer
	verifier TokenVerifier
	log      *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

func NewAuthService(
	st storage.Storage,
	hasher CredentialHasher,
	issuer TokenIssuer,
	verifier TokenVerifier,
	lgr *slog.Logger,
	metrics *Metrics,
) *AuthService {
	if lgr == nil {
		lgr = slog.Default()
	}
	return &AuthService{
		storage:  st,
		hasher:   hasher,
		issuer:   issuer,
		verifier: verifier,
		log:      lgr,
		metrics:  metrics,
		now:      time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, email, password string) (res models.AuthResult, err error) {
	const op = "service.Register"

	log := s.log.With(slog.String("op", op))
	defer s.track("register", time.Now(), &err)

	_, err = s.storage.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
		log.Info("email already registered")
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, common.ErrConflict)
	case !errors.Is(err, common.ErrNotFound):
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issuer.IssuePair(id, email)
	if err != nil {
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	refreshHash, err := s.hasher.HashToken(pair.RefreshToken)
	if err != nil {
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	// created_at is timestamptz, which keeps microseconds
	account := models.Account{
		ID:               id,
		Email:            email,
		PasswordHash:     passwordHash,
		RefreshTokenHash: &refreshHash,
		CreatedAt:        s.now().UTC().Truncate(time.Microsecond),
	}

	// the pre-check above races with concurrent registrations; the
	// repository constraint is what decides
	if err = s.storage.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, common.ErrEmailTaken) {
			log.Info("email registered concurrently")
			return models.AuthResult{}, fmt.Errorf("%s: %w", op, common.ErrConflict)
		}
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("user_id", id.String()))

	return newAuthResult(msgUserCreated, account, pair), nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (res models.AuthResult, err error) {
	const op = "service.Login"

	log := s.log.With(slog.String("op", op))
	defer s.track("login", time.Now(), &err)

	account, err := s.storage.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.hasher.Burn(password)
			return models.AuthResult{}, fmt.Errorf("%s: %w", op, common.ErrUnauthenticated)
		}
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if ok := s.hasher.Verify(password, account.PasswordHash); !ok {
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, common.ErrUnauthenticated)
	}

	pair, err := s.rotate(ctx, account)
	if err != nil {
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.String("user_id", account.ID.String()))

	return newAuthResult(msgLoginSuccessful, account, pair), nil
}

// Refresh exchanges the latest refresh token for a new pair. Any older token
// no longer matches the stored hash.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (res models.AuthResult, err error) {
	const op = "service.Refresh"

	log := s.log.With(slog.String("op", op))
	defer s.track("refresh", time.Now(), &err)

	claims, err := s.verifier.VerifyRefresh(refreshToken)
	if err != nil {
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, common.ErrUnauthenticated)
	}

	id, err := uuid.FromString(claims.UserID)
	if err != nil {
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, common.ErrUnauthenticated)
	}

	account, err := s.storage.GetAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return models.AuthResult{}, fmt.Errorf("%s: %w", op, common.ErrUnauthenticated)
		}
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if account.RefreshTokenHash == nil || !s.hasher.VerifyToken(refreshToken, *account.RefreshTokenHash) {
		log.Warn("stale refresh token presented", slog.String("user_id", id.String()))
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, common.ErrUnauthenticated)
	}

	pair, err := s.rotate(ctx, account)
	if err != nil {
		return models.AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	return newAuthResult(msgTokensRefreshed, account, pair), nil
}

func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) (err error) {
	const op = "service.Logout"

	log := s.log.With(slog.String("op", op))
	defer s.track("logout", time.Now(), &err)

	if err = s.storage.UpdateRefreshTokenHash(ctx, userID, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged out", slog.String("user_id", userID.String()))

	return nil
}

// ValidateToken treats every token problem as a plain {Valid: false}. Only a
// failing repository is reported as an error.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (res models.ValidateResult, err error) {
	const op = "service.ValidateToken"

	start := time.Now()

	claims, verr := s.verifier.VerifyAccess(token)
	if verr != nil {
		s.metrics.observe("validate_token", outcomeRejected, start)
		return models.ValidateResult{Valid: false}, nil
	}

	id, perr := uuid.FromString(claims.UserID)
	if perr != nil {
		s.metrics.observe("validate_token", outcomeRejected, start)
		return models.ValidateResult{Valid: false}, nil
	}

	account, err := s.storage.GetAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.metrics.observe("validate_token", outcomeRejected, start)
			return models.ValidateResult{Valid: false}, nil
		}
		s.metrics.observe("validate_token", outcomeError, start)
		return models.ValidateResult{Valid: false}, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.observe("validate_token", outcomeOK, start)

	user := account.Public()
	return models.ValidateResult{Valid: true, User: &user}, nil
}

func (s *AuthService) ValidateUserExists(ctx context.Context, userID string) (res models.ExistsResult, err error) {
	const op = "service.ValidateUserExists"

	defer s.track("validate_user", time.Now(), &err)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.ExistsResult{}, fmt.Errorf("%s: %w: userId is required", op, common.ErrInvalidInput)
	}

	// ids are uuids, anything else cannot name an account
	id, perr := uuid.FromString(userID)
	if perr != nil {
		return models.ExistsResult{Exists: false}, nil
	}

	account, err := s.storage.GetAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return models.ExistsResult{Exists: false}, nil
		}
		return models.ExistsResult{}, fmt.Errorf("%s: %w", op, err)
	}

	user := account.Public()
	return models.ExistsResult{Exists: true, User: &user}, nil
}

// rotate issues a fresh pair and overwrites the stored refresh hash. Tokens
// are only returned once the hash is persisted.
func (s *AuthService) rotate(ctx context.Context, account models.Account) (auth.TokenPair, error) {
	pair, err := s.issuer.IssuePair(account.ID, account.Email)
	if err != nil {
		return auth.TokenPair{}, err
	}

	refreshHash, err := s.hasher.HashToken(pair.RefreshToken)
	if err != nil {
		return auth.TokenPair{}, err
	}

	if err := s.storage.UpdateRefreshTokenHash(ctx, account.ID, &refreshHash); err != nil {
		return auth.TokenPair{}, err
	}

	return pair, nil
}

func (s *AuthService) track(operation string, start time.Time, errp *error) {
	outcome := outcomeOK
	if err := *errp; err != nil {
		outcome = outcomeError
		if errors.Is(err, common.ErrConflict) ||
			errors.Is(err, common.ErrUnauthenticated) ||
			errors.Is(err, common.ErrInvalidInput) {
			outcome = outcomeRejected
		}
	}
	s.metrics.observe(operation, outcome, start)
}

func newAuthResult(message string, account models.Account, pair auth.TokenPair) models.AuthResult {
	return models.AuthResult{
		Message:      message,
		User:         account.Public(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}
}
