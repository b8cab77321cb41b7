package storage

import (
	"context"
	"errors"
	"fmt"

	"token_auth_service/internal/common"
	"token_auth_service/internal/models"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	usersTable = "users"

	uniqueViolation = "23505"
)

// Storage is the identity repository. Email uniqueness is enforced here, not
// by callers: CreateAccount fails with common.ErrEmailTaken on a duplicate.
type Storage interface {
	CreateAccount(ctx context.Context, account models.Account) error
	GetAccountByEmail(ctx context.Context, email string) (models.Account, error)
	GetAccountByID(ctx context.Context, id uuid.UUID) (models.Account, error)
	UpdateRefreshTokenHash(ctx context.Context, id uuid.UUID, hash *string) error

	Ping(ctx context.Context) error
	Close()
}

type PostgresStorage struct {
	db *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, DbURL string) (*PostgresStorage, error) {
	const op = "storage.NewPostgresStorage"

	conn, err := pgxpool.Connect(ctx, DbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &PostgresStorage{
		db: conn,
	}, nil
}

func (p *PostgresStorage) CreateAccount(ctx context.Context, account models.Account) error {
	const op = "storage.CreateAccount"

	query := fmt.Sprintf(`INSERT INTO %s(id, email, password_hash, refresh_token_hash, created_at)
	VALUES ($1, $2, $3, $4, $5)`, usersTable)

	_, err := p.db.Exec(ctx, query, account.ID, account.Email, account.PasswordHash, account.RefreshTokenHash, account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w", op, common.ErrEmailTaken)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *PostgresStorage) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	const op = "storage.GetAccountByEmail"

	query := fmt.Sprintf(`SELECT id, email, password_hash, refresh_token_hash, created_at
	FROM %s WHERE email=$1`, usersTable)

	account, err := scanAccount(p.db.QueryRow(ctx, query, email))
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

func (p *PostgresStorage) GetAccountByID(ctx context.Context, id uuid.UUID) (models.Account, error) {
	const op = "storage.GetAccountByID"

	query := fmt.Sprintf(`SELECT id, email, password_hash, refresh_token_hash, created_at
	FROM %s WHERE id=$1`, usersTable)

	account, err := scanAccount(p.db.QueryRow(ctx, query, id))
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

// UpdateRefreshTokenHash overwrites the stored hash in a single-row update.
// A nil hash clears it.
func (p *PostgresStorage) UpdateRefreshTokenHash(ctx context.Context, id uuid.UUID, hash *string) error {
	const op = "storage.UpdateRefreshTokenHash"

	query := fmt.Sprintf("UPDATE %s SET refresh_token_hash=$1 WHERE id=$2", usersTable)

	tag, err := p.db.Exec(ctx, query, hash, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, common.ErrNotFound)
	}

	return nil
}

func (p *PostgresStorage) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *PostgresStorage) Close() {
	p.db.Close()
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var account models.Account

	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.RefreshTokenHash,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, common.ErrNotFound
		}
		return models.Account{}, err
	}

	account.CreatedAt = account.CreatedAt.UTC()

	return account, nil
}
