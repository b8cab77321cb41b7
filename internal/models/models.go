package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// Account is the stored identity record. Hash fields never leave the service.
type Account struct {
	ID               uuid.UUID
	Email            string
	PasswordHash     string
	RefreshTokenHash *string // nil until the first token pair is issued
	CreatedAt        time.Time
}

// Public strips the credential hashes.
func (a Account) Public() User {
	return User{
		ID:        a.ID,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
	}
}

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type AuthResult struct {
	Message      string `json:"message"`
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type ValidateResult struct {
	Valid bool  `json:"valid"`
	User  *User `json:"user,omitempty"`
}

type ExistsResult struct {
	Exists bool  `json:"exists"`
	User   *User `json:"user,omitempty"`
}
