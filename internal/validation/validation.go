package validation

import (
	"net/mail"
	"strings"

	"token_auth_service/internal/common"
)

const (
	MinPasswordLength = 6
	// bcrypt reads at most 72 bytes
	MaxPasswordLength = 72
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	return "invalid request"
}

func (v ValidationErrors) Unwrap() error {
	return common.ErrInvalidInput
}

type Credentials struct {
	Email    string
	Password string
}

func ValidateRegister(email, password string) (Credentials, error) {
	var errs ValidationErrors

	email, emailErr := checkEmail(email)
	if emailErr != nil {
		errs = append(errs, *emailErr)
	}

	switch {
	case password == "":
		errs = append(errs, FieldError{Field: "password", Message: "password is required"})
	case len(password) < MinPasswordLength:
		errs = append(errs, FieldError{Field: "password", Message: "password must be at least 6 characters"})
	case len(password) > MaxPasswordLength:
		errs = append(errs, FieldError{Field: "password", Message: "password must be at most 72 bytes"})
	}

	if len(errs) > 0 {
		return Credentials{}, errs
	}
	return Credentials{Email: email, Password: password}, nil
}

func ValidateLogin(email, password string) (Credentials, error) {
	var errs ValidationErrors

	email, emailErr := checkEmail(email)
	if emailErr != nil {
		errs = append(errs, *emailErr)
	}

	if password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "password is required"})
	}

	if len(errs) > 0 {
		return Credentials{}, errs
	}
	return Credentials{Email: email, Password: password}, nil
}

func ValidateToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ValidationErrors{{Field: "token", Message: "token is required"}}
	}
	return token, nil
}

func ValidateRefreshToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ValidationErrors{{Field: "refreshToken", Message: "refreshToken is required"}}
	}
	return token, nil
}

func ValidateUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ValidationErrors{{Field: "userId", Message: "User ID is required"}}
	}
	return userID, nil
}

// IsValidEmail accepts a bare address, no display name.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// emails are stored case-sensitively, so only surrounding space is dropped
func checkEmail(email string) (string, *FieldError) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", &FieldError{Field: "email", Message: "email is required"}
	}
	if !IsValidEmail(email) {
		return "", &FieldError{Field: "email", Message: "email must be an email"}
	}
	return email, nil
}
