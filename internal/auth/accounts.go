package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/desertthunder/soundcheck/internal/models"
	"github.com/desertthunder/soundcheck/internal/shared"
)

const issuer = "soundcheck"

// AccountStore is the persistence the local account gateway needs.
type AccountStore interface {
	IdentityLinker
	Create(account *models.Account) error
	Get(id string) (*models.Account, error)
	FindByUsername(username string) (*models.Account, error)
}

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginInput is the body of a login request.
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Accounts issues local session credentials for username/password accounts.
type Accounts struct {
	store    AccountStore
	secret   []byte
	ttl      time.Duration
	validate *validator.Validate
	cost     int
	now      func() time.Time
}

// NewAccounts creates the local account gateway. Session tokens are HS256 JWTs signed with secret.
func NewAccounts(store AccountStore, secret string, ttl time.Duration) *Accounts {
	return &Accounts{
		store:    store,
		secret:   []byte(secret),
		ttl:      ttl,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// Register creates an account and signs it in.
//
// Returns [shared.ErrInvalidInput] for validation failures and [shared.ErrAccountExists] when the
// username or email is taken.
func (a *Accounts) Register(in RegisterInput) (*models.AccountSession, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := a.check(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := models.NewAccount(0, in.Username, in.Email, string(hash))
	if err := a.store.Create(account); err != nil {
		return nil, err
	}

	return a.session(account)
}

// Login checks a username/password pair. Unknown users and wrong passwords are both
// [shared.ErrInvalidCredentials].
func (a *Accounts) Login(in LoginInput) (*models.AccountSession, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := a.check(in); err != nil {
		return nil, err
	}

	account, err := a.store.FindByUsername(in.Username)
	if errors.Is(err, shared.ErrAccountNotFound) {
		return nil, shared.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash()), []byte(in.Password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}

	return a.session(account)
}

// VerifySession validates a session token and returns the account it was issued for.
func (a *Accounts) VerifySession(token string) (*models.Account, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired(), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", shared.ErrInvalidSession)
	}

	account, err := a.store.Get(claims.Subject)
	if errors.Is(err, shared.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidSession, err)
	}
	return account, err
}

func (a *Accounts) session(account *models.Account) (*models.AccountSession, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		ID:        shared.GenerateID(),
		Issuer:    issuer,
		Subject:   account.ID(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}

	return &models.AccountSession{
		Success: true,
		Token:   signed,
		User:    models.NewAccountView(account),
	}, nil
}

// check validates in and folds field errors into a single [shared.ErrInvalidInput].
func (a *Accounts) check(in any) error {
	err := a.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", shared.ErrInvalidInput, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
