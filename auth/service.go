package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"escrowflow/pkg/validate"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: no active account found with the given credentials")
	// ErrInactiveAccount signals a deactivated party tried to sign in.
	ErrInactiveAccount = errors.New("auth: this account is inactive")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters and not entirely numeric")
	// ErrPasswordTooLong signals a password bcrypt cannot hash.
	ErrPasswordTooLong = errors.New("auth: ensure this field has no more than 72 bytes")
	// ErrInvalidToken covers malformed, expired and wrong-type tokens.
	ErrInvalidToken = errors.New("auth: invalid or expired token")
)

// Service handles authentication business logic.
type Service struct {
	repo       Repository
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	newID      func() string
}

// LoginResult bundles the tokens and domain user returned after a successful login.
type LoginResult struct {
	Tokens TokenPair
	User   User
}

// Claims are the JWT claims issued by the service. Subject carries the user id
// and ID the token id used for revocation.
type Claims struct {
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// NewService creates a new authentication service.
func NewService(repo Repository, jwtSecret string, accessTTL, refreshTTL time.Duration) *Service {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * time.Hour
	}
	return &Service{
		repo:       repo,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	email := normalizeEmail(req.Email)

	v := validate.Errors{}
	v.Required("email", email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			v.Add("email", "Enter a valid email address.")
		}
	}
	v.Required("password", req.Password)
	if err := v.Err(); err != nil {
		return nil, err
	}

	if err := checkPassword(req.Password); err != nil {
		return nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: string(passwordHash),
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Login authenticates a user and returns an access/refresh token pair.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	v := validate.Errors{}
	v.Required("email", req.Email)
	v.Required("password", req.Password)
	if err := v.Err(); err != nil {
		return LoginResult{}, err
	}

	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return LoginResult{}, ErrInactiveAccount
	}

	access, err := s.generateToken(user.ID, TokenAccess, s.accessTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate access token: %w", err)
	}
	refresh, err := s.generateToken(user.ID, TokenRefresh, s.refreshTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate refresh token: %w", err)
	}

	return LoginResult{
		Tokens: TokenPair{Access: access, Refresh: refresh},
		User:   user,
	}, nil
}

// Refresh exchanges a valid, unrevoked refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.parse(refreshToken, TokenRefresh)
	if err != nil {
		return "", err
	}

	revoked, err := s.repo.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return "", err
	}
	if revoked {
		return "", ErrInvalidToken
	}

	user, err := s.repo.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrInvalidToken
		}
		return "", err
	}
	if !user.IsActive {
		return "", ErrInactiveAccount
	}

	access, err := s.generateToken(user.ID, TokenAccess, s.accessTTL)
	if err != nil {
		return "", fmt.Errorf("auth: generate access token: %w", err)
	}
	return access, nil
}

// Logout blacklists the refresh token so it can no longer be exchanged.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return validate.Errors{"refresh_token": "This field is required."}
	}
	claims, err := s.parse(refreshToken, TokenRefresh)
	if err != nil {
		return err
	}

	expiresAt := s.now().Add(s.refreshTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return s.repo.RevokeToken(ctx, claims.ID, claims.Subject, expiresAt)
}

// VerifyToken validates an access token and returns the user ID.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	claims, err := s.parse(tokenString, TokenAccess)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Authenticate resolves an access token to the current, active user record.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (User, error) {
	userID, err := s.VerifyToken(tokenString)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidToken
		}
		return User{}, err
	}
	if !user.IsActive {
		return User{}, ErrInactiveAccount
	}
	return user, nil
}

// ChangePassword verifies the current password before storing the new one.
func (s *Service) ChangePassword(ctx context.Context, userID string, req PasswordChangeRequest) error {
	v := validate.Errors{}
	v.Required("current_password", req.CurrentPassword)
	v.Required("new_password", req.NewPassword)
	v.Required("confirm_new_password", req.ConfirmNewPassword)
	if err := v.Err(); err != nil {
		return err
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		return validate.Errors{"current_password": "Current password is incorrect."}
	}
	if req.NewPassword != req.ConfirmNewPassword {
		return validate.Errors{"confirm_new_password": "New passwords do not match."}
	}
	if err := checkPassword(req.NewPassword); err != nil {
		return validate.Errors{"new_password": strings.TrimPrefix(err.Error(), "auth: ")}
	}

	return s.SetPassword(ctx, userID, req.NewPassword)
}

// SetPassword hashes and stores password for userID without checking the old one.
// Callers are responsible for authorising the reset.
func (s *Service) SetPassword(ctx context.Context, userID, password string) error {
	if err := checkPassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	return s.repo.UpdatePasswordHash(ctx, userID, string(hash))
}

func (s *Service) parse(tokenString string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != want || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// generateToken creates a signed JWT of the given type for the user.
func (s *Service) generateToken(userID string, typ TokenType, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        s.newID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func checkPassword(password string) error {
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	if len(password) < 8 {
		return ErrWeakPassword
	}
	if strings.Trim(password, "0123456789") == "" {
		return ErrWeakPassword
	}
	return nil
}

// bcrypt rejects longer input.
const maxPasswordBytes = 72

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateSuperuser provisions an active superuser account. It is used by the
// operator bootstrap and bypasses signup.
func (s *Service) CreateSuperuser(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, validate.Errors{"email": "Enter a valid email address."}
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, CreateUserParams{Email: email, PasswordHash: string(hash), IsSuperuser: true})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
