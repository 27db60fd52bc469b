package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ports"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	maxPasswordBytes = 72 // bcrypt input limit
)

type AuthConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int // zero selects bcrypt.DefaultCost
}

// Tokens is a freshly issued access/refresh pair.
type Tokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type AuthService struct {
	users      ports.UserRepository
	categories *CategoryService
	cfg        AuthConfig
	now        func() time.Time
}

func NewAuthService(users ports.UserRepository, categories *CategoryService, cfg AuthConfig) *AuthService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:      users,
		categories: categories,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Register creates the account, seeds its default categories and logs it in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (core.User, Tokens, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return core.User{}, Tokens{}, &core.ValidationError{Field: "name", Err: core.ErrEmptyName}
	}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return core.User{}, Tokens{}, &core.ValidationError{Field: "email", Err: errors.New("invalid email")}
	}
	if password == "" || len(password) > maxPasswordBytes {
		return core.User{}, Tokens{}, &core.ValidationError{Field: "password", Err: errors.New("password must be 1-72 bytes")}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return core.User{}, Tokens{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, core.User{Name: name, Email: email, PasswordHash: hash})
	if err != nil {
		return core.User{}, Tokens{}, err
	}

	if s.categories != nil {
		if err := s.categories.SeedDefaults(ctx, user.ID); err != nil {
			// The account exists; seeding is idempotent and can be retried.
			slog.ErrorContext(ctx, "Failed to seed default categories", "user_id", user.ID, "error", err)
		}
	}

	tokens, err := s.issue(user)
	if err != nil {
		return core.User{}, Tokens{}, err
	}
	slog.InfoContext(ctx, "User registered", "user_id", user.ID)
	return user, tokens, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (core.User, Tokens, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.User{}, Tokens{}, core.ErrInvalidCredentials
		}
		return core.User{}, Tokens{}, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		slog.WarnContext(ctx, "Invalid password attempt", "user_id", user.ID)
		return core.User{}, Tokens{}, core.ErrInvalidCredentials
	}

	tokens, err := s.issue(user)
	if err != nil {
		return core.User{}, Tokens{}, err
	}
	return user, tokens, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	userID, err := s.parse(refreshToken, s.cfg.RefreshSecret, tokenTypeRefresh)
	if err != nil {
		return "", time.Time{}, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", time.Time{}, core.ErrUnauthorized
		}
		return "", time.Time{}, fmt.Errorf("load user: %w", err)
	}
	exp := s.now().Add(s.cfg.AccessTTL)
	token, err := s.sign(user, tokenTypeAccess, s.cfg.AccessSecret, exp)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Authenticate returns the user id carried by a valid access token.
func (s *AuthService) Authenticate(accessToken string) (int64, error) {
	return s.parse(accessToken, s.cfg.AccessSecret, tokenTypeAccess)
}

func (s *AuthService) issue(user core.User) (Tokens, error) {
	now := s.now()
	t := Tokens{
		AccessExpiresAt:  now.Add(s.cfg.AccessTTL),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTTL),
	}
	var err error
	if t.AccessToken, err = s.sign(user, tokenTypeAccess, s.cfg.AccessSecret, t.AccessExpiresAt); err != nil {
		return Tokens{}, err
	}
	if t.RefreshToken, err = s.sign(user, tokenTypeRefresh, s.cfg.RefreshSecret, t.RefreshExpiresAt); err != nil {
		return Tokens{}, err
	}
	return t, nil
}

func (s *AuthService) sign(user core.User, typ string, secret []byte, exp time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   strconv.FormatInt(user.ID, 10),
		"email": user.Email,
		"typ":   typ,
		"iat":   s.now().Unix(),
		"exp":   exp.Unix(),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (s *AuthService) parse(tokenString string, secret []byte, wantType string) (int64, error) {
	if tokenString == "" {
		return 0, core.ErrUnauthorized
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return 0, core.ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, core.ErrUnauthorized
	}
	if typ, _ := claims["typ"].(string); typ != wantType {
		return 0, core.ErrUnauthorized
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return 0, core.ErrUnauthorized
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.ErrUnauthorized
	}
	return id, nil
}
