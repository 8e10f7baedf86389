// Package auth verifies user credentials and issues the signed session
// tokens carried in the session cookie.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"deals/internal/core"
)

// CookieName is the session cookie holding the signed token.
const CookieName = "deals_session"

// Principal is the authenticated user a request acts as.
type Principal struct {
	UserID   int64
	Username string
}

type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (core.User, error)
	CreateUser(ctx context.Context, username, passwordHash string) error
}

type Authenticator struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func New(users UserStore, secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{users: users, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is how long an issued token stays valid.
func (a *Authenticator) TTL() time.Duration { return a.ttl }

type sessionClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Login checks username and password. Unknown users and wrong passwords
// both yield ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, username, password string) (Principal, error) {
	u, err := a.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, core.ErrNotFound) {
		return Principal{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return Principal{}, fmt.Errorf("get user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Principal{}, core.ErrInvalidCredentials
	}
	return Principal{UserID: u.ID, Username: u.Username}, nil
}

// IssueToken signs a session token for p.
func (a *Authenticator) IssueToken(p Principal) (string, error) {
	now := a.now()
	claims := sessionClaims{
		UserID:   p.UserID,
		Username: p.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a session token. Any failure is ErrUnauthorized.
func (a *Authenticator) ParseToken(tokenString string) (Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return Principal{}, core.ErrUnauthorized
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || claims.Username == "" {
		return Principal{}, core.ErrUnauthorized
	}
	return Principal{UserID: claims.UserID, Username: claims.Username}, nil
}

// EnsureUser creates the user with password unless the username is taken.
func (a *Authenticator) EnsureUser(ctx context.Context, username, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := a.users.CreateUser(ctx, username, hash); err != nil {
		return fmt.Errorf("create user %q: %w", username, err)
	}
	slog.InfoContext(ctx, "Bootstrap user ensured", "username", username)
	return nil
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}
