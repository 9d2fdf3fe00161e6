package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"vendafacil/backend/internal/domain"
)

type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	users     map[string]credential
}

type UserStore interface {
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	password string
	role     string
	active   bool
	created  time.Time
}

type saleCustomClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	manager := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
	}
	// Startup operation, no request context exists yet.
	manager.bootstrapUsers(context.Background())
	return manager
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	// Refreshed on every login so accounts added outside this process are
	// picked up without a restart.
	a.bootstrapUsers(context.Background())
	username := strings.TrimSpace(req.Username)
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	if !ok {
		return domain.LoginResponse{}, errors.New("credenciais invalidas")
	}

	valid := verifyPassword(cred.password, req.Password)
	if !valid {
		return domain.LoginResponse{}, errors.New("credenciais invalidas")
	}
	if !cred.active {
		return domain.LoginResponse{}, errors.New("conta inativa")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, cred.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &saleCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("token invalido ou expirado")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("token invalido ou expirado")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	claims := saleCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "vendafacil",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// bootstrapUsers loads user accounts from the user store into the in-memory
// credential cache. Legacy plain-text passwords are upgraded to bcrypt hashes
// in the store on the way through.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}

	users, err := a.userStore.ListUsers(ctx)
	if err != nil || len(users) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				_ = a.userStore.UpdateUserPassword(ctx, username, hashed)
			}
		}
		a.users[username] = credential{
			password: password,
			role:     user.Role,
			active:   user.Active,
			created:  user.CreatedAt,
		}
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
