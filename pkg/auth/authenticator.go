package auth

import (
	"errors"
	"sync"
	"time"
)

const sessionTTL = 12 * time.Hour

var ErrBadCredentials = errors.New("bad credentials")

// Authenticator issues session tokens against a registered credential set.
// Passwords are stored only as bcrypt hashes.
type Authenticator struct {
	mu    sync.RWMutex
	creds map[string]string

	hash HashServiceInterface
	jwt  JWTServiceInterface
}

func NewAuthenticator(hash HashServiceInterface, jwtService JWTServiceInterface) *Authenticator {
	return &Authenticator{
		creds: make(map[string]string),
		hash:  hash,
		jwt:   jwtService,
	}
}

// Register stores the credential for clientID, replacing any previous one.
func (a *Authenticator) Register(clientID, password string) error {
	hashed, err := a.hash.HashPassword(password)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.creds[clientID] = hashed
	a.mu.Unlock()
	return nil
}

// Authenticate checks the credential and returns a session token.
func (a *Authenticator) Authenticate(clientID, password string) (string, error) {
	a.mu.RLock()
	hashed, ok := a.creds[clientID]
	a.mu.RUnlock()
	if !ok || !a.hash.ComparePassword(hashed, password) {
		return "", ErrBadCredentials
	}
	return a.jwt.GenerateJWT(clientID, time.Now().Add(sessionTTL))
}

// Validate resolves a session token back to its client id.
func (a *Authenticator) Validate(token string) (string, error) {
	claims, err := a.jwt.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.ClientID, nil
}
