package identity

import (
	"context"
	"sync"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/auth"
	"google.golang.org/api/option"

	domainErrors "github.com/neobile/smarttutor-iap/internal/domain/errors"
)

// Firebase derives the current user from a Firebase ID token handed over by
// the host app bridge. The raw token doubles as the bearer token on backend
// calls.
type Firebase struct {
	auth *auth.Client

	mu    sync.RWMutex
	token string
	uid   string
}

// NewFirebase creates a Firebase-backed identity provider from a service
// account credentials file.
func NewFirebase(ctx context.Context, credentialsFile string) (*Firebase, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &Firebase{auth: client}, nil
}

// SetToken installs a new ID token from the host app, replacing any cached
// identity. An empty token signs the user out.
func (f *Firebase) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
	f.uid = ""
}

// CurrentUserID verifies the installed token and returns the Firebase UID.
// Returns ErrNoIdentity when no user is signed in.
func (f *Firebase) CurrentUserID(ctx context.Context) (string, error) {
	f.mu.RLock()
	token, uid := f.token, f.uid
	f.mu.RUnlock()

	if token == "" {
		return "", domainErrors.ErrNoIdentity
	}
	if uid != "" {
		return uid, nil
	}

	decoded, err := f.auth.VerifyIDToken(ctx, token)
	if err != nil {
		return "", domainErrors.ErrNoIdentity
	}

	f.mu.Lock()
	if f.token == token {
		f.uid = decoded.UID
	}
	f.mu.Unlock()
	return decoded.UID, nil
}

// Token returns the raw bearer token for backend calls.
func (f *Firebase) Token() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.token
}

// Static is a fixed identity for sandbox runs and tests.
type Static struct {
	UID         string
	BearerToken string
}

// NewStatic creates a static identity provider
func NewStatic(uid string) *Static {
	return &Static{UID: uid}
}

// CurrentUserID returns the fixed UID, or ErrNoIdentity when unset.
func (s *Static) CurrentUserID(ctx context.Context) (string, error) {
	if s.UID == "" {
		return "", domainErrors.ErrNoIdentity
	}
	return s.UID, nil
}

// Token returns the fixed bearer token.
func (s *Static) Token() string {
	return s.BearerToken
}
