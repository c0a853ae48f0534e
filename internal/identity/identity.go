// Package identity implements the Identity Verifier (C9): a JWKS-backed
// bearer token verifier used only to protect the owner-scoped aggregate
// endpoint. The gateway, direct-invoke, and invocation-list surfaces stay
// unauthenticated, matching the platform's "auth: none" core contract.
package identity

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/clowdy-platform/engine/internal/logger"
)

// OwnerIDClaim is the JWT claim read as the caller's owner id.
const OwnerIDClaim = "sub"

// Config controls JWKS fetching and refresh.
type Config struct {
	JWKSURL      string
	RefreshEvery time.Duration
}

// Verifier holds a JWKS-backed signing key that is periodically refetched
// on a ticker, the same periodic-sweep shape as the teacher's
// pool.cleanupIdleWorkers, so a key rotated at the identity provider is
// picked up without restarting the engine.
type Verifier struct {
	jwksURL string
	log     *logger.Logger

	current atomic.Pointer[jwtauth.JWTAuth]

	stop     chan struct{}
	stopOnce sync.Once
}

// NewVerifier fetches the JWKS once synchronously (a reachable identity
// provider is required at startup) and then starts a background refresh
// loop at cfg.RefreshEvery.
func NewVerifier(cfg Config, log *logger.Logger) (*Verifier, error) {
	if cfg.RefreshEvery <= 0 {
		cfg.RefreshEvery = 15 * time.Minute
	}

	v := &Verifier{
		jwksURL: cfg.JWKSURL,
		log:     log,
		stop:    make(chan struct{}),
	}

	if err := v.refresh(context.Background()); err != nil {
		return nil, fmt.Errorf("identity: initial JWKS fetch: %w", err)
	}

	go v.refreshLoop(cfg.RefreshEvery)
	return v, nil
}

func (v *Verifier) refreshLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := v.refresh(ctx); err != nil {
				v.log.Warn("identity: JWKS refresh failed, keeping previous key set: %v", err)
			}
			cancel()
		case <-v.stop:
			return
		}
	}
}

// refresh fetches the JWKS and atomically swaps the active verifier.
func (v *Verifier) refresh(ctx context.Context) error {
	set, err := jwk.Fetch(ctx, v.jwksURL)
	if err != nil {
		return fmt.Errorf("fetching JWKS from %s: %w", v.jwksURL, err)
	}
	if set.Len() == 0 {
		return fmt.Errorf("JWKS at %s contains no keys", v.jwksURL)
	}

	key, ok := set.Key(0)
	if !ok {
		return fmt.Errorf("JWKS at %s: failed to read first key", v.jwksURL)
	}

	var rawKey rsa.PublicKey
	if err := key.Raw(&rawKey); err != nil {
		return fmt.Errorf("decoding JWKS key: %w", err)
	}

	ja := jwtauth.New("RS256", nil, &rawKey)
	v.current.Store(ja)
	return nil
}

// Verifier returns chi middleware that parses and verifies the bearer
// token against the currently active key set.
func (v *Verifier) Verifier() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ja := v.current.Load()
			jwtauth.Verifier(ja)(next).ServeHTTP(w, r)
		})
	}
}

// Authenticator returns chi middleware that rejects requests lacking a
// valid, already-verified token.
func (v *Verifier) Authenticator() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ja := v.current.Load()
			jwtauth.Authenticator(ja)(next).ServeHTTP(w, r)
		})
	}
}

// Stop halts the background refresh loop.
func (v *Verifier) Stop() {
	v.stopOnce.Do(func() { close(v.stop) })
}

// OwnerIDFromContext extracts the owner id claim from a request already
// processed by Verifier+Authenticator.
func OwnerIDFromContext(ctx context.Context) (string, error) {
	_, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("identity: reading claims: %w", err)
	}

	raw, ok := claims[OwnerIDClaim]
	if !ok {
		return "", fmt.Errorf("identity: token missing %q claim", OwnerIDClaim)
	}
	ownerID, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("identity: %q claim is not a string", OwnerIDClaim)
	}
	return ownerID, nil
}
