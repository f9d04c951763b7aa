package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dfortune/fortuna/core"
	"github.com/dfortune/fortuna/internal/eth"
	"github.com/dfortune/fortuna/ports"
)

// DefaultRefreshWindow is the trailing window before session expiry during
// which a presented session is re-issued with a fresh expiry, without
// requiring a new wallet signature.
const DefaultRefreshWindow = 15 * time.Minute

// Credentials is a submitted authentication proof. No role field exists here
// on purpose: the privileged flag is derived server-side only.
type Credentials struct {
	Address   string
	Signature string
	Nonce     string
}

// AuthService coordinates the end-to-end authentication flow: challenge
// verification, signature recovery, account upsert, session mint and
// challenge invalidation.
type AuthService struct {
	challenges *ChallengeStore
	store      ports.UserStore
	tokenizer  ports.Tokenizer
	events     ports.EventPublisher
	log        *zap.Logger

	appName         string
	operatorAddress string
	refreshWindow   time.Duration
	now             func() time.Time
}

// AuthOption configures an AuthService.
type AuthOption func(*AuthService)

// WithRefreshWindow overrides the sliding-refresh window.
func WithRefreshWindow(w time.Duration) AuthOption {
	return func(s *AuthService) { s.refreshWindow = w }
}

// WithAuthClock overrides the time source, for tests.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates a new authentication service. appName is
// interpolated into the canonical signing message, so it must match what the
// signing client uses.
func NewAuthService(
	challenges *ChallengeStore,
	store ports.UserStore,
	tokenizer ports.Tokenizer,
	events ports.EventPublisher,
	appName, operatorAddress string,
	log *zap.Logger,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		challenges:      challenges,
		store:           store,
		tokenizer:       tokenizer,
		events:          events,
		log:             log,
		appName:         appName,
		operatorAddress: operatorAddress,
		refreshWindow:   DefaultRefreshWindow,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Challenges exposes the underlying challenge store.
func (s *AuthService) Challenges() *ChallengeStore { return s.challenges }

// Authorize validates a submitted proof and returns the account identity, or
// nil when authentication fails for any reason. Callers never learn which
// check failed; internal causes are only logged.
func (s *AuthService) Authorize(ctx context.Context, creds Credentials) (*core.Identity, error) {
	if creds.Address == "" || creds.Signature == "" || creds.Nonce == "" {
		return nil, nil
	}
	addr := core.NormalizeAddress(creds.Address)

	ok, err := s.challenges.Verify(ctx, addr, creds.Nonce)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.log.Debug("challenge verification failed", zap.String("address", addr))
		return nil, nil
	}

	message := eth.AuthMessage(s.appName, creds.Nonce)
	recovered, err := eth.RecoverAddressHex(message, creds.Signature)
	if err != nil {
		s.log.Debug("signature recovery failed", zap.String("address", addr), zap.Error(err))
		return nil, nil
	}
	if core.NormalizeAddress(recovered.Hex()) != addr {
		s.log.Debug("recovered address mismatch", zap.String("address", addr))
		return nil, nil
	}

	isAdmin := core.IsOperator(addr, s.operatorAddress)
	user, err := s.store.UpsertOnLogin(ctx, addr, core.DefaultName(addr), isAdmin, s.now())
	if err != nil {
		return nil, err
	}

	return &core.Identity{
		ID:      user.ID,
		Address: user.Address,
		IsAdmin: user.IsAdmin,
	}, nil
}

// Login runs Authorize and, on success, mints a session token. The consumed
// challenge is invalidated after the mint; an invalidation failure leaves the
// session valid and is only logged, so until the challenge expires naturally
// a narrow replay window exists.
func (s *AuthService) Login(ctx context.Context, creds Credentials) (*core.Identity, string, time.Time, error) {
	identity, err := s.Authorize(ctx, creds)
	if err != nil || identity == nil {
		return nil, "", time.Time{}, err
	}

	token, expiresAt, err := s.tokenizer.MintSession(*identity)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	if err := s.challenges.Invalidate(ctx, identity.Address); err != nil {
		s.log.Error("failed to invalidate consumed challenge", zap.String("address", identity.Address), zap.Error(err))
	}
	if err := s.events.PublishLogin(ctx, identity.Address); err != nil {
		s.log.Warn("failed to publish login event", zap.String("address", identity.Address), zap.Error(err))
	}

	return identity, token, expiresAt, nil
}

// ValidateSession verifies a session token. The check is side-effect-free and
// does not touch any store; it runs on every request to a protected path.
func (s *AuthService) ValidateSession(token string) (*core.Session, error) {
	return s.tokenizer.VerifySession(token)
}

// RefreshIfNeeded re-issues a token when the session is inside the trailing
// refresh window. The claims carry over unchanged; only the expiry slides.
// Returns ok=false when no refresh is due.
func (s *AuthService) RefreshIfNeeded(session *core.Session) (string, time.Time, bool, error) {
	if session.ExpiresAt.Sub(s.now()) >= s.refreshWindow {
		return "", time.Time{}, false, nil
	}

	token, expiresAt, err := s.tokenizer.MintSession(session.Identity)
	if err != nil {
		return "", time.Time{}, false, err
	}
	return token, expiresAt, true, nil
}

// Logout records a logout for address. Cookie clearing is the transport's
// job; this only emits the lifecycle event.
func (s *AuthService) Logout(ctx context.Context, address string) {
	addr := core.NormalizeAddress(address)
	if err := s.events.PublishLogout(ctx, addr); err != nil {
		s.log.Warn("failed to publish logout event", zap.String("address", addr), zap.Error(err))
	}
}
