package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cleansight/internal/domain"
	"cleansight/internal/repository"
	"cleansight/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

// Config tunes the identity service
type Config struct {
	SessionTTL    time.Duration
	OAuthStateTTL time.Duration
	BcryptCost    int
}

// Service is the identity provider shared by all sessions. Each browser
// session talks to it through its own Client.
type Service struct {
	accounts  repository.AccountRepository
	kv        repository.KeyValueStore
	providers *Registry
	bus       EventBus
	config    Config
	logger    *logger.Logger

	instanceID string

	mu      sync.Mutex
	clients map[string]map[*Client]struct{}

	newState func() (string, error)
}

// NewService creates the identity service. A nil bus keeps events local to this instance.
func NewService(accounts repository.AccountRepository, kv repository.KeyValueStore, providers *Registry, bus EventBus, cfg Config, log *logger.Logger) *Service {
	if bus == nil {
		bus = localEventBus{}
	}
	if providers == nil {
		providers = NewRegistry()
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.OAuthStateTTL == 0 {
		cfg.OAuthStateTTL = 10 * time.Minute
	}
	return &Service{
		accounts:   accounts,
		kv:         kv,
		providers:  providers,
		bus:        bus,
		config:     cfg,
		logger:     log.Named("identity"),
		instanceID: uuid.NewString(),
		clients:    make(map[string]map[*Client]struct{}),
		newState:   generateState,
	}
}

// Providers exposes the federated provider registry
func (s *Service) Providers() *Registry {
	return s.providers
}

// Start begins listening for identity changes made by other instances
func (s *Service) Start() error {
	return s.bus.Start(s.handleEvent)
}

// Stop ends the cross-instance listener
func (s *Service) Stop() {
	s.bus.Stop()
}

type sessionRecord struct {
	AccountID string    `json:"account_id"`
	SignedAt  time.Time `json:"signed_at"`
}

// Open attaches a client to the session sid, restoring any identity already bound to it
func (s *Service) Open(ctx context.Context, sid string) (*Client, error) {
	if sid == "" {
		return nil, errors.New("empty session id")
	}

	current, err := s.load(ctx, sid)
	if err != nil {
		return nil, err
	}

	c := &Client{svc: s, sid: sid, obs: newObservable(current)}

	s.mu.Lock()
	set, ok := s.clients[sid]
	if !ok {
		set = make(map[*Client]struct{})
		s.clients[sid] = set
	}
	set[c] = struct{}{}
	s.mu.Unlock()

	return c, nil
}

func (s *Service) detach(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.clients[c.sid]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(s.clients, c.sid)
		}
	}
}

// load resolves the identity bound to sid, nil when the session is signed out
func (s *Service) load(ctx context.Context, sid string) (*domain.Identity, error) {
	raw, ok, err := s.kv.Get(ctx, repository.SessionKey(sid))
	if err != nil {
		return nil, networkError(err)
	}
	if !ok {
		return nil, nil
	}

	var rec sessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.logger.WithError(err).Warn("Discarding unreadable session record")
		_ = s.kv.Delete(ctx, repository.SessionKey(sid))
		return nil, nil
	}

	acct, err := s.accounts.GetByID(ctx, rec.AccountID)
	if err != nil {
		return nil, networkError(err)
	}
	if acct == nil {
		return nil, nil
	}
	return acct.Identity(), nil
}

func (s *Service) bind(ctx context.Context, origin *Client, acct *domain.Account) error {
	rec, err := json.Marshal(sessionRecord{AccountID: acct.ID, SignedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, repository.SessionKey(origin.sid), string(rec), s.config.SessionTTL); err != nil {
		return networkError(err)
	}
	s.announce(ctx, origin, acct.ID)
	return nil
}

func (s *Service) unbind(ctx context.Context, origin *Client) {
	if err := s.kv.Delete(ctx, repository.SessionKey(origin.sid)); err != nil {
		s.logger.WithError(err).Warn("Failed to clear session record")
	}
	s.announce(ctx, origin, "")
}

func (s *Service) announce(ctx context.Context, origin *Client, accountID string) {
	err := s.bus.Publish(ctx, Event{Origin: s.instanceID, SID: origin.sid, AccountID: accountID})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to publish auth event")
	}
	s.refreshLocal(ctx, origin.sid, origin)
}

// refreshLocal re-reads the session record for clients attached to sid on this instance, skipping except
func (s *Service) refreshLocal(ctx context.Context, sid string, except *Client) {
	for _, c := range s.attached(sid) {
		if c != except {
			c.refresh(ctx)
		}
	}
}

func (s *Service) attached(sid string) []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.clients[sid]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (s *Service) handleEvent(event Event) {
	if event.Origin == s.instanceID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.refreshLocal(ctx, event.SID, nil)
}

// IsNetwork reports whether err is a transport or store failure rather than a credential problem
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

type oauthState struct {
	SID      string `json:"sid"`
	Provider string `json:"provider"`
	Verifier string `json:"verifier"`
	RoleHint string `json:"role_hint,omitempty"`
}

// FederatedCallback is what a completed provider round trip yields
type FederatedCallback struct {
	SID       string
	RoleHint  string
	Assertion *domain.FederatedAssertion
}

var (
	ErrUnknownProvider = errors.New("unknown identity provider")
	ErrInvalidState    = errors.New("invalid or expired oauth state")
)

// BeginFederated stores a one-shot state record for sid and returns the provider's authorization URL
func (s *Service) BeginFederated(ctx context.Context, providerName, sid, roleHint string) (string, error) {
	provider, ok := s.providers.Get(providerName)
	if !ok {
		return "", ErrUnknownProvider
	}

	verifier := oauth2.GenerateVerifier()
	rec, err := json.Marshal(oauthState{SID: sid, Provider: providerName, Verifier: verifier, RoleHint: roleHint})
	if err != nil {
		return "", err
	}

	// a state is never reissued over a live record
	for attempt := 0; attempt < maxStateAttempts; attempt++ {
		state, err := s.newState()
		if err != nil {
			return "", err
		}
		stored, err := s.kv.PutNew(ctx, repository.OAuthStateKey(state), string(rec), s.config.OAuthStateTTL)
		if err != nil {
			return "", networkError(err)
		}
		if stored {
			return provider.AuthCodeURL(state, verifier), nil
		}
		s.logger.WithField("attempt", attempt+1).Warn("OAuth state collided with a live record")
	}
	return "", errors.New("begin federated sign-in: no unused state")
}

const maxStateAttempts = 3

// CompleteFederated consumes the state record and exchanges the code with the provider
func (s *Service) CompleteFederated(ctx context.Context, providerName, state, code string) (*FederatedCallback, error) {
	if state == "" || code == "" {
		return nil, ErrInvalidState
	}
	provider, ok := s.providers.Get(providerName)
	if !ok {
		return nil, ErrUnknownProvider
	}

	raw, ok, err := s.kv.Take(ctx, repository.OAuthStateKey(state))
	if err != nil {
		return nil, networkError(err)
	}
	if !ok {
		return nil, ErrInvalidState
	}

	var rec oauthState
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.Provider != providerName {
		return nil, ErrInvalidState
	}

	assertion, err := provider.ExchangeCode(ctx, code, rec.Verifier)
	if err != nil {
		return nil, &Error{Code: CodeInvalidCredential, Err: err}
	}
	return &FederatedCallback{SID: rec.SID, RoleHint: rec.RoleHint, Assertion: assertion}, nil
}

// generateState returns 32 random bytes encoded for use in a URL
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
