package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cleansight/internal/domain"
	"cleansight/internal/service/identity"
	apperrors "cleansight/pkg/errors"
	"cleansight/pkg/logger"
)

// State is the session's position in the auth lifecycle
type State string

const (
	// StateBootstrapping is entered at startup and whenever an identity arrives
	// from outside an operation; it lasts until the profile is available.
	StateBootstrapping   State = "bootstrapping"
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
	// StateFailed means an identity is bound but its profile could not be loaded
	StateFailed State = "failed"
)

const materializeTimeout = 15 * time.Second

// IdentityClient is the per-session identity provider handle
type IdentityClient interface {
	Current() *domain.Identity
	Subscribe(fn identity.Listener) func()
	SignIn(ctx context.Context, email, password string) (*domain.Identity, error)
	SignUp(ctx context.Context, email, password string, hints domain.ProfileHints) (*domain.Identity, error)
	SignInWithFederated(ctx context.Context, assertion *domain.FederatedAssertion) (*domain.FederatedResult, error)
	SignOut(ctx context.Context)
	Close()
}

// ProfileSource materializes and updates profiles
type ProfileSource interface {
	Ensure(ctx context.Context, identity *domain.Identity, hints domain.ProfileHints) (*domain.Profile, error)
	Update(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error)
}

// Snapshot is a consistent read of the session
type Snapshot struct {
	ID             string       `json:"-"`
	State          State        `json:"state"`
	Loading        bool         `json:"loading"`
	User           *domain.User `json:"user"`
	DashboardRoute string       `json:"dashboard_route,omitempty"`
	Error          string       `json:"error,omitempty"`
	Version        uint64       `json:"version"`
}

// Result tells the caller where to navigate after an operation
type Result struct {
	RedirectTo   string       `json:"redirect_to"`
	PrefillEmail string       `json:"prefill_email,omitempty"`
	User         *domain.User `json:"user,omitempty"`
}

// Location is the onboarding form
type Location struct {
	State   string `json:"state"`
	City    string `json:"city"`
	Zone    string `json:"zone"`
	Address string `json:"address"`
}

// Session is one browser session's auth context. Explicit operations are
// serialized; identity changes pushed by the provider are applied in between.
type Session struct {
	id       string
	identity IdentityClient
	profiles ProfileSource
	logger   *logger.Logger

	ops sync.Mutex

	mu         sync.Mutex
	state      State
	loading    bool
	user       *domain.User
	lastError  string
	failedID   string
	version    uint64
	generation uint64
	inOp       bool
	changed    chan struct{}
	lastSeen   time.Time
	closed     bool

	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	bg          sync.WaitGroup
	now         func() time.Time
}

// New creates a session and subscribes it to the identity client. The first
// identity is delivered before New returns.
func New(id string, client IdentityClient, profiles ProfileSource, log *logger.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		identity: client,
		profiles: profiles,
		logger:   log.Named("session"),
		state:    StateBootstrapping,
		loading:  true,
		changed:  make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
	s.lastSeen = s.now()
	s.unsubscribe = client.Subscribe(s.onIdentity)
	return s
}

func (s *Session) ID() string { return s.id }

// onIdentity handles pushes from the identity client
func (s *Session) onIdentity(ident *domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.inOp {
		// the running operation settles state itself
		return
	}

	s.generation++
	if ident == nil {
		s.failedID = ""
		s.setLocked(StateUnauthenticated, nil)
		return
	}
	if s.state == StateAuthenticated && s.user != nil && s.user.ID == ident.ID {
		return
	}

	s.state = StateBootstrapping
	s.loading = true
	s.user = nil
	s.notifyLocked()

	s.bg.Add(1)
	go s.materialize(ident, s.generation)
}

func (s *Session) materialize(ident *domain.Identity, gen uint64) {
	defer s.bg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, materializeTimeout)
	defer cancel()

	p, err := s.profiles.Ensure(ctx, ident, domain.ProfileHints{})

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.closed {
		return
	}
	if err != nil {
		s.logger.WithError(err).WithField("user_id", ident.ID).Error("Failed to load profile")
		s.failedID = ident.ID
		s.lastError = msgProfileFailed
		s.setLocked(StateFailed, nil)
		return
	}
	s.setLocked(StateAuthenticated, domain.NewUser(ident, p))
}

// setLocked moves to a settled, non-loading state
func (s *Session) setLocked(state State, user *domain.User) {
	s.state = state
	s.loading = false
	s.user = user
	s.notifyLocked()
}

func (s *Session) notifyLocked() {
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
}

// Snapshot returns the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:      s.id,
		State:   s.state,
		Loading: s.loading,
		User:    s.user.Clone(),
		Error:   s.lastError,
		Version: s.version,
	}
	if s.user != nil {
		snap.DashboardRoute = s.user.DefaultRoute()
	}
	return snap
}

// Wait blocks until the session is not loading or ctx is done. The snapshot is returned either way.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	for {
		s.mu.Lock()
		if !s.loading {
			snap := s.snapshotLocked()
			s.mu.Unlock()
			return snap, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		}
	}
}

type opState struct {
	state State
	user  *domain.User
}

// beginOp marks an operation as running and invalidates in-flight bootstraps
func (s *Session) beginOp() opState {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := opState{state: s.state, user: s.user}
	s.inOp = true
	s.generation++
	s.loading = true
	s.lastError = ""
	s.notifyLocked()
	return prev
}

// endOp settles the operation's outcome then reconciles with the provider's current identity
func (s *Session) endOp(state State, user *domain.User) {
	s.mu.Lock()
	s.inOp = false
	if state != StateFailed {
		s.failedID = ""
	}
	s.setLocked(state, user)
	s.mu.Unlock()

	s.reconcile()
}

// failOp restores the pre-action state and records the user-facing message
func (s *Session) failOp(prev opState, err error) error {
	appErr := toAppError(err)

	s.mu.Lock()
	s.inOp = false
	s.lastError = appErr.Message
	if prev.state == StateBootstrapping {
		// still resolving the bootstrap identity; reconcile restarts it
		s.state, s.user = StateBootstrapping, nil
		s.notifyLocked()
	} else {
		s.setLocked(prev.state, prev.user)
	}
	s.mu.Unlock()

	s.logger.WithError(err).WithField("code", appErr.Code).Info("Auth operation failed")
	s.reconcile()
	return appErr
}

// failProfile settles into Failed when the identity succeeded but the profile did not
func (s *Session) failProfile(ident *domain.Identity, err error) error {
	s.logger.WithError(err).WithField("user_id", ident.ID).Error("Failed to materialize profile")

	s.mu.Lock()
	s.inOp = false
	s.failedID = ident.ID
	s.lastError = msgProfileFailed
	s.setLocked(StateFailed, nil)
	s.mu.Unlock()

	s.reconcile()
	return apperrors.NewExternalError(msgProfileFailed, err)
}

// reconcile catches identity changes that arrived while an operation was running
func (s *Session) reconcile() {
	current := s.identity.Current()

	s.mu.Lock()
	var settledID string
	switch {
	case s.state == StateFailed:
		settledID = s.failedID
	case s.user != nil:
		settledID = s.user.ID
	}
	stale := s.state == StateBootstrapping || settledID != identityID(current)
	s.mu.Unlock()

	if stale {
		s.onIdentity(current)
	}
}

func identityID(i *domain.Identity) string {
	if i == nil {
		return ""
	}
	return i.ID
}

// SignIn authenticates with a password and lands on the role dashboard
func (s *Session) SignIn(ctx context.Context, email, password string) (*Result, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	prev := s.beginOp()
	ident, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, s.failOp(prev, err)
	}
	return s.completeAuth(ctx, ident, domain.ProfileHints{}, false)
}

// SignUp creates an account, seeds its profile from hints and lands on the role dashboard
func (s *Session) SignUp(ctx context.Context, email, password string, hints domain.ProfileHints) (*Result, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	// parked registration roles belong to the federated flow only
	hints.Session = ""

	prev := s.beginOp()
	ident, err := s.identity.SignUp(ctx, email, password, hints)
	if err != nil {
		return nil, s.failOp(prev, err)
	}
	return s.completeAuth(ctx, ident, hints, false)
}

// SignInWithFederatedProvider finishes a federated sign-in. A brand new
// identity gets no profile here: the session signs out locally and sends the
// user to registration with the provider email for prefill.
func (s *Session) SignInWithFederatedProvider(ctx context.Context, assertion *domain.FederatedAssertion, roleHint string) (*Result, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	prev := s.beginOp()
	res, err := s.identity.SignInWithFederated(ctx, assertion)
	if err != nil {
		return nil, s.failOp(prev, err)
	}

	if res.IsNewUser {
		s.identity.SignOut(ctx)
		s.endOp(StateUnauthenticated, nil)
		s.logger.WithField("user_id", res.Identity.ID).Info("New federated identity sent to registration")
		return &Result{RedirectTo: domain.FederatedRegisterPath, PrefillEmail: res.Identity.Email}, nil
	}
	return s.completeAuth(ctx, res.Identity, domain.ProfileHints{Role: roleHint, Session: s.id}, true)
}

func (s *Session) completeAuth(ctx context.Context, ident *domain.Identity, hints domain.ProfileHints, checkOnboarding bool) (*Result, error) {
	p, err := s.profiles.Ensure(ctx, ident, hints)
	if err != nil {
		return nil, s.failProfile(ident, err)
	}

	user := domain.NewUser(ident, p)
	redirect := user.DefaultRoute()
	if checkOnboarding && !user.LocationComplete() {
		redirect = domain.RouteOnboardingAddress
	}

	s.endOp(StateAuthenticated, user)
	return &Result{RedirectTo: redirect, User: user.Clone()}, nil
}

// SignOut always succeeds locally and lands on the root page
func (s *Session) SignOut(ctx context.Context) *Result {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.beginOp()
	s.identity.SignOut(ctx)
	s.endOp(StateUnauthenticated, nil)
	return &Result{RedirectTo: domain.RouteRoot}
}

// UpdateUser writes the partial update through the store, then merges it into
// the in-memory user without re-reading.
func (s *Session) UpdateUser(ctx context.Context, update domain.ProfileUpdate) (*domain.User, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	user := s.user.Clone()
	s.mu.Unlock()

	if user == nil {
		appErr := apperrors.NewAuthenticationError("Not signed in")
		appErr.Internal = ErrNotAuthenticated
		return nil, appErr
	}
	if update.IsEmpty() {
		return user, nil
	}

	stored, err := s.profiles.Update(ctx, user.ID, update)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return nil, apperrors.NewNotFoundError("Profile not found")
	}
	if err != nil {
		return nil, apperrors.NewExternalError("Could not save profile, please retry", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || s.user.ID != user.ID {
		// signed out or switched while the write was in flight
		return nil, apperrors.NewConflictError("Session changed during update")
	}
	s.user.Merge(update)
	s.user.UpdatedAt = stored.UpdatedAt
	s.notifyLocked()
	return s.user.Clone(), nil
}

// SubmitOnboarding stores the location form and lands on the role dashboard
func (s *Session) SubmitOnboarding(ctx context.Context, loc Location) (*Result, error) {
	loc = Location{
		State:   strings.TrimSpace(loc.State),
		City:    strings.TrimSpace(loc.City),
		Zone:    strings.TrimSpace(loc.Zone),
		Address: strings.TrimSpace(loc.Address),
	}

	fields := []struct{ name, value string }{
		{"state", loc.State}, {"city", loc.City}, {"zone", loc.Zone}, {"address", loc.Address},
	}
	missing := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError("Please complete all location fields.", map[string]interface{}{"missing": missing})
	}

	user, err := s.UpdateUser(ctx, domain.ProfileUpdate{
		State:      &loc.State,
		City:       &loc.City,
		Zone:       &loc.Zone,
		Address:    &loc.Address,
		Extensions: map[string]any{"fullLocation": fmt.Sprintf("%s, %s, %s", loc.Zone, loc.City, loc.State)},
	})
	if err != nil {
		return nil, err
	}
	return &Result{RedirectTo: user.DefaultRoute(), User: user}, nil
}

// touch records activity for idle eviction
func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inOp
}

// Close unsubscribes and waits for background profile loads to finish
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.unsubscribe()
	s.identity.Close()
	s.cancel()
	s.bg.Wait()
}
