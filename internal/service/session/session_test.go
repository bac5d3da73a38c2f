package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cleansight/internal/domain"
	"cleansight/internal/repository"
	"cleansight/internal/service/identity"
	"cleansight/internal/service/profile"
	apperrors "cleansight/pkg/errors"
	"cleansight/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type env struct {
	identities *identity.Service
	accounts   *repository.MemoryAccountRepository
	profiles   *repository.MemoryProfileRepository
	source     *switchableProfiles
	pending    *profile.PendingRoles
}

// switchableProfiles lets a test break or stall the profile store
type switchableProfiles struct {
	inner   ProfileSource
	broken  atomic.Bool
	stall   chan struct{}
	ensures atomic.Int32
}

func (p *switchableProfiles) Ensure(ctx context.Context, ident *domain.Identity, hints domain.ProfileHints) (*domain.Profile, error) {
	p.ensures.Add(1)
	if p.stall != nil {
		select {
		case <-p.stall:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.broken.Load() {
		return nil, errors.New("firestore unavailable")
	}
	return p.inner.Ensure(ctx, ident, hints)
}

func (p *switchableProfiles) Update(ctx context.Context, id string, u domain.ProfileUpdate) (*domain.Profile, error) {
	if p.broken.Load() {
		return nil, errors.New("firestore unavailable")
	}
	return p.inner.Update(ctx, id, u)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	accounts := repository.NewMemoryAccountRepository()
	profiles := repository.NewMemoryProfileRepository()
	kv := repository.NewMemoryKV()
	pending := profile.NewPendingRoles(kv, 30*time.Minute, logger.NewNop())
	return &env{
		identities: identity.NewService(accounts, kv, nil, nil, identity.Config{SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost}, logger.NewNop()),
		accounts:   accounts,
		profiles:   profiles,
		source:     &switchableProfiles{inner: profile.NewMaterializer(profiles, pending, logger.NewNop())},
		pending:    pending,
	}
}

func (e *env) session(t *testing.T, sid string) *Session {
	t.Helper()
	client, err := e.identities.Open(context.Background(), sid)
	require.NoError(t, err)
	s := New(sid, client, e.source, logger.NewNop())
	t.Cleanup(s.Close)
	return s
}

// seed creates a password account plus its profile
func (e *env) seed(t *testing.T, email string, p *domain.Profile) *domain.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("demo123"), bcrypt.MinCost)
	require.NoError(t, err)
	acct := &domain.Account{Email: email, PasswordHash: string(hash)}
	require.NoError(t, e.accounts.Create(context.Background(), acct))
	if p != nil {
		p.ID, p.Email = acct.ID, email
		require.NoError(t, e.profiles.Create(context.Background(), p))
	}
	return acct
}

func waitSettled(t *testing.T, s *Session) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := s.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func TestSession_BootstrapWithoutIdentity(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "sid")

	snap := s.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.False(t, snap.Loading, "first identity callback is synchronous")
	assert.Nil(t, snap.User)
}

func TestSession_BootstrapRestoresBoundIdentity(t *testing.T) {
	e := newEnv(t)
	acct := e.seed(t, "org@example.com", &domain.Profile{Role: domain.RoleInstitution, DisplayName: "Green Org"})

	first := e.session(t, "browser")
	_, err := first.SignIn(context.Background(), "org@example.com", "demo123")
	require.NoError(t, err)

	restored := e.session(t, "browser")
	snap := waitSettled(t, restored)
	assert.Equal(t, StateAuthenticated, snap.State)
	require.NotNil(t, snap.User)
	assert.Equal(t, acct.ID, snap.User.ID)
	assert.Equal(t, domain.RoleInstitution, snap.User.Role)
	assert.Equal(t, "Institution", snap.User.RoleName)
	assert.Equal(t, domain.RouteOrgDashboard, snap.DashboardRoute)
}

func TestSession_SignUpDefaultsToCitizen(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "sid")

	res, err := s.SignUp(context.Background(), "a@b.com", "demo123", domain.ProfileHints{})
	require.NoError(t, err)
	assert.Equal(t, domain.RouteCitizenDashboard, res.RedirectTo)
	assert.Equal(t, domain.RoleCitizen, res.User.Role)
	assert.Equal(t, "a", res.User.DisplayName)

	snap := s.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.False(t, snap.Loading)
	assert.Equal(t, 1, e.profiles.Len())
}

func TestSession_SignUpUsesHints(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "sid")

	res, err := s.SignUp(context.Background(), "kiosk@b.com", "demo123", domain.ProfileHints{
		Role: "ragpicker", DisplayName: "Kiosk 7", State: "Karnataka", City: "Bengaluru", Zone: "East", Address: "1 Main",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RouteRagpickerTasks, res.RedirectTo)
	assert.Equal(t, "Kiosk 7", res.User.DisplayName)
	assert.True(t, res.User.LocationComplete())
}

func TestSession_SignInRedirectsToRoleDashboard(t *testing.T) {
	tests := []struct {
		role domain.Role
		want string
	}{
		{domain.RoleCitizen, "/dashboard"},
		{domain.RoleRagpicker, "/r/tasks"},
		{domain.RoleInstitution, "/org/dashboard"},
		{domain.RoleAdmin, "/admin/overview"},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			e := newEnv(t)
			e.seed(t, "user@example.com", &domain.Profile{Role: tt.role})
			s := e.session(t, "sid")

			res, err := s.SignIn(context.Background(), "user@example.com", "demo123")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.RedirectTo)
		})
	}
}

func TestSession_SignInFailuresKeepPreActionState(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "asha@example.com", &domain.Profile{Role: domain.RoleCitizen})

	tests := []struct {
		name     string
		email    string
		password string
		message  string
		code     string
		status   int
	}{
		{"wrong password", "asha@example.com", "wrong123", "Incorrect password", "auth/wrong-password", 401},
		{"unknown user", "nobody@example.com", "demo123", "User not found", "auth/user-not-found", 401},
		{"invalid email", "asha", "demo123", "Invalid email address", "auth/invalid-email", 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := e.session(t, "sid-"+tt.name)
			res, err := s.SignIn(context.Background(), tt.email, tt.password)
			assert.Nil(t, res)

			appErr := apperrors.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.message, appErr.Message)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, appErr.StatusCode)

			snap := s.Snapshot()
			assert.Equal(t, StateUnauthenticated, snap.State)
			assert.False(t, snap.Loading)
			assert.Equal(t, tt.message, snap.Error)
		})
	}

	t.Run("failed sign-in while signed in keeps the user", func(t *testing.T) {
		s := e.session(t, "sid-signed-in")
		_, err := s.SignIn(context.Background(), "asha@example.com", "demo123")
		require.NoError(t, err)

		_, err = s.SignIn(context.Background(), "asha@example.com", "wrong123")
		require.Error(t, err)
		snap := s.Snapshot()
		assert.Equal(t, StateAuthenticated, snap.State)
		assert.Equal(t, "asha@example.com", snap.User.Email)
	})
}

func TestSession_SignUpErrorMessages(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "taken@example.com", nil)
	s := e.session(t, "sid")

	_, err := s.SignUp(context.Background(), "taken@example.com", "demo123", domain.ProfileHints{})
	assert.Equal(t, "Email already in use", apperrors.As(err).Message)
	assert.Equal(t, 409, apperrors.As(err).StatusCode)

	_, err = s.SignUp(context.Background(), "fresh@example.com", "123", domain.ProfileHints{})
	assert.Equal(t, "Password is too weak", apperrors.As(err).Message)
	assert.False(t, s.Snapshot().Loading)
}

func TestSession_FederatedNewUserGoesToRegistration(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "sid")

	res, err := s.SignInWithFederatedProvider(context.Background(), &domain.FederatedAssertion{
		Provider: "google", Subject: "g-new", Email: "new@gmail.com", EmailVerified: true,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "/register?google=1", res.RedirectTo)
	assert.Equal(t, "new@gmail.com", res.PrefillEmail)
	assert.Nil(t, res.User)

	assert.Equal(t, 0, e.profiles.Len(), "no profile for a brand new federated identity")
	snap := s.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.False(t, snap.Loading)
}

func TestSession_FederatedExistingUser(t *testing.T) {
	ctx := context.Background()
	assertion := &domain.FederatedAssertion{Provider: "google", Subject: "g-1", Email: "asha@gmail.com", EmailVerified: true}

	t.Run("incomplete location goes to onboarding", func(t *testing.T) {
		e := newEnv(t)
		acct := &domain.Account{Email: assertion.Email}
		require.NoError(t, e.accounts.CreateFederated(ctx, acct, "google", "g-1"))
		require.NoError(t, e.profiles.Create(ctx, &domain.Profile{
			ID: acct.ID, Email: acct.Email, Role: domain.RoleRagpicker, State: "MH", City: "Pune", Address: "12 Lane",
		}))

		res, err := e.session(t, "sid").SignInWithFederatedProvider(ctx, assertion, "")
		require.NoError(t, err)
		assert.Equal(t, domain.RouteOnboardingAddress, res.RedirectTo)
	})

	t.Run("complete location goes to dashboard", func(t *testing.T) {
		e := newEnv(t)
		acct := &domain.Account{Email: assertion.Email}
		require.NoError(t, e.accounts.CreateFederated(ctx, acct, "google", "g-1"))
		require.NoError(t, e.profiles.Create(ctx, &domain.Profile{
			ID: acct.ID, Email: acct.Email, Role: domain.RoleAdmin, State: "MH", City: "Pune", Zone: "West", Address: "12 Lane",
		}))

		res, err := e.session(t, "sid").SignInWithFederatedProvider(ctx, assertion, "citizen")
		require.NoError(t, err)
		assert.Equal(t, domain.RouteAdminOverview, res.RedirectTo)
		assert.Equal(t, domain.RoleAdmin, res.User.Role, "existing profile is never overwritten by hints")
	})

	t.Run("registered after first pass uses the pending role", func(t *testing.T) {
		e := newEnv(t)
		s := e.session(t, "sid")

		res, err := s.SignInWithFederatedProvider(ctx, assertion, "")
		require.NoError(t, err)
		require.Equal(t, domain.FederatedRegisterPath, res.RedirectTo)

		require.NoError(t, e.pending.Put(ctx, "sid", res.PrefillEmail, domain.RoleInstitution))

		res, err = s.SignInWithFederatedProvider(ctx, assertion, "")
		require.NoError(t, err)
		assert.Equal(t, domain.RouteOnboardingAddress, res.RedirectTo)
		assert.Equal(t, domain.RoleInstitution, res.User.Role)
		assert.Equal(t, StateAuthenticated, s.Snapshot().State)
	})

	t.Run("role hint from the start of the flow", func(t *testing.T) {
		e := newEnv(t)
		s := e.session(t, "sid")
		_, err := s.SignInWithFederatedProvider(ctx, assertion, "")
		require.NoError(t, err)

		res, err := s.SignInWithFederatedProvider(ctx, assertion, "ragpicker")
		require.NoError(t, err)
		assert.Equal(t, domain.RoleRagpicker, res.User.Role)
	})
}

func TestSession_SignOut(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "asha@example.com", &domain.Profile{Role: domain.RoleCitizen})
	s := e.session(t, "sid")

	_, err := s.SignIn(context.Background(), "asha@example.com", "demo123")
	require.NoError(t, err)

	res := s.SignOut(context.Background())
	assert.Equal(t, "/", res.RedirectTo)
	snap := s.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.User)

	restored := e.session(t, "sid")
	assert.Equal(t, StateUnauthenticated, restored.Snapshot().State, "session record was removed")
}

func TestSession_UpdateUser(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "asha@example.com", &domain.Profile{Role: domain.RoleCitizen, City: "Pune"})
	s := e.session(t, "sid")
	ctx := context.Background()

	_, err := s.UpdateUser(ctx, domain.ProfileUpdate{City: domain.StringPtr("Delhi")})
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	res, err := s.SignIn(ctx, "asha@example.com", "demo123")
	require.NoError(t, err)
	before := res.User.UpdatedAt

	user, err := s.UpdateUser(ctx, domain.ProfileUpdate{City: domain.StringPtr("Delhi"), DisplayName: domain.StringPtr("Asha")})
	require.NoError(t, err)
	assert.Equal(t, "Delhi", user.City)
	assert.Equal(t, "Asha", user.DisplayName)
	assert.True(t, user.UpdatedAt.After(before))
	assert.Equal(t, domain.RoleCitizen, user.Role)

	stored, _ := e.profiles.Get(ctx, user.ID)
	assert.Equal(t, "Delhi", stored.City)
	assert.Equal(t, "Delhi", s.Snapshot().User.City)

	e.source.broken.Store(true)
	_, err = s.UpdateUser(ctx, domain.ProfileUpdate{City: domain.StringPtr("Mumbai")})
	require.Error(t, err)
	assert.Equal(t, "Delhi", s.Snapshot().User.City, "failed write leaves the user untouched")
}

func TestSession_SubmitOnboarding(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "kiosk@example.com", &domain.Profile{Role: domain.RoleRagpicker})
	s := e.session(t, "sid")
	ctx := context.Background()
	_, err := s.SignIn(ctx, "kiosk@example.com", "demo123")
	require.NoError(t, err)

	_, err = s.SubmitOnboarding(ctx, Location{State: "Maharashtra", City: "Pune", Address: "  "})
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
	assert.Equal(t, []string{"zone", "address"}, appErr.Details["missing"])

	res, err := s.SubmitOnboarding(ctx, Location{State: "Maharashtra", City: "Pune", Zone: "Kothrud", Address: "12 MG Road"})
	require.NoError(t, err)
	assert.Equal(t, domain.RouteRagpickerTasks, res.RedirectTo)
	assert.True(t, res.User.LocationComplete())
	assert.Equal(t, "Kothrud, Pune, Maharashtra", res.User.Extensions["fullLocation"])
}

func TestSession_ProfileFailureSettlesInFailed(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "asha@example.com", &domain.Profile{Role: domain.RoleCitizen})
	e.source.broken.Store(true)
	s := e.session(t, "sid")

	_, err := s.SignIn(context.Background(), "asha@example.com", "demo123")
	require.Error(t, err)

	snap := s.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.User)
	assert.NotEmpty(t, snap.Error)

	t.Run("bootstrap of the same session also fails without hanging", func(t *testing.T) {
		again := e.session(t, "sid")
		snap := waitSettled(t, again)
		assert.Equal(t, StateFailed, snap.State)
	})
}

func TestSession_FollowsIdentityChangesFromElsewhere(t *testing.T) {
	e := newEnv(t)
	acct := e.seed(t, "asha@example.com", &domain.Profile{Role: domain.RoleAdmin})
	ctx := context.Background()

	watcher := e.session(t, "shared")
	actor := e.session(t, "shared")

	_, err := actor.SignIn(ctx, "asha@example.com", "demo123")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		snap := watcher.Snapshot()
		return snap.State == StateAuthenticated && snap.User != nil && snap.User.ID == acct.ID
	}, 2*time.Second, 5*time.Millisecond)

	actor.SignOut(ctx)
	snap := watcher.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.User)
}

func TestSession_WaitHonoursContext(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "asha@example.com", &domain.Profile{Role: domain.RoleCitizen})
	ctx := context.Background()

	first := e.session(t, "browser")
	_, err := first.SignIn(ctx, "asha@example.com", "demo123")
	require.NoError(t, err)

	e.source.stall = make(chan struct{})
	stalled := e.session(t, "browser")

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	snap, err := stalled.Wait(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, snap.Loading)
	assert.Equal(t, StateBootstrapping, snap.State)
	assert.Nil(t, snap.User)

	close(e.source.stall)
	snap = waitSettled(t, stalled)
	assert.Equal(t, StateAuthenticated, snap.State)
}

func TestSession_CloseCancelsInFlightBootstrap(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "asha@example.com", &domain.Profile{Role: domain.RoleCitizen})

	first := e.session(t, "browser")
	_, err := first.SignIn(context.Background(), "asha@example.com", "demo123")
	require.NoError(t, err)

	e.source.stall = make(chan struct{})
	client, err := e.identities.Open(context.Background(), "browser")
	require.NoError(t, err)
	s := New("browser", client, e.source, logger.NewNop())
	assert.True(t, s.Snapshot().Loading)

	s.Close()
	s.Close()
	assert.True(t, s.Snapshot().Loading, "discarded result does not touch state")
}
