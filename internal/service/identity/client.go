package identity

import (
	"context"
	"errors"
	"strings"

	"cleansight/internal/domain"
)

// Client is one session's view of the identity provider. Its state is
// observable: Subscribe delivers the current identity immediately and then
// every sign-in or sign-out, whether made here or on another instance.
type Client struct {
	svc *Service
	sid string
	obs *observable
}

// SID returns the session this client is bound to
func (c *Client) SID() string { return c.sid }

// Current returns the signed-in identity or nil
func (c *Client) Current() *domain.Identity {
	return c.obs.get()
}

// Subscribe registers fn for identity changes and returns the unsubscribe function
func (c *Client) Subscribe(fn Listener) func() {
	return c.obs.subscribe(fn)
}

// Close detaches the client from cross-instance updates
func (c *Client) Close() {
	c.svc.detach(c)
}

// SignIn authenticates with email and password
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Identity, error) {
	email, err := validateEmail(email)
	if err != nil {
		return nil, err
	}

	acct, err := c.svc.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, networkError(err)
	}
	if acct == nil {
		return nil, ErrUnknownUser
	}
	if !verifyPassword(acct.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	if err := c.svc.bind(ctx, c, acct); err != nil {
		return nil, err
	}
	id := acct.Identity()
	c.obs.publish(id)
	return id, nil
}

// SignUp creates a password account and signs it in. Only the display name
// hint is used here; the rest belongs to the profile.
func (c *Client) SignUp(ctx context.Context, email, password string, hints domain.ProfileHints) (*domain.Identity, error) {
	email, err := validateEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(password, c.svc.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	acct := &domain.Account{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(hints.DisplayName),
	}
	if err := c.svc.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, ErrEmailInUse
		}
		return nil, networkError(err)
	}

	if err := c.svc.bind(ctx, c, acct); err != nil {
		return nil, err
	}
	id := acct.Identity()
	c.obs.publish(id)
	return id, nil
}

// SignInWithFederated resolves a provider assertion to an account: an existing
// link first, then an account with the same verified email, else a new account.
func (c *Client) SignInWithFederated(ctx context.Context, assertion *domain.FederatedAssertion) (*domain.FederatedResult, error) {
	if assertion == nil || assertion.Provider == "" || assertion.Subject == "" || assertion.Email == "" {
		return nil, &Error{Code: CodeInvalidCredential}
	}

	acct, isNew, err := c.resolveFederated(ctx, assertion)
	if err != nil {
		return nil, err
	}

	if err := c.svc.bind(ctx, c, acct); err != nil {
		return nil, err
	}
	id := acct.Identity()
	c.obs.publish(id)

	c.svc.logger.WithFields(map[string]interface{}{
		"provider": assertion.Provider,
		"new_user": isNew,
	}).Info("Federated sign-in resolved")
	return &domain.FederatedResult{Identity: id, IsNewUser: isNew}, nil
}

func (c *Client) resolveFederated(ctx context.Context, a *domain.FederatedAssertion) (*domain.Account, bool, error) {
	accounts := c.svc.accounts

	acct, err := accounts.GetByFederated(ctx, a.Provider, a.Subject)
	if err != nil {
		return nil, false, networkError(err)
	}
	if acct != nil {
		return acct, false, nil
	}

	acct, err = c.linkByEmail(ctx, a)
	if err != nil || acct != nil {
		return acct, false, err
	}

	acct = &domain.Account{
		Email:       a.Email,
		DisplayName: a.DisplayName,
		AvatarURL:   a.AvatarURL,
	}
	err = accounts.CreateFederated(ctx, acct, a.Provider, a.Subject)
	switch {
	case err == nil:
		return acct, true, nil
	case errors.Is(err, domain.ErrFederatedLinked):
		// a concurrent callback for the same subject won
		acct, err = accounts.GetByFederated(ctx, a.Provider, a.Subject)
		if err != nil || acct == nil {
			return nil, false, networkError(err)
		}
		return acct, false, nil
	case errors.Is(err, domain.ErrEmailTaken):
		acct, err = c.linkByEmail(ctx, a)
		if err != nil {
			return nil, false, err
		}
		if acct == nil {
			return nil, false, networkError(domain.ErrAccountNotFound)
		}
		return acct, false, nil
	default:
		return nil, false, networkError(err)
	}
}

// linkByEmail attaches the provider subject to an existing account with the same email.
// Returns nil, nil when no such account exists.
func (c *Client) linkByEmail(ctx context.Context, a *domain.FederatedAssertion) (*domain.Account, error) {
	acct, err := c.svc.accounts.GetByEmail(ctx, a.Email)
	if err != nil {
		return nil, networkError(err)
	}
	if acct == nil {
		return nil, nil
	}
	if !a.EmailVerified {
		return nil, &Error{Code: CodeAccountConflict}
	}
	if err := c.svc.accounts.LinkFederated(ctx, a.Provider, a.Subject, acct.ID); err != nil && !errors.Is(err, domain.ErrFederatedLinked) {
		return nil, networkError(err)
	}
	return acct, nil
}

// SignOut clears the identity locally first; remote cleanup failures are only logged
func (c *Client) SignOut(ctx context.Context) {
	c.obs.publish(nil)
	c.svc.unbind(ctx, c)
}

// refresh re-reads the bound identity after a change made elsewhere
func (c *Client) refresh(ctx context.Context) {
	current, err := c.svc.load(ctx, c.sid)
	if err != nil {
		c.svc.logger.WithError(err).Warn("Failed to refresh session identity")
		return
	}
	c.obs.publish(current)
}
