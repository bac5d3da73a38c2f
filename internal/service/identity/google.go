package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cleansight/internal/domain"
	"cleansight/pkg/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const googleProviderName = "google"

// GoogleProvider signs users in with Google using the authorization code flow with PKCE
type GoogleProvider struct {
	config          *oauth2.Config
	userinfoBaseURL string
	httpClient      *http.Client
	logger          *logger.Logger
}

// GoogleOption customizes a GoogleProvider
type GoogleOption func(*GoogleProvider)

// WithGoogleEndpoint points the token and authorization endpoints elsewhere
func WithGoogleEndpoint(endpoint oauth2.Endpoint) GoogleOption {
	return func(p *GoogleProvider) { p.config.Endpoint = endpoint }
}

// WithUserinfoBaseURL overrides the Google API base URL used for the userinfo call
func WithUserinfoBaseURL(baseURL string) GoogleOption {
	return func(p *GoogleProvider) { p.userinfoBaseURL = baseURL }
}

// NewGoogleProvider creates the Google provider
func NewGoogleProvider(clientID, clientSecret, redirectURL string, log *logger.Logger, opts ...GoogleOption) (*GoogleProvider, error) {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("google oauth config missing required fields")
	}

	p := &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				oauth2api.UserinfoEmailScope,
				oauth2api.UserinfoProfileScope,
			},
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.Named("google_oauth"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *GoogleProvider) Name() string { return googleProviderName }

func (p *GoogleProvider) AuthCodeURL(state, codeVerifier string) string {
	return p.config.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(codeVerifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*domain.FederatedAssertion, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("google token exchange failed: %w", err)
	}

	opts := []option.ClientOption{option.WithHTTPClient(p.config.Client(ctx, token))}
	if p.userinfoBaseURL != "" {
		opts = append(opts, option.WithEndpoint(p.userinfoBaseURL))
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google userinfo client: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google userinfo request failed: %w", err)
	}
	if info.Id == "" || info.Email == "" {
		return nil, errors.New("google userinfo missing required claims")
	}

	verified := info.VerifiedEmail != nil && *info.VerifiedEmail
	p.logger.WithFields(map[string]interface{}{
		"email_verified": verified,
		"has_name":       info.Name != "",
		"has_picture":    info.Picture != "",
	}).Info("Google userinfo fetched")

	return &domain.FederatedAssertion{
		Provider:      googleProviderName,
		Subject:       info.Id,
		Email:         info.Email,
		EmailVerified: verified,
		DisplayName:   info.Name,
		AvatarURL:     info.Picture,
	}, nil
}
