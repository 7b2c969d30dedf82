package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/avoronel/authd/internal/util"
)

// OIDCProvider completes the authorization-code exchange against a
// federated provider and fetches the verified identity claims.
type OIDCProvider struct {
	client *http.Client
	log    *zap.SugaredLogger
	cfg    *util.ProviderConfig
}

func NewOIDCProvider(cfg *util.ProviderConfig, log *zap.SugaredLogger) *OIDCProvider {
	return &OIDCProvider{
		client: &http.Client{},
		log:    log,
		cfg:    cfg,
	}
}

func (p *OIDCProvider) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", p.cfg.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "openid email profile")
	q.Set("state", state)

	return p.cfg.AuthURL + "?" + q.Encode()
}

func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*Assertion, error) {
	accessToken, err := p.exchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	return p.fetchUserInfo(ctx, accessToken)
}

func (p *OIDCProvider) exchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientScrt)
	form.Set("redirect_uri", p.cfg.RedirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.log.Warnw("provider token exchange failed", "status", resp.StatusCode)
		return "", fmt.Errorf("token exchange: provider status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("token exchange: empty access token")
	}
	return out.AccessToken, nil
}

func (p *OIDCProvider) fetchUserInfo(ctx context.Context, accessToken string) (*Assertion, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.log.Warnw("provider userinfo failed", "status", resp.StatusCode)
		return nil, fmt.Errorf("userinfo: provider status %d", resp.StatusCode)
	}

	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}

	return &Assertion{
		Email:     claims.Email,
		SubjectID: claims.Sub,
		FullName:  claims.Name,
	}, nil
}
