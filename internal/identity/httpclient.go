package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/avoronel/authd/internal/models"
	"github.com/avoronel/authd/internal/util"
)

const apiKeyHeader = "X-API-Key"

// HTTPVerifier talks to the external identity-management service over its
// JSON API.
type HTTPVerifier struct {
	client  *http.Client
	log     *zap.SugaredLogger
	baseURL string
	apiKey  string
}

func NewHTTPVerifier(cfg *util.IdentityConfig, log *zap.SugaredLogger) *HTTPVerifier {
	return &HTTPVerifier{
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     log,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

type principalPayload struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	EmailConfirmed bool   `json:"email_confirmed"`
}

func (p principalPayload) toModel() *models.Principal {
	return &models.Principal{
		ID:             p.ID,
		Email:          p.Email,
		FullName:       p.FullName,
		EmailConfirmed: p.EmailConfirmed,
	}
}

func (v *HTTPVerifier) CreatePrincipal(ctx context.Context, np NewPrincipal) (*models.Principal, error) {
	body := map[string]interface{}{
		"email":           np.Email,
		"full_name":       np.FullName,
		"password":        np.Password,
		"email_confirmed": np.EmailConfirmed,
	}

	resp, err := v.do(ctx, http.MethodPost, "/principals", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		var p principalPayload
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return nil, fmt.Errorf("decode principal: %w", err)
		}
		return p.toModel(), nil
	case http.StatusConflict:
		return nil, ErrEmailTaken
	case http.StatusUnprocessableEntity:
		var fields map[string][]string
		if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
			return nil, fmt.Errorf("decode field errors: %w", err)
		}
		return nil, &RegistrationError{Fields: fields}
	default:
		return nil, v.unexpected("create principal", resp)
	}
}

func (v *HTTPVerifier) VerifyPassword(ctx context.Context, principalID, password string) (VerifyStatus, error) {
	body := map[string]string{"password": password}

	resp, err := v.do(ctx, http.MethodPost, "/principals/"+url.PathEscape(principalID)+"/verify", body)
	if err != nil {
		return VerifyMismatch, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return VerifyMismatch, v.unexpected("verify password", resp)
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return VerifyMismatch, fmt.Errorf("decode verify result: %w", err)
	}

	switch out.Status {
	case "ok":
		return VerifyOK, nil
	case "locked_out":
		return VerifyLockedOut, nil
	case "not_allowed":
		return VerifyNotAllowed, nil
	default:
		return VerifyMismatch, nil
	}
}

func (v *HTTPVerifier) AssignRole(ctx context.Context, principalID, role string) error {
	body := map[string]string{"role": role}

	resp, err := v.do(ctx, http.MethodPost, "/principals/"+url.PathEscape(principalID)+"/roles", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return v.unexpected("assign role", resp)
	}
	return nil
}

func (v *HTTPVerifier) Roles(ctx context.Context, principalID string) ([]string, error) {
	resp, err := v.do(ctx, http.MethodGet, "/principals/"+url.PathEscape(principalID)+"/roles", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPrincipalNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, v.unexpected("get roles", resp)
	}

	var roles []string
	if err := json.NewDecoder(resp.Body).Decode(&roles); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	return roles, nil
}

func (v *HTTPVerifier) PrincipalByEmail(ctx context.Context, email string) (*models.Principal, error) {
	resp, err := v.do(ctx, http.MethodGet, "/principals?email="+url.QueryEscape(email), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return v.decodePrincipal("get principal by email", resp)
}

func (v *HTTPVerifier) PrincipalByID(ctx context.Context, id string) (*models.Principal, error) {
	resp, err := v.do(ctx, http.MethodGet, "/principals/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return v.decodePrincipal("get principal by id", resp)
}

func (v *HTTPVerifier) decodePrincipal(op string, resp *http.Response) (*models.Principal, error) {
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPrincipalNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, v.unexpected(op, resp)
	}

	var p principalPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode principal: %w", err)
	}
	return p.toModel(), nil
}

func (v *HTTPVerifier) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set(apiKeyHeader, v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity service request: %w", err)
	}
	return resp, nil
}

func (v *HTTPVerifier) unexpected(op string, resp *http.Response) error {
	v.log.Errorw("identity service returned unexpected status", "op", op, "status", resp.StatusCode)
	return fmt.Errorf("%s: identity service status %d", op, resp.StatusCode)
}
