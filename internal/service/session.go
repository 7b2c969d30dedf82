package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/avoronel/authd/internal/identity"
	"github.com/avoronel/authd/internal/models"
	"github.com/avoronel/authd/internal/storage"
	"github.com/avoronel/authd/internal/util"
)

// Failure messages. The login message is deliberately identical for unknown
// email and wrong password; lockout states are distinguishable because the
// account's existence is already implied by context.
const (
	msgBadCredentials = "Provided email or password incorrect"
	msgLockedOut      = "Account is locked due to multiple failed attempts. Please try again later."
	msgNotAllowed     = "Account is not allowed to sign in. Email confirmation may be required."
	msgBadRefresh     = "Refresh token is missing or invalid."
)

// SessionResult is an entry flow's successful outcome: the user summary for
// the response body and the token pair for the transport cookies.
type SessionResult struct {
	User models.UserInfoResponse
	Pair *models.TokenPair
}

// SessionService orchestrates the entry flows (register, local login,
// federated login) and refresh/logout, each terminal on first failure.
type SessionService struct {
	verifier       identity.Verifier
	tokens         *TokenService
	store          storage.RefreshTokenStore
	resolver       *LinkResolver
	alerts         *AlertService
	validate       *validator.Validate
	log            *zap.SugaredLogger
	storageTimeout time.Duration
}

func NewSessionService(
	verifier identity.Verifier,
	tokens *TokenService,
	store storage.RefreshTokenStore,
	resolver *LinkResolver,
	alerts *AlertService,
	storageCfg *util.StorageConfig,
	log *zap.SugaredLogger,
) *SessionService {
	return &SessionService{
		verifier:       verifier,
		tokens:         tokens,
		store:          store,
		resolver:       resolver,
		alerts:         alerts,
		validate:       validator.New(),
		log:            log,
		storageTimeout: storageCfg.Timeout,
	}
}

// Register creates a principal with the external verifier, assigns the
// requested public role and issues the first token pair. No partial commit:
// the token pair is returned only after the refresh record is persisted.
func (s *SessionService) Register(ctx context.Context, req models.RegisterRequest) (*SessionResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, util.NewValidationError(fieldErrors(err))
	}
	if !models.IsPublicRole(req.Role) {
		return nil, util.NewValidationError(map[string][]string{
			"role": {"Provided role is not supported."},
		})
	}

	email := strings.ToLower(req.Email)

	_, err := s.verifier.PrincipalByEmail(ctx, email)
	if err == nil {
		return nil, util.NewConflict("User Exists")
	}
	if !errors.Is(err, identity.ErrPrincipalNotFound) {
		return nil, s.internal("register: lookup email", err)
	}

	principal, err := s.verifier.CreatePrincipal(ctx, identity.NewPrincipal{
		Email:    email,
		FullName: req.Fullname,
		Password: req.Password,
	})
	if err != nil {
		var regErr *identity.RegistrationError
		switch {
		case errors.As(err, &regErr):
			return nil, util.NewValidationError(regErr.Fields)
		case errors.Is(err, identity.ErrEmailTaken):
			return nil, util.NewConflict("User Exists")
		default:
			return nil, s.internal("register: create principal", err)
		}
	}

	if err := s.verifier.AssignRole(ctx, principal.ID, req.Role); err != nil {
		return nil, s.internal("register: assign role", err)
	}

	return s.createSession(ctx, principal)
}

// Login authenticates a local principal. The refresh record must already
// exist; login rotates it in place rather than creating one.
func (s *SessionService) Login(ctx context.Context, req models.LoginRequest) (*SessionResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, util.NewValidationError(fieldErrors(err))
	}

	principal, err := s.verifier.PrincipalByEmail(ctx, strings.ToLower(req.Email))
	if err != nil {
		if errors.Is(err, identity.ErrPrincipalNotFound) {
			return nil, util.NewUnauthorized(msgBadCredentials)
		}
		return nil, s.internal("login: lookup email", err)
	}

	status, err := s.verifier.VerifyPassword(ctx, principal.ID, req.Password)
	if err != nil {
		return nil, s.internal("login: verify password", err)
	}
	switch status {
	case identity.VerifyOK:
	case identity.VerifyLockedOut:
		s.log.Warnw("login attempt on locked account", "principalID", principal.ID)
		return nil, util.NewUnauthorized(msgLockedOut)
	case identity.VerifyNotAllowed:
		return nil, util.NewUnauthorized(msgNotAllowed)
	default:
		s.log.Warnw("failed login attempt", "email", principal.Email)
		return nil, util.NewUnauthorized(msgBadCredentials)
	}

	return s.rotateSession(ctx, principal)
}

// ExternalLogin completes a federated flow from a verified provider
// assertion. First federated login creates the refresh record; later ones
// rotate it like a local login.
func (s *SessionService) ExternalLogin(ctx context.Context, assertion *identity.Assertion) (*SessionResult, error) {
	if assertion == nil {
		return nil, util.NewUnauthorized("External login failed: assertion is missing")
	}
	if assertion.Email == "" {
		return nil, util.NewUnauthorized("External login failed: email is missing")
	}

	principal, err := s.resolver.Resolve(ctx, *assertion)
	if err != nil {
		return nil, s.internal("external login: resolve principal", err)
	}

	result, err := s.persistSession(ctx, principal, s.store.Rotate)
	if errors.Is(err, storage.ErrNoRecordToRotate) {
		// No record yet: first federated login for this principal.
		return s.createSession(ctx, principal)
	}
	return result, err
}

// Refresh exchanges a refresh credential for a rotated pair. Consumption is
// single-use and atomic; every failure reason collapses to the same
// Unauthorized signal while staying distinguished in logs.
func (s *SessionService) Refresh(ctx context.Context, refreshValue string) (*SessionResult, error) {
	if refreshValue == "" {
		return nil, util.NewUnauthorized(msgBadRefresh)
	}

	storeCtx, cancel := s.storeContext(ctx)
	rec, err := s.store.Consume(storeCtx, refreshValue, time.Now().UTC())
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrRefreshUsed), errors.Is(err, storage.ErrRefreshRevoked):
			s.log.Warnw("refresh token reuse detected", "reason", err)
			s.alerts.NotifyTokenReuse(ctx, map[string]interface{}{
				"event":  "refresh_token_reuse",
				"reason": err.Error(),
			})
			return nil, util.NewUnauthorized(msgBadRefresh)
		case errors.Is(err, storage.ErrRefreshExpired), errors.Is(err, storage.ErrRefreshNotFound):
			s.log.Warnw("invalid refresh token presented", "reason", err)
			return nil, util.NewUnauthorized(msgBadRefresh)
		default:
			return nil, s.internal("refresh: consume token", err)
		}
	}

	principal, err := s.verifier.PrincipalByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrPrincipalNotFound) {
			return nil, util.NewUnauthorized(msgBadRefresh)
		}
		return nil, s.internal("refresh: load principal", err)
	}

	return s.rotateSession(ctx, principal)
}

// Logout revokes the principal's refresh record and blacklists the access
// token for its remaining lifetime. An invalid access token means there is
// no server-side session to revoke; the transport still clears cookies.
func (s *SessionService) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return nil
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.store.RevokeForPrincipal(storeCtx, claims.Subject); err != nil {
		return s.internal("logout: revoke refresh record", err)
	}

	if err := s.tokens.InvalidateAccessToken(ctx, accessToken); err != nil {
		s.log.Errorw("failed to blacklist access token on logout", "error", err)
	}

	return nil
}

// CurrentUser resolves the summary for an authenticated principal ID taken
// from validated access-token claims.
func (s *SessionService) CurrentUser(ctx context.Context, principalID string) (*models.UserInfoResponse, error) {
	principal, err := s.verifier.PrincipalByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, identity.ErrPrincipalNotFound) {
			return nil, util.NewUnauthorized("The authenticated user was not found in the system")
		}
		return nil, s.internal("session: load principal", err)
	}

	roles, err := s.verifier.Roles(ctx, principal.ID)
	if err != nil {
		return nil, s.internal("session: load roles", err)
	}

	return &models.UserInfoResponse{
		UserID: principal.ID,
		Email:  principal.Email,
		Roles:  roles,
	}, nil
}

// Tokens exposes the token service for transport-level validation.
func (s *SessionService) Tokens() *TokenService { return s.tokens }

// createSession issues a pair and creates-or-replaces the refresh record.
func (s *SessionService) createSession(ctx context.Context, principal *models.Principal) (*SessionResult, error) {
	return s.persistSession(ctx, principal, s.store.Upsert)
}

// rotateSession issues a pair and overwrites the existing record, mapping a
// missing record to Unauthorized as the login flow requires.
func (s *SessionService) rotateSession(ctx context.Context, principal *models.Principal) (*SessionResult, error) {
	result, err := s.persistSession(ctx, principal, s.store.Rotate)
	if errors.Is(err, storage.ErrNoRecordToRotate) {
		return nil, util.NewUnauthorized("No refresh token to update for user.")
	}
	return result, err
}

type persistFunc func(ctx context.Context, rec models.RefreshRecord) error

func (s *SessionService) persistSession(ctx context.Context, principal *models.Principal, persist persistFunc) (*SessionResult, error) {
	roles, err := s.verifier.Roles(ctx, principal.ID)
	if err != nil {
		return nil, s.internal("session: load roles", err)
	}

	now := time.Now().UTC()
	pair, err := s.tokens.Issue(principal, roles, now)
	if err != nil {
		return nil, s.internal("session: issue tokens", err)
	}

	rec := models.RefreshRecord{
		UserID:    principal.ID,
		Token:     pair.Refresh.Value,
		JWTID:     pair.Access.JWTID,
		CreatedAt: now,
		ExpiresAt: pair.Refresh.ExpiresAt,
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := persist(storeCtx, rec); err != nil {
		if errors.Is(err, storage.ErrNoRecordToRotate) {
			return nil, err
		}
		// The client must not receive a pair the server cannot later
		// validate.
		return nil, s.internal("session: persist refresh record", err)
	}

	return &SessionResult{
		User: models.UserInfoResponse{
			UserID: principal.ID,
			Email:  principal.Email,
			Roles:  roles,
		},
		Pair: pair,
	}, nil
}

func (s *SessionService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storageTimeout)
}

func (s *SessionService) internal(op string, err error) error {
	s.log.Errorw("session flow failure", "op", op, "error", err)
	if errors.Is(err, context.DeadlineExceeded) {
		return util.NewInternalError("Storage timeout, please retry")
	}
	return util.NewInternalError("Internal server error")
}

// fieldErrors renders validator failures as per-field message lists, keyed
// by the lower-camel JSON field name.
func fieldErrors(err error) map[string][]string {
	out := make(map[string][]string)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["general"] = []string{err.Error()}
		return out
	}

	for _, fe := range verrs {
		field := fe.Field()
		if field != "" {
			field = strings.ToLower(field[:1]) + field[1:]
		}
		out[field] = append(out[field], fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "eqfield":
		return "Passwords do not match."
	default:
		return "is invalid"
	}
}
