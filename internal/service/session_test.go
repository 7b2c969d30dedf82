package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avoronel/authd/internal/identity"
	"github.com/avoronel/authd/internal/models"
	"github.com/avoronel/authd/internal/storage/memory"
	"github.com/avoronel/authd/internal/util"
)

// fakeVerifier is an in-memory identity.Verifier. Passwords are compared in
// plain text; hashing policy belongs to the real service, not to these tests.
type fakeVerifier struct {
	mu         sync.Mutex
	nextID     int
	byID       map[string]*models.Principal
	byEmail    map[string]string
	passwords  map[string]string
	roles      map[string][]string
	lockedOut  map[string]bool
	notAllowed map[string]bool
	created    int
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{
		byID:       make(map[string]*models.Principal),
		byEmail:    make(map[string]string),
		passwords:  make(map[string]string),
		roles:      make(map[string][]string),
		lockedOut:  make(map[string]bool),
		notAllowed: make(map[string]bool),
	}
}

func (f *fakeVerifier) CreatePrincipal(_ context.Context, np identity.NewPrincipal) (*models.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.byEmail[np.Email]; ok {
		return nil, identity.ErrEmailTaken
	}
	f.nextID++
	f.created++
	p := &models.Principal{
		ID:             fmt.Sprintf("principal-%d", f.nextID),
		Email:          np.Email,
		FullName:       np.FullName,
		EmailConfirmed: np.EmailConfirmed,
	}
	f.byID[p.ID] = p
	f.byEmail[np.Email] = p.ID
	f.passwords[p.ID] = np.Password
	return p, nil
}

func (f *fakeVerifier) VerifyPassword(_ context.Context, principalID, password string) (identity.VerifyStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.lockedOut[principalID]:
		return identity.VerifyLockedOut, nil
	case f.notAllowed[principalID]:
		return identity.VerifyNotAllowed, nil
	case f.passwords[principalID] == password && password != "":
		return identity.VerifyOK, nil
	default:
		return identity.VerifyMismatch, nil
	}
}

func (f *fakeVerifier) AssignRole(_ context.Context, principalID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.roles[principalID] = append(f.roles[principalID], role)
	return nil
}

func (f *fakeVerifier) Roles(_ context.Context, principalID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.roles[principalID]...), nil
}

func (f *fakeVerifier) PrincipalByEmail(_ context.Context, email string) (*models.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.byEmail[email]
	if !ok {
		return nil, identity.ErrPrincipalNotFound
	}
	p := *f.byID[id]
	return &p, nil
}

func (f *fakeVerifier) PrincipalByID(_ context.Context, id string) (*models.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.byID[id]
	if !ok {
		return nil, identity.ErrPrincipalNotFound
	}
	out := *p
	return &out, nil
}

func (f *fakeVerifier) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

type sessionFixture struct {
	sessions *SessionService
	verifier *fakeVerifier
	store    *memory.RefreshStore
	links    *memory.LinkStore
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	log := zap.NewNop().Sugar()
	verifier := newFakeVerifier()
	store := memory.NewRefreshStore()
	links := memory.NewLinkStore()

	storageCfg := &util.StorageConfig{Timeout: time.Second}
	tokens := newTestTokenService(memory.NewBlacklist())
	resolver := NewLinkResolver(verifier, links, "google", storageCfg, log)
	alerts := NewAlertService(log, "")
	sessions := NewSessionService(
		verifier,
		tokens,
		store,
		resolver,
		alerts,
		storageCfg,
		log,
	)

	return &sessionFixture{sessions: sessions, verifier: verifier, store: store, links: links}
}

func requireResponseError(t *testing.T, err error, status int) util.ResponseError {
	t.Helper()

	var respErr util.ResponseError
	require.ErrorAs(t, err, &respErr)
	require.Equal(t, status, respErr.Status)
	return respErr
}

func registerRequest() models.RegisterRequest {
	return models.RegisterRequest{
		Email:           "alice@example.com",
		Fullname:        "Alice Cooper",
		Password:        "Passw0rd!",
		ConfirmPassword: "Passw0rd!",
		Role:            models.RoleBasicUser,
	}
}

func TestRegisterCreatesSessionAndRecord(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	result, err := f.sessions.Register(ctx, registerRequest())
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", result.User.Email)
	assert.Equal(t, []string{models.RoleBasicUser}, result.User.Roles)
	require.NotNil(t, result.Pair)

	rec, ok := f.store.Record(result.User.UserID)
	require.True(t, ok)
	assert.Equal(t, result.Pair.Refresh.Value, rec.Token)
	assert.Equal(t, result.Pair.Access.JWTID, rec.JWTID)
	assert.True(t, rec.Consumable(time.Now().UTC()))
}

func TestRegisterPasswordMismatchFailsBeforeCreate(t *testing.T) {
	f := newSessionFixture(t)

	req := registerRequest()
	req.ConfirmPassword = "Different1!"

	_, err := f.sessions.Register(context.Background(), req)
	respErr := requireResponseError(t, err, http.StatusBadRequest)
	assert.Contains(t, respErr.Fields["confirmPassword"], "Passwords do not match.")
	assert.Zero(t, f.verifier.createdCount())
}

func TestRegisterShortPasswordRejected(t *testing.T) {
	f := newSessionFixture(t)

	req := registerRequest()
	req.Password = "short"
	req.ConfirmPassword = "short"

	_, err := f.sessions.Register(context.Background(), req)
	respErr := requireResponseError(t, err, http.StatusBadRequest)
	assert.Contains(t, respErr.Fields["password"], "must be at least 8 characters")
	assert.Zero(t, f.verifier.createdCount())
}

func TestRegisterRejectsPrivilegedRole(t *testing.T) {
	f := newSessionFixture(t)

	req := registerRequest()
	req.Role = models.RoleAdmin

	_, err := f.sessions.Register(context.Background(), req)
	respErr := requireResponseError(t, err, http.StatusBadRequest)
	assert.NotEmpty(t, respErr.Fields["role"])
	assert.Zero(t, f.verifier.createdCount())
}

func TestRegisterDuplicateEmailConflict(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Register(ctx, registerRequest())
	require.NoError(t, err)

	req := registerRequest()
	req.Email = "ALICE@Example.com"
	_, err = f.sessions.Register(ctx, req)
	respErr := requireResponseError(t, err, http.StatusConflict)
	assert.Equal(t, "User Exists", respErr.Msg)
}

func TestLoginFailureMessageDoesNotLeakAccountExistence(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Register(ctx, registerRequest())
	require.NoError(t, err)

	_, unknownErr := f.sessions.Login(ctx, models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever1",
	})
	_, wrongErr := f.sessions.Login(ctx, models.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	})

	unknown := requireResponseError(t, unknownErr, http.StatusUnauthorized)
	wrong := requireResponseError(t, wrongErr, http.StatusUnauthorized)
	assert.Equal(t, unknown.Msg, wrong.Msg)
}

func TestLoginLockedOutAccount(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	result, err := f.sessions.Register(ctx, registerRequest())
	require.NoError(t, err)
	f.verifier.lockedOut[result.User.UserID] = true

	_, err = f.sessions.Login(ctx, models.LoginRequest{
		Email:    "alice@example.com",
		Password: "Passw0rd!",
	})
	respErr := requireResponseError(t, err, http.StatusUnauthorized)
	assert.Contains(t, respErr.Msg, "locked")
}

func TestLoginWithoutExistingRecordUnauthorized(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	// Principal exists in the verifier but never went through a
	// record-creating flow on this service.
	_, err := f.verifier.CreatePrincipal(ctx, identity.NewPrincipal{
		Email:    "bob@example.com",
		FullName: "Bob",
		Password: "Passw0rd!",
	})
	require.NoError(t, err)

	_, err = f.sessions.Login(ctx, models.LoginRequest{
		Email:    "bob@example.com",
		Password: "Passw0rd!",
	})
	respErr := requireResponseError(t, err, http.StatusUnauthorized)
	assert.Equal(t, "No refresh token to update for user.", respErr.Msg)
}

func TestLoginRotatesExistingRecord(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	registered, err := f.sessions.Register(ctx, registerRequest())
	require.NoError(t, err)

	loggedIn, err := f.sessions.Login(ctx, models.LoginRequest{
		Email:    "Alice@Example.com",
		Password: "Passw0rd!",
	})
	require.NoError(t, err)
	assert.Equal(t, registered.User.UserID, loggedIn.User.UserID)
	assert.NotEqual(t, registered.Pair.Refresh.Value, loggedIn.Pair.Refresh.Value)

	rec, ok := f.store.Record(registered.User.UserID)
	require.True(t, ok)
	assert.Equal(t, loggedIn.Pair.Refresh.Value, rec.Token)
}

func TestRefreshConsumesExactlyOnce(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	registered, err := f.sessions.Register(ctx, registerRequest())
	require.NoError(t, err)

	refreshed, err := f.sessions.Refresh(ctx, registered.Pair.Refresh.Value)
	require.NoError(t, err)
	assert.NotEqual(t, registered.Pair.Refresh.Value, refreshed.Pair.Refresh.Value)

	// The consumed value must never work a second time.
	_, err = f.sessions.Refresh(ctx, registered.Pair.Refresh.Value)
	respErr := requireResponseError(t, err, http.StatusUnauthorized)
	assert.Equal(t, "Refresh token is missing or invalid.", respErr.Msg)

	// The rotated value does.
	_, err = f.sessions.Refresh(ctx, refreshed.Pair.Refresh.Value)
	require.NoError(t, err)
}

func TestRefreshConcurrentCallersSingleWinner(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	registered, err := f.sessions.Register(ctx, registerRequest())
	require.NoError(t, err)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.sessions.Refresh(ctx, registered.Pair.Refresh.Value)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
			continue
		}
		requireResponseError(t, err, http.StatusUnauthorized)
	}
	assert.Equal(t, 1, winners)
}

func TestRefreshExpiredRejectedWithoutConsuming(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Upsert(ctx, models.RefreshRecord{
		UserID:    "principal-1",
		Token:     "stale-refresh-value",
		JWTID:     "jti-1",
		CreatedAt: time.Now().Add(-8 * 24 * time.Hour),
		ExpiresAt: time.Now().Add(-24 * time.Hour),
	}))

	_, err := f.sessions.Refresh(ctx, "stale-refresh-value")
	requireResponseError(t, err, http.StatusUnauthorized)

	rec, ok := f.store.Record("principal-1")
	require.True(t, ok)
	assert.False(t, rec.Used)
}

func TestRefreshEmptyValueUnauthorized(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.sessions.Refresh(context.Background(), "")
	requireResponseError(t, err, http.StatusUnauthorized)
}

func TestLogoutRevokesRecordAndAccessToken(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	registered, err := f.sessions.Register(ctx, registerRequest())
	require.NoError(t, err)

	require.NoError(t, f.sessions.Logout(ctx, registered.Pair.Access.Value))

	rec, ok := f.store.Record(registered.User.UserID)
	require.True(t, ok)
	assert.True(t, rec.Revoked)

	_, err = f.sessions.Tokens().ValidateAccessToken(ctx, registered.Pair.Access.Value)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = f.sessions.Refresh(ctx, registered.Pair.Refresh.Value)
	requireResponseError(t, err, http.StatusUnauthorized)
}

func TestLogoutWithInvalidTokenIsNoop(t *testing.T) {
	f := newSessionFixture(t)

	assert.NoError(t, f.sessions.Logout(context.Background(), "garbage"))
}

func TestExternalLoginFirstTimeCreatesPrincipal(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	result, err := f.sessions.ExternalLogin(ctx, &identity.Assertion{
		Email:     "Carol@Example.com",
		SubjectID: "google-sub-1",
		FullName:  "Carol",
	})
	require.NoError(t, err)

	assert.Equal(t, "carol@example.com", result.User.Email)
	assert.Equal(t, []string{models.RoleBasicUser}, result.User.Roles)
	assert.Equal(t, 1, f.verifier.createdCount())

	rec, ok := f.store.Record(result.User.UserID)
	require.True(t, ok)
	assert.Equal(t, result.Pair.Refresh.Value, rec.Token)

	links := f.links.Links()
	require.Len(t, links, 1)
	assert.Equal(t, "google", links[0].Provider)
	assert.Equal(t, "google-sub-1", links[0].SubjectID)
	assert.Equal(t, result.User.UserID, links[0].UserID)
}

func TestExternalLoginMergesWithExistingPrincipal(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	registered, err := f.sessions.Register(ctx, registerRequest())
	require.NoError(t, err)
	createdBefore := f.verifier.createdCount()

	result, err := f.sessions.ExternalLogin(ctx, &identity.Assertion{
		Email:     "alice@example.com",
		SubjectID: "google-sub-2",
		FullName:  "Alice Cooper",
	})
	require.NoError(t, err)

	assert.Equal(t, registered.User.UserID, result.User.UserID)
	assert.Equal(t, createdBefore, f.verifier.createdCount())

	links := f.links.Links()
	require.Len(t, links, 1)
	assert.Equal(t, registered.User.UserID, links[0].UserID)
}

func TestExternalLoginRepeatRotatesRecord(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	assertion := &identity.Assertion{
		Email:     "carol@example.com",
		SubjectID: "google-sub-1",
		FullName:  "Carol",
	}

	first, err := f.sessions.ExternalLogin(ctx, assertion)
	require.NoError(t, err)
	second, err := f.sessions.ExternalLogin(ctx, assertion)
	require.NoError(t, err)

	assert.Equal(t, first.User.UserID, second.User.UserID)
	assert.NotEqual(t, first.Pair.Refresh.Value, second.Pair.Refresh.Value)
	assert.Len(t, f.links.Links(), 1)

	// The earlier refresh value was rotated away.
	_, err = f.sessions.Refresh(ctx, first.Pair.Refresh.Value)
	requireResponseError(t, err, http.StatusUnauthorized)
}

func TestExternalLoginMissingEmailUnauthorized(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.sessions.ExternalLogin(context.Background(), &identity.Assertion{SubjectID: "sub"})
	requireResponseError(t, err, http.StatusUnauthorized)

	_, err = f.sessions.ExternalLogin(context.Background(), nil)
	requireResponseError(t, err, http.StatusUnauthorized)
}

func TestCurrentUser(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	registered, err := f.sessions.Register(ctx, registerRequest())
	require.NoError(t, err)

	info, err := f.sessions.CurrentUser(ctx, registered.User.UserID)
	require.NoError(t, err)
	assert.Equal(t, registered.User, *info)

	_, err = f.sessions.CurrentUser(ctx, "no-such-principal")
	requireResponseError(t, err, http.StatusUnauthorized)
}
