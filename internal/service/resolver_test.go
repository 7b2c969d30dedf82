package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avoronel/authd/internal/identity"
	"github.com/avoronel/authd/internal/models"
	"github.com/avoronel/authd/internal/util"
)

// deadlineLinkStore records whether CreateLink ran under a bounded context.
type deadlineLinkStore struct {
	sawDeadline bool
	link        models.ExternalLogin
}

func (s *deadlineLinkStore) CreateLink(ctx context.Context, link models.ExternalLogin) (bool, error) {
	_, s.sawDeadline = ctx.Deadline()
	s.link = link
	return true, nil
}

func TestResolveBoundsLinkStorageCall(t *testing.T) {
	verifier := newFakeVerifier()
	links := &deadlineLinkStore{}
	resolver := NewLinkResolver(verifier, links, "google",
		&util.StorageConfig{Timeout: time.Second}, zap.NewNop().Sugar())

	principal, err := resolver.Resolve(context.Background(), identity.Assertion{
		Email:     "dave@example.com",
		SubjectID: "google-sub-9",
		FullName:  "Dave",
	})
	require.NoError(t, err)

	assert.True(t, links.sawDeadline)
	assert.Equal(t, principal.ID, links.link.UserID)
	assert.Equal(t, "google-sub-9", links.link.SubjectID)
}
