package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/avoronel/authd/internal/identity"
	"github.com/avoronel/authd/internal/models"
	"github.com/avoronel/authd/internal/storage"
	"github.com/avoronel/authd/internal/util"
)

// LinkResolver maps a federated assertion onto a local principal. The
// provider's email claim is trusted as sufficient proof of identity merge;
// an existing principal with the asserted email is reused as-is.
type LinkResolver struct {
	verifier       identity.Verifier
	links          storage.LoginLinkStore
	provider       string
	log            *zap.SugaredLogger
	storageTimeout time.Duration
}

func NewLinkResolver(verifier identity.Verifier, links storage.LoginLinkStore, provider string, storageCfg *util.StorageConfig, log *zap.SugaredLogger) *LinkResolver {
	return &LinkResolver{
		verifier:       verifier,
		links:          links,
		provider:       provider,
		log:            log,
		storageTimeout: storageCfg.Timeout,
	}
}

// Resolve returns the principal for the assertion, creating one on first
// federated login. New principals get a pre-confirmed email and the default
// role; the provider association is recorded either way.
func (r *LinkResolver) Resolve(ctx context.Context, a identity.Assertion) (*models.Principal, error) {
	email := strings.ToLower(a.Email)

	principal, err := r.verifier.PrincipalByEmail(ctx, email)
	if err != nil && !errors.Is(err, identity.ErrPrincipalNotFound) {
		return nil, fmt.Errorf("resolve principal by email: %w", err)
	}

	if principal == nil {
		principal, err = r.verifier.CreatePrincipal(ctx, identity.NewPrincipal{
			Email:          email,
			FullName:       a.FullName,
			EmailConfirmed: true,
		})
		if err != nil {
			return nil, fmt.Errorf("create federated principal: %w", err)
		}
		if err := r.verifier.AssignRole(ctx, principal.ID, models.RoleBasicUser); err != nil {
			return nil, fmt.Errorf("assign default role: %w", err)
		}
	}

	storeCtx, cancel := context.WithTimeout(ctx, r.storageTimeout)
	defer cancel()
	created, err := r.links.CreateLink(storeCtx, models.ExternalLogin{
		Provider:  r.provider,
		SubjectID: a.SubjectID,
		UserID:    principal.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("record external login: %w", err)
	}
	if created {
		r.log.Infow("linked external login to principal",
			"provider", r.provider, "principalID", principal.ID)
	}

	return principal, nil
}
