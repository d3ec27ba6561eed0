package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

type stubPolicyRepo struct {
	policy *domain.GuildPolicy
	err    error
	calls  int
}

func (r *stubPolicyRepo) GetByGuild(context.Context, int64) (*domain.GuildPolicy, error) {
	r.calls++
	return r.policy, r.err
}

func (r *stubPolicyRepo) Upsert(context.Context, *domain.GuildPolicy) error {
	return nil
}

func newProvider(repo *stubPolicyRepo) Provider {
	return NewCachedProvider(repo, nil, time.Minute, zap.NewNop())
}

func TestGetPolicy(t *testing.T) {
	repo := &stubPolicyRepo{policy: &domain.GuildPolicy{GuildID: 1, StaffRoleIDs: []int64{900}}}

	pol, err := newProvider(repo).GetPolicy(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{900}, pol.StaffRoleIDs)
}

func TestGetPolicyNotConfigured(t *testing.T) {
	repo := &stubPolicyRepo{}

	_, err := newProvider(repo).GetPolicy(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestGetPolicyWithoutStaffRolesIsInvalid(t *testing.T) {
	repo := &stubPolicyRepo{policy: &domain.GuildPolicy{GuildID: 1}}

	_, err := newProvider(repo).GetPolicy(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestGetPolicyRepoError(t *testing.T) {
	repo := &stubPolicyRepo{err: errors.New("connection reset")}

	_, err := newProvider(repo).GetPolicy(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPolicyNotFound)
}

func TestNilCacheHitsRepositoryEveryTime(t *testing.T) {
	repo := &stubPolicyRepo{policy: &domain.GuildPolicy{GuildID: 1, StaffRoleIDs: []int64{900}}}
	p := newProvider(repo)

	for i := 0; i < 3; i++ {
		_, err := p.GetPolicy(context.Background(), 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, repo.calls)
}

func TestValidate(t *testing.T) {
	category := int64(5)
	assert.NoError(t, Validate(&domain.GuildPolicy{GuildID: 1, StaffRoleIDs: []int64{900}}))
	assert.NoError(t, Validate(&domain.GuildPolicy{GuildID: 1, StaffRoleIDs: []int64{900}, ArchiveCategory: &category}))
	assert.Error(t, Validate(&domain.GuildPolicy{GuildID: 1}))
}
