package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// PolicyRepository reads and writes per-guild policy rows.
type PolicyRepository interface {
	GetByGuild(ctx context.Context, guildID int64) (*domain.GuildPolicy, error)
	Upsert(ctx context.Context, policy *domain.GuildPolicy) error
}

type policyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository instantiates the repository.
func NewPolicyRepository(pool *pgxpool.Pool) PolicyRepository {
	return &policyRepository{pool: pool}
}

func (r *policyRepository) GetByGuild(ctx context.Context, guildID int64) (*domain.GuildPolicy, error) {
	const query = `
        SELECT guild_id, staff_role_ids, ticket_category, archive_category
        FROM guild_policies WHERE guild_id=$1`
	var policy domain.GuildPolicy
	if err := r.pool.QueryRow(ctx, query, guildID).Scan(
		&policy.GuildID,
		&policy.StaffRoleIDs,
		&policy.TicketCategory,
		&policy.ArchiveCategory,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &policy, nil
}

func (r *policyRepository) Upsert(ctx context.Context, policy *domain.GuildPolicy) error {
	const query = `
        INSERT INTO guild_policies (guild_id, staff_role_ids, ticket_category, archive_category)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (guild_id) DO UPDATE SET
            staff_role_ids=EXCLUDED.staff_role_ids,
            ticket_category=EXCLUDED.ticket_category,
            archive_category=EXCLUDED.archive_category,
            updated_at=NOW()`
	_, err := r.pool.Exec(ctx, query,
		policy.GuildID,
		policy.StaffRoleIDs,
		policy.TicketCategory,
		policy.ArchiveCategory,
	)
	return err
}
