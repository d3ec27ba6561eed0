package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// OperatorRepository manages ops API accounts.
type OperatorRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Operator, error)
	GetByLogin(ctx context.Context, login string) (*domain.Operator, error)
	Create(ctx context.Context, operator *domain.Operator) error
}

type operatorRepository struct {
	pool *pgxpool.Pool
}

// NewOperatorRepository instantiates the repository.
func NewOperatorRepository(pool *pgxpool.Pool) OperatorRepository {
	return &operatorRepository{pool: pool}
}

const operatorColumns = `id, name, login, password_hash, role, active, created_at, updated_at`

func (r *operatorRepository) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	return r.fetchSingle(ctx, `SELECT `+operatorColumns+` FROM operators WHERE id=$1`, id)
}

func (r *operatorRepository) GetByLogin(ctx context.Context, login string) (*domain.Operator, error) {
	return r.fetchSingle(ctx, `SELECT `+operatorColumns+` FROM operators WHERE login=$1`, login)
}

func (r *operatorRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Operator, error) {
	var operator domain.Operator
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&operator.ID,
		&operator.Name,
		&operator.Login,
		&operator.PasswordHash,
		&operator.Role,
		&operator.Active,
		&operator.CreatedAt,
		&operator.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &operator, nil
}

func (r *operatorRepository) Create(ctx context.Context, operator *domain.Operator) error {
	const query = `
        INSERT INTO operators (id, name, login, password_hash, role, active)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		operator.ID,
		operator.Name,
		operator.Login,
		operator.PasswordHash,
		operator.Role,
		operator.Active,
	).Scan(&operator.CreatedAt, &operator.UpdatedAt)
}
