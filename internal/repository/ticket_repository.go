package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

var (
	// ErrDuplicateTicket signals a ticket ID collision on insert.
	ErrDuplicateTicket = errors.New("duplicate ticket id")
	// ErrDuplicateOpenTicket signals the creator already has an open ticket
	// in the guild (store-level single-active-ticket constraint).
	ErrDuplicateOpenTicket = errors.New("creator already has an open ticket in this guild")
)

// TicketUpdate captures a partial ticket mutation.
type TicketUpdate struct {
	Status        *domain.TicketStatus
	ClosedAt      *time.Time
	TranscriptRef *string
}

// TicketStore encapsulates durable ticket persistence. Get-style lookups
// return (nil, nil) on miss; boolean mutators return false for "not found".
type TicketStore interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, ticketID string) (*domain.Ticket, error)
	GetByChannel(ctx context.Context, channelID int64) (*domain.Ticket, error)
	ListByGuild(ctx context.Context, guildID int64, status *domain.TicketStatus) ([]domain.Ticket, error)
	GetActiveForUser(ctx context.Context, userID, guildID int64) (*domain.Ticket, error)
	Update(ctx context.Context, ticketID string, updates TicketUpdate) (bool, error)
	Close(ctx context.Context, ticketID string, closedAt time.Time, transcriptRef *string) (bool, error)
	AddParticipant(ctx context.Context, ticketID string, userID int64) (bool, error)
	RemoveParticipant(ctx context.Context, ticketID string, userID int64) (bool, error)
}

type ticketStore struct {
	pool *pgxpool.Pool
}

// NewTicketStore instantiates the postgres-backed store.
func NewTicketStore(pool *pgxpool.Pool) TicketStore {
	return &ticketStore{pool: pool}
}

const ticketColumns = `ticket_id, guild_id, channel_id, creator_id, status, created_at, closed_at, assigned_staff, transcript_ref`

func (s *ticketStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insertTicket = `
        INSERT INTO tickets (ticket_id, guild_id, channel_id, creator_id, status, created_at, assigned_staff)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := tx.Exec(ctx, insertTicket,
		ticket.TicketID,
		ticket.GuildID,
		ticket.ChannelID,
		ticket.CreatorID,
		ticket.Status,
		ticket.CreatedAt,
		ticket.AssignedStaff,
	); err != nil {
		return classifyInsertError(err)
	}

	const insertParticipant = `
        INSERT INTO ticket_participants (ticket_id, user_id) VALUES ($1,$2)
        ON CONFLICT DO NOTHING`
	for _, userID := range ticket.Participants {
		if _, err := tx.Exec(ctx, insertParticipant, ticket.TicketID, userID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func classifyInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == "tickets_one_open_per_creator" {
			return ErrDuplicateOpenTicket
		}
		return ErrDuplicateTicket
	}
	return err
}

func (s *ticketStore) GetByID(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE ticket_id=$1`, ticketColumns)
	return s.fetchSingle(ctx, query, ticketID)
}

func (s *ticketStore) GetByChannel(ctx context.Context, channelID int64) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE channel_id=$1`, ticketColumns)
	return s.fetchSingle(ctx, query, channelID)
}

func (s *ticketStore) GetActiveForUser(ctx context.Context, userID, guildID int64) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE creator_id=$1 AND guild_id=$2 AND status=$3`, ticketColumns)
	return s.fetchSingle(ctx, query, userID, guildID, domain.TicketStatusOpen)
}

func (s *ticketStore) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := s.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.TicketID,
		&ticket.GuildID,
		&ticket.ChannelID,
		&ticket.CreatorID,
		&ticket.Status,
		&ticket.CreatedAt,
		&ticket.ClosedAt,
		&ticket.AssignedStaff,
		&ticket.TranscriptRef,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.loadParticipants(ctx, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *ticketStore) loadParticipants(ctx context.Context, ticket *domain.Ticket) error {
	const query = `SELECT user_id FROM ticket_participants WHERE ticket_id=$1 ORDER BY added_at`
	rows, err := s.pool.Query(ctx, query, ticket.TicketID)
	if err != nil {
		return err
	}
	defer rows.Close()

	ticket.Participants = ticket.Participants[:0]
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return err
		}
		ticket.Participants = append(ticket.Participants, userID)
	}
	return rows.Err()
}

func (s *ticketStore) ListByGuild(ctx context.Context, guildID int64, status *domain.TicketStatus) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE guild_id=$1`, ticketColumns)
	args := []any{guildID}
	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.TicketID,
			&ticket.GuildID,
			&ticket.ChannelID,
			&ticket.CreatorID,
			&ticket.Status,
			&ticket.CreatedAt,
			&ticket.ClosedAt,
			&ticket.AssignedStaff,
			&ticket.TranscriptRef,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		if err := s.loadParticipants(ctx, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *ticketStore) Update(ctx context.Context, ticketID string, updates TicketUpdate) (bool, error) {
	sets := []string{}
	args := []any{}

	if updates.Status != nil {
		args = append(args, *updates.Status)
		sets = append(sets, fmt.Sprintf("status=$%d", len(args)))
	}
	if updates.ClosedAt != nil {
		args = append(args, *updates.ClosedAt)
		sets = append(sets, fmt.Sprintf("closed_at=$%d", len(args)))
	}
	if updates.TranscriptRef != nil {
		args = append(args, *updates.TranscriptRef)
		sets = append(sets, fmt.Sprintf("transcript_ref=$%d", len(args)))
	}
	if len(sets) == 0 {
		return true, nil
	}

	args = append(args, ticketID)
	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE ticket_id=$%d`, strings.Join(sets, ", "), len(args))
	cmd, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *ticketStore) Close(ctx context.Context, ticketID string, closedAt time.Time, transcriptRef *string) (bool, error) {
	const query = `
        UPDATE tickets SET status=$2, closed_at=$3, transcript_ref=COALESCE($4, transcript_ref)
        WHERE ticket_id=$1`
	cmd, err := s.pool.Exec(ctx, query, ticketID, domain.TicketStatusClosed, closedAt, transcriptRef)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *ticketStore) AddParticipant(ctx context.Context, ticketID string, userID int64) (bool, error) {
	const exists = `SELECT EXISTS (SELECT 1 FROM tickets WHERE ticket_id=$1)`
	var found bool
	if err := s.pool.QueryRow(ctx, exists, ticketID).Scan(&found); err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	const insert = `
        INSERT INTO ticket_participants (ticket_id, user_id) VALUES ($1,$2)
        ON CONFLICT DO NOTHING`
	if _, err := s.pool.Exec(ctx, insert, ticketID, userID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ticketStore) RemoveParticipant(ctx context.Context, ticketID string, userID int64) (bool, error) {
	const query = `DELETE FROM ticket_participants WHERE ticket_id=$1 AND user_id=$2`
	cmd, err := s.pool.Exec(ctx, query, ticketID, userID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
