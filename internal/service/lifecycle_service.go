package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/channel"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/locks"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/policy"
	"github.com/spec-kit/ticket-bot/internal/repository"
	"github.com/spec-kit/ticket-bot/internal/ticketid"
	"github.com/spec-kit/ticket-bot/internal/transcript"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

// LifecycleService orchestrates the ticket state machine: creation with an
// exclusive channel, participant management, and the
// transcript-then-archive close sequence. It is the sole writer of ticket
// state; all mutations for one ticket serialize on its registry lock.
type LifecycleService struct {
	store       repository.TicketStore
	channels    channel.Provider
	policies    policy.Provider
	locks       *locks.Registry
	transcripts *transcript.Generator
	saver       transcript.Saver
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	deleteGrace time.Duration
	now         func() time.Time
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	Store       repository.TicketStore
	Channels    channel.Provider
	Policies    policy.Provider
	Locks       *locks.Registry
	Transcripts *transcript.Generator
	Saver       transcript.Saver
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	DeleteGrace time.Duration
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	s := &LifecycleService{
		store:       deps.Store,
		channels:    deps.Channels,
		policies:    deps.Policies,
		locks:       deps.Locks,
		transcripts: deps.Transcripts,
		saver:       deps.Saver,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		deleteGrace: deps.DeleteGrace,
		now:         time.Now,
	}
	if s.locks == nil {
		s.locks = locks.NewRegistry()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// CreateTicket opens a new ticket for the actor in the guild: a fresh ID,
// an exclusive channel, a persisted open record and a welcome message. At
// most one open ticket per (creator, guild) may exist.
func (s *LifecycleService) CreateTicket(ctx context.Context, actor domain.Actor, guildID int64) (ticket *domain.Ticket, err error) {
	defer func() { s.metrics.RecordOperation("create_ticket", err) }()

	existing, err := s.store.GetActiveForUser(ctx, actor.ID, guildID)
	if err != nil {
		return nil, apperrors.NewCreationFailed("active ticket lookup failed", err)
	}
	if existing != nil {
		return nil, apperrors.NewAlreadyHasActiveTicket(existing.TicketID)
	}

	pol, err := s.policies.GetPolicy(ctx, guildID)
	if err != nil {
		return nil, apperrors.NewCreationFailed("policy resolution failed", err)
	}

	id, err := ticketid.GenerateUnique(ctx, s.store)
	if err != nil {
		return nil, err
	}

	channelID, err := s.channels.CreateChannel(ctx, channel.CreateChannelInput{
		GuildID:    guildID,
		Name:       "ticket-" + strings.ToLower(id),
		Topic:      fmt.Sprintf("Support ticket %s - Created by %s", id, actor.Mention()),
		Category:   pol.TicketCategory,
		CreatorID:  actor.ID,
		StaffRoles: pol.StaffRoleIDs,
	})
	if err != nil {
		return nil, apperrors.NewCreationFailed("channel creation failed", err)
	}

	ticket = &domain.Ticket{
		TicketID:      id,
		GuildID:       guildID,
		ChannelID:     channelID,
		CreatorID:     actor.ID,
		Status:        domain.TicketStatusOpen,
		CreatedAt:     s.now().UTC(),
		Participants:  []int64{actor.ID},
		AssignedStaff: []int64{},
	}
	if err := s.store.Create(ctx, ticket); err != nil {
		// The channel is left in place on purpose; operators reconcile
		// orphans out-of-band.
		s.logger.Error("ticket persistence failed after channel creation",
			zap.String("ticket_id", id),
			zap.Int64("channel_id", channelID),
			zap.Error(err))
		if errors.Is(err, repository.ErrDuplicateOpenTicket) {
			return nil, apperrors.NewAlreadyHasActiveTicket(s.activeTicketID(ctx, actor.ID, guildID))
		}
		return nil, apperrors.NewCreationFailed("ticket persistence failed", err)
	}

	s.bestEffort("welcome message", id, func() error {
		return s.channels.SendMessage(ctx, channelID, fmt.Sprintf(
			"Hello %s! Your support ticket %s has been created. Please describe your issue and a staff member will assist you shortly.",
			actor.Mention(), id))
	})

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: id,
		GuildID:  guildID,
		ActorID:  actor.ID,
		Payload:  events.TicketCreatedPayload{ChannelID: channelID, CreatorID: actor.ID},
	})

	s.logger.Info("ticket created",
		zap.String("ticket_id", id),
		zap.Int64("guild_id", guildID),
		zap.Int64("creator_id", actor.ID))
	return ticket, nil
}

// AddParticipant grants a user access to an open ticket's channel and
// persists the membership. Requires a staff actor.
func (s *LifecycleService) AddParticipant(ctx context.Context, channelID int64, target domain.Actor, actor domain.Actor) (err error) {
	defer func() { s.metrics.RecordOperation("add_participant", err) }()

	ticket, err := s.resolveByChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if !ticket.IsOpen() {
		return apperrors.NewInvalidState("cannot mutate a closed ticket")
	}
	if err := s.authorizeStaff(ctx, ticket.GuildID, actor); err != nil {
		return err
	}
	if ticket.HasParticipant(target.ID) {
		return apperrors.NewAlreadyParticipant(target.ID)
	}

	release, err := s.locks.Acquire(ctx, ticket.TicketID)
	if err != nil {
		return apperrors.NewUserManagementFailed(fmt.Errorf("add participant to %s: %w", ticket.TicketID, err), nil)
	}
	defer release()

	if err := s.channels.GrantUser(ctx, channelID, target.ID); err != nil {
		return apperrors.NewUserManagementFailed(fmt.Errorf("grant access for ticket %s: %w", ticket.TicketID, err), nil)
	}

	ok, err := s.store.AddParticipant(ctx, ticket.TicketID, target.ID)
	if err != nil || !ok {
		cause := err
		if cause == nil {
			cause = fmt.Errorf("ticket %s not found during participant update", ticket.TicketID)
		}
		// Compensate: take the channel grant back so store and channel agree.
		revertErr := s.channels.RevokeUser(ctx, channelID, target.ID)
		if revertErr != nil {
			s.logger.Error("participant grant revert failed; channel and store disagree",
				zap.String("ticket_id", ticket.TicketID),
				zap.Int64("user_id", target.ID),
				zap.Error(revertErr))
		}
		return apperrors.NewUserManagementFailed(cause, revertErr)
	}

	s.bestEffort("participant added message", ticket.TicketID, func() error {
		return s.channels.SendMessage(ctx, channelID, fmt.Sprintf(
			"%s has been added to this ticket by %s", target.Mention(), actor.Mention()))
	})

	s.publishEvent(ctx, events.Event{
		Type:     events.EventParticipantAdded,
		TicketID: ticket.TicketID,
		GuildID:  ticket.GuildID,
		ActorID:  actor.ID,
		Payload:  events.ParticipantChangedPayload{UserID: target.ID, StaffID: actor.ID},
	})

	s.logger.Info("participant added",
		zap.String("ticket_id", ticket.TicketID),
		zap.Int64("user_id", target.ID),
		zap.Int64("staff_id", actor.ID))
	return nil
}

// RemoveParticipant revokes a user's channel access and persists the
// reduced membership. The creator can only leave via Close.
func (s *LifecycleService) RemoveParticipant(ctx context.Context, channelID int64, target domain.Actor, actor domain.Actor) (err error) {
	defer func() { s.metrics.RecordOperation("remove_participant", err) }()

	ticket, err := s.resolveByChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if !ticket.IsOpen() {
		return apperrors.NewInvalidState("cannot mutate a closed ticket")
	}
	if err := s.authorizeStaff(ctx, ticket.GuildID, actor); err != nil {
		return err
	}
	if target.ID == ticket.CreatorID {
		return apperrors.NewCannotRemoveCreator()
	}
	if !ticket.HasParticipant(target.ID) {
		return apperrors.NewNotAParticipant(target.ID)
	}

	release, err := s.locks.Acquire(ctx, ticket.TicketID)
	if err != nil {
		return apperrors.NewUserManagementFailed(fmt.Errorf("remove participant from %s: %w", ticket.TicketID, err), nil)
	}
	defer release()

	if err := s.channels.RevokeUser(ctx, channelID, target.ID); err != nil {
		return apperrors.NewUserManagementFailed(fmt.Errorf("revoke access for ticket %s: %w", ticket.TicketID, err), nil)
	}

	ok, err := s.store.RemoveParticipant(ctx, ticket.TicketID, target.ID)
	if err != nil || !ok {
		cause := err
		if cause == nil {
			cause = fmt.Errorf("participant %d not found on ticket %s", target.ID, ticket.TicketID)
		}
		// Compensate: re-grant the access we just revoked.
		revertErr := s.channels.GrantUser(ctx, channelID, target.ID)
		if revertErr != nil {
			s.logger.Error("participant revoke revert failed; channel and store disagree",
				zap.String("ticket_id", ticket.TicketID),
				zap.Int64("user_id", target.ID),
				zap.Error(revertErr))
		}
		return apperrors.NewUserManagementFailed(cause, revertErr)
	}

	s.bestEffort("participant removed message", ticket.TicketID, func() error {
		return s.channels.SendMessage(ctx, channelID, fmt.Sprintf(
			"%s has been removed from this ticket by %s", target.Mention(), actor.Mention()))
	})

	s.publishEvent(ctx, events.Event{
		Type:     events.EventParticipantRemoved,
		TicketID: ticket.TicketID,
		GuildID:  ticket.GuildID,
		ActorID:  actor.ID,
		Payload:  events.ParticipantChangedPayload{UserID: target.ID, StaffID: actor.ID},
	})

	s.logger.Info("participant removed",
		zap.String("ticket_id", ticket.TicketID),
		zap.Int64("user_id", target.ID),
		zap.Int64("staff_id", actor.ID))
	return nil
}

// Close transitions an open ticket to closed: announce, generate and save
// the transcript (best-effort), persist the closed status (mandatory),
// notify the creator (best-effort), then archive or delete the channel.
// Once the status persists it is authoritative even if archival fails.
func (s *LifecycleService) Close(ctx context.Context, channelID int64, actor domain.Actor, reason string) (err error) {
	defer func() { s.metrics.RecordOperation("close_ticket", err) }()

	ticket, err := s.resolveByChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if !ticket.IsOpen() {
		return apperrors.NewAlreadyClosed(ticket.TicketID)
	}
	pol, err := s.policies.GetPolicy(ctx, ticket.GuildID)
	if err != nil {
		return apperrors.NewClosingFailed(fmt.Errorf("policy resolution for ticket %s: %w", ticket.TicketID, err), false)
	}
	if !pol.IsStaff(actor.RoleIDs) {
		return apperrors.NewUnauthorized("staff role required to close tickets")
	}

	release, err := s.locks.Acquire(ctx, ticket.TicketID)
	if err != nil {
		return apperrors.NewClosingFailed(fmt.Errorf("close ticket %s: %w", ticket.TicketID, err), false)
	}
	defer release()

	announcement := fmt.Sprintf("Ticket %s is being closed by %s.", ticket.TicketID, actor.Mention())
	if reason != "" {
		announcement += " Reason: " + reason
	}
	s.bestEffort("closing announcement", ticket.TicketID, func() error {
		return s.channels.SendMessage(ctx, channelID, announcement)
	})

	transcriptRef := s.generateAndSaveTranscript(ctx, ticket)

	closedAt := s.now().UTC()
	ok, err := s.store.Close(ctx, ticket.TicketID, closedAt, transcriptRef)
	if err != nil {
		return apperrors.NewClosingFailed(fmt.Errorf("persist close of ticket %s: %w", ticket.TicketID, err), false)
	}
	if !ok {
		return apperrors.NewClosingFailed(fmt.Errorf("ticket %s disappeared during close", ticket.TicketID), false)
	}
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &closedAt
	ticket.TranscriptRef = transcriptRef

	s.bestEffort("creator close notification", ticket.TicketID, func() error {
		return s.channels.NotifyUser(ctx, ticket.CreatorID, fmt.Sprintf(
			"Your ticket %s has been closed.", ticket.TicketID))
	})

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticket.TicketID,
		GuildID:  ticket.GuildID,
		ActorID:  actor.ID,
		Payload:  events.TicketClosedPayload{Reason: reason, TranscriptRef: transcriptRef},
	})

	if err := s.archiveOrDelete(ctx, ticket, pol); err != nil {
		// The persisted closed status stays authoritative; the channel is
		// reconciled out-of-band.
		s.logger.Error("channel archival failed after close committed",
			zap.String("ticket_id", ticket.TicketID),
			zap.Int64("channel_id", channelID),
			zap.Error(err))
		return apperrors.NewClosingFailed(err, true)
	}

	s.logger.Info("ticket closed",
		zap.String("ticket_id", ticket.TicketID),
		zap.Int64("staff_id", actor.ID),
		zap.String("reason", reason))
	return nil
}

// ForceClose closes a ticket by ID when its channel is gone: authorization,
// state check and the store transition only, plus a best-effort creator
// notification. No transcript, no archival.
func (s *LifecycleService) ForceClose(ctx context.Context, ticketID string, actor domain.Actor, reason string) (err error) {
	defer func() { s.metrics.RecordOperation("force_close_ticket", err) }()

	ticket, err := s.store.GetByID(ctx, ticketID)
	if err != nil {
		return apperrors.NewClosingFailed(fmt.Errorf("lookup ticket %s: %w", ticketID, err), false)
	}
	if ticket == nil {
		return apperrors.NewTicketNotFound(map[string]any{"ticket_id": ticketID})
	}
	if !ticket.IsOpen() {
		return apperrors.NewAlreadyClosed(ticket.TicketID)
	}
	pol, err := s.policies.GetPolicy(ctx, ticket.GuildID)
	if err != nil {
		return apperrors.NewClosingFailed(fmt.Errorf("policy resolution for ticket %s: %w", ticketID, err), false)
	}
	if !pol.IsStaff(actor.RoleIDs) {
		return apperrors.NewUnauthorized("staff role required to close tickets")
	}

	release, err := s.locks.Acquire(ctx, ticket.TicketID)
	if err != nil {
		return apperrors.NewClosingFailed(fmt.Errorf("force close ticket %s: %w", ticketID, err), false)
	}
	defer release()

	closedAt := s.now().UTC()
	ok, err := s.store.Close(ctx, ticket.TicketID, closedAt, nil)
	if err != nil {
		return apperrors.NewClosingFailed(fmt.Errorf("persist close of ticket %s: %w", ticketID, err), false)
	}
	if !ok {
		return apperrors.NewClosingFailed(fmt.Errorf("ticket %s disappeared during close", ticketID), false)
	}
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &closedAt

	s.bestEffort("creator close notification", ticket.TicketID, func() error {
		return s.channels.NotifyUser(ctx, ticket.CreatorID, fmt.Sprintf(
			"Your ticket %s has been closed.", ticket.TicketID))
	})

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticket.TicketID,
		GuildID:  ticket.GuildID,
		ActorID:  actor.ID,
		Payload:  events.TicketClosedPayload{Reason: reason, Forced: true},
	})

	s.logger.Info("ticket force closed",
		zap.String("ticket_id", ticket.TicketID),
		zap.Int64("staff_id", actor.ID))
	return nil
}

// GetTicketByChannel resolves lifecycle state for a channel reference.
func (s *LifecycleService) GetTicketByChannel(ctx context.Context, channelID int64) (*domain.Ticket, error) {
	return s.store.GetByChannel(ctx, channelID)
}

// GetUserActiveTicket returns the user's open ticket in a guild, if any.
func (s *LifecycleService) GetUserActiveTicket(ctx context.Context, userID, guildID int64) (*domain.Ticket, error) {
	return s.store.GetActiveForUser(ctx, userID, guildID)
}

// IsStaff reports whether the actor holds a staff role in the guild.
func (s *LifecycleService) IsStaff(ctx context.Context, guildID int64, actor domain.Actor) (bool, error) {
	pol, err := s.policies.GetPolicy(ctx, guildID)
	if err != nil {
		return false, err
	}
	return pol.IsStaff(actor.RoleIDs), nil
}

// StaffRolesForGuild exposes the configured staff role IDs for a guild.
func (s *LifecycleService) StaffRolesForGuild(ctx context.Context, guildID int64) ([]int64, error) {
	pol, err := s.policies.GetPolicy(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return pol.StaffRoleIDs, nil
}

func (s *LifecycleService) resolveByChannel(ctx context.Context, channelID int64) (*domain.Ticket, error) {
	ticket, err := s.store.GetByChannel(ctx, channelID)
	if err != nil {
		return nil, apperrors.MapError(fmt.Errorf("resolve ticket for channel %d: %w", channelID, err))
	}
	if ticket == nil {
		return nil, apperrors.NewTicketNotFound(map[string]any{"channel_id": channelID})
	}
	return ticket, nil
}

func (s *LifecycleService) authorizeStaff(ctx context.Context, guildID int64, actor domain.Actor) error {
	pol, err := s.policies.GetPolicy(ctx, guildID)
	if err != nil {
		return apperrors.NewUserManagementFailed(fmt.Errorf("policy resolution for guild %d: %w", guildID, err), nil)
	}
	if !pol.IsStaff(actor.RoleIDs) {
		return apperrors.NewUnauthorized("staff role required to manage ticket participants")
	}
	return nil
}

// generateAndSaveTranscript runs the transcript step of Close. Both
// generation and saving are degraded-mode tolerant: any failure logs and
// yields a nil ref, never an error.
func (s *LifecycleService) generateAndSaveTranscript(ctx context.Context, ticket *domain.Ticket) *string {
	if s.transcripts == nil {
		return nil
	}
	channelName := "ticket-" + strings.ToLower(ticket.TicketID)
	text, err := s.transcripts.Generate(ctx, ticket.ChannelID, channelName)
	if err != nil {
		s.logger.Warn("transcript generation failed; closing without transcript",
			zap.String("ticket_id", ticket.TicketID), zap.Error(err))
		return nil
	}
	if s.saver == nil {
		return nil
	}
	ref, err := s.saver.Save(text, ticket.TicketID, ticket.GuildID)
	if err != nil {
		s.logger.Warn("transcript save failed; closing without transcript",
			zap.String("ticket_id", ticket.TicketID), zap.Error(err))
		return nil
	}
	return &ref
}

// archiveOrDelete finishes Close: with an archive category the channel is
// renamed, moved and restricted to staff; without one it is deleted after
// a short grace interval so final messages can land.
func (s *LifecycleService) archiveOrDelete(ctx context.Context, ticket *domain.Ticket, pol *domain.GuildPolicy) error {
	if pol.ArchiveCategory != nil {
		name := "closed-" + strings.ToLower(ticket.TicketID)
		if err := s.channels.RenameMove(ctx, ticket.ChannelID, name, pol.ArchiveCategory); err != nil {
			return fmt.Errorf("archive channel for ticket %s: %w", ticket.TicketID, err)
		}
		if err := s.channels.RestrictToRoles(ctx, ticket.ChannelID, pol.StaffRoleIDs); err != nil {
			return fmt.Errorf("restrict archived channel for ticket %s: %w", ticket.TicketID, err)
		}
		return nil
	}

	if s.deleteGrace > 0 {
		timer := time.NewTimer(s.deleteGrace)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return fmt.Errorf("delete channel for ticket %s: %w", ticket.TicketID, ctx.Err())
		}
	}
	if err := s.channels.Delete(ctx, ticket.ChannelID); err != nil {
		return fmt.Errorf("delete channel for ticket %s: %w", ticket.TicketID, err)
	}
	return nil
}

// bestEffort runs a non-fatal step: its error is recorded, never returned.
func (s *LifecycleService) bestEffort(step, ticketID string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Warn("best-effort step failed",
			zap.String("step", step),
			zap.String("ticket_id", ticketID),
			zap.Error(err))
	}
}

func (s *LifecycleService) activeTicketID(ctx context.Context, userID, guildID int64) string {
	existing, err := s.store.GetActiveForUser(ctx, userID, guildID)
	if err != nil || existing == nil {
		return ""
	}
	return existing.TicketID
}

func (s *LifecycleService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
