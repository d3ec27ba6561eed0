package service

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/channel"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/locks"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/repository"
	"github.com/spec-kit/ticket-bot/internal/transcript"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

// memStore is an in-memory TicketStore with failure injection.
type memStore struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket

	createErr      error
	addErr         error
	removeErr      error
	closeErr       error
	addNotFound    bool
	removeNotFound bool
}

func newMemStore() *memStore {
	return &memStore{tickets: make(map[string]*domain.Ticket)}
}

func (s *memStore) put(t *domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *t
	s.tickets[t.TicketID] = &clone
}

func (s *memStore) get(ticketID string) *domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return nil
	}
	clone := *t
	clone.Participants = append([]int64(nil), t.Participants...)
	return &clone
}

func (s *memStore) Create(_ context.Context, ticket *domain.Ticket) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tickets {
		if existing.CreatorID == ticket.CreatorID && existing.GuildID == ticket.GuildID && existing.IsOpen() {
			return repository.ErrDuplicateOpenTicket
		}
	}
	if _, ok := s.tickets[ticket.TicketID]; ok {
		return repository.ErrDuplicateTicket
	}
	clone := *ticket
	clone.Participants = append([]int64(nil), ticket.Participants...)
	s.tickets[ticket.TicketID] = &clone
	return nil
}

func (s *memStore) GetByID(_ context.Context, ticketID string) (*domain.Ticket, error) {
	return s.get(ticketID), nil
}

func (s *memStore) GetByChannel(_ context.Context, channelID int64) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.ChannelID == channelID {
			clone := *t
			clone.Participants = append([]int64(nil), t.Participants...)
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListByGuild(_ context.Context, guildID int64, status *domain.TicketStatus) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Ticket
	for _, t := range s.tickets {
		if t.GuildID != guildID {
			continue
		}
		if status != nil && t.Status != *status {
			continue
		}
		result = append(result, *t)
	}
	return result, nil
}

func (s *memStore) GetActiveForUser(_ context.Context, userID, guildID int64) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.CreatorID == userID && t.GuildID == guildID && t.IsOpen() {
			clone := *t
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *memStore) Update(_ context.Context, ticketID string, updates repository.TicketUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return false, nil
	}
	if updates.Status != nil {
		t.Status = *updates.Status
	}
	if updates.ClosedAt != nil {
		t.ClosedAt = updates.ClosedAt
	}
	if updates.TranscriptRef != nil {
		t.TranscriptRef = updates.TranscriptRef
	}
	return true, nil
}

func (s *memStore) Close(_ context.Context, ticketID string, closedAt time.Time, transcriptRef *string) (bool, error) {
	if s.closeErr != nil {
		return false, s.closeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return false, nil
	}
	t.Status = domain.TicketStatusClosed
	t.ClosedAt = &closedAt
	if transcriptRef != nil {
		t.TranscriptRef = transcriptRef
	}
	return true, nil
}

func (s *memStore) AddParticipant(_ context.Context, ticketID string, userID int64) (bool, error) {
	if s.addErr != nil {
		return false, s.addErr
	}
	if s.addNotFound {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return false, nil
	}
	if !t.HasParticipant(userID) {
		t.Participants = append(t.Participants, userID)
	}
	return true, nil
}

func (s *memStore) RemoveParticipant(_ context.Context, ticketID string, userID int64) (bool, error) {
	if s.removeErr != nil {
		return false, s.removeErr
	}
	if s.removeNotFound {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return false, nil
	}
	for i, id := range t.Participants {
		if id == userID {
			t.Participants = append(t.Participants[:i], t.Participants[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// fakeChannels records provider calls and injects failures.
type fakeChannels struct {
	mu     sync.Mutex
	nextID int64

	created    []channel.CreateChannelInput
	grants     []int64
	revokes    []int64
	messages   []string
	notices    []string
	renames    []string
	restricted [][]int64
	deleted    []int64

	history    []domain.Message
	historyErr error

	createErr   error
	grantErr    error
	revokeErr   error
	sendErr     error
	renameErr   error
	restrictErr error
	deleteErr   error
}

func newFakeChannels() *fakeChannels {
	return &fakeChannels{nextID: 5000}
}

func (f *fakeChannels) CreateChannel(_ context.Context, input channel.CreateChannelInput) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = append(f.created, input)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeChannels) GrantUser(_ context.Context, _, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grantErr != nil {
		return f.grantErr
	}
	f.grants = append(f.grants, userID)
	return nil
}

func (f *fakeChannels) RevokeUser(_ context.Context, _, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revokes = append(f.revokes, userID)
	return nil
}

func (f *fakeChannels) RestrictToRoles(_ context.Context, _ int64, roleIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restrictErr != nil {
		return f.restrictErr
	}
	f.restricted = append(f.restricted, roleIDs)
	return nil
}

func (f *fakeChannels) SendMessage(_ context.Context, _ int64, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages = append(f.messages, content)
	return nil
}

func (f *fakeChannels) NotifyUser(_ context.Context, _ int64, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, content)
	return nil
}

func (f *fakeChannels) History(_ context.Context, _ int64) iter.Seq2[domain.Message, error] {
	return func(yield func(domain.Message, error) bool) {
		if f.historyErr != nil {
			yield(domain.Message{}, f.historyErr)
			return
		}
		for _, msg := range f.history {
			if !yield(msg, nil) {
				return
			}
		}
	}
}

func (f *fakeChannels) RenameMove(_ context.Context, _ int64, name string, _ *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renameErr != nil {
		return f.renameErr
	}
	f.renames = append(f.renames, name)
	return nil
}

func (f *fakeChannels) Delete(_ context.Context, channelID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, channelID)
	return nil
}

type staticPolicies struct {
	policy *domain.GuildPolicy
	err    error
}

func (p *staticPolicies) GetPolicy(context.Context, int64) (*domain.GuildPolicy, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.policy, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) ofType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []events.Event
	for _, e := range d.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

type fakeSaver struct {
	saved map[string]string
	err   error
}

func (s *fakeSaver) Save(content, ticketID string, _ int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.saved == nil {
		s.saved = make(map[string]string)
	}
	ref := "transcripts/" + ticketID + ".txt"
	s.saved[ref] = content
	return ref, nil
}

type fixture struct {
	svc        *LifecycleService
	store      *memStore
	channels   *fakeChannels
	policies   *staticPolicies
	dispatcher *recordingDispatcher
	saver      *fakeSaver
}

func newFixture() *fixture {
	store := newMemStore()
	channels := newFakeChannels()
	policies := &staticPolicies{policy: &domain.GuildPolicy{
		GuildID:      1,
		StaffRoleIDs: []int64{900},
	}}
	dispatcher := &recordingDispatcher{}
	saver := &fakeSaver{}

	svc := NewLifecycleService(LifecycleDependencies{
		Store:       store,
		Channels:    channels,
		Policies:    policies,
		Locks:       locks.NewRegistry(),
		Transcripts: transcript.NewGenerator(channels),
		Saver:       saver,
		Dispatcher:  dispatcher,
		Logger:      zap.NewNop(),
		Metrics:     observability.NewMetrics(),
	})
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	return &fixture{svc: svc, store: store, channels: channels, policies: policies, dispatcher: dispatcher, saver: saver}
}

func (f *fixture) seedOpenTicket(ticketID string, channelID, creatorID int64) *domain.Ticket {
	ticket := &domain.Ticket{
		TicketID:     ticketID,
		GuildID:      1,
		ChannelID:    channelID,
		CreatorID:    creatorID,
		Status:       domain.TicketStatusOpen,
		CreatedAt:    time.Date(2024, 5, 30, 9, 0, 0, 0, time.UTC),
		Participants: []int64{creatorID},
	}
	f.store.put(ticket)
	return ticket
}

var (
	creator = domain.Actor{ID: 10, Name: "alice"}
	staff   = domain.Actor{ID: 20, Name: "mod", RoleIDs: []int64{900}}
	member  = domain.Actor{ID: 30, Name: "bob"}
)

func TestCreateTicket(t *testing.T) {
	f := newFixture()

	ticket, err := f.svc.CreateTicket(context.Background(), creator, 1)
	require.NoError(t, err)
	require.NotNil(t, ticket)

	assert.Len(t, ticket.TicketID, 8)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, []int64{creator.ID}, ticket.Participants)
	assert.Nil(t, ticket.ClosedAt)

	require.Len(t, f.channels.created, 1)
	assert.Contains(t, f.channels.created[0].Name, "ticket-")
	assert.Equal(t, creator.ID, f.channels.created[0].CreatorID)
	assert.Equal(t, []int64{900}, f.channels.created[0].StaffRoles)

	require.Len(t, f.channels.messages, 1)
	assert.Contains(t, f.channels.messages[0], ticket.TicketID)

	created := f.dispatcher.ofType(events.EventTicketCreated)
	require.Len(t, created, 1)
	assert.Equal(t, ticket.TicketID, created[0].TicketID)
	assert.NotEmpty(t, created[0].ID)
}

func TestCreateTicketRejectsSecondActiveTicket(t *testing.T) {
	f := newFixture()
	f.seedOpenTicket("AAAA1111", 42, creator.ID)

	_, err := f.svc.CreateTicket(context.Background(), creator, 1)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyHasActiveTicket))

	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "AAAA1111", domainErr.Details["ticket_id"])
	assert.Empty(t, f.channels.created, "no channel should be provisioned")
}

func TestCreateTicketAllowsNewAfterClose(t *testing.T) {
	f := newFixture()
	old := f.seedOpenTicket("AAAA1111", 42, creator.ID)
	closedAt := time.Now().UTC()
	_, err := f.store.Close(context.Background(), old.TicketID, closedAt, nil)
	require.NoError(t, err)

	ticket, err := f.svc.CreateTicket(context.Background(), creator, 1)
	require.NoError(t, err)
	assert.NotEqual(t, old.TicketID, ticket.TicketID)
}

func TestCreateTicketDuplicateOpenRace(t *testing.T) {
	f := newFixture()
	// Simulate the losing side of two concurrent creates: the store-level
	// constraint fires even though the pre-check saw no active ticket.
	f.store.createErr = repository.ErrDuplicateOpenTicket

	_, err := f.svc.CreateTicket(context.Background(), creator, 1)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyHasActiveTicket))
	// The provisioned channel is left for out-of-band reconciliation.
	assert.Empty(t, f.channels.deleted)
}

func TestCreateTicketPersistFailureKeepsChannel(t *testing.T) {
	f := newFixture()
	f.store.createErr = errors.New("connection reset")

	_, err := f.svc.CreateTicket(context.Background(), creator, 1)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCreationFailed))
	assert.Len(t, f.channels.created, 1)
	assert.Empty(t, f.channels.deleted)
}

func TestCreateTicketChannelFailure(t *testing.T) {
	f := newFixture()
	f.channels.createErr = channel.ErrForbidden

	_, err := f.svc.CreateTicket(context.Background(), creator, 1)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCreationFailed))

	active, err := f.store.GetActiveForUser(context.Background(), creator.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, active, "nothing persisted after channel failure")
}

func TestCreateTicketPolicyFailure(t *testing.T) {
	f := newFixture()
	f.policies.err = errors.New("policy missing")

	_, err := f.svc.CreateTicket(context.Background(), creator, 1)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCreationFailed))
}

func TestAddParticipant(t *testing.T) {
	f := newFixture()
	ticket := f.seedOpenTicket("AAAA1111", 42, creator.ID)

	err := f.svc.AddParticipant(context.Background(), 42, member, staff)
	require.NoError(t, err)

	stored := f.store.get(ticket.TicketID)
	assert.True(t, stored.HasParticipant(member.ID))
	assert.Equal(t, []int64{member.ID}, f.channels.grants)
	require.Len(t, f.channels.messages, 1)

	added := f.dispatcher.ofType(events.EventParticipantAdded)
	require.Len(t, added, 1)
}

func TestAddParticipantRequiresStaff(t *testing.T) {
	f := newFixture()
	f.seedOpenTicket("AAAA1111", 42, creator.ID)

	err := f.svc.AddParticipant(context.Background(), 42, member, creator)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	assert.Empty(t, f.channels.grants)
}

func TestAddParticipantUnknownChannel(t *testing.T) {
	f := newFixture()

	err := f.svc.AddParticipant(context.Background(), 999, member, staff)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTicketNotFound))
}

func TestAddParticipantAlreadyParticipant(t *testing.T) {
	f := newFixture()
	f.seedOpenTicket("AAAA1111", 42, creator.ID)

	target := domain.Actor{ID: creator.ID}
	err := f.svc.AddParticipant(context.Background(), 42, target, staff)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyParticipant))
}

func TestAddParticipantClosedTicket(t *testing.T) {
	f := newFixture()
	ticket := f.seedOpenTicket("AAAA1111", 42, creator.ID)
	_, err := f.store.Close(context.Background(), ticket.TicketID, time.Now().UTC(), nil)
	require.NoError(t, err)

	err = f.svc.AddParticipant(context.Background(), 42, member, staff)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
}

func TestAddParticipantStoreFailureRevertsGrant(t *testing.T) {
	f := newFixture()
	f.seedOpenTicket("AAAA1111", 42, creator.ID)
	f.store.addErr = errors.New("write failed")

	err := f.svc.AddParticipant(context.Background(), 42, member, staff)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUserManagementFailed))

	// The channel grant was compensated exactly once.
	assert.Equal(t, []int64{member.ID}, f.channels.grants)
	assert.Equal(t, []int64{member.ID}, f.channels.revokes)

	domainErr := apperrors.ToDomainError(err)
	_, hasRevertError := domainErr.Details["revert_error"]
	assert.False(t, hasRevertError, "successful revert leaves no revert_error detail")
}

func TestAddParticipantRevertFailureIsReported(t *testing.T) {
	f := newFixture()
	f.seedOpenTicket("AAAA1111", 42, creator.ID)
	f.store.addErr = errors.New("write failed")
	f.channels.revokeErr = errors.New("revoke failed")

	err := f.svc.AddParticipant(context.Background(), 42, member, staff)
	require.Error(t, err)

	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeUserManagementFailed, domainErr.Code)
	assert.Contains(t, domainErr.Details["revert_error"], "revoke failed")
}

func TestRemoveParticipant(t *testing.T) {
	f := newFixture()
	ticket := f.seedOpenTicket("AAAA1111", 42, creator.ID)
	_, err := f.store.AddParticipant(context.Background(), ticket.TicketID, member.ID)
	require.NoError(t, err)

	err = f.svc.RemoveParticipant(context.Background(), 42, member, staff)
	require.NoError(t, err)

	stored := f.store.get(ticket.TicketID)
	assert.False(t, stored.HasParticipant(member.ID))
	assert.Equal(t, []int64{member.ID}, f.channels.revokes)

	removed := f.dispatcher.ofType(events.EventParticipantRemoved)
	require.Len(t, removed, 1)
}

func TestRemoveParticipantCreatorIsProtected(t *testing.T) {
	f := newFixture()
	f.seedOpenTicket("AAAA1111", 42, creator.ID)

	target := domain.Actor{ID: creator.ID}
	err := f.svc.RemoveParticipant(context.Background(), 42, target, staff)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCannotRemoveCreator))
	assert.Empty(t, f.channels.revokes)
}

func TestRemoveParticipantNotAParticipant(t *testing.T) {
	f := newFixture()
	f.seedOpenTicket("AAAA1111", 42, creator.ID)

	err := f.svc.RemoveParticipant(context.Background(), 42, member, staff)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAParticipant))
}

func TestRemoveParticipantStoreFailureRevertsRevoke(t *testing.T) {
	f := newFixture()
	ticket := f.seedOpenTicket("AAAA1111", 42, creator.ID)
	_, err := f.store.AddParticipant(context.Background(), ticket.TicketID, member.ID)
	require.NoError(t, err)
	f.store.removeErr = errors.New("write failed")

	err = f.svc.RemoveParticipant(context.Background(), 42, member, staff)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUserManagementFailed))

	// Access was re-granted after the failed store update.
	assert.Equal(t, []int64{member.ID}, f.channels.revokes)
	assert.Equal(t, []int64{member.ID}, f.channels.grants)
}

func TestConcurrentAddsAllLand(t *testing.T) {
	f := newFixture()
	ticket := f.seedOpenTicket("AAAA1111", 42, creator.ID)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := domain.Actor{ID: int64(100 + i)}
			errs[i] = f.svc.AddParticipant(context.Background(), 42, target, staff)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "add %d", i)
	}
	stored := f.store.get(ticket.TicketID)
	assert.Len(t, stored.Participants, n+1)
}

func TestCloseDeletesChannelWithoutArchiveCategory(t *testing.T) {
	f := newFixture()
	ticket := f.seedOpenTicket("AAAA1111", 42, creator.ID)
	f.channels.history = []domain.Message{
		{Timestamp: time.Date(2024, 5, 30, 10, 0, 0, 0, time.UTC), AuthorID: 10, AuthorName: "alice", Content: "help"},
	}

	err := f.svc.Close(context.Background(), 42, staff, "resolved")
	require.NoError(t, err)

	stored := f.store.get(ticket.TicketID)
	assert.Equal(t, domain.TicketStatusClosed, stored.Status)
	require.NotNil(t, stored.ClosedAt)
	require.NotNil(t, stored.TranscriptRef)
	assert.Contains(t, f.saver.saved[*stored.TranscriptRef], "alice(10): help")

	assert.Equal(t, []int64{42}, f.channels.deleted)
	assert.Empty(t, f.channels.renames)

	require.Len(t, f.channels.notices, 1)
	assert.Contains(t, f.channels.notices[0], ticket.TicketID)

	closedEvents := f.dispatcher.ofType(events.EventTicketClosed)
	require.Len(t, closedEvents, 1)
	payload, ok := closedEvents[0].Payload.(events.TicketClosedPayload)
	require.True(t, ok)
	assert.Equal(t, "resolved", payload.Reason)
	assert.False(t, payload.Forced)
}

func TestCloseArchivesWithArchiveCategory(t *testing.T) {
	f := newFixture()
	archive := int64(777)
	f.policies.policy.ArchiveCategory = &archive
	f.seedOpenTicket("AAAA1111", 42, creator.ID)

	err := f.svc.Close(context.Background(), 42, staff, "")
	require.NoError(t, err)

	require.Len(t, f.channels.renames, 1)
	assert.Equal(t, "closed-aaaa1111", f.channels.renames[0])
	require.Len(t, f.channels.restricted, 1)
	assert.Equal(t, []int64{900}, f.channels.restricted[0])
	assert.Empty(t, f.channels.deleted)
}

func TestCloseSucceedsWhenTranscriptFails(t *testing.T) {
	f := newFixture()
	ticket := f.seedOpenTicket("AAAA1111", 42, creator.ID)
	f.channels.historyErr = channel.ErrForbidden

	err := f.svc.Close(context.Background(), 42, staff, "")
	require.NoError(t, err)

	stored := f.store.get(ticket.TicketID)
	assert.Equal(t, domain.TicketStatusClosed, stored.Status)
	assert.Nil(t, stored.TranscriptRef)
}

func TestCloseSucceedsWhenTranscriptSaveFails(t *testing.T) {
	f := newFixture()
	ticket := f.seedOpenTicket("AAAA1111", 42, creator.ID)
	f.saver.err = errors.New("disk full")

	err := f.svc.Close(context.Background(), 42, staff, "")
	require.NoError(t, err)
	assert.Nil(t, f.store.get(ticket.TicketID).TranscriptRef)
}

func TestCloseRequiresStaff(t *testing.T) {
	f := newFixture()
	f.seedOpenTicket("AAAA1111", 42, creator.ID)

	err := f.svc.Close(context.Background(), 42, creator, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	assert.Equal(t, domain.TicketStatusOpen, f.store.get("AAAA1111").Status)
}

func TestCloseAlreadyClosed(t *testing.T) {
	f := newFixture()
	ticket := f.seedOpenTicket("AAAA1111", 42, creator.ID)
	_, err := f.store.Close(context.Background(), ticket.TicketID, time.Now().UTC(), nil)
	require.NoError(t, err)

	err = f.svc.Close(context.Background(), 42, staff, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyClosed))
}

func TestClosePersistFailure(t *testing.T) {
	f := newFixture()
	f.seedOpenTicket("AAAA1111", 42, creator.ID)
	f.store.closeErr = errors.New("connection reset")

	err := f.svc.Close(context.Background(), 42, staff, "")
	require.Error(t, err)

	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeClosingFailed, domainErr.Code)
	assert.Equal(t, false, domainErr.Details["status_persisted"])
	assert.Empty(t, f.channels.deleted, "channel must survive a failed close")
}

func TestCloseArchivalFailureAfterPersist(t *testing.T) {
	f := newFixture()
	ticket := f.seedOpenTicket("AAAA1111", 42, creator.ID)
	f.channels.deleteErr = errors.New("gone")

	err := f.svc.Close(context.Background(), 42, staff, "")
	require.Error(t, err)

	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeClosingFailed, domainErr.Code)
	assert.Equal(t, true, domainErr.Details["status_persisted"])

	// Closed status stays authoritative.
	assert.Equal(t, domain.TicketStatusClosed, f.store.get(ticket.TicketID).Status)
}

func TestForceClose(t *testing.T) {
	f := newFixture()
	ticket := f.seedOpenTicket("AAAA1111", 42, creator.ID)
	f.channels.history = []domain.Message{{Content: "should not be read"}}

	err := f.svc.ForceClose(context.Background(), ticket.TicketID, staff, "channel deleted manually")
	require.NoError(t, err)

	stored := f.store.get(ticket.TicketID)
	assert.Equal(t, domain.TicketStatusClosed, stored.Status)
	assert.Nil(t, stored.TranscriptRef, "force close never produces a transcript")
	assert.Empty(t, f.saver.saved)
	assert.Empty(t, f.channels.deleted)
	assert.Empty(t, f.channels.renames)

	closedEvents := f.dispatcher.ofType(events.EventTicketClosed)
	require.Len(t, closedEvents, 1)
	payload, ok := closedEvents[0].Payload.(events.TicketClosedPayload)
	require.True(t, ok)
	assert.True(t, payload.Forced)
}

func TestForceCloseUnknownTicket(t *testing.T) {
	f := newFixture()

	err := f.svc.ForceClose(context.Background(), "ZZZZ9999", staff, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTicketNotFound))
}

func TestForceCloseAlreadyClosed(t *testing.T) {
	f := newFixture()
	ticket := f.seedOpenTicket("AAAA1111", 42, creator.ID)
	_, err := f.store.Close(context.Background(), ticket.TicketID, time.Now().UTC(), nil)
	require.NoError(t, err)

	err = f.svc.ForceClose(context.Background(), ticket.TicketID, staff, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyClosed))
}

func TestForceCloseRequiresStaff(t *testing.T) {
	f := newFixture()
	ticket := f.seedOpenTicket("AAAA1111", 42, creator.ID)

	err := f.svc.ForceClose(context.Background(), ticket.TicketID, creator, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestMetricsRecordOperations(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateTicket(context.Background(), creator, 1)
	require.NoError(t, err)
	_, err = f.svc.CreateTicket(context.Background(), creator, 1)
	require.Error(t, err)

	assert.Equal(t, int64(2), f.svc.metrics.OperationCount("create_ticket"))
}

func TestStaffRolesForGuild(t *testing.T) {
	f := newFixture()

	roles, err := f.svc.StaffRolesForGuild(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{900}, roles)
}

func TestBestEffortStepsNeverFailOperations(t *testing.T) {
	f := newFixture()
	f.channels.sendErr = errors.New("message rejected")

	ticket, err := f.svc.CreateTicket(context.Background(), creator, 1)
	require.NoError(t, err, "welcome message failure must not fail creation")
	require.NotNil(t, ticket)
}
