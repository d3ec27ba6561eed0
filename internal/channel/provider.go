package channel

import (
	"context"
	"errors"
	"iter"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// Sentinel errors providers use so callers can classify failures without
// knowing the underlying chat platform.
var (
	// ErrForbidden signals the bot lacks permission for the operation.
	ErrForbidden = errors.New("channel operation forbidden")
	// ErrNotFound signals the channel or user no longer exists.
	ErrNotFound = errors.New("channel not found")
)

// CreateChannelInput describes a new exclusive ticket channel: hidden from
// everyone, the creator granted read/write/history, each staff role granted
// moderate management rights.
type CreateChannelInput struct {
	GuildID    int64
	Name       string
	Topic      string
	Category   *int64
	CreatorID  int64
	StaffRoles []int64
}

// Provider is the boundary to the chat platform. Implementations must be
// safe for concurrent use; the production integration lives outside this
// repository.
type Provider interface {
	// CreateChannel provisions the channel and returns its reference.
	CreateChannel(ctx context.Context, input CreateChannelInput) (int64, error)

	// GrantUser gives a user read/write/history access to the channel.
	GrantUser(ctx context.Context, channelID, userID int64) error

	// RevokeUser removes a user's access to the channel.
	RevokeUser(ctx context.Context, channelID, userID int64) error

	// RestrictToRoles strips access for every member not holding one of the
	// given roles. Used when archiving a closed channel.
	RestrictToRoles(ctx context.Context, channelID int64, roleIDs []int64) error

	// SendMessage posts a message into the channel.
	SendMessage(ctx context.Context, channelID int64, content string) error

	// NotifyUser sends a direct message to a user.
	NotifyUser(ctx context.Context, userID int64, content string) error

	// History yields the channel's messages oldest-first. The sequence is
	// lazy and restartable: it is re-queried on every call, never cached.
	History(ctx context.Context, channelID int64) iter.Seq2[domain.Message, error]

	// RenameMove renames the channel and optionally moves it to a category.
	RenameMove(ctx context.Context, channelID int64, name string, category *int64) error

	// Delete removes the channel.
	Delete(ctx context.Context, channelID int64) error
}
