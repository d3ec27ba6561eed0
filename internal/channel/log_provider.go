package channel

import (
	"context"
	"iter"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// logProvider is a development stand-in that records every channel
// operation instead of talking to a chat platform. Channels it "creates"
// are synthetic IDs with empty history.
type logProvider struct {
	logger *zap.Logger
	nextID atomic.Int64
}

// NewLogProvider builds the dev provider.
func NewLogProvider(logger *zap.Logger) Provider {
	p := &logProvider{logger: logger}
	p.nextID.Store(1_000_000)
	return p
}

func (p *logProvider) CreateChannel(ctx context.Context, input CreateChannelInput) (int64, error) {
	id := p.nextID.Add(1)
	p.logger.Info("create channel",
		zap.Int64("guild_id", input.GuildID),
		zap.String("name", input.Name),
		zap.Int64("channel_id", id))
	return id, nil
}

func (p *logProvider) GrantUser(ctx context.Context, channelID, userID int64) error {
	p.logger.Info("grant user", zap.Int64("channel_id", channelID), zap.Int64("user_id", userID))
	return nil
}

func (p *logProvider) RevokeUser(ctx context.Context, channelID, userID int64) error {
	p.logger.Info("revoke user", zap.Int64("channel_id", channelID), zap.Int64("user_id", userID))
	return nil
}

func (p *logProvider) RestrictToRoles(ctx context.Context, channelID int64, roleIDs []int64) error {
	p.logger.Info("restrict channel", zap.Int64("channel_id", channelID), zap.Int64s("role_ids", roleIDs))
	return nil
}

func (p *logProvider) SendMessage(ctx context.Context, channelID int64, content string) error {
	p.logger.Info("send message", zap.Int64("channel_id", channelID), zap.String("content", content))
	return nil
}

func (p *logProvider) NotifyUser(ctx context.Context, userID int64, content string) error {
	p.logger.Info("notify user", zap.Int64("user_id", userID), zap.String("content", content))
	return nil
}

func (p *logProvider) History(ctx context.Context, channelID int64) iter.Seq2[domain.Message, error] {
	return func(yield func(domain.Message, error) bool) {}
}

func (p *logProvider) RenameMove(ctx context.Context, channelID int64, name string, category *int64) error {
	p.logger.Info("rename channel", zap.Int64("channel_id", channelID), zap.String("name", name))
	return nil
}

func (p *logProvider) Delete(ctx context.Context, channelID int64) error {
	p.logger.Info("delete channel", zap.Int64("channel_id", channelID))
	return nil
}
