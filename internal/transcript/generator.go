package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/ticket-bot/internal/channel"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

const timeLayout = "2006-01-02 15:04:05"

// Generator renders a channel's history into a plain-text transcript.
type Generator struct {
	channels channel.Provider
}

// NewGenerator builds a generator reading through the channel provider.
func NewGenerator(channels channel.Provider) *Generator {
	return &Generator{channels: channels}
}

// Generate reads the channel history oldest-first and renders one line per
// message. Empty messages carrying structured content get an embed or
// attachment marker instead of their (empty) body.
func (g *Generator) Generate(ctx context.Context, channelID int64, channelName string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket Transcript - %s\n", channelName)
	fmt.Fprintf(&b, "Generated: %s UTC\n\n", time.Now().UTC().Format(timeLayout))

	for msg, err := range g.channels.History(ctx, channelID) {
		if err != nil {
			if errors.Is(err, channel.ErrForbidden) {
				return "", apperrors.NewTranscriptUnavailable("permission", err)
			}
			return "", apperrors.NewTranscriptUnavailable("transport", err)
		}

		content := msg.Content
		switch {
		case content != "":
		case msg.HasEmbeds():
			content = "[Embed Message] " + strings.Join(msg.EmbedTitles, " ")
		case msg.HasAttachments():
			content = fmt.Sprintf("[%d Attachment(s)] %s",
				len(msg.AttachmentNames), strings.Join(msg.AttachmentNames, ", "))
		}

		fmt.Fprintf(&b, "[%s] %s(%d): %s\n",
			msg.Timestamp.UTC().Format(timeLayout), msg.AuthorName, msg.AuthorID, content)
	}

	b.WriteString("\nEnd of Transcript\n")
	return b.String(), nil
}
