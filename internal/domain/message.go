package domain

import "time"

// Message is one entry of a channel's history as exposed by the channel
// provider, carrying just enough structure for transcript rendering.
type Message struct {
	Timestamp       time.Time
	AuthorID        int64
	AuthorName      string
	Content         string
	EmbedTitles     []string
	AttachmentNames []string
}

// HasEmbeds reports whether the message carries embedded content.
func (m Message) HasEmbeds() bool {
	return len(m.EmbedTitles) > 0
}

// HasAttachments reports whether the message carries file attachments.
func (m Message) HasAttachments() bool {
	return len(m.AttachmentNames) > 0
}
