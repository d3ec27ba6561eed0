package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Saver persists rendered transcripts. Saving is best-effort from the close
// workflow's point of view; a failure here never blocks closure.
type Saver interface {
	Save(content, ticketID string, guildID int64) (string, error)
}

// FileSaver writes transcripts under dir, one subdirectory per guild.
type FileSaver struct {
	dir string
}

// NewFileSaver builds a saver rooted at dir.
func NewFileSaver(dir string) *FileSaver {
	return &FileSaver{dir: dir}
}

// Save writes the transcript and returns its path.
func (s *FileSaver) Save(content, ticketID string, guildID int64) (string, error) {
	guildDir := filepath.Join(s.dir, fmt.Sprintf("%d", guildID))
	if err := os.MkdirAll(guildDir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}

	name := fmt.Sprintf("ticket_%s_%s.txt", ticketID, time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(guildDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}
