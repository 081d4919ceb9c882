package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Archiver writes cleared transcripts to JSONL files under archiveDir.
// Archives are write-only audit records; history is never reloaded from them.
type Archiver struct {
	archiveDir string
}

// archiveEntry is one line of an archive file.
type archiveEntry struct {
	UserID int64 `json:"user_id"`
	Turn   Turn  `json:"turn"`
}

// NewArchiver creates an archiver rooted at archiveDir, creating it if needed.
func NewArchiver(archiveDir string) (*Archiver, error) {
	if archiveDir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(archiveDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &Archiver{archiveDir: archiveDir}, nil
}

// Archive appends the given turns to the user's archive file. An empty
// transcript is a no-op.
func (a *Archiver) Archive(userID int64, turns []Turn) error {
	if len(turns) == 0 {
		return nil
	}

	path := a.archivePath(userID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open archive file: %w", err)
	}
	defer file.Close()

	for _, turn := range turns {
		data, err := json.Marshal(archiveEntry{UserID: userID, Turn: turn})
		if err != nil {
			return fmt.Errorf("failed to marshal turn: %w", err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write turn: %w", err)
		}
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync archive file: %w", err)
	}

	log.Debug().
		Int64("user_id", userID).
		Int("turns", len(turns)).
		Msg("Transcript archived")

	return nil
}

func (a *Archiver) archivePath(userID int64) string {
	return filepath.Join(a.archiveDir, fmt.Sprintf("%d.jsonl", userID))
}

// Load reads back an archive file. Only used by tests and operator tooling.
func (a *Archiver) Load(userID int64) ([]Turn, error) {
	data, err := os.ReadFile(a.archivePath(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read archive file: %w", err)
	}

	var turns []Turn
	start := 0
	for i := 0; i <= len(data); i++ {
		if i != len(data) && data[i] != '\n' {
			continue
		}
		line := data[start:i]
		start = i + 1
		if len(line) == 0 {
			continue
		}
		var entry archiveEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("Skipping malformed archive line")
			continue
		}
		turns = append(turns, entry.Turn)
	}
	return turns, nil
}
