package game

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileExporter appends a plain-text summary of every finished session to Path.
type FileExporter struct {
	Path string

	mu sync.Mutex
}

func NewFileExporter(path string) *FileExporter {
	return &FileExporter{Path: path}
}

// Export writes r to the export file, creating it and its directory if needed.
func (e *FileExporter) Export(r Result) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(e.Path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(e.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(FormatResult(r)); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

// FormatResult renders one finished session as a text block.
func FormatResult(r Result) string {
	var sb strings.Builder
	names := make(map[string]string, len(r.Players))
	for _, p := range r.Players {
		names[p.ID] = displayName(p)
	}

	fmt.Fprintf(&sb, "Poem Duel Results - Game %s\n", r.SessionID)
	fmt.Fprintf(&sb, "Mode: %s  Theme: %q\n", r.Mode, r.Theme)
	fmt.Fprintf(&sb, "Started: %s\n", r.StartedAt.Local().Format(time.DateTime))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString("Players:\n")
	for _, p := range r.Players {
		fmt.Fprintf(&sb, "- %s (%s)\n", displayName(p), p.Bracket)
	}
	sb.WriteString("\n")

	if len(r.Submissions) == 0 {
		sb.WriteString("No poems were submitted.\n")
	}
	for _, sub := range r.Submissions {
		name := names[sub.ParticipantID]
		if name == "" {
			name = sub.ParticipantID
		}
		fmt.Fprintf(&sb, "%s - %d vote(s)\n", name, sub.Votes)
		sb.WriteString(strings.Repeat("-", 40) + "\n")
		for _, line := range sub.Lines {
			fmt.Fprintf(&sb, "  %s\n", line)
		}
		sb.WriteString("\n")
	}

	if r.Winner != nil {
		fmt.Fprintf(&sb, "Winner: %s with %d vote(s)\n", names[r.Winner.ParticipantID], r.Winner.Votes)
	} else {
		sb.WriteString("Winner: none (tie)\n")
	}
	fmt.Fprintf(&sb, "Game ended at %s\n", r.EndedAt.Local().Format(time.DateTime))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")
	return sb.String()
}

func displayName(p Participant) string {
	if p.Nickname != "" {
		return p.Nickname
	}
	return p.ID
}
