// Package commands implements the meshbridge-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/meshbridge/meshbridge-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	SessionID string
	Component *log.Component
	Category  *log.Category
}

func (f ViewFilter) journalFilter() log.Filter {
	return log.Filter{
		SessionID: f.SessionID,
		Component: f.Component,
		Category:  f.Category,
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [session:id] COMPONENT Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var typeLabel string
	switch {
	case event.StateChange != nil:
		typeLabel = "State"
	case event.Attempt != nil:
		typeLabel = "Attempt " + event.Attempt.Phase.String()
	case event.Error != nil:
		typeLabel = "Error " + event.Error.Kind.String()
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [session:%s] %-10s %s\n", ts, shortenID(event.SessionID), event.Component.String(), typeLabel)
	if event.Target != "" {
		fmt.Fprintf(w, "  Target: %s\n", event.Target)
	}

	switch {
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Attempt != nil:
		formatAttemptDetails(w, event.Attempt)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenID returns the first 8 characters of a session ID.
func shortenID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	fmt.Fprintf(w, "  Connected: %t\n", sc.Connected)
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatAttemptDetails(w io.Writer, a *log.AttemptEvent) {
	fmt.Fprintf(w, "  Attempt: %d/%d\n", a.Number, a.Max)
	switch {
	case a.Delay == 0:
	case a.Phase == log.AttemptIssued:
		fmt.Fprintf(w, "  Window: %s\n", formatDuration(a.Delay))
	default:
		fmt.Fprintf(w, "  Delay: %s\n", formatDuration(a.Delay))
	}
}

func formatErrorDetails(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseComponentFlag parses a component name (case-insensitive).
func ParseComponentFlag(s string) (log.Component, error) {
	switch strings.ToLower(s) {
	case "supervisor":
		return log.ComponentSupervisor, nil
	case "transport":
		return log.ComponentTransport, nil
	case "session":
		return log.ComponentSession, nil
	case "retry":
		return log.ComponentRetry, nil
	default:
		return 0, fmt.Errorf("invalid component: %s (must be supervisor, transport, session, or retry)", s)
	}
}

// ParseCategoryFlag parses a category name (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "state":
		return log.CategoryState, nil
	case "attempt":
		return log.CategoryAttempt, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be state, attempt, or error)", s)
	}
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.journalFilter())
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
}
