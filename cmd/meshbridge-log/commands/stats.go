package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/meshbridge/meshbridge-go/pkg/log"
)

// Stats holds aggregate statistics about a journal.
type Stats struct {
	TotalEvents       int
	EventsByComponent map[log.Component]int
	EventsByCategory  map[log.Category]int
	Sessions          map[string]*SessionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for a single session.
type SessionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int

	// Disconnects counts reports of a lost link.
	Disconnects int
	Attempts    int
	Recovered   int
	Exhausted   int

	// LongestOutage is the longest gap between a lost link and the next
	// successful attempt.
	LongestOutage time.Duration

	lostAt time.Time
}

// RunStats analyzes the journal and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func newStats() *Stats {
	return &Stats{
		EventsByComponent: make(map[log.Component]int),
		EventsByCategory:  make(map[log.Category]int),
		Sessions:          make(map[string]*SessionStats),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByComponent[event.Component]++
	s.EventsByCategory[event.Category]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	sess, ok := s.Sessions[event.SessionID]
	if !ok {
		sess = &SessionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Sessions[event.SessionID] = sess
	}
	sess.Events++
	if event.Timestamp.After(sess.LastSeen) {
		sess.LastSeen = event.Timestamp
	}

	switch {
	case event.Error != nil:
		s.Errors++

	case event.StateChange != nil && event.Component == log.ComponentSupervisor:
		if event.StateChange.Reason == "connection lost" {
			sess.Disconnects++
			if sess.lostAt.IsZero() {
				sess.lostAt = event.Timestamp
			}
		}

	case event.Attempt != nil && event.Component == log.ComponentSupervisor:
		switch event.Attempt.Phase {
		case log.AttemptIssued:
			sess.Attempts++
		case log.AttemptSucceeded:
			sess.Recovered++
			if !sess.lostAt.IsZero() {
				if d := event.Timestamp.Sub(sess.lostAt); d > sess.LongestOutage {
					sess.LongestOutage = d
				}
				sess.lostAt = time.Time{}
			}
		case log.AttemptsExhausted:
			sess.Exhausted++
			sess.lostAt = time.Time{}
		}
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Mesh Bridge Journal Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Component:")
	for _, c := range []log.Component{log.ComponentSupervisor, log.ComponentTransport, log.ComponentSession, log.ComponentRetry} {
		if count := stats.EventsByComponent[c]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, c := range []log.Category{log.CategoryState, log.CategoryAttempt, log.CategoryError} {
		if count := stats.EventsByCategory[c]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		type sessionInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessionInfo, 0, len(stats.Sessions))
		for id, ss := range stats.Sessions {
			sessions = append(sessions, sessionInfo{id, ss})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenID(s.id), s.stats.Events, duration)
			if s.stats.Disconnects > 0 {
				fmt.Fprintf(w, "           Disconnects: %d, attempts: %d, recovered: %d, exhausted: %d\n",
					s.stats.Disconnects, s.stats.Attempts, s.stats.Recovered, s.stats.Exhausted)
			}
			if s.stats.LongestOutage > 0 {
				fmt.Fprintf(w, "           Longest outage: %s\n", s.stats.LongestOutage.Round(time.Millisecond))
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
