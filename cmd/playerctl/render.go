package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	apiconnect "github.com/osa030/tapedeck/internal/api/connect"
)

func printStatus(w io.Writer, s apiconnect.SnapshotView, now time.Time) {
	fmt.Fprintln(w, "\n=== PLAYER STATUS ===")
	state := s.State
	if s.Pending {
		state = fmt.Sprintf("%s (unconfirmed, native is %s)", s.State, s.Confirmed)
	}
	fmt.Fprintf(w, "State: %s\n", state)
	fmt.Fprintf(w, "Queue: %s tracks, repeat %s, shuffle %s\n",
		humanize.Comma(int64(len(s.Items))), s.Mode.Repeat, onOff(s.Mode.Shuffle))

	if s.Current != nil {
		fmt.Fprintf(w, "\nNow Playing (%s of %d):\n", humanize.Ordinal(s.Index+1), len(s.Items))
		fmt.Fprintf(w, "  Title: %s\n", s.Current.Title)
		fmt.Fprintf(w, "  Artist: %s\n", s.Current.Artist)
		if s.Current.Album != "" {
			fmt.Fprintf(w, "  Album: %s\n", s.Current.Album)
		}
		fmt.Fprintf(w, "  Progress: %s\n", progressLine(s.Progress))
	} else {
		fmt.Fprintln(w, "\nNothing loaded")
	}

	if len(s.Notices) > 0 {
		fmt.Fprintln(w, "\nNotices:")
		for _, n := range s.Notices {
			when := n.Time
			if t, err := time.Parse(time.RFC3339, n.Time); err == nil {
				when = humanize.RelTime(t, now, "ago", "from now")
			}
			fmt.Fprintf(w, "  [%s] %s: %s (%s)\n", n.ID, n.Kind, n.Message, when)
		}
	}
	fmt.Fprintln(w)
}

func printQueue(w io.Writer, s apiconnect.SnapshotView) {
	if len(s.Items) == 0 {
		fmt.Fprintln(w, "Queue is empty")
		return
	}
	var total int64
	for i, e := range s.Items {
		marker := "  "
		if i == s.Index {
			marker = "> "
		}
		fmt.Fprintf(w, "%s%3d  %s  %s  %s\n", marker, i, pad(e.Title, 32), pad(e.Artist, 24), formatMs(e.DurationMs))
		total += e.DurationMs
	}
	fmt.Fprintf(w, "\n%d tracks, %s\n", len(s.Items), formatMs(total))
}

// statusLine is the one-line form used by watch.
func statusLine(s apiconnect.SnapshotView) string {
	if s.Current == nil {
		return fmt.Sprintf("[%s] nothing loaded", s.State)
	}
	return fmt.Sprintf("[%s] %s - %s  %s", s.State, s.Current.Artist, s.Current.Title, progressLine(s.Progress))
}

func progressLine(p apiconnect.ProgressView) string {
	line := fmt.Sprintf("%s / %s (%.0f%%)", formatMs(p.PositionMs), formatMs(p.DurationMs), p.Percent*100)
	if p.Seeking {
		line += " seeking"
	}
	return line
}

// formatMs renders milliseconds as m:ss, or h:mm:ss past an hour.
func formatMs(ms int64) string {
	if ms <= 0 {
		return "--:--"
	}
	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}
