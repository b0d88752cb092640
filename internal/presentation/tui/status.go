package tui

import (
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/muesli/termenv"
)

var statusColors = map[domain.Status]string{
	domain.StatusRunning:                      "#60a5fa",
	domain.StatusCompensating:                 "#fbbf24",
	domain.StatusCommitted:                    "#34d399",
	domain.StatusCancelled:                    "#a1a1aa",
	domain.StatusFailed:                       "#f87171",
	domain.StatusFailedWithCompensationErrors: "#dc2626",
}

// Status renders a saga status, coloured for the current terminal profile.
func Status(s domain.Status) string {
	return StatusWithProfile(termenv.ColorProfile(), s)
}

// StatusWithProfile renders s using profile p. termenv.Ascii yields plain text.
func StatusWithProfile(p termenv.Profile, s domain.Status) string {
	out := termenv.String(string(s))
	if c, ok := statusColors[s]; ok {
		out = out.Foreground(p.Color(c))
	}
	if s.IsTerminal() {
		out = out.Bold()
	}
	if p == termenv.Ascii {
		return string(s)
	}
	return out.String()
}
