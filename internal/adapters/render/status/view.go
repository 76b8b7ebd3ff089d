package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vayureader/vayu-cli/internal/domain"
)

const defaultBarSpan = 24 * time.Hour

type RenderOptions struct {
	Now time.Time
	// ExpiringWithin flags sessions that end sooner than this.
	ExpiringWithin time.Duration
}

func renderView(session domain.Session, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Vayu Reader Session"),
		s.header.Render("state: " + session.StateName()),
	}

	switch state := session.State.(type) {
	case domain.Authenticated:
		lines = append(lines, s.section.Render(renderAuthenticated(state, opts, s)))
	case domain.Unauthenticated:
		lines = append(lines, s.empty.Render("Not signed in. Run `vayu login request` to start."))
	default:
		lines = append(lines, s.empty.Render("Session not loaded yet."))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderAuthenticated(state domain.Authenticated, opts RenderOptions, s styles) string {
	parts := []string{s.user.Render(userTitle(state.User))}

	if state.ExpiresAt == nil {
		parts = append(parts, s.detail.Render("expires: never (token has no exp claim)"))
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	}

	return lipgloss.JoinVertical(lipgloss.Left, append(parts, expiryLine(*state.ExpiresAt, opts, s))...)
}

func userTitle(user *domain.User) string {
	if user == nil {
		return "Signed in (no profile)"
	}

	name := strings.TrimSpace(user.Name)
	phone := strings.TrimSpace(user.PhoneNumber)
	switch {
	case name != "" && phone != "":
		return fmt.Sprintf("%s (%s)", name, phone)
	case name != "":
		return name
	default:
		return user.DisplayName()
	}
}

func expiryLine(expiresAt time.Time, opts RenderOptions, s styles) string {
	label := s.key.Render("expires:")

	if opts.Now.IsZero() {
		return lipgloss.JoinHorizontal(lipgloss.Top, label, " ", s.detail.Render(expiresAt.Format(time.RFC3339)))
	}

	remaining := expiresAt.Sub(opts.Now)
	bar := renderProgressBar(remaining, defaultBarSpan, 24, s)
	color := expiryColor(remaining, defaultBarSpan)
	meta := lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("(%s)", formatRemaining(expiresAt, opts.Now)))

	line := lipgloss.JoinHorizontal(lipgloss.Top, label, " ", bar, " ", meta)
	if opts.ExpiringWithin > 0 && remaining < opts.ExpiringWithin {
		line += " " + s.warning.Render("[expiring soon]")
	}

	return line
}

func renderProgressBar(remaining time.Duration, span time.Duration, width int, s styles) string {
	if width <= 0 || span <= 0 {
		return ""
	}

	fraction := remaining.Seconds() / span.Seconds()
	filled := int(math.Round(float64(width) * fraction))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	empty := width - filled
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", empty)),
		s.barBracket.Render("]"),
	)
}

func formatExpiresAt(expiresAt, now time.Time) string {
	yearA, monthA, dayA := now.Date()
	yearB, monthB, dayB := expiresAt.Date()
	if yearA == yearB && monthA == monthB && dayA == dayB {
		return expiresAt.Format("15:04")
	}

	return expiresAt.Format("15:04 on 02 Jan")
}

func formatRemaining(expiresAt, now time.Time) string {
	if !expiresAt.After(now) {
		return "expired"
	}

	remaining := expiresAt.Sub(now)
	switch {
	case remaining < time.Hour:
		minutes := int(math.Ceil(remaining.Minutes()))
		return fmt.Sprintf("expires in %d %s (%s)", minutes, plural(minutes, "minute"), formatExpiresAt(expiresAt, now))
	case remaining < 24*time.Hour:
		hours := int(math.Ceil(remaining.Hours()))
		return fmt.Sprintf("expires in %d %s (%s)", hours, plural(hours, "hour"), formatExpiresAt(expiresAt, now))
	default:
		days := int(math.Ceil(remaining.Hours() / 24))
		return fmt.Sprintf("expires in %d %s (%s)", days, plural(days, "day"), formatExpiresAt(expiresAt, now))
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	// ANSI 256 greyscale ramp, 240 (faded) to 255 (bright).
	baseColor := 240.0
	targetColor := 255.0
	interpolated := baseColor + (targetColor-baseColor)*normalized

	return lipgloss.Color(fmt.Sprintf("%d", int(interpolated)))
}

// expiryColor brightens as the deadline approaches.
func expiryColor(remaining time.Duration, span time.Duration) lipgloss.Color {
	if remaining <= 0 {
		return lipgloss.Color("203")
	}
	return interpolateColor(span.Seconds()-remaining.Seconds(), 0, span.Seconds())
}
