package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"vpsdash/internal/probe"
)

// Theme colors
var (
	PrimaryColor = lipgloss.Color("#5B9BD5") // Blue
	AccentColor  = lipgloss.Color("#00D4AA") // Teal

	SuccessColor = lipgloss.Color("#2ECC71") // Green
	WarningColor = lipgloss.Color("#F1C40F") // Yellow
	ErrorColor   = lipgloss.Color("#E74C3C") // Red
	InfoColor    = lipgloss.Color("#5B9BD5") // Blue

	TextColor    = lipgloss.Color("#FFFFFF")
	SubtextColor = lipgloss.Color("#B0B0B0")
	MutedColor   = lipgloss.Color("#6C6C6C")
	DimColor     = lipgloss.Color("#4A4A4A")
)

// Base styles
var (
	BoldStyle = lipgloss.NewStyle().Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(InfoColor).
			Bold(true)

	WhiteStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	MutedStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	DimStyle = lipgloss.NewStyle().
			Foreground(DimColor)
)

// Component styles
var (
	BannerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SectionTitleStyle = lipgloss.NewStyle().
				Foreground(TextColor).
				Bold(true)

	BorderStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	BulletStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	KeyStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	ValueStyle = lipgloss.NewStyle().
			Foreground(SubtextColor)

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(AccentColor).
			Bold(true)
)

// Status icons
const (
	IconSuccess = "✓"
	IconWarning = "⚠"
	IconError   = "✗"
	IconInfo    = "ℹ"
	IconBullet  = "•"
	IconDot     = "●"
)

// Box drawing characters
const (
	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxHorizontal  = "─"
)

// Progress bar characters
const (
	ProgressFull  = "█"
	ProgressEmpty = "░"
)

// DefaultWidth is the default terminal width for formatting
const DefaultWidth = 60

// RenderBanner returns the styled banner
func RenderBanner() string {
	banner := `                       _           _
 __   ___ __  ___  __| | __ _ ___| |__
 \ \ / / '_ \/ __|/ _` + "`" + ` |/ _` + "`" + ` / __| '_ \
  \ V /| |_) \__ \ (_| | (_| \__ \ | | |
   \_/ | .__/|___/\__,_|\__,_|___/_| |_|
       |_|`
	return BannerStyle.Render(banner)
}

// RenderSubtitle returns the styled subtitle
func RenderSubtitle() string {
	return BoldStyle.Foreground(TextColor).Render("        host health and backups")
}

// RenderSectionStart returns a styled section header
func RenderSectionStart(title string) string {
	titlePart := SectionTitleStyle.Render(title)

	dashCount := DefaultWidth - lipgloss.Width(title) - 4 // "┌─ " + title + " ─"
	if dashCount < 0 {
		dashCount = 0
	}

	prefix := BorderStyle.Render(BoxTopLeft + BoxHorizontal + " ")
	suffix := BorderStyle.Render(" " + BoxHorizontal + strings.Repeat(BoxHorizontal, dashCount) + BoxTopRight)

	return prefix + titlePart + suffix
}

// RenderSectionEnd returns a styled section footer
func RenderSectionEnd() string {
	return BorderStyle.Render(BoxBottomLeft + strings.Repeat(BoxHorizontal, DefaultWidth) + BoxBottomRight)
}

// RenderStatus returns a styled status message
func RenderStatus(status, message string) string {
	var icon string
	var style lipgloss.Style

	switch status {
	case "success":
		icon = IconSuccess
		style = SuccessStyle
	case "warning":
		icon = IconWarning
		style = WarningStyle
	case "error":
		icon = IconError
		style = ErrorStyle
	default:
		icon = IconInfo
		style = InfoStyle
	}

	return "  " + style.Render(icon) + " " + WhiteStyle.Render(message)
}

// RenderKeyValue returns a styled key-value pair
func RenderKeyValue(key, value string) string {
	return "  " + BulletStyle.Render(IconBullet) + " " +
		KeyStyle.Render(key) + " " +
		SeparatorStyle.Render(":") + " " +
		ValueStyle.Render(value)
}

// StatusStyle maps a health level to its color
func StatusStyle(s probe.Status) lipgloss.Style {
	switch s {
	case probe.StatusOK:
		return SuccessStyle
	case probe.StatusWarn:
		return WarningStyle
	case probe.StatusCrit:
		return ErrorStyle
	default:
		return MutedStyle.Bold(true)
	}
}

// RenderBadge renders a status as a colored dot and label
func RenderBadge(s probe.Status) string {
	return StatusStyle(s).Render(IconDot + " " + string(s))
}

// RenderProgressBar draws percent as a bar colored by status
func RenderProgressBar(percent float64, width int, status probe.Status) string {
	if width <= 0 {
		width = 20
	}

	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	return StatusStyle(status).Render(strings.Repeat(ProgressFull, filled)) +
		DimStyle.Render(strings.Repeat(ProgressEmpty, width-filled))
}
