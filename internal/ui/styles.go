package ui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	ColorSuccess   = lipgloss.Color("#00D26A") // green: executed, success
	ColorWarning   = lipgloss.Color("#FFB800") // yellow: skipped, warning
	ColorError     = lipgloss.Color("#FF4444") // red: failed, danger
	ColorAddress   = lipgloss.Color("#00B4D8") // cyan: addresses, hashes
	ColorValue     = lipgloss.Color("#FFFFFF")
	ColorMeta      = lipgloss.Color("#555555") // dim gray: metadata
	ColorBorder    = lipgloss.Color("#1E3A5F")
	ColorNetwork   = lipgloss.Color("#9B5DE5") // purple: network names
	ColorHighlight = lipgloss.Color("#F15BB5") // pink: selected rows
)

// Base styles.
var (
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	StyleAddress = lipgloss.NewStyle().Foreground(ColorAddress)
	StyleValue   = lipgloss.NewStyle().Foreground(ColorValue).Bold(true)
	StyleMeta    = lipgloss.NewStyle().Foreground(ColorMeta)
	StyleNetwork = lipgloss.NewStyle().Foreground(ColorNetwork).Bold(true)
	StyleInfo    = lipgloss.NewStyle().Foreground(ColorAddress)
	StyleHint    = lipgloss.NewStyle().Foreground(ColorMeta).Italic(true)

	StyleBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	StyleSelected = lipgloss.NewStyle().
			Background(ColorHighlight).
			Foreground(lipgloss.Color("#000000")).
			Bold(true)

	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorNetwork).
			Bold(true).
			MarginBottom(1)
)

// Banner returns the one-line header printed before a deploy run.
func Banner(version string) string {
	return StyleNetwork.Render("swapdeploy") + " " + StyleMeta.Render("v"+version+"  contract deployments for EVM networks")
}

// Success formats a success message.
func Success(msg string) string { return StyleSuccess.Render("✓ " + msg) }

// Warn formats a warning message.
func Warn(msg string) string { return StyleWarning.Render("⚠ " + msg) }

// Err formats an error message.
func Err(msg string) string { return StyleError.Render("✗ " + msg) }

// Info formats a neutral status message.
func Info(msg string) string { return StyleInfo.Render("ℹ " + msg) }

// Hint formats a suggested next command.
func Hint(msg string) string { return StyleHint.Render("→ " + msg) }

// Addr formats an address.
func Addr(a string) string { return StyleAddress.Render(a) }

// Val formats a value.
func Val(v string) string { return StyleValue.Render(v) }

// Meta formats metadata text.
func Meta(m string) string { return StyleMeta.Render(m) }

// NetworkName formats a network name.
func NetworkName(n string) string { return StyleNetwork.Render(n) }

// Status colors a task status word: executed, skipped or failed.
func Status(s string) string {
	switch s {
	case "executed":
		return StyleSuccess.Render(s)
	case "skipped":
		return StyleWarning.Render(s)
	case "failed":
		return StyleError.Render(s)
	}
	return s
}

// TruncateAddr shortens an address for display: 0x1234…5678.
func TruncateAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
