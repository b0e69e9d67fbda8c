package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"mimic/internal/core"
)

const (
	colorAccent  = "#8be9fd"
	colorMuted   = "#6272a4"
	colorSuccess = "#50fa7b"
	colorWarn    = "#ffb86c"
)

type bannerStyles struct {
	title, label, value, step, hint, box lipgloss.Style
}

func newBannerStyles() bannerStyles {
	return bannerStyles{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorSuccess)),
		label: lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)).Width(8),
		value: lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)),
		step:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)),
		hint:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarn)),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorMuted)).
			Padding(0, 1),
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printBanner writes the startup banner (or the probe report) for p.
// Styling is applied only when out is a terminal.
func printBanner(out io.Writer, p core.Plan) {
	if !isTerminal(out) {
		fmt.Fprint(out, plainBanner(p))
		return
	}
	fmt.Fprintln(out, styledBanner(p, newBannerStyles()))
}

func bannerTitle(p core.Plan) string {
	if p.DryRun {
		return "mimic " + version + " · dry run"
	}
	return "mimic " + version + " · mirroring"
}

func bannerRows(p core.Plan) [][2]string {
	rows := [][2]string{
		{"device", fmt.Sprintf("%s (api %d, %s)", p.Device, p.Profile.APILevel, p.Profile.CPUAbi)},
		{"host", fmt.Sprintf("%s on %s", p.Host.HostIP, p.Host.Interface)},
		{"shape", p.Shape},
	}
	if p.SessionID != "" {
		rows = append(rows, [2]string{"session", p.SessionID})
	}
	return rows
}

func bannerHint(p core.Plan) string {
	if p.DryRun {
		return "nothing was changed on the device"
	}
	return "you can disconnect your device from USB now\nclose the player or press Ctrl-C to stop"
}

func plainBanner(p core.Plan) string {
	var b strings.Builder
	fmt.Fprintln(&b, bannerTitle(p))
	for _, r := range bannerRows(p) {
		fmt.Fprintf(&b, "  %-8s %s\n", r[0], r[1])
	}
	if p.DryRun {
		for _, s := range p.Steps {
			fmt.Fprintf(&b, "    %s\n", s)
		}
	}
	fmt.Fprintln(&b, bannerHint(p))
	return b.String()
}

func styledBanner(p core.Plan, st bannerStyles) string {
	lines := []string{st.title.Render(bannerTitle(p)), ""}
	for _, r := range bannerRows(p) {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, st.label.Render(r[0]), st.value.Render(r[1])))
	}
	if p.DryRun {
		lines = append(lines, "")
		for _, s := range p.Steps {
			lines = append(lines, st.step.Render("  "+s))
		}
	}
	lines = append(lines, "", st.hint.Render(bannerHint(p)))
	return st.box.Render(strings.Join(lines, "\n"))
}
