package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette, carried over from the console's existing "cyberpunk"
// theme rather than inventing a new one for this renderer.
var (
	colorDownloading = lipgloss.Color("#50fa7b")
	colorDone        = lipgloss.Color("#bd93f9")
	colorError       = lipgloss.Color("#ff5555")
	colorMuted       = lipgloss.Color("#a9b1d6")

	barStyle   = lipgloss.NewStyle().Foreground(colorDownloading)
	nameStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f8f8f2")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	totalStyle = lipgloss.NewStyle().Foreground(colorDone).Bold(true)
)

const defaultWidth = 80

// Renderer repaints a multi-line progress display in place using ANSI
// cursor movement, the plain alternative to a full bubbletea program
// that this CLI's console output intentionally stays with.
type Renderer struct {
	out        io.Writer
	linesDrawn int
	isTerminal bool
}

// NewRenderer targets w (typically os.Stdout). Cursor-repaint behavior is
// only enabled when w is a terminal; redirected output (files, pipes)
// gets each frame's rows appended as plain lines, every row cut to 80
// bytes.
func NewRenderer(w io.Writer) *Renderer {
	isTerminal := false
	if f, ok := w.(*os.File); ok {
		isTerminal = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Renderer{out: w, isTerminal: isTerminal}
}

// Render repaints one frame: a row per task snapshot, followed by a
// combined total row.
func (r *Renderer) Render(tasks []Snapshot, total Snapshot) {
	lines := make([]string, 0, len(tasks)+1)
	for _, s := range tasks {
		lines = append(lines, r.renderRow(s, false))
	}
	lines = append(lines, r.renderRow(total, true))

	if r.isTerminal && r.linesDrawn > 0 {
		fmt.Fprintf(r.out, "\x1b[%dA", r.linesDrawn) // cursor up
	}
	for _, line := range lines {
		if r.isTerminal {
			fmt.Fprint(r.out, "\x1b[2K") // clear line
		}
		fmt.Fprintln(r.out, line)
	}
	r.linesDrawn = len(lines)
}

func (r *Renderer) renderRow(s Snapshot, isTotal bool) string {
	width := defaultWidth
	barWidth := 30

	pct := 0.0
	if s.HasTotal && s.Total > 0 {
		pct = math.Min(1.0, float64(s.Downloaded)/float64(s.Total))
	}
	filled := int(pct * float64(barWidth))
	bar := barStyle.Render(strings.Repeat("=", filled)) + mutedStyle.Render(strings.Repeat(" ", barWidth-filled))

	label := s.Filename
	if isTotal {
		label = "TOTAL"
	}
	if label == "" {
		label = s.ID
	}
	nameStyled := nameStyle.Render(padOrTrim(label, 20))
	if isTotal {
		nameStyled = totalStyle.Render(padOrTrim(label, 20))
	}

	sizeText := humanBytes(s.Downloaded)
	if s.HasTotal {
		sizeText = fmt.Sprintf("%s/%s", humanBytes(s.Downloaded), humanBytes(s.Total))
	}

	row := fmt.Sprintf("%s [%s] %3.0f%%  %s  %s/s  %s  ETA %s", nameStyled, bar, pct*100, sizeText, humanBytes(int64(s.Speed)), phaseLabel(s.Phase), s.ETAFormatted())
	if len(row) > width && !r.isTerminal {
		row = row[:width]
	}
	return row
}

func phaseLabel(p Phase) string {
	if p == "" {
		return strings.ToUpper(string(PhaseDownloading))
	}
	return strings.ToUpper(string(p))
}

func padOrTrim(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

func humanBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	exp := int(math.Log(float64(b)) / math.Log(unit))
	if exp > 5 {
		exp = 5
	}
	pre := "KMGTPE"[exp-1]
	return fmt.Sprintf("%.1f %cB", float64(b)/math.Pow(unit, float64(exp)), pre)
}

// FormatElapsed renders a duration as text for callers that need just
// the duration, e.g. a completion message. The progress rows themselves
// show an ETA, not elapsed time.
func FormatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
