package render

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/danielpatrickdp/fairaudit/internal/descriptor"
	"github.com/danielpatrickdp/fairaudit/internal/tree"
)

// #region options
// ConsoleOptions controls the console renderer.
type ConsoleOptions struct {
	// Depth is how many numeric levels are explained before values collapse
	// into bars and deeper nodes into alias pointers.
	Depth int
	// BarWidth is the width of a full bar in cells.
	BarWidth int
}

// DefaultConsoleOptions matches the depth the CLI uses.
func DefaultConsoleOptions() ConsoleOptions {
	return ConsoleOptions{Depth: 6, BarWidth: 30}
}
// #endregion options

// #region console
type console struct {
	w    io.Writer
	opts ConsoleOptions
	err  error

	title  []lipgloss.Style
	quote  lipgloss.Style
	bold   lipgloss.Style
	filled lipgloss.Style
	empty  lipgloss.Style
	faint  lipgloss.Style
}

// Console writes a human-oriented explanation of v. Colors are only emitted
// when w is a terminal.
func Console(w io.Writer, v *tree.Value, opts ConsoleOptions) error {
	if opts.BarWidth <= 0 {
		opts.BarWidth = DefaultConsoleOptions().BarWidth
	}
	r := lipgloss.NewRenderer(w)
	c := &console{
		w:    w,
		opts: opts,
		title: []lipgloss.Style{
			r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Underline(true),
			r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
			r.NewStyle().Bold(true),
		},
		quote:  r.NewStyle().Italic(true).Foreground(lipgloss.Color("245")).PaddingLeft(2),
		bold:   r.NewStyle().Bold(true),
		filled: r.NewStyle().Foreground(lipgloss.Color("42")),
		empty:  r.NewStyle().Foreground(lipgloss.Color("238")),
		faint:  r.NewStyle().Faint(true),
	}
	c.node(v, 0, 0)
	return c.err
}

func (c *console) printf(format string, args ...any) {
	if c.err != nil {
		return
	}
	_, c.err = fmt.Fprintf(c.w, format, args...)
}

func (c *console) node(v *tree.Value, depth, level int) {
	d := v.Descriptor()
	num, numeric := v.Number()
	deps := v.Deps()
	indent := strings.Repeat("  ", level)

	if numeric && (depth < c.opts.Depth || level != 0) {
		depth++
	}
	if numeric && (len(deps) == 0 || depth > c.opts.Depth) {
		c.bar(indent, d.Name, num)
		return
	}
	if depth > c.opts.Depth {
		c.printf("%s%s %s\n", indent, d.Name, c.faint.Render("[use the alias "+d.Alias+" for more info]"))
		return
	}

	style := c.title[min(level, len(c.title)-1)]
	c.printf("%s%s\n", indent, style.Render(d.Name))
	c.printf("%s%s\n", indent, c.quote.Render(Details(d)))
	switch {
	case numeric:
		line := fmt.Sprintf("Value: %.3f", num.Value)
		if num.HasTarget {
			line += fmt.Sprintf(" where ideal is %.3f", num.Target)
		}
		c.printf("%s%s\n", indent, c.bold.Render(line))
	case len(deps) > 0:
		c.printf("%s%s\n", indent, c.bold.Render("A value is computed in the following cases."))
	default:
		c.printf("%s%s\n", indent, c.bold.Render("Nothing has been computed"))
	}
	for _, dep := range deps {
		c.node(dep, depth, level+1)
	}
}

func (c *console) bar(indent, name string, num tree.Number) {
	width := c.opts.BarWidth
	frac := math.Max(0, math.Min(1, num.Value))
	if math.IsNaN(frac) {
		frac = 0
	}
	n := int(math.Round(frac * float64(width)))
	line := fmt.Sprintf("%s%-24s %s%s %.3f", indent, name,
		c.filled.Render(strings.Repeat("█", n)),
		c.empty.Render(strings.Repeat("░", width-n)),
		num.Value)
	if num.HasTarget {
		line += c.faint.Render(fmt.Sprintf(" (ideal %.3f)", num.Target))
	}
	c.printf("%s\n", line)
}
// #endregion console

// #region details
// Details phrases a descriptor as a sentence, naming the roles its details
// text does not already mention.
func Details(d descriptor.Descriptor) string {
	var roles []string
	for _, role := range strings.Fields(d.Role) {
		if !strings.Contains(d.Details, role) {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		return "This is " + d.Details + "."
	}
	return "This " + strings.Join(roles, " of a ") + " is " + d.Details + "."
}
// #endregion details
