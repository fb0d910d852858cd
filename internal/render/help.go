package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"

	"github.com/danielpatrickdp/fairaudit/internal/tree"
)

// Help lists every key reachable from v with a sentence describing it.
// Keys containing spaces are quoted.
func Help(w io.Writer, v *tree.Value, details bool) error {
	r := lipgloss.NewRenderer(w)
	header := r.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	key := r.NewStyle().Foreground(lipgloss.Color("12"))

	var b strings.Builder
	b.WriteString(header.Render("##### fairaudit help #####") + "\n")
	b.WriteString("Access the following fields of the selected value to explore results:\n")
	reg := v.Registry()
	for _, d := range v.Keys("") {
		d = reg.Get(reg.Prototype(reg.MustLookup(d.Name)))
		alias := d.Alias
		if strings.Contains(alias, " ") {
			alias = fmt.Sprintf("%q", alias)
		}
		desc := d.Role
		if details {
			desc = Details(d)
		}
		b.WriteString("- " + key.Render(fmt.Sprintf("%-25s", alias)) + " " + desc + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// JSON encodes the serialized tree with two-space indentation.
func JSON(v *tree.Value, depth int, details bool) ([]byte, error) {
	out, err := json.MarshalIndent(v.Serialize(depth, details), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tree: %w", err)
	}
	return out, nil
}
