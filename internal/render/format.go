package render

import (
	"fmt"
	"io"

	"github.com/danielpatrickdp/fairaudit/internal/tree"
)

// Format names an output form.
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
	FormatHelp    Format = "help"
)

// Write renders v in the given format. Depth means numeric levels for text,
// JSON and console output and is ignored by help.
func Write(w io.Writer, v *tree.Value, f Format, depth int, details bool) error {
	switch f {
	case FormatText, "":
		_, err := fmt.Fprintln(w, v.Text(tree.TextOptions{Depth: depth, Details: details}))
		return err
	case FormatJSON:
		out, err := JSON(v, depth, details)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	case FormatConsole:
		opts := DefaultConsoleOptions()
		opts.Depth = depth
		return Console(w, v, opts)
	case FormatHelp:
		return Help(w, v, details)
	}
	return fmt.Errorf("unknown format %q", f)
}
