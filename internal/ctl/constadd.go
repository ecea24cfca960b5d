package ctl

import (
	"fmt"

	"github.com/large-farva/photometry-kit/internal/fitsimg"
)

// ConstAddOptions controls the const-add command.
type ConstAddOptions struct {
	Input      string
	Offset     float64
	OutputName string
	JSON       bool
}

// ConstAdd adds opts.Offset to every pixel of the primary image in
// opts.Input and writes the result next to it.
func ConstAdd(opts ConstAddOptions) error {
	out, err := fitsimg.ConstAdd(opts.Input, opts.Offset, opts.OutputName)
	if err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(map[string]any{
			"input":  opts.Input,
			"output": out,
			"offset": opts.Offset,
		})
	}

	fmt.Fprintf(stdout, "  %s %s %s\n",
		colorize(green, "wrote"),
		out,
		colorize(dim, fmt.Sprintf("(%s %+g)", opts.Input, opts.Offset)),
	)
	return nil
}
