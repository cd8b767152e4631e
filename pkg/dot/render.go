package dot

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
)

// RenderSVG renders a DOT document to SVG using Graphviz.
func RenderSVG(ctx context.Context, dotSrc string) ([]byte, error) {
	return render(ctx, dotSrc, graphviz.SVG)
}

// RenderPNG renders a DOT document to PNG using Graphviz.
func RenderPNG(ctx context.Context, dotSrc string) ([]byte, error) {
	return render(ctx, dotSrc, graphviz.PNG)
}

// Format names accepted by [Render].
const (
	FormatDOT = "dot"
	FormatSVG = "svg"
	FormatPNG = "png"
)

// ValidateFormat checks that the requested output format is supported.
func ValidateFormat(format string) error {
	switch format {
	case FormatDOT, FormatSVG, FormatPNG:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (must be 'dot', 'svg', or 'png')", format)
	}
}

// Render renders a DOT document to the named format. FormatDOT returns the
// input unchanged, making Render total over the validated format set.
func Render(ctx context.Context, dotSrc, format string) ([]byte, error) {
	switch format {
	case FormatDOT:
		return []byte(dotSrc), nil
	case FormatSVG:
		return RenderSVG(ctx, dotSrc)
	case FormatPNG:
		return RenderPNG(ctx, dotSrc)
	default:
		return nil, fmt.Errorf("invalid format: %s", format)
	}
}

func render(ctx context.Context, dotSrc string, format graphviz.Format) ([]byte, error) {
	gv := graphviz.New()
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dotSrc))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(g, format, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
