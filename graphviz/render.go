package graphviz

import (
	"bytes"

	"github.com/emicklei/dot"
	"github.com/goccy/go-graphviz"
	"github.com/pkg/errors"
)

// RenderPNG rasterizes a DOT graph to PNG bytes via goccy/go-graphviz.
// cmd/gitgraph only ever wrote its DOT text to a file for an external `dot`
// binary to render; graphdump renders the PNG in-process instead.
func RenderPNG(g *dot.Graph) ([]byte, error) {
	gv := graphviz.New()
	defer gv.Close()

	parsed, err := graphviz.ParseBytes([]byte(g.String()))
	if err != nil {
		return nil, errors.Wrap(err, "graphviz: parse dot source")
	}
	defer parsed.Close()

	var buf bytes.Buffer
	if err := gv.Render(parsed, graphviz.PNG, &buf); err != nil {
		return nil, errors.Wrap(err, "graphviz: render png")
	}
	return buf.Bytes(), nil
}
