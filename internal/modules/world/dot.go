// README: Graphviz DOT export of the world graph.
package world

import (
	"bufio"
	"fmt"
	"io"
)

// WriteDOT writes the graph as an undirected DOT document. Center vertices
// are drawn as boxes.
func (g *Graph) WriteDOT(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "graph city {")
	for _, v := range g.vertices {
		shape := "ellipse"
		if v.Type == DistrictCenter {
			shape = "box"
		}
		fmt.Fprintf(bw, "  %d [shape=%s, district=%d];\n", v.ID, shape, v.District)
	}
	for a, ns := range g.adj {
		for _, b := range ns {
			if Location(a) < b {
				fmt.Fprintf(bw, "  %d -- %d;\n", a, b)
			}
		}
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
