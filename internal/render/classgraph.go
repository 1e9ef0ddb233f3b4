package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/zboralski/lattice"
	latrender "github.com/zboralski/lattice/render"

	"vtgamedata/internal/vtable"
)

// ThunkTarget names the function a thunk forwards to, when known.
type ThunkTarget func(fn *vtable.Function) (string, bool)

// nodeName returns the graph node for a slot. Placeholders are scoped to
// their class so unrelated pure virtuals do not merge into one node.
func nodeName(c *vtable.Class, fn *vtable.Function) string {
	if fn.IsPlaceholder() {
		return c.Name + "::" + vtable.PureVirtualName
	}
	return fn.Demangled
}

// Graph constructs a lattice.Graph with one node per class and per function.
// Every primary-segment slot becomes a class -> function edge. Thunks anywhere
// in the vtable get a thunk -> target edge when target resolves them.
func Graph(classes []*vtable.Class, target ThunkTarget) *lattice.Graph {
	g := &lattice.Graph{}
	seen := make(map[string]bool)
	node := func(name string) {
		if !seen[name] {
			seen[name] = true
			g.Nodes = append(g.Nodes, name)
		}
	}
	for _, c := range classes {
		node(c.Name)
		for si, seg := range c.VTables {
			for _, fn := range seg.Functions {
				name := nodeName(c, fn)
				if si == 0 {
					node(name)
					g.Edges = append(g.Edges, lattice.Edge{Caller: c.Name, Callee: name})
				}
				if !fn.IsThunk || target == nil {
					continue
				}
				if to, ok := target(fn); ok {
					node(name)
					node(to)
					g.Edges = append(g.Edges, lattice.Edge{Caller: name, Callee: to})
				}
			}
		}
	}
	g.Dedup()
	return g
}

// PlainDOT renders g with lattice's default DOT layout.
func PlainDOT(g *lattice.Graph, title string) string {
	return latrender.DOT(g, title)
}

// ClassgraphDOT renders the class graph with theme t. Class nodes are sized by
// slot count; missing slots and aliased functions are highlighted. maxLabel
// limits function label length (0 = unlimited).
func ClassgraphDOT(classes []*vtable.Class, target ThunkTarget, title string, t Theme, maxLabel int) string {
	g := Graph(classes, target)

	isClass := make(map[string]*vtable.Class, len(classes))
	slots := make(map[string]int, len(classes))
	maxSlots := 1
	for _, c := range classes {
		if _, dup := isClass[c.Name]; dup {
			continue
		}
		isClass[c.Name] = c
		if p := c.Primary(); p != nil {
			slots[c.Name] = len(p.Functions)
			maxSlots = max(maxSlots, len(p.Functions))
		}
	}
	fnByName := make(map[string]*vtable.Function)
	for _, c := range classes {
		for _, seg := range c.VTables {
			for _, fn := range seg.Functions {
				fnByName[nodeName(c, fn)] = fn
			}
		}
	}

	var b strings.Builder
	b.WriteString("digraph classgraph {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  splines=true;\n")
	b.WriteString("  nodesep=0.3;\n")
	b.WriteString("  ranksep=1.2;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=\"filled,rounded\", fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=9, fontcolor=%q, height=0.3, margin=\"0.12,0.05\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.5, arrowsize=0.5, arrowhead=vee, color=%q];\n", t.EdgeSlot)
	if title != "" {
		fmt.Fprintf(&b, "  labelloc=t;\n  labeljust=l;\n")
		fmt.Fprintf(&b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.TextColor, dotEscape(title))
	}
	b.WriteByte('\n')

	for _, name := range g.Nodes {
		id := dotID(name)
		if c, ok := isClass[name]; ok {
			n := slots[name]
			height := 0.4 + 0.3*math.Log2(float64(n)+1)/math.Log2(float64(maxSlots)+1)
			sub := fmt.Sprintf("%d slots", n)
			if c.HasMissingFunctions {
				sub += ", missing"
			}
			fmt.Fprintf(&b, "  %s [label=<<b>%s</b><br/><font point-size=\"7\" color=\"%s\">%s</font>>, fillcolor=%q, height=%.2f];\n",
				id, dotEscape(name), t.SubtleText, sub, t.ClassFill, height)
			continue
		}
		label := dotEscape(truncLabel(name, maxLabel))
		fn := fnByName[name]
		switch {
		case fn != nil && fn.IsPlaceholder():
			fmt.Fprintf(&b, "  %s [label=<%s>, fillcolor=%q];\n", id, dotEscape(vtable.PureVirtualName), t.PureFill)
		case fn != nil && fn.IsMulti:
			fmt.Fprintf(&b, "  %s [label=<%s <font color=\"%s\">[Multi]</font>>];\n", id, label, t.MultiText)
		default:
			fmt.Fprintf(&b, "  %s [label=<%s>];\n", id, label)
		}
	}
	b.WriteByte('\n')

	for _, e := range g.Edges {
		if fn := fnByName[e.Caller]; fn != nil && fn.IsThunk {
			fmt.Fprintf(&b, "  %s -> %s [color=%q, style=dashed];\n", dotID(e.Caller), dotID(e.Callee), t.EdgeThunk)
			continue
		}
		fmt.Fprintf(&b, "  %s -> %s;\n", dotID(e.Caller), dotID(e.Callee))
	}

	b.WriteString("}\n")
	return b.String()
}
