package obl

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

//TreeSplit is the split chosen at one level of an oblivious tree.
type TreeSplit struct {
	Depth    int
	Split    Split
	Ensemble string
	SplitIdx int
	Score    float64
}

//GraphDescription returns the description of a level for tree rendering as a graph
func (split TreeSplit) GraphDescription() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("depth: ", split.Depth))
	sb.WriteString(fmt.Sprintln("score: ", split.Score))
	sb.WriteString(split.Split.String())
	return sb.String()
}

//ObliviousTree is a symmetric tree: all nodes of one level share the split. The leaf of a document is
//the bit mask of its split values, bit d for the split at depth d.
type ObliviousTree struct {
	Splits        []TreeSplit
	LeafValues    [][]float64 // [leaf][dim]
	LeafWeights   []float64
	LeafDocCounts []int
}

//Depth returns the number of levels.
func (tree *ObliviousTree) Depth() int {
	return len(tree.Splits)
}

//LeafCount returns the number of leaves.
func (tree *ObliviousTree) LeafCount() int {
	return 1 << uint(tree.Depth())
}

//GetLeafDescription returns the description of a leaf for tree rendering as a graph
func (tree *ObliviousTree) GetLeafDescription(leaf int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("leaf: ", leaf))
	sb.WriteString("[")
	if leaf < len(tree.LeafValues) {
		for _, val := range tree.LeafValues[leaf] {
			sb.WriteString(fmt.Sprintf("  %6.4f,\n", val))
		}
	}
	sb.WriteString("]\n")
	if leaf < len(tree.LeafDocCounts) {
		sb.WriteString(fmt.Sprintln("#", tree.LeafDocCounts[leaf]))
	}
	return sb.String()
}

//Save writes the tree as indented json.
func (tree *ObliviousTree) Save(filename string) error {
	modelByteRepr, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	if err := os.WriteFile(filename, modelByteRepr, 0o644); err != nil {
		return fmt.Errorf("save tree: %w", err)
	}
	return nil
}

//LoadTree reads a tree written by Save.
func LoadTree(filename string) (*ObliviousTree, error) {
	source, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	defer func() { _ = source.Close() }()

	tree := &ObliviousTree{}
	if err := json.NewDecoder(source).Decode(tree); err != nil {
		return nil, fmt.Errorf("decode tree %s: %w", filename, err)
	}
	return tree, nil
}

//recurrentDraw draws the subtree of the documents whose first depth split values give leafPrefix.
func recurrentDraw(g *cgraph.Graph, tree *ObliviousTree, depth, leafPrefix int, parentNode *cgraph.Node, label string) error {
	currentNode, err := g.CreateNode(fmt.Sprintf("d%d_%d", depth, leafPrefix))
	if err != nil {
		return err
	}
	if parentNode != nil {
		edge, err := g.CreateEdge(fmt.Sprintf("e%d_%d", depth, leafPrefix), parentNode, currentNode)
		if err != nil {
			return err
		}
		edge.SetLabel(label)
	}

	if depth == tree.Depth() {
		currentNode.SetLabel(tree.GetLeafDescription(leafPrefix))
		currentNode.SetShape(cgraph.BoxShape)
		return nil
	}
	currentNode.SetLabel(tree.Splits[depth].GraphDescription())
	if err := recurrentDraw(g, tree, depth+1, leafPrefix, currentNode, "no"); err != nil {
		return err
	}
	return recurrentDraw(g, tree, depth+1, leafPrefix|1<<uint(depth), currentNode, "yes")
}

//DrawGraph builds the graph of the tree. The caller closes both returned objects.
func (tree *ObliviousTree) DrawGraph() (*graphviz.Graphviz, *cgraph.Graph, error) {
	graphViz := graphviz.New()
	graph, err := graphViz.Graph()
	if err != nil {
		return nil, nil, fmt.Errorf("create graph: %w", err)
	}
	if err := recurrentDraw(graph, tree, 0, 0, nil, ""); err != nil {
		_ = graph.Close()
		_ = graphViz.Close()
		return nil, nil, fmt.Errorf("draw tree: %w", err)
	}
	return graphViz, graph, nil
}

//GraphFormat converts a file extension into a graphviz format.
func GraphFormat(figureType string) (graphviz.Format, error) {
	graphvizType, ok := map[string]graphviz.Format{
		"png": graphviz.PNG,
		"svg": graphviz.SVG,
		"jpg": graphviz.JPG,
		"dot": graphviz.XDOT,
	}[figureType]
	if !ok {
		return "", fmt.Errorf("unsupported figure type %q", figureType)
	}
	return graphvizType, nil
}

//Render draws the tree into a file of the given figure type.
func (tree *ObliviousTree) Render(filename, figureType string) error {
	graphvizType, err := GraphFormat(figureType)
	if err != nil {
		return err
	}
	graphViz, graph, err := tree.DrawGraph()
	if err != nil {
		return err
	}
	defer func() {
		_ = graph.Close()
		_ = graphViz.Close()
	}()
	if err := graphViz.RenderFilename(graph, graphvizType, filename); err != nil {
		return fmt.Errorf("render tree: %w", err)
	}
	return nil
}
