package semunit

import "norma-pipeline/internal/parsers"

// Node is one classified index block placed in the block tree.
type Node struct {
	Block          parsers.BlockDescriptor
	Classification Classification
	Order          int
	ParentID       string
	ChildrenIDs    []string
}

// Tree is a classified, parent-linked view of one norm's index blocks,
// alongside the original block order.
type Tree struct {
	Nodes map[string]*Node
	Order []string
}

// BuildTree folds the ordered block list into a tree by level: a block's
// parent is the nearest preceding block with a smaller level (spec §4.5
// "Tree assembly").
func BuildTree(blocks []parsers.BlockDescriptor) Tree {
	nodes := make(map[string]*Node, len(blocks))
	order := make([]string, 0, len(blocks))

	var stack []*Node
	for i, b := range blocks {
		n := &Node{Block: b, Classification: Classify(b.ID, b.Tipo, b.Titulo), Order: i}
		nodes[b.ID] = n
		order = append(order, b.ID)

		for len(stack) > 0 && stack[len(stack)-1].Classification.Level >= n.Classification.Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			n.ParentID = parent.Block.ID
			parent.ChildrenIDs = append(parent.ChildrenIDs, n.Block.ID)
		}
		stack = append(stack, n)
	}

	return Tree{Nodes: nodes, Order: order}
}

// Subtree returns rootID and all of its descendants, in the tree's original
// index order.
func (t Tree) Subtree(rootID string) []string {
	inTree := map[string]bool{}
	var mark func(id string)
	mark = func(id string) {
		inTree[id] = true
		for _, c := range t.Nodes[id].ChildrenIDs {
			mark(c)
		}
	}
	mark(rootID)

	result := make([]string, 0, len(inTree))
	for _, id := range t.Order {
		if inTree[id] {
			result = append(result, id)
		}
	}
	return result
}

// RootCandidates returns the ids of non-HEADER nodes whose ancestors (if
// any) are all HEADER nodes (spec §4.5 "Root selection").
func (t Tree) RootCandidates() []string {
	var roots []string
	for _, id := range t.Order {
		n := t.Nodes[id]
		if n.Classification.Kind == KindHeader {
			continue
		}
		if t.ancestorsAllHeader(n) {
			roots = append(roots, id)
		}
	}
	return roots
}

func (t Tree) ancestorsAllHeader(n *Node) bool {
	cur := n
	for cur.ParentID != "" {
		parent, ok := t.Nodes[cur.ParentID]
		if !ok || parent.Classification.Kind != KindHeader {
			return false
		}
		cur = parent
	}
	return true
}
