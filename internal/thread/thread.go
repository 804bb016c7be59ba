// Package thread rebuilds reply trees from flat comment rows.
package thread

import "github.com/npezzotti/topichat/internal/types"

// BuildTree nests comments under the comment they reply to. Children keep
// the relative order of the input, so callers sort by creation time first.
// A comment whose parent is not in the input becomes a root.
func BuildTree(comments []types.Comment) []*types.CommentTree {
	nodes := make([]*types.CommentTree, len(comments))
	index := make(map[int]*types.CommentTree, len(comments))
	for i, c := range comments {
		n := &types.CommentTree{Comment: c, Children: []*types.CommentTree{}}
		nodes[i] = n
		if _, dup := index[c.Id]; !dup {
			index[c.Id] = n
		}
	}

	attachedTo := make(map[*types.CommentTree]*types.CommentTree, len(comments))
	roots := make([]*types.CommentTree, 0)
	for _, n := range nodes {
		if n.Comment.ReplyingToId != nil {
			parent, ok := index[*n.Comment.ReplyingToId]
			if ok && !reaches(attachedTo, parent, n) {
				parent.Children = append(parent.Children, n)
				attachedTo[n] = parent
				continue
			}
		}
		roots = append(roots, n)
	}

	return roots
}

// reaches reports whether walking up from start hits target, which would
// make attaching target under start a cycle.
func reaches(attachedTo map[*types.CommentTree]*types.CommentTree, start, target *types.CommentTree) bool {
	for cur := start; cur != nil; cur = attachedTo[cur] {
		if cur == target {
			return true
		}
	}
	return false
}

// Walk visits every node depth first, parents before children.
func Walk(forest []*types.CommentTree, fn func(node *types.CommentTree, depth int)) {
	var visit func(nodes []*types.CommentTree, depth int)
	visit = func(nodes []*types.CommentTree, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(forest, 0)
}

// Mask returns the forest with deleted comments blanked. The shape is kept.
func Mask(forest []*types.CommentTree) []*types.CommentTree {
	out := make([]*types.CommentTree, len(forest))
	for i, n := range forest {
		out[i] = &types.CommentTree{
			Comment:  n.Comment.Masked(),
			Children: Mask(n.Children),
		}
	}
	return out
}
