package domain

// Category labels articles; categories form a tree via ParentID.
type Category struct {
	ID          int64
	Name        string
	Slug        string
	Description string
	ParentID    *int64
}

// CategoryNode is a category with its resolved children.
type CategoryNode struct {
	Category
	Children []*CategoryNode
}

// BuildCategoryTree assembles the flat category rows into a forest. All
// nodes live in one backing slice; lookups go through an id index, so no
// recursion or pointer chasing over the database relationships is needed.
// A node whose parent is missing, is itself, or sits on a cycle is
// promoted to a root instead of being dropped.
func BuildCategoryTree(categories []Category) []*CategoryNode {
	arena := make([]CategoryNode, len(categories))
	index := make(map[int64]int, len(categories))
	for i, cat := range categories {
		arena[i] = CategoryNode{Category: cat}
		index[cat.ID] = i
	}

	var roots []*CategoryNode
	for i := range arena {
		node := &arena[i]
		parent := node.ParentID
		if parent == nil || *parent == node.ID {
			roots = append(roots, node)
			continue
		}
		pi, ok := index[*parent]
		if !ok || onCycle(arena, index, node.ID) {
			roots = append(roots, node)
			continue
		}
		arena[pi].Children = append(arena[pi].Children, node)
	}
	return roots
}

// onCycle walks the parent chain from start and reports whether it loops
// back. The walk is bounded by the arena size.
func onCycle(arena []CategoryNode, index map[int64]int, start int64) bool {
	current := start
	for range arena {
		i, ok := index[current]
		if !ok {
			return false
		}
		parent := arena[i].ParentID
		if parent == nil {
			return false
		}
		if *parent == start {
			return true
		}
		current = *parent
	}
	return true
}
