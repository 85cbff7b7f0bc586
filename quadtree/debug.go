package quadtree

func (t *Tree[T]) DebugInfo() DebugInfo {
	var info DebugInfo
	base := t.nodes[Root].level

	for i := range t.nodes {
		n := &t.nodes[i]
		info.NodeCount++
		info.EntryCount += len(n.entries)

		if n.firstChild == NoNode {
			info.LeafCount++
		}

		depth := n.level - base
		if depth > info.Depth {
			info.Depth = depth
		}

		for len(info.LevelOccupancy) <= depth {
			info.LevelOccupancy = append(info.LevelOccupancy, 0)
		}
		info.LevelOccupancy[depth] += len(n.entries)
	}

	return info
}
