package thread

import "github.com/qs3c/medforum_server/internal/model"

// Node 楼层树节点
type Node struct {
	Comment    *model.Comment
	Replies    []*Node
	ReplyCount int
	Depth      int
}

// Assemble 把按创建时间排序的扁平评论列表组装成森林。
// 父评论为空或不在列表中的评论成为根；回复顺序与输入一致；重复 ID 只保留第一条。
// 父链成环的评论全部提升为根，保证每条评论恰好出现一次。
func Assemble(comments []*model.Comment) []*Node {
	nodes := make(map[string]*Node, len(comments))
	order := make([]*Node, 0, len(comments))
	for _, c := range comments {
		if c == nil {
			continue
		}
		if _, dup := nodes[c.ID]; dup {
			continue
		}
		n := &Node{Comment: c, Replies: []*Node{}}
		nodes[c.ID] = n
		order = append(order, n)
	}

	cyclic := cycleMembers(nodes)

	roots := make([]*Node, 0)
	for _, n := range order {
		parent, ok := nodes[parentID(n.Comment)]
		if !ok || cyclic[n.Comment.ID] {
			roots = append(roots, n)
			continue
		}
		parent.Replies = append(parent.Replies, n)
		parent.ReplyCount++
	}

	for _, r := range roots {
		setDepth(r, 0)
	}
	return roots
}

func setDepth(n *Node, depth int) {
	n.Depth = depth
	for _, child := range n.Replies {
		setDepth(child, depth+1)
	}
}

// cycleMembers 找出位于父链环上的节点
func cycleMembers(nodes map[string]*Node) map[string]bool {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(nodes))
	cyclic := make(map[string]bool)

	for id := range nodes {
		if state[id] != unvisited {
			continue
		}
		var path []string
		cur := id
		for {
			if _, ok := nodes[cur]; !ok || state[cur] == done {
				break
			}
			if state[cur] == inProgress {
				// 从 cur 第一次出现的位置起都在环上
				for i := len(path) - 1; i >= 0; i-- {
					cyclic[path[i]] = true
					if path[i] == cur {
						break
					}
				}
				break
			}
			state[cur] = inProgress
			path = append(path, cur)
			cur = parentID(nodes[cur].Comment)
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return cyclic
}
