// Package thread 评论楼层的纯逻辑：层级计算、楼层组装与权限判定。
package thread

import (
	"context"
	"errors"
	"fmt"

	"github.com/qs3c/medforum_server/internal/model"
	"github.com/qs3c/medforum_server/internal/pkg/docstore"
)

// ParentLookup 查询评论的父评论 ID。评论不存在时 ok 为 false；根评论返回 ("", true, nil)。
type ParentLookup interface {
	ParentOf(ctx context.Context, id string) (parentID string, ok bool, err error)
}

type LookupFunc func(ctx context.Context, id string) (string, bool, error)

func (f LookupFunc) ParentOf(ctx context.Context, id string) (string, bool, error) {
	return f(ctx, id)
}

// Depth 沿父链向上计数，根评论为 0。遇到空父节点、缺失的祖先或环时静默停止，不做上限检查。
func Depth(ctx context.Context, id string, lookup ParentLookup) (int, error) {
	depth := 0
	visited := map[string]struct{}{id: {}}
	current := id

	for {
		parent, ok, err := lookup.ParentOf(ctx, current)
		if err != nil {
			return 0, fmt.Errorf("depth of %s: %w", id, err)
		}
		if !ok || parent == "" {
			return depth, nil
		}
		if _, seen := visited[parent]; seen {
			return depth, nil
		}
		visited[parent] = struct{}{}
		depth++
		current = parent
	}
}

// StoreLookup 直接读取 comments 集合，不过滤已删除的评论
func StoreLookup(store docstore.Store) ParentLookup {
	return LookupFunc(func(ctx context.Context, id string) (string, bool, error) {
		var c model.Comment
		err := store.Get(ctx, "comments", id, &c)
		if errors.Is(err, docstore.ErrNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return parentID(&c), true, nil
	})
}

// ArenaLookup 优先使用内存中的评论快照，快照外的 ID 交给 fallback 并缓存结果
type ArenaLookup struct {
	parents  map[string]string
	fallback ParentLookup
	missing  map[string]struct{}
}

func NewArenaLookup(comments []*model.Comment, fallback ParentLookup) *ArenaLookup {
	a := &ArenaLookup{
		parents:  make(map[string]string, len(comments)),
		fallback: fallback,
		missing:  make(map[string]struct{}),
	}
	for _, c := range comments {
		if _, dup := a.parents[c.ID]; !dup {
			a.parents[c.ID] = parentID(c)
		}
	}
	return a
}

func (a *ArenaLookup) ParentOf(ctx context.Context, id string) (string, bool, error) {
	if p, ok := a.parents[id]; ok {
		return p, true, nil
	}
	if _, ok := a.missing[id]; ok || a.fallback == nil {
		return "", false, nil
	}

	p, ok, err := a.fallback.ParentOf(ctx, id)
	if err != nil {
		return "", false, err
	}
	if !ok {
		a.missing[id] = struct{}{}
		return "", false, nil
	}
	a.parents[id] = p
	return p, true, nil
}

// FilterByDepth 丢弃层级 >= maxDepth 的评论，保持原有顺序。maxDepth <= 0 时不过滤。
func FilterByDepth(ctx context.Context, comments []*model.Comment, maxDepth int, lookup ParentLookup) ([]*model.Comment, error) {
	if maxDepth <= 0 {
		return comments, nil
	}

	out := make([]*model.Comment, 0, len(comments))
	for _, c := range comments {
		d, err := Depth(ctx, c.ID, lookup)
		if err != nil {
			return nil, err
		}
		if d < maxDepth {
			out = append(out, c)
		}
	}
	return out, nil
}

func parentID(c *model.Comment) string {
	if c.ParentCommentID == nil {
		return ""
	}
	return *c.ParentCommentID
}
