// Package docstore 定义评论引擎依赖的文档存储抽象：按 ID 读取、带过滤/排序/条数限制的查询、
// 实时订阅、原子批量写入，以及字段级的原子自增与数组增删。
package docstore

import (
	"context"
	"errors"
	"regexp"
)

var (
	ErrNotFound           = errors.New("docstore: document not found")
	ErrPreconditionFailed = errors.New("docstore: precondition failed")
	ErrInvalidField       = errors.New("docstore: invalid field name")
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validIdent(name string) bool {
	return identPattern.MatchString(name)
}

// Document 可写入存储的文档，ID 在插入时由存储分配
type Document interface {
	DocID() string
}

type Op string

const (
	OpEqual        Op = "=="
	OpNotEqual     Op = "!="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpIn           Op = "in"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query 集合查询，Limit <= 0 表示不限制
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Ref 指向某个集合中的一篇文档
type Ref struct {
	Collection string
	ID         string
}

func Doc(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

// Fields 待更新字段；值可以是字面量或 Increment/ArrayUnion/ArrayRemove/ServerTimestamp
type Fields map[string]any

// Batch 原子批量写入：Commit 要么全部生效，要么全部不生效
type Batch interface {
	Insert(collection string, doc Document)
	Update(ref Ref, fields Fields, conds ...Precondition)
	Commit(ctx context.Context) error
}

// Subscription 可取消的订阅
type Subscription interface {
	Unsubscribe()
	// Done 在订阅的投递协程退出后关闭
	Done() <-chan struct{}
}

type Store interface {
	Get(ctx context.Context, collection, id string, dest any) error
	Query(ctx context.Context, q Query, dest any) error
	Insert(ctx context.Context, collection string, doc Document) (string, error)
	Batch() Batch
	// Watch 在集合每次提交写入后调用 onChange，不携带数据
	Watch(ctx context.Context, collection string, onChange func()) (Subscription, error)
}
