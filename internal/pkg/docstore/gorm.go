package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 以关系库表模拟文档集合：集合即表，批量写入即事务
type GormStore struct {
	db       *gorm.DB
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

type GormOption func(*GormStore)

// WithClock 替换存储时钟（测试用）
func WithClock(now func() time.Time) GormOption {
	return func(s *GormStore) {
		s.now = now
	}
}

func NewGormStore(db *gorm.DB, notifier Notifier, logger *zap.Logger, opts ...GormOption) *GormStore {
	if notifier == nil {
		notifier = NewLocalNotifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &GormStore{
		db:       db,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GormStore) Get(ctx context.Context, collection, id string, dest any) error {
	if !validIdent(collection) {
		return fmt.Errorf("%w: %q", ErrInvalidField, collection)
	}
	err := s.db.WithContext(ctx).Table(collection).Where("id = ?", id).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) Query(ctx context.Context, q Query, dest any) error {
	if !validIdent(q.Collection) {
		return fmt.Errorf("%w: %q", ErrInvalidField, q.Collection)
	}
	tx := s.db.WithContext(ctx).Table(q.Collection)

	for _, f := range q.Filters {
		var err error
		if tx, err = applyFilter(tx, f); err != nil {
			return err
		}
	}

	if q.OrderBy != "" {
		if !validIdent(q.OrderBy) {
			return fmt.Errorf("%w: %q", ErrInvalidField, q.OrderBy)
		}
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: q.OrderBy}, Desc: q.Descending})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	return tx.Find(dest).Error
}

func applyFilter(tx *gorm.DB, f Filter) (*gorm.DB, error) {
	if !validIdent(f.Field) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, f.Field)
	}

	if f.Value == nil {
		switch f.Op {
		case OpEqual:
			return tx.Where(f.Field + " IS NULL"), nil
		case OpNotEqual:
			return tx.Where(f.Field + " IS NOT NULL"), nil
		default:
			return nil, fmt.Errorf("docstore: operator %s does not accept nil", f.Op)
		}
	}

	switch f.Op {
	case OpEqual:
		return tx.Where(f.Field+" = ?", f.Value), nil
	case OpNotEqual:
		return tx.Where(f.Field+" <> ?", f.Value), nil
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return tx.Where(fmt.Sprintf("%s %s ?", f.Field, f.Op), f.Value), nil
	case OpIn:
		return tx.Where(f.Field+" IN ?", f.Value), nil
	default:
		return nil, fmt.Errorf("docstore: unsupported operator %q", f.Op)
	}
}

func (s *GormStore) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	b := s.Batch()
	b.Insert(collection, doc)
	if err := b.Commit(ctx); err != nil {
		return "", err
	}
	return doc.DocID(), nil
}

func (s *GormStore) Batch() Batch {
	return &gormBatch{store: s}
}

func (s *GormStore) Watch(ctx context.Context, collection string, onChange func()) (Subscription, error) {
	return s.notifier.Listen(ctx, collection, onChange)
}

type batchOp struct {
	insert     bool
	collection string
	doc        Document
	id         string
	fields     Fields
	conds      []Precondition
}

type gormBatch struct {
	store *GormStore
	ops   []batchOp
}

func (b *gormBatch) Insert(collection string, doc Document) {
	b.ops = append(b.ops, batchOp{insert: true, collection: collection, doc: doc})
}

func (b *gormBatch) Update(ref Ref, fields Fields, conds ...Precondition) {
	b.ops = append(b.ops, batchOp{collection: ref.Collection, id: ref.ID, fields: fields, conds: conds})
}

func (b *gormBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	s := b.store

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range b.ops {
			if !validIdent(op.collection) {
				return fmt.Errorf("%w: %q", ErrInvalidField, op.collection)
			}
			if op.insert {
				if err := tx.Table(op.collection).Create(op.doc).Error; err != nil {
					return fmt.Errorf("insert into %s: %w", op.collection, err)
				}
				continue
			}
			if err := s.applyUpdate(tx, op); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	notified := make(map[string]struct{}, len(b.ops))
	for _, op := range b.ops {
		if _, ok := notified[op.collection]; ok {
			continue
		}
		notified[op.collection] = struct{}{}
		if err := s.notifier.Publish(ctx, op.collection); err != nil {
			s.logger.Warn("publish change failed",
				zap.String("collection", op.collection), zap.Error(err))
		}
	}
	return nil
}

func (s *GormStore) applyUpdate(tx *gorm.DB, op batchOp) error {
	// 读取需要在事务内参与计算的列，同时确认文档存在
	columns := []string{"id"}
	for field, v := range op.fields {
		if !validIdent(field) {
			return fmt.Errorf("%w: %q", ErrInvalidField, field)
		}
		switch v.(type) {
		case arrayUnion, arrayRemove, arrayAppend:
			columns = append(columns, field)
		}
	}
	for _, c := range op.conds {
		if !validIdent(c.Field) {
			return fmt.Errorf("%w: %q", ErrInvalidField, c.Field)
		}
		columns = append(columns, c.Field)
	}

	current := map[string]any{}
	err := tx.Table(op.collection).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select(dedupe(columns)).
		Where("id = ?", op.id).
		Take(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s/%s: %w", op.collection, op.id, ErrNotFound)
	}
	if err != nil {
		return err
	}

	for _, c := range op.conds {
		ok, err := c.holds(current[c.Field])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s/%s %s: %w", op.collection, op.id, c.Field, ErrPreconditionFailed)
		}
	}

	updates := make(map[string]any, len(op.fields))
	for field, v := range op.fields {
		switch t := v.(type) {
		case increment:
			updates[field] = gorm.Expr(field+" + ?", t.delta)
		case serverTimestamp:
			updates[field] = s.now()
		case arrayUnion, arrayRemove, arrayAppend:
			arr, err := decodeArray(current[field])
			if err != nil {
				return err
			}
			switch tr := t.(type) {
			case arrayUnion:
				arr, err = arr.union(tr.values)
			case arrayRemove:
				arr, err = arr.remove(tr.values)
			case arrayAppend:
				arr, err = arr.appendAll(tr.values)
			}
			if err != nil {
				return err
			}
			encoded, err := arr.encode()
			if err != nil {
				return err
			}
			updates[field] = encoded
		default:
			updates[field] = v
		}
	}
	if len(updates) == 0 {
		return nil
	}

	return tx.Table(op.collection).Where("id = ?", op.id).Updates(updates).Error
}

func dedupe(cols []string) []string {
	seen := make(map[string]struct{}, len(cols))
	out := cols[:0]
	for _, c := range cols {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// String 便于日志输出
func (q Query) String() string {
	parts := make([]string, 0, len(q.Filters))
	for _, f := range q.Filters {
		parts = append(parts, fmt.Sprintf("%s %s %v", f.Field, f.Op, f.Value))
	}
	return fmt.Sprintf("%s[%s] order=%s limit=%d", q.Collection, strings.Join(parts, " AND "), q.OrderBy, q.Limit)
}
