package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type increment struct {
	delta int64
}

type arrayUnion struct {
	values []any
}

type arrayRemove struct {
	values []any
}

type arrayAppend struct {
	values []any
}

type serverTimestamp struct{}

// Increment 原子自增（delta 可为负数）
func Increment(delta int) any {
	return increment{delta: int64(delta)}
}

// ArrayUnion 将不存在的元素追加到数组字段
func ArrayUnion(values ...any) any {
	return arrayUnion{values: values}
}

// ArrayRemove 从数组字段删除所有相等的元素
func ArrayRemove(values ...any) any {
	return arrayRemove{values: values}
}

// ArrayAppend 无条件追加元素，相同元素也保留
func ArrayAppend(values ...any) any {
	return arrayAppend{values: values}
}

// ServerTimestamp 提交时由存储写入当前时间
func ServerTimestamp() any {
	return serverTimestamp{}
}

type condKind int

const (
	condArrayContains condKind = iota
	condEquals
)

// Precondition 提交前在事务内校验，不满足时整个批次以 ErrPreconditionFailed 失败
type Precondition struct {
	Field string
	kind  condKind
	Value any
	Want  bool
}

// ArrayContains 要求数组字段是否包含 value 与 want 一致
func ArrayContains(field string, value any, want bool) Precondition {
	return Precondition{Field: field, kind: condArrayContains, Value: value, Want: want}
}

// FieldEquals 要求字段当前值等于 value
func FieldEquals(field string, value any) Precondition {
	return Precondition{Field: field, kind: condEquals, Value: value, Want: true}
}

func (c Precondition) holds(current any) (bool, error) {
	if c.kind == condEquals {
		return sameValue(current, c.Value) == c.Want, nil
	}
	arr, err := decodeArray(current)
	if err != nil {
		return false, err
	}
	has, err := arr.contains(c.Value)
	if err != nil {
		return false, err
	}
	return has == c.Want, nil
}

// sameValue 比较数据库读出的值与调用方给出的值；驱动可能以 []byte 返回文本、以 int64 返回整数
func sameValue(current, want any) bool {
	if b, ok := current.([]byte); ok {
		current = string(b)
	}
	if current == nil || want == nil {
		return current == nil && want == nil
	}
	return fmt.Sprint(current) == fmt.Sprint(want)
}

// jsonArray 以原始 JSON 元素的形式操作数组字段，元素相等性按紧凑 JSON 比较
type jsonArray []json.RawMessage

func decodeArray(raw any) (jsonArray, error) {
	var b []byte
	switch v := raw.(type) {
	case nil:
		return jsonArray{}, nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return nil, fmt.Errorf("unsupported array column type %T", raw)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return jsonArray{}, nil
	}
	var arr jsonArray
	if err := json.Unmarshal(b, &arr); err != nil {
		return nil, fmt.Errorf("decode array column: %w", err)
	}
	return arr, nil
}

func encodeElement(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return compact(b), nil
}

func compact(b []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return b
	}
	return buf.Bytes()
}

func (a jsonArray) indexOf(elem json.RawMessage) int {
	for i, item := range a {
		if bytes.Equal(compact(item), elem) {
			return i
		}
	}
	return -1
}

func (a jsonArray) contains(v any) (bool, error) {
	elem, err := encodeElement(v)
	if err != nil {
		return false, err
	}
	return a.indexOf(elem) >= 0, nil
}

func (a jsonArray) union(values []any) (jsonArray, error) {
	out := append(jsonArray{}, a...)
	for _, v := range values {
		elem, err := encodeElement(v)
		if err != nil {
			return nil, err
		}
		if out.indexOf(elem) < 0 {
			out = append(out, elem)
		}
	}
	return out, nil
}

func (a jsonArray) appendAll(values []any) (jsonArray, error) {
	out := append(jsonArray{}, a...)
	for _, v := range values {
		elem, err := encodeElement(v)
		if err != nil {
			return nil, err
		}
		out = append(out, elem)
	}
	return out, nil
}

func (a jsonArray) remove(values []any) (jsonArray, error) {
	out := append(jsonArray{}, a...)
	for _, v := range values {
		elem, err := encodeElement(v)
		if err != nil {
			return nil, err
		}
		kept := out[:0:0]
		for _, item := range out {
			if !bytes.Equal(compact(item), elem) {
				kept = append(kept, item)
			}
		}
		out = kept
	}
	return out, nil
}

func (a jsonArray) encode() (string, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]json.RawMessage(a))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
