package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringArray 用于 JSON 数组字段（点赞用户、版主列表）
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}
	return json.Unmarshal(rawBytes(value), s)
}

// Contains 判断集合中是否存在该值
func (s StringArray) Contains(v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

// EditEntry 一次编辑前的快照
type EditEntry struct {
	PreviousContent string    `json:"previous_content"`
	EditedAt        time.Time `json:"edited_at"`
	EditedBy        string    `json:"edited_by"`
}

// EditHistory 编辑历史，只追加不删除
type EditHistory []EditEntry

func (h EditHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (h *EditHistory) Scan(value interface{}) error {
	if value == nil {
		*h = EditHistory{}
		return nil
	}
	return json.Unmarshal(rawBytes(value), h)
}

func rawBytes(value interface{}) []byte {
	switch v := value.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return []byte(fmt.Sprint(v))
	}
}
