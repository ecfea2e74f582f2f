// Package model 定义对账引擎中使用的核心数据结构。
package model

import (
	"bytes"
	"encoding/json"

	"deal-reconciler/internal/util/fastparse"
)

// MinorUnits 次货币单位（分）数值
// 后端字段可能编码为 JSON number 或数字字符串，两种形式都接受；
// null、缺席或无法解析的值一律视为未设置（不是 0），由 Set 区分。
type MinorUnits struct {
	// Value 分值
	Value float64
	// Set 字段是否携带了可用数值
	Set bool
}

// UnmarshalJSON 解码次单位数值
// 容错解码：无法解析的值保持未设置，不让单个脏字段毒化整条记录
func (m *MinorUnits) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil
		}
		v, err := fastparse.ParseFloat(s)
		if err != nil {
			return nil
		}
		m.Value = v
		m.Set = true
		return nil
	}

	v, err := fastparse.ParseFloat(string(trimmed))
	if err != nil {
		return nil
	}
	m.Value = v
	m.Set = true
	return nil
}

// Major 转换为主货币单位（除以 100）
// 返回: 主单位金额；未设置时返回 0
func (m MinorUnits) Major() float64 {
	return m.Value / 100
}

// MajorPtr 转换为主货币单位指针
// 返回: 主单位金额指针；未设置时返回 nil（区别于 0）
func (m MinorUnits) MajorPtr() *float64 {
	if !m.Set {
		return nil
	}
	v := m.Value / 100
	return &v
}
