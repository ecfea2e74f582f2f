// Package model 定义对账引擎中使用的核心数据结构。
package model

import (
	"time"
)

// PatchKind 事件种类标签
// 归一化器把任意形状的事件载荷收敛到这个封闭标签集；
// 未识别的事件类型映射到 KindNoop（开放扩展点），合并时为空操作。
type PatchKind string

const (
	// KindCreation 创建事件：新建 Deal 并前插
	KindCreation PatchKind = "creation"
	// KindValuation 估值事件：更新价格区间与置信度
	KindValuation PatchKind = "valuation"
	// KindPayoutRequested 打款发起事件：更新状态
	KindPayoutRequested PatchKind = "payout_requested"
	// KindPayoutCompleted 打款完成事件：更新状态与打款渠道信息
	KindPayoutCompleted PatchKind = "payout_completed"
	// KindReceiptGenerated 回执生成事件：补齐回执链接
	KindReceiptGenerated PatchKind = "receipt_generated"
	// KindNoop 未识别的事件类型：空操作合并
	KindNoop PatchKind = "noop"
)

// Fields 字段补丁集合
// nil 成员表示本次更新不涉及该字段；合并为字段级叠加覆盖，
// 绝不因字段缺席而清空既有值。
type Fields struct {
	// Email 联系邮箱
	Email *string
	// PriceEUR 中位价（主货币单位）
	PriceEUR *float64
	// PriceLowEUR 估值区间下界（主货币单位）
	PriceLowEUR *float64
	// PriceHighEUR 估值区间上界（主货币单位）
	PriceHighEUR *float64
	// Status 状态
	Status *string
	// CreatedAt 创建时间
	CreatedAt *time.Time
	// Title 标题
	Title *string
	// Description 描述
	Description *string
	// TermsheetURL 条款书链接
	TermsheetURL *string
	// ReceiptURL 回执链接
	ReceiptURL *string
	// LastPayoutMethod 打款渠道
	LastPayoutMethod *string
	// LastPayoutReference 打款外部参考号
	LastPayoutReference *string
	// ValuationConfidence 估值置信度
	ValuationConfidence *float64
}

// Apply 将补丁按字段叠加合并到 deal
// 仅覆盖非 nil 成员对应的字段，未参与字段保持原值
// 参数 d: 合并目标，就地修改
func (f *Fields) Apply(d *Deal) {
	if f == nil || d == nil {
		return
	}
	if f.Email != nil {
		d.Email = *f.Email
	}
	if f.PriceEUR != nil {
		d.PriceEUR = *f.PriceEUR
	}
	if f.PriceLowEUR != nil {
		v := *f.PriceLowEUR
		d.PriceLowEUR = &v
	}
	if f.PriceHighEUR != nil {
		v := *f.PriceHighEUR
		d.PriceHighEUR = &v
	}
	if f.Status != nil {
		d.Status = *f.Status
	}
	if f.CreatedAt != nil {
		d.CreatedAt = *f.CreatedAt
	}
	if f.Title != nil {
		d.Title = *f.Title
	}
	if f.Description != nil {
		d.Description = *f.Description
	}
	if f.TermsheetURL != nil {
		d.TermsheetURL = *f.TermsheetURL
	}
	if f.ReceiptURL != nil {
		d.ReceiptURL = *f.ReceiptURL
	}
	if f.LastPayoutMethod != nil {
		d.LastPayoutMethod = *f.LastPayoutMethod
	}
	if f.LastPayoutReference != nil {
		d.LastPayoutReference = *f.LastPayoutReference
	}
	if f.ValuationConfidence != nil {
		v := *f.ValuationConfidence
		d.ValuationConfidence = &v
	}
}

// IsEmpty 判断补丁是否不含任何字段变更
func (f *Fields) IsEmpty() bool {
	if f == nil {
		return true
	}
	return f.Email == nil && f.PriceEUR == nil && f.PriceLowEUR == nil &&
		f.PriceHighEUR == nil && f.Status == nil && f.CreatedAt == nil &&
		f.Title == nil && f.Description == nil && f.TermsheetURL == nil &&
		f.ReceiptURL == nil && f.LastPayoutMethod == nil &&
		f.LastPayoutReference == nil && f.ValuationConfidence == nil
}

// Patch 一条归一化后的更新
// 由归一化器从事件信封生成，描述目标 Deal 和字段变更集合
type Patch struct {
	// TargetID 目标 Deal 标识
	TargetID string
	// Kind 事件种类
	Kind PatchKind
	// Fields 字段变更集合
	Fields Fields
}

// IsCreation 判断是否为创建补丁
func (p *Patch) IsCreation() bool {
	return p.Kind == KindCreation
}

// String 辅助函数：构造字符串指针
func String(s string) *string {
	return &s
}

// Float64 辅助函数：构造浮点数指针
func Float64(v float64) *float64 {
	return &v
}

// Time 辅助函数：构造时间指针
func Time(t time.Time) *time.Time {
	return &t
}
