// Package model 定义对账引擎中使用的核心数据结构。
// 包含 Deal 实体、字段补丁、事件种类标签等核心类型。
package model

import (
	"time"
)

// 状态常量
// 仅作为展示辅助；核心逻辑将 Status 视为不透明文本（开放字符串枚举）
const (
	// StatusOfferCreated 报价已创建
	StatusOfferCreated = "OFFER_CREATED"
	// StatusOfferReady 报价已就绪（估值完成）
	StatusOfferReady = "OFFER_READY"
	// StatusPayoutRequested 打款已发起
	StatusPayoutRequested = "PAYOUT_REQUESTED"
	// StatusPaidOut 打款已完成（终态）
	StatusPaidOut = "PAID_OUT"
	// StatusPayoutFailed 打款失败
	StatusPayoutFailed = "PAYOUT_FAILED"
	// StatusUnknown 状态未知（快照记录缺少 status 字段时的默认值）
	StatusUnknown = "UNKNOWN"
)

// DefaultEmail 联系邮箱未知时的占位值
const DefaultEmail = "N/A"

// Deal 统一的交易记录实体
// 由 REST 快照和事件流两个输入源共同填充，ID 作为合并主键
type Deal struct {
	// ID 不透明的唯一标识，生命周期内稳定
	ID string
	// Email 联系邮箱，未知时为 "N/A"
	Email string
	// PriceEUR 当前中位价（主货币单位，欧元）
	// 由次单位（分）字段除以 100 归一化得到
	PriceEUR float64
	// PriceLowEUR 估值区间下界（主货币单位），nil 表示未设置
	PriceLowEUR *float64
	// PriceHighEUR 估值区间上界（主货币单位），nil 表示未设置
	PriceHighEUR *float64
	// Status 状态（开放字符串枚举）
	Status string
	// CreatedAt 创建时间
	// 快照为 ISO-8601 字符串，创建事件为微秒时间戳，边界处统一归一化
	CreatedAt time.Time
	// Title 标题（可选）
	Title string
	// Description 描述（可选）
	Description string
	// TermsheetURL 条款书 PDF 链接，由后续事件异步补齐（可选）
	TermsheetURL string
	// ReceiptURL 回执链接，由后续事件异步补齐（可选）
	ReceiptURL string
	// LastPayoutMethod 最近一次完成打款的渠道（可选）
	LastPayoutMethod string
	// LastPayoutReference 最近一次完成打款的外部参考号（可选）
	LastPayoutReference string
	// ValuationConfidence 估值置信度，nil 表示未设置
	ValuationConfidence *float64
}

// NewDeal 创建带默认值的 Deal
// 参数 id: Deal 标识
// 返回: 邮箱为 "N/A"、状态为 UNKNOWN 的新 Deal
func NewDeal(id string) *Deal {
	return &Deal{
		ID:     id,
		Email:  DefaultEmail,
		Status: StatusUnknown,
	}
}

// Clone 创建 Deal 的深拷贝
// 指针字段按值复制，返回的对象与原对象互不影响
func (d *Deal) Clone() *Deal {
	clone := *d
	if d.PriceLowEUR != nil {
		v := *d.PriceLowEUR
		clone.PriceLowEUR = &v
	}
	if d.PriceHighEUR != nil {
		v := *d.PriceHighEUR
		clone.PriceHighEUR = &v
	}
	if d.ValuationConfidence != nil {
		v := *d.ValuationConfidence
		clone.ValuationConfidence = &v
	}
	return &clone
}
