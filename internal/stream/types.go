// Package stream 定义事件流的信封与各事件种类的载荷类型。
package stream

import (
	"encoding/json"

	"deal-reconciler/internal/core/model"
)

// 事件类型标签常量
const (
	// TypeOfferCreated 报价创建事件
	TypeOfferCreated = "offer.created"
	// TypeOfferValuated 估值完成事件
	TypeOfferValuated = "offer.valuated"
	// TypePayoutRequested 打款发起事件
	TypePayoutRequested = "payout.requested"
	// TypePayoutSucceeded 打款完成事件
	TypePayoutSucceeded = "payout.succeeded"
	// TypeReceiptGenerated 回执生成事件
	TypeReceiptGenerated = "receipt.generated"
)

// HeartbeatMarker 心跳哨兵消息的字面值
// 心跳不携带 JSON 载荷，在解析信封前识别并忽略
const HeartbeatMarker = "heartbeat"

// Envelope 事件信封 {type, payload}
// Payload 保持原始字节，按 Type 二次解码到对应的载荷结构
type Envelope struct {
	// Type 事件类型标签，如 offer.created
	Type string `json:"type"`
	// Payload 原始载荷
	Payload json.RawMessage `json:"payload"`
}

// CreatedPayload offer.created 事件载荷
// 创建事件使用 id 字段承载目标标识（其它事件使用 offer_id）；
// 目标标识统一由解析器的探针提取，载荷结构只承载业务字段
type CreatedPayload struct {
	// CreatorEmail 创建者邮箱
	CreatorEmail string `json:"creator_email"`
	// AmountCents 报价金额（分）
	AmountCents model.MinorUnits `json:"amount_cents"`
	// Status 初始状态
	Status string `json:"status"`
	// CreatedAtTimestamp 创建时间（微秒时间戳）
	CreatedAtTimestamp int64 `json:"created_at_timestamp"`
	// Title 标题
	Title string `json:"title"`
	// Description 描述
	Description string `json:"description"`
}

// ValuatedPayload offer.valuated 事件载荷
type ValuatedPayload struct {
	// Status 估值后状态
	Status string `json:"status"`
	// PriceMedianEUR 估值中位价（分）
	PriceMedianEUR model.MinorUnits `json:"price_median_eur"`
	// PriceLowEUR 估值区间下界（分）
	PriceLowEUR model.MinorUnits `json:"price_low_eur"`
	// PriceHighEUR 估值区间上界（分）
	PriceHighEUR model.MinorUnits `json:"price_high_eur"`
	// ValuationConfidence 估值置信度
	ValuationConfidence *float64 `json:"valuation_confidence"`
}

// PayoutRequestedPayload payout.requested 事件载荷
type PayoutRequestedPayload struct {
	// Status 状态；为空时回退为字面值 PAYOUT_REQUESTED
	Status string `json:"status"`
}

// PayoutSucceededPayload payout.succeeded 事件载荷
type PayoutSucceededPayload struct {
	// Status 打款后状态
	Status string `json:"status"`
	// PayoutMethod 打款渠道，如 stripe、wise
	PayoutMethod string `json:"payout_method"`
	// ReferenceID 打款外部参考号
	ReferenceID string `json:"reference_id"`
}

// ReceiptGeneratedPayload receipt.generated 事件载荷
type ReceiptGeneratedPayload struct {
	// ReceiptURL 回执链接
	ReceiptURL string `json:"receipt_url"`
}

// ConnectionMetrics 订阅连接质量指标
type ConnectionMetrics struct {
	// ParseErrorCount 畸形消息计数
	ParseErrorCount int64 `json:"parse_error_count"`
	// EventsPerSec 每秒归一化事件数
	EventsPerSec float64 `json:"events_per_sec"`
	// LastMessageAgeMs 最后消息距今时间（毫秒）
	LastMessageAgeMs int64 `json:"last_message_age_ms"`
}
