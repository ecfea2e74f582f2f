// Package deals 定义快照接口的响应记录类型。
package deals

import (
	"deal-reconciler/internal/core/model"
)

// creatorRecord 快照记录中嵌套的创建者对象
type creatorRecord struct {
	// Email 创建者邮箱
	Email string `json:"email"`
}

// dealRecord 快照接口返回的单条原始记录
// 响应形状不统一：联系邮箱可能在嵌套 creator 对象或顶层 email 字段，
// 价格可能在 price_median_eur 或 amount_cents（均为次单位，分）。
type dealRecord struct {
	// ID Deal 标识
	ID string `json:"id"`
	// Email 顶层联系邮箱（次选）
	Email string `json:"email"`
	// Creator 嵌套创建者对象（邮箱首选来源）
	Creator *creatorRecord `json:"creator"`
	// PriceMedianEUR 估值中位价（分，首选价格来源）
	PriceMedianEUR model.MinorUnits `json:"price_median_eur"`
	// AmountCents 报价金额（分，次选价格来源）
	AmountCents model.MinorUnits `json:"amount_cents"`
	// PriceLowEUR 估值区间下界（分，可选）
	PriceLowEUR model.MinorUnits `json:"price_low_eur"`
	// PriceHighEUR 估值区间上界（分，可选）
	PriceHighEUR model.MinorUnits `json:"price_high_eur"`
	// ValuationConfidence 估值置信度（可选）
	ValuationConfidence *float64 `json:"valuation_confidence"`
	// Status 状态
	Status string `json:"status"`
	// CreatedAt 创建时间（ISO-8601 字符串）
	CreatedAt string `json:"created_at"`
	// Title 标题（可选）
	Title string `json:"title"`
	// Description 描述（可选）
	Description string `json:"description"`
	// PdfURL 条款书 PDF 链接（可选）
	PdfURL string `json:"pdf_url"`
	// ReceiptURL 回执链接（可选）
	ReceiptURL string `json:"receipt_url"`
}

// listEnvelope 快照响应的对象包装形状
// 接口可能返回 {deals: [...]}、{results: [...]} 或裸数组
type listEnvelope struct {
	// Deals deals 键下的记录列表
	Deals []dealRecord `json:"deals"`
	// Results results 键下的记录列表
	Results []dealRecord `json:"results"`
}

// errorBody 后端错误响应体
// 人类可读错误描述的提取优先级: detail > message > 传输层错误
type errorBody struct {
	// Detail 首选错误描述
	Detail string `json:"detail"`
	// Message 次选错误描述
	Message string `json:"message"`
}
