// Package stream 实现事件信封的归一化解析。
// 任意形状的 {type, payload} 信封在此收敛为带标签的 model.Patch；
// 未识别的事件类型映射为空操作补丁（开放扩展点），
// 缺少可用目标标识的消息报 MalformedEventError。
package stream

import (
	"bytes"
	"encoding/json"

	"deal-reconciler/internal/core/model"
	"deal-reconciler/internal/util/timeutil"
)

// Parser 事件信封解析器（归一化器）
type Parser struct{}

// NewParser 创建事件信封解析器
func NewParser() *Parser {
	return &Parser{}
}

// idProbe 目标标识探针
// 创建事件使用 id 字段；其它事件使用 offer_id，且 offer_id 优先。
// 两个字段先保持原始字节再逐个尝试解码：
// 某个字段类型不符（如数字形式的 id）时不拖垮另一个可用的字段
type idProbe struct {
	// ID 创建事件的目标标识
	ID json.RawMessage `json:"id"`
	// OfferID 其它事件的目标标识（优先）
	OfferID json.RawMessage `json:"offer_id"`
}

// stringField 将原始字段字节解码为字符串
// 返回: 字符串值；字段缺席或不是字符串时返回空串
func stringField(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// IsHeartbeat 判断是否为心跳哨兵消息
// 心跳不携带 JSON 载荷，须在解析信封前识别
// 参数 data: 原始消息字节
func IsHeartbeat(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte(HeartbeatMarker))
}

// Parse 将一条流消息解析为归一化补丁
// 参数 data: 原始消息字节
// 返回: 补丁；心跳返回 (nil, nil)；不可用消息返回 *MalformedEventError
func (p *Parser) Parse(data []byte) (*model.Patch, error) {
	if IsHeartbeat(data) {
		return nil, nil
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &MalformedEventError{Reason: "信封不是合法 JSON: " + err.Error()}
	}
	if len(env.Payload) == 0 {
		return nil, &MalformedEventError{Type: env.Type, Reason: "信封缺少 payload"}
	}

	// 目标标识解析: offer_id 优先于 id（即使两者都存在）
	var probe idProbe
	if err := json.Unmarshal(env.Payload, &probe); err != nil {
		return nil, &MalformedEventError{Type: env.Type, Reason: "载荷不是 JSON 对象"}
	}
	target := stringField(probe.OfferID)
	if target == "" {
		target = stringField(probe.ID)
	}
	if target == "" {
		return nil, &MalformedEventError{Type: env.Type, Reason: "载荷缺少字符串形式的目标标识"}
	}

	switch env.Type {
	case TypeOfferCreated:
		return p.parseCreated(target, env.Payload)
	case TypeOfferValuated:
		return p.parseValuated(target, env.Payload)
	case TypePayoutRequested:
		return p.parsePayoutRequested(target, env.Payload)
	case TypePayoutSucceeded:
		return p.parsePayoutSucceeded(target, env.Payload)
	case TypeReceiptGenerated:
		return p.parseReceiptGenerated(target, env.Payload)
	default:
		// 未识别类型: 空操作补丁，合并时不改变任何字段
		return &model.Patch{TargetID: target, Kind: model.KindNoop}, nil
	}
}

// parseCreated 解析 offer.created 载荷
// 创建补丁携带新 Deal 的全部初始字段；金额从分转换为主单位，
// 创建时间从微秒时间戳归一化，缺失时兜底为当前时间（与快照默认一致）
func (p *Parser) parseCreated(target string, payload json.RawMessage) (*model.Patch, error) {
	var body CreatedPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &MalformedEventError{Type: TypeOfferCreated, Reason: "载荷解码失败: " + err.Error()}
	}

	fields := model.Fields{
		PriceEUR: model.Float64(body.AmountCents.Major()),
	}
	if body.CreatorEmail != "" {
		fields.Email = model.String(body.CreatorEmail)
	}
	if body.Status != "" {
		fields.Status = model.String(body.Status)
	}
	if body.CreatedAtTimestamp > 0 {
		fields.CreatedAt = model.Time(timeutil.FromMicros(body.CreatedAtTimestamp))
	} else {
		fields.CreatedAt = model.Time(timeutil.Now())
	}
	if body.Title != "" {
		fields.Title = model.String(body.Title)
	}
	if body.Description != "" {
		fields.Description = model.String(body.Description)
	}

	return &model.Patch{TargetID: target, Kind: model.KindCreation, Fields: fields}, nil
}

// parseValuated 解析 offer.valuated 载荷
// 仅产生估值相关字段的补丁，邮箱与创建时间等字段不受影响
func (p *Parser) parseValuated(target string, payload json.RawMessage) (*model.Patch, error) {
	var body ValuatedPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &MalformedEventError{Type: TypeOfferValuated, Reason: "载荷解码失败: " + err.Error()}
	}

	fields := model.Fields{
		PriceLowEUR:         body.PriceLowEUR.MajorPtr(),
		PriceHighEUR:        body.PriceHighEUR.MajorPtr(),
		ValuationConfidence: body.ValuationConfidence,
	}
	if body.Status != "" {
		fields.Status = model.String(body.Status)
	}
	if body.PriceMedianEUR.Set {
		fields.PriceEUR = model.Float64(body.PriceMedianEUR.Major())
	}

	return &model.Patch{TargetID: target, Kind: model.KindValuation, Fields: fields}, nil
}

// parsePayoutRequested 解析 payout.requested 载荷
// 载荷未携带状态时回退为字面值 PAYOUT_REQUESTED
func (p *Parser) parsePayoutRequested(target string, payload json.RawMessage) (*model.Patch, error) {
	var body PayoutRequestedPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &MalformedEventError{Type: TypePayoutRequested, Reason: "载荷解码失败: " + err.Error()}
	}

	status := body.Status
	if status == "" {
		status = model.StatusPayoutRequested
	}

	return &model.Patch{
		TargetID: target,
		Kind:     model.KindPayoutRequested,
		Fields:   model.Fields{Status: model.String(status)},
	}, nil
}

// parsePayoutSucceeded 解析 payout.succeeded 载荷
func (p *Parser) parsePayoutSucceeded(target string, payload json.RawMessage) (*model.Patch, error) {
	var body PayoutSucceededPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &MalformedEventError{Type: TypePayoutSucceeded, Reason: "载荷解码失败: " + err.Error()}
	}

	var fields model.Fields
	if body.Status != "" {
		fields.Status = model.String(body.Status)
	}
	if body.PayoutMethod != "" {
		fields.LastPayoutMethod = model.String(body.PayoutMethod)
	}
	if body.ReferenceID != "" {
		fields.LastPayoutReference = model.String(body.ReferenceID)
	}

	return &model.Patch{TargetID: target, Kind: model.KindPayoutCompleted, Fields: fields}, nil
}

// parseReceiptGenerated 解析 receipt.generated 载荷
func (p *Parser) parseReceiptGenerated(target string, payload json.RawMessage) (*model.Patch, error) {
	var body ReceiptGeneratedPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &MalformedEventError{Type: TypeReceiptGenerated, Reason: "载荷解码失败: " + err.Error()}
	}

	var fields model.Fields
	if body.ReceiptURL != "" {
		fields.ReceiptURL = model.String(body.ReceiptURL)
	}

	return &model.Patch{TargetID: target, Kind: model.KindReceiptGenerated, Fields: fields}, nil
}
