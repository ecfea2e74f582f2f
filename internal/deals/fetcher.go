// Package deals 负责从后端 REST 接口拉取 Deal 快照并归一化。
// 快照是某一时点的全量列表，拉取幂等、可重复调用；
// 归一化统一邮箱来源、次/主货币单位和时间表示。
package deals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"deal-reconciler/internal/auth"
	"deal-reconciler/internal/config"
	"deal-reconciler/internal/core/model"
	"deal-reconciler/internal/util/timeutil"
)

// FetchError 快照拉取失败
// 携带 HTTP 状态码和提取自响应体的人类可读描述，向用户呈现；
// 拉取失败不清空对账存储，保留先前内容。
type FetchError struct {
	// Status HTTP 状态码（传输层失败时为 0）
	Status int
	// Message 人类可读错误描述
	Message string
}

// Error 实现 error 接口
func (e *FetchError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("快照拉取失败: %s", e.Message)
	}
	return fmt.Sprintf("快照拉取失败 (status=%d): %s", e.Status, e.Message)
}

// Fetcher 快照获取器接口
type Fetcher interface {
	// FetchDeals 拉取当前全量 Deal 快照
	// 参数 ctx: 上下文，用于取消请求
	// 返回: 归一化后的有序 Deal 序列；失败时返回 *FetchError
	FetchDeals(ctx context.Context) ([]*model.Deal, error)
}

// HTTPFetcher HTTP 快照获取器
// 通过 bearer 认证的 GET 请求拉取 /internal/deals 列表
type HTTPFetcher struct {
	// client HTTP 客户端
	client *http.Client
	// baseURL 后端基础地址
	baseURL string
	// dealsPath 快照接口路径
	dealsPath string
	// limit 拉取条数上限
	limit int
	// tokens 身份能力对象
	tokens auth.TokenProvider
	// now 时钟注入点（测试用）
	now func() time.Time
}

// NewHTTPFetcher 创建 HTTP 快照获取器
// 参数 cfg: REST 接口配置
// 参数 tokens: 身份能力对象
func NewHTTPFetcher(cfg *config.APIConfig, tokens auth.TokenProvider) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		},
		baseURL:   cfg.BaseURL,
		dealsPath: cfg.DealsPath,
		limit:     cfg.Limit,
		tokens:    tokens,
		now:       timeutil.Now,
	}
}

// FetchDeals 拉取当前全量 Deal 快照
// 所有网络与解析失败都在此边界转换为 *FetchError，不向存储层外泄
func (f *HTTPFetcher) FetchDeals(ctx context.Context) ([]*model.Deal, error) {
	token, err := f.tokens.Token(ctx)
	if err != nil {
		return nil, &FetchError{Message: err.Error()}
	}

	url := fmt.Sprintf("%s%s?limit=%d", f.baseURL, f.dealsPath, f.limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Message: fmt.Sprintf("创建请求失败: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "deal-reconciler/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Message: fmt.Sprintf("读取响应体失败: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		fallback := fmt.Sprintf("HTTP 状态码 %d", resp.StatusCode)
		return nil, &FetchError{Status: resp.StatusCode, Message: extractErrorMessage(body, fallback)}
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Message: err.Error()}
	}

	fetchedAt := f.now()
	out := make([]*model.Deal, 0, len(records))
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			continue
		}
		out = append(out, normalizeRecord(rec, fetchedAt))
	}
	return out, nil
}

// decodeRecords 解码快照响应
// 兼容三种响应形状: {deals: [...]}、{results: [...]}、裸数组
// 参数 body: 响应体字节
// 返回: 原始记录列表
func decodeRecords(body []byte) ([]dealRecord, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []dealRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("解析快照响应失败: %w", err)
		}
		return records, nil
	}

	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("解析快照响应失败: %w", err)
	}
	if env.Deals != nil {
		return env.Deals, nil
	}
	if env.Results != nil {
		return env.Results, nil
	}
	return nil, nil
}

// normalizeRecord 将一条原始记录归一化为 Deal
// 参数 rec: 原始记录
// 参数 fetchedAt: 拉取时刻，created_at 缺失时的兜底创建时间
func normalizeRecord(rec *dealRecord, fetchedAt time.Time) *model.Deal {
	d := model.NewDeal(rec.ID)

	// 邮箱: 嵌套 creator.email 优先，其次顶层 email，缺省 "N/A"
	if rec.Creator != nil && rec.Creator.Email != "" {
		d.Email = rec.Creator.Email
	} else if rec.Email != "" {
		d.Email = rec.Email
	}

	// 价格: price_median_eur 优先，其次 amount_cents，均为次单位（分），除以 100
	switch {
	case rec.PriceMedianEUR.Set:
		d.PriceEUR = rec.PriceMedianEUR.Major()
	case rec.AmountCents.Set:
		d.PriceEUR = rec.AmountCents.Major()
	}

	if rec.Status != "" {
		d.Status = rec.Status
	}
	d.CreatedAt = timeutil.ParseISOOr(rec.CreatedAt, fetchedAt)

	// 区间字段仅在出现时设置（未设置 != 0）
	d.PriceLowEUR = rec.PriceLowEUR.MajorPtr()
	d.PriceHighEUR = rec.PriceHighEUR.MajorPtr()
	d.ValuationConfidence = rec.ValuationConfidence

	d.Title = rec.Title
	d.Description = rec.Description
	d.TermsheetURL = rec.PdfURL
	d.ReceiptURL = rec.ReceiptURL

	return d
}

// extractErrorMessage 从错误响应体提取人类可读描述
// 优先级: detail > message > fallback
// 参数 body: 响应体字节
// 参数 fallback: 响应体不可用时的兜底描述
func extractErrorMessage(body []byte, fallback string) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Detail != "" {
			return eb.Detail
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	return fallback
}
