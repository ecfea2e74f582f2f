// Package payout 负责向后端发起打款重试指令。
// 指令接口: POST /internal/payouts/offers/{id}/retry_payout，bearer 认证，成功返回 202。
// 分发器不直接修改对账存储：受理成功后通过注入的 refresh 回调
// 触发一次全量快照刷新，以后端确认的状态为准。
package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"deal-reconciler/internal/auth"
	"deal-reconciler/internal/config"
)

// RetryError 打款重试失败
// 携带 HTTP 状态码和提取自响应体的人类可读描述；
// 失败时对账存储保持原样，不做任何局部修改。
type RetryError struct {
	// Status HTTP 状态码（传输层失败时为 0）
	Status int
	// Message 人类可读错误描述
	Message string
}

// Error 实现 error 接口
func (e *RetryError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("打款重试失败: %s", e.Message)
	}
	return fmt.Sprintf("打款重试失败 (status=%d): %s", e.Status, e.Message)
}

// RefreshFunc 快照刷新触发回调
// 在指令被受理（HTTP 202）后恰好调用一次
type RefreshFunc func(ctx context.Context)

// Dispatcher 打款重试指令分发器
type Dispatcher struct {
	// client HTTP 客户端
	client *http.Client
	// baseURL 后端基础地址
	baseURL string
	// pathTemplate 接口路径模板，%s 为 Deal 标识占位
	pathTemplate string
	// tokens 身份能力对象
	tokens auth.TokenProvider
	// refresh 快照刷新触发回调
	refresh RefreshFunc
	// logger 日志记录器
	logger *zap.Logger
}

// NewDispatcher 创建打款重试指令分发器
// 参数 cfg: REST 接口配置
// 参数 tokens: 身份能力对象
// 参数 refresh: 快照刷新触发回调，可为 nil
// 参数 logger: 日志记录器
func NewDispatcher(cfg *config.APIConfig, tokens auth.TokenProvider, refresh RefreshFunc, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		},
		baseURL:      cfg.BaseURL,
		pathTemplate: cfg.RetryPayoutPath,
		tokens:       tokens,
		refresh:      refresh,
		logger:       logger.Named("payout"),
	}
}

// RetryPayout 发起打款重试
// 受理成功（HTTP 202）时恰好触发一次快照刷新；
// 其它状态或传输失败返回 *RetryError，且不触发刷新、不触碰存储。
// 参数 ctx: 上下文，用于取消请求
// 参数 dealID: 目标 Deal 标识，不能为空
func (d *Dispatcher) RetryPayout(ctx context.Context, dealID string) error {
	if dealID == "" {
		return &RetryError{Message: "dealID 不能为空"}
	}

	token, err := d.tokens.Token(ctx)
	if err != nil {
		return &RetryError{Message: err.Error()}
	}

	endpoint := d.baseURL + fmt.Sprintf(d.pathTemplate, url.PathEscape(dealID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return &RetryError{Message: fmt.Sprintf("创建请求失败: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "deal-reconciler/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return &RetryError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusAccepted {
		fallback := fmt.Sprintf("HTTP 状态码 %d", resp.StatusCode)
		return &RetryError{Status: resp.StatusCode, Message: extractErrorMessage(body, fallback)}
	}

	d.logger.Info("打款重试已受理", zap.String("deal_id", dealID))
	if d.refresh != nil {
		d.refresh(ctx)
	}
	return nil
}

// errorBody 后端错误响应体
// 错误体约定与快照接口一致
type errorBody struct {
	// Detail 首选错误描述
	Detail string `json:"detail"`
	// Message 次选错误描述
	Message string `json:"message"`
}

// extractErrorMessage 从错误响应体提取人类可读描述
// 优先级: detail > message > fallback
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
