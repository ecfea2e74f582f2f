// Package stream 实现事件流（server-sent events）订阅客户端。
// 订阅地址: GET {base}/offers/events/deals，bearer 认证
// 每条消息是心跳哨兵字面值或 {type, payload} JSON 信封。
// 每个已认证会话同时只保持一条订阅；连接失败只上报一次，不自动重连。
package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"deal-reconciler/internal/auth"
	"deal-reconciler/internal/config"
	"deal-reconciler/internal/core/model"
	"deal-reconciler/internal/util/timeutil"
)

// bufio 行扫描上限：单条事件载荷不应超过 1MB
const maxLineSize = 1 << 20

// Client 事件流订阅客户端
type Client struct {
	// cfg 事件流配置
	cfg *config.StreamConfig
	// tokens 身份能力对象
	tokens auth.TokenProvider
	// logger 日志记录器
	logger *zap.Logger
	// parser 信封归一化器
	parser *Parser
	// client HTTP 客户端（仅限制握手阶段，连接建立后不限时）
	client *http.Client
	// resp 当前订阅连接
	resp *http.Response
	// respMu 连接锁
	respMu sync.Mutex
	// patchCh 归一化补丁输出通道
	patchCh chan *model.Patch
	// errCh 传输错误输出通道
	errCh chan error
	// metrics 连接指标
	metrics ConnectionMetrics
	// metricsMu 指标锁
	metricsMu sync.RWMutex
	// lastMsgTime 最后消息时间（纳秒）
	lastMsgTime int64
	// eventCount 归一化事件计数（用于计算速率）
	eventCount int64
	// parseErrCount 畸形消息计数
	parseErrCount int64
	// lastParseErrLogNs 上次畸形消息日志时间（纳秒，用于采样日志）
	lastParseErrLogNs int64
	// closed 是否已关闭
	closed int32
}

// NewClient 创建事件流订阅客户端
// 参数 cfg: 事件流配置
// 参数 tokens: 身份能力对象
// 参数 logger: 日志记录器
func NewClient(cfg *config.StreamConfig, tokens auth.TokenProvider, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		logger: logger.Named("stream"),
		parser: NewParser(),
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: time.Duration(cfg.HandshakeTimeoutMs) * time.Millisecond,
			},
		},
		patchCh: make(chan *model.Patch, cfg.BufferSize),
		errCh:   make(chan error, 10),
	}
}

// Connect 建立订阅连接
// 参数 ctx: 上下文，用于取消握手
// 返回: 握手失败时返回 *TransportError
func (c *Client) Connect(ctx context.Context) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return &TransportError{URL: c.cfg.URL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return &TransportError{URL: c.cfg.URL, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", "deal-reconciler/1.0")

	resp, err := c.client.Do(req) //nolint:bodyclose // 由 closeConn 负责关闭
	if err != nil {
		return &TransportError{URL: c.cfg.URL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return &TransportError{URL: c.cfg.URL, Err: fmt.Errorf("HTTP 状态码 %d", resp.StatusCode)}
	}

	c.respMu.Lock()
	c.resp = resp
	c.respMu.Unlock()

	c.logger.Info("事件流订阅成功", zap.String("url", c.cfg.URL))
	return nil
}

// Run 启动客户端主循环
// 包含读取循环和指标统计循环；读取循环结束即返回（不自动重连）
// 参数 ctx: 上下文，取消时确定性拆除订阅
func (c *Client) Run(ctx context.Context) {
	go c.metricsLoop(ctx)

	// context 取消时关闭连接体，促使阻塞中的读取立即返回
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-readDone:
		}
	}()

	c.readLoop()
}

// readLoop 读取循环
// 按 SSE 帧格式逐行读取：data: 行累积，空行结束一帧，冒号开头为注释行
func (c *Client) readLoop() {
	c.respMu.Lock()
	resp := c.resp
	c.respMu.Unlock()

	if resp == nil {
		// 主动关闭与循环启动竞争时连接已被拆除，静默退出
		if atomic.LoadInt32(&c.closed) == 1 {
			return
		}
		c.emitErr(&TransportError{URL: c.cfg.URL, Err: fmt.Errorf("订阅未建立")})
		return
	}

	var dataLines []string
	reader := newLineReader(resp.Body)
	for {
		line, err := reader.ReadLine()
		if err != nil {
			// 残留未闭合的数据帧也要处理
			c.dispatchFrame(dataLines)

			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}
			// 传输层失败：上报一次持久提示，不自动重连
			if err == io.EOF {
				err = fmt.Errorf("事件流被服务端关闭")
			}
			c.emitErr(&TransportError{URL: c.cfg.URL, Err: err})
			return
		}

		atomic.StoreInt64(&c.lastMsgTime, timeutil.NowNano())

		if line == "" {
			// 帧结束
			dataLines = c.dispatchFrame(dataLines)
			continue
		}
		if strings.HasPrefix(line, ":") {
			// SSE 注释行（服务端 keep-alive），忽略
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			dataLines = append(dataLines, strings.TrimPrefix(value, " "))
			continue
		}
		// event:/id:/retry: 等其它字段当前后端不使用，忽略
	}
}

// dispatchFrame 处理一帧累积的 data 行
// 返回: 复位后的空切片
func (c *Client) dispatchFrame(dataLines []string) []string {
	if len(dataLines) == 0 {
		return dataLines
	}
	c.handleMessage([]byte(strings.Join(dataLines, "\n")))
	return dataLines[:0]
}

// handleMessage 归一化一条消息并投递补丁
// 畸形消息记录采样日志后跳过，流继续
func (c *Client) handleMessage(data []byte) {
	patch, err := c.parser.Parse(data)
	if err != nil {
		atomic.AddInt64(&c.parseErrCount, 1)
		c.maybeLogParseError(err, data)
		return
	}
	if patch == nil {
		// 心跳
		return
	}

	atomic.AddInt64(&c.eventCount, 1)
	select {
	case c.patchCh <- patch:
	default:
		c.logger.Warn("patchCh 已满，丢弃补丁",
			zap.String("deal_id", patch.TargetID),
			zap.String("kind", string(patch.Kind)))
	}
}

// maybeLogParseError 畸形消息采样日志
// 每秒至多记录一条，附带累计计数，避免脏数据刷屏
func (c *Client) maybeLogParseError(err error, data []byte) {
	nowNs := timeutil.NowNano()
	last := atomic.LoadInt64(&c.lastParseErrLogNs)
	if nowNs-last < int64(time.Second) {
		return
	}
	if !atomic.CompareAndSwapInt64(&c.lastParseErrLogNs, last, nowNs) {
		return
	}
	if len(data) > 256 {
		data = data[:256]
	}
	c.logger.Warn("跳过畸形事件",
		zap.Error(err),
		zap.ByteString("data", data),
		zap.Int64("total", atomic.LoadInt64(&c.parseErrCount)))
}

// metricsLoop 指标统计循环
// 每秒计算事件速率与最后消息距今时间
func (c *Client) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastCount int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}

			count := atomic.LoadInt64(&c.eventCount)
			rate := float64(count - lastCount)
			lastCount = count

			lastMsg := atomic.LoadInt64(&c.lastMsgTime)
			var ageMs int64
			if lastMsg > 0 {
				ageMs = timeutil.NanoToMs(timeutil.NowNano() - lastMsg)
			}

			c.metricsMu.Lock()
			c.metrics.EventsPerSec = rate
			c.metrics.LastMessageAgeMs = ageMs
			c.metrics.ParseErrorCount = atomic.LoadInt64(&c.parseErrCount)
			c.metricsMu.Unlock()
		}
	}
}

// PatchCh 获取归一化补丁输出通道
func (c *Client) PatchCh() <-chan *model.Patch {
	return c.patchCh
}

// ErrCh 获取传输错误输出通道
func (c *Client) ErrCh() <-chan error {
	return c.errCh
}

// Metrics 获取连接指标快照
func (c *Client) Metrics() ConnectionMetrics {
	c.metricsMu.RLock()
	defer c.metricsMu.RUnlock()
	m := c.metrics
	m.ParseErrorCount = atomic.LoadInt64(&c.parseErrCount)
	return m
}

// Close 关闭订阅（幂等）
// 确定性拆除连接；关闭后读取循环静默退出，不再上报传输错误
func (c *Client) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	c.respMu.Lock()
	defer c.respMu.Unlock()
	if c.resp != nil {
		c.resp.Body.Close()
		c.resp = nil
	}
	return nil
}

// emitErr 投递传输错误（通道满时丢弃）
func (c *Client) emitErr(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}
