// Package main 是 Deal 对账引擎的入口点。
// 引擎把 REST 全量快照与服务端事件流（SSE）增量合并为一张一致的
// 内存有序 Deal 表：快照整体替换，事件按字段叠加合并；
// 打款重试动作受理后触发一次全量刷新，并将对账活动写入 JSONL 审计日志。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"deal-reconciler/internal/auth"
	"deal-reconciler/internal/config"
	"deal-reconciler/internal/core/store"
	"deal-reconciler/internal/deals"
	"deal-reconciler/internal/output/jsonl"
	"deal-reconciler/internal/payout"
	"deal-reconciler/internal/stream"
	"deal-reconciler/internal/util/timeutil"
)

// auditRecord 对账审计日志记录
type auditRecord struct {
	// Ts 记录时间（ISO-8601）
	Ts string `json:"ts"`
	// Kind 记录种类: snapshot_loaded / patch_* / stream_error / retry_accepted
	Kind string `json:"kind"`
	// DealID 相关 Deal 标识（可选）
	DealID string `json:"deal_id,omitempty"`
	// EventKind 事件种类（可选）
	EventKind string `json:"event_kind,omitempty"`
	// Count 数量，如快照条数（可选）
	Count int `json:"count,omitempty"`
	// Detail 附加描述（可选）
	Detail string `json:"detail,omitempty"`
}

func main() {
	var configPath string
	var retryDealID string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.StringVar(&retryDealID, "retry-payout", "", "启动后立即对指定 Deal 发起打款重试")
	flag.Parse()

	// 本地开发时从 .env 加载环境变量（不存在则忽略）
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel)
	defer logger.Sync()

	// 身份能力对象：认证前不得拉取快照、订阅事件流或发起动作
	tokens := auth.NewEnvProvider(cfg.Auth.Token)
	if !tokens.Authenticated() {
		logger.Error("未提供认证令牌（环境变量 RECONCILER_TOKEN），拒绝启动")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	var auditWriter *jsonl.Writer
	if cfg.Output.AuditEnabled {
		auditWriter, err = jsonl.NewWriter(fmt.Sprintf("%s/reconciliation.jsonl", cfg.Output.Dir), cfg.Output.BufferSize)
		if err != nil {
			logger.Error("创建审计日志 writer 失败", zap.Error(err))
			os.Exit(1)
		}
	}

	fetcher := deals.NewHTTPFetcher(&cfg.API, tokens)
	dealStore := store.New()

	// 刷新请求通道：打款动作受理后、或其它需要全量刷新的场景投递
	// 容量 1 + 非阻塞投递：重复请求合并为一次刷新
	refreshCh := make(chan struct{}, 1)
	requestRefresh := func(_ context.Context) {
		select {
		case refreshCh <- struct{}{}:
		default:
		}
	}

	dispatcher := payout.NewDispatcher(&cfg.API, tokens, requestRefresh, logger)

	// 初始快照加载；失败时保留现有（空）内容继续运行，仅向用户呈现错误
	loadSnapshot(ctx, logger, fetcher, dealStore, auditWriter)

	// 建立事件流订阅（每个会话只保持一条）
	// 握手超时由客户端传输层的 ResponseHeaderTimeout 限制；
	// 连接体与请求 context 同生命周期，必须传入长生命周期的 ctx
	streamClient := stream.NewClient(&cfg.Stream, tokens, logger)
	streamUp := false
	if err := streamClient.Connect(ctx); err != nil {
		// 传输失败向用户呈现持久提示，应用继续运行（不自动重连）
		logger.Error("事件流订阅失败，行情将不会实时更新", zap.Error(err))
		writeAudit(logger, auditWriter, auditRecord{Kind: "stream_error", Detail: err.Error()})
	} else {
		streamUp = true
		go streamClient.Run(ctx)
	}

	// 单次动作模式：启动后立即发起打款重试，受理成功会触发一次全量刷新
	if retryDealID != "" {
		if err := dispatcher.RetryPayout(ctx, retryDealID); err != nil {
			logger.Error("打款重试失败", zap.String("deal_id", retryDealID), zap.Error(err))
			writeAudit(logger, auditWriter, auditRecord{Kind: "retry_failed", DealID: retryDealID, Detail: err.Error()})
		} else {
			writeAudit(logger, auditWriter, auditRecord{Kind: "retry_accepted", DealID: retryDealID})
		}
	}

	runAggregator(ctx, logger, dealStore, fetcher, streamClient, refreshCh, auditWriter)

	if streamUp {
		m := streamClient.Metrics()
		logger.Info("事件流连接指标",
			zap.Int64("parse_errors", m.ParseErrorCount),
			zap.Float64("events_per_sec", m.EventsPerSec),
			zap.Int64("last_message_age_ms", m.LastMessageAgeMs))
	}

	// 优雅关闭（10s 超时）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = streamClient.Close()
		if auditWriter != nil {
			_ = auditWriter.Close()
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("关闭超时，强制退出")
	case <-done:
		logger.Info("关闭完成")
	}
}

// newLogger 构建 zap 日志记录器
// 参数 level: 日志级别，无效值回退为 info
func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// loadSnapshot 拉取全量快照并整体替换对账存储
// 拉取失败时不清空存储（保留先前内容），错误向用户呈现
func loadSnapshot(
	ctx context.Context,
	logger *zap.Logger,
	fetcher deals.Fetcher,
	dealStore *store.Store,
	auditWriter *jsonl.Writer,
) {
	fetched, err := fetcher.FetchDeals(ctx)
	if err != nil {
		logger.Error("快照拉取失败，保留现有内容", zap.Error(err))
		writeAudit(logger, auditWriter, auditRecord{Kind: "snapshot_failed", Detail: err.Error()})
		return
	}

	dealStore.LoadSnapshot(fetched)
	logger.Info("快照已加载", zap.Int("deals", dealStore.Len()))
	writeAudit(logger, auditWriter, auditRecord{Kind: "snapshot_loaded", Count: dealStore.Len()})
}

// runAggregator 聚合器主循环（存储的唯一写者）
// 快照拉取与事件流是两个独立的并发输入源，相对到达顺序不保证；
// 所有存储写入都在本 goroutine 内串行执行，无需加锁。
func runAggregator(
	ctx context.Context,
	logger *zap.Logger,
	dealStore *store.Store,
	fetcher deals.Fetcher,
	streamClient *stream.Client,
	refreshCh chan struct{},
	auditWriter *jsonl.Writer,
) {
	patchCh := streamClient.PatchCh()
	errCh := streamClient.ErrCh()

	for {
		select {
		case <-ctx.Done():
			return

		case patch, ok := <-patchCh:
			if !ok {
				patchCh = nil
				continue
			}
			outcome := dealStore.ApplyPatch(patch)
			switch outcome {
			case store.OutcomeDropped:
				// 目标尚未进入快照：静默丢弃（可接受的最终一致性缺口）
				logger.Debug("丢弃未知目标的补丁",
					zap.String("deal_id", patch.TargetID),
					zap.String("kind", string(patch.Kind)))
			case store.OutcomeDuplicate:
				logger.Debug("抑制重复创建事件", zap.String("deal_id", patch.TargetID))
			default:
				logger.Debug("补丁已应用",
					zap.String("deal_id", patch.TargetID),
					zap.String("kind", string(patch.Kind)),
					zap.String("outcome", outcome.String()))
			}
			writeAudit(logger, auditWriter, auditRecord{
				Kind:      "patch_" + outcome.String(),
				DealID:    patch.TargetID,
				EventKind: string(patch.Kind),
			})

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			// 持久提示：流已断开且不自动重连，快照内容保持可用
			logger.Warn("事件流传输失败，实时更新已停止", zap.Error(err))
			writeAudit(logger, auditWriter, auditRecord{Kind: "stream_error", Detail: err.Error()})

		case <-refreshCh:
			loadSnapshot(ctx, logger, fetcher, dealStore, auditWriter)
		}
	}
}

// writeAudit 写入一条审计记录（审计未启用时为空操作）
func writeAudit(logger *zap.Logger, w *jsonl.Writer, rec auditRecord) {
	if w == nil {
		return
	}
	rec.Ts = timeutil.FormatISO(timeutil.Now())
	if err := w.Write(rec); err != nil {
		logger.Warn("写入审计记录失败", zap.Error(err))
	}
}
