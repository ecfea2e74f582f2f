// Package timeutil 提供时间归一化工具函数。
// 对账引擎的两个输入源使用不同的时间表示：REST 快照为 ISO-8601 字符串，
// 创建事件为微秒时间戳；统一在各自的边界处归一化为 time.Time。
package timeutil

import (
	"time"
)

var (
	// baseTime 基准时间点（包含单调时钟读数）
	baseTime = time.Now()
	// baseUnixNs 基准时间点对应的 Unix 纳秒时间戳
	baseUnixNs = baseTime.UnixNano()
)

// Now 获取当前时间
// 使用“单调时钟 + 启动时 Unix 时间”组合实现，
// 在系统时间跳变（NTP/手动调整）时仍保持时间差的单调性。
// 返回: 当前时间（UTC）
func Now() time.Time {
	return time.Unix(0, NowNano()).UTC()
}

// NowNano 获取当前时间的纳秒时间戳
// 返回: 当前时间的 Unix 纳秒时间戳
func NowNano() int64 {
	return baseUnixNs + time.Since(baseTime).Nanoseconds()
}

// NanoToMs 将纳秒时间戳转换为毫秒
// 参数 ns: 纳秒时间戳
// 返回: 毫秒时间戳
func NanoToMs(ns int64) int64 {
	return ns / 1_000_000
}

// FromMicros 将微秒时间戳转换为 time.Time
// 创建事件的 created_at_timestamp 字段使用微秒时间戳
// 参数 us: 微秒时间戳
// 返回: 对应的时间（UTC）
func FromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// isoLayouts 快照接口可能使用的 ISO-8601 时间格式
// 后端以 datetime.utcnow().isoformat() 生成时不携带时区后缀
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ParseISOOr 解析 ISO-8601 时间字符串
// 无时区后缀的字符串按 UTC 解释
// 参数 s: 待解析的时间字符串
// 参数 fallback: s 为空或无法解析时返回的兜底时间
// 返回: 解析出的时间（UTC）或 fallback
func ParseISOOr(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

// FormatISO 将时间格式化为 ISO-8601 字符串
// 用于审计日志等输出边界
// 参数 t: 待格式化的时间
// 返回: RFC3339 格式字符串（UTC）
func FormatISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
