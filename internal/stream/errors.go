// Package stream 定义事件流的错误类型。
package stream

import (
	"fmt"
)

// MalformedEventError 单条流消息不可用
// 典型原因是载荷缺少可用的目标标识；畸形消息记录日志后跳过，
// 绝不中断流，也绝不导致应用退出。
type MalformedEventError struct {
	// Type 事件类型标签（可能为空）
	Type string
	// Reason 不可用原因
	Reason string
}

// Error 实现 error 接口
func (e *MalformedEventError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("畸形事件: %s", e.Reason)
	}
	return fmt.Sprintf("畸形事件 (type=%s): %s", e.Type, e.Reason)
}

// TransportError 事件流底层连接失败
// 向用户呈现为持久提示；核心不自动重连，应用继续运行
type TransportError struct {
	// URL 订阅地址
	URL string
	// Err 底层错误
	Err error
}

// Error 实现 error 接口
func (e *TransportError) Error() string {
	return fmt.Sprintf("事件流连接失败 (%s): %v", e.URL, e.Err)
}

// Unwrap 返回底层错误
func (e *TransportError) Unwrap() error {
	return e.Err
}
