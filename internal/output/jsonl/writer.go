// Package jsonl 实现异步 JSONL 审计日志写入。
// JSON 编码在调用方同步完成（编码失败立即反馈给调用方），
// 文件 I/O 在后台 goroutine 串行执行，聚合器热路径不被磁盘阻塞。
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Writer 异步 JSONL 写入器
type Writer struct {
	// path 输出文件路径
	path string
	// lines 已编码记录的投递通道
	lines chan []byte
	// flushReq flush 请求通道
	flushReq chan chan error
	// done 后台循环结束信号
	done chan struct{}

	// closed 是否已关闭
	closed int32
	// closeErr 关闭时最后一次 flush 的错误
	closeErr error
	// mu 投递与关闭的互斥（防止向已关闭通道发送）
	mu sync.Mutex
	closeOnce sync.Once
}

// NewWriter 创建 JSONL 写入器
// 参数 path: 输出文件路径（目录不存在时自动创建，文件以追加模式打开）
// 参数 bufferSize: 投递通道缓冲区大小
func NewWriter(path string, bufferSize int) (*Writer, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败: %w", err)
	}

	w := &Writer{
		path:     path,
		lines:    make(chan []byte, bufferSize),
		flushReq: make(chan chan error, 1),
		done:     make(chan struct{}),
	}

	go w.loop(f)

	return w, nil
}

// Write 编码并投递一条记录
// 编码错误同步返回；投递通道满时阻塞（审计日志不允许静默丢失）
func (w *Writer) Write(v any) error {
	if w == nil {
		return fmt.Errorf("writer 为空")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("编码审计记录失败: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if atomic.LoadInt32(&w.closed) == 1 {
		return fmt.Errorf("writer 已关闭")
	}
	w.lines <- b
	return nil
}

// Flush 强制 flush 文件缓冲区
// 先尽量写完已投递的积压记录，再 flush
func (w *Writer) Flush() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if atomic.LoadInt32(&w.closed) == 1 {
		return nil
	}
	ack := make(chan error, 1)
	w.flushReq <- ack
	return <-ack
}

// Close 关闭写入器（幂等，会先写完积压记录并 flush）
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.closeOnce.Do(func() {
		w.mu.Lock()
		atomic.StoreInt32(&w.closed, 1)
		close(w.lines)
		w.mu.Unlock()
		<-w.done
	})
	return w.closeErr
}

// loop 后台写入循环
// 串行消费投递通道；flush 请求前先清空积压记录，保证 flush 覆盖其之前的写入
func (w *Writer) loop(f *os.File) {
	defer close(w.done)
	defer f.Close()

	bw := bufio.NewWriterSize(f, 256*1024)

	writeLine := func(b []byte) {
		if _, err := bw.Write(b); err != nil {
			return
		}
		_ = bw.WriteByte('\n')
	}

	for {
		select {
		case b, ok := <-w.lines:
			if !ok {
				w.closeErr = bw.Flush()
				return
			}
			writeLine(b)

		case ack := <-w.flushReq:
			// 先写完已积压的记录
		drain:
			for {
				select {
				case b, ok := <-w.lines:
					if !ok {
						err := bw.Flush()
						ack <- err
						w.closeErr = err
						return
					}
					writeLine(b)
				default:
					break drain
				}
			}
			ack <- bw.Flush()
		}
	}
}
