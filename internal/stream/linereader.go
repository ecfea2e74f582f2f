// Package stream 的行读取辅助。
package stream

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// lineReader 按行读取流式响应体
// SSE 以换行分帧；行尾的 \r 被剥除（兼容 \r\n 分隔的服务端）
type lineReader struct {
	// r 底层带缓冲读取器
	r *bufio.Reader
}

// newLineReader 创建行读取器
// 参数 rd: 流式响应体
func newLineReader(rd io.Reader) *lineReader {
	return &lineReader{
		r: bufio.NewReaderSize(rd, 64*1024),
	}
}

// ReadLine 读取一行（不含换行符）
// 超过 maxLineSize 的行视为协议错误
// 返回: 行内容；流结束返回 io.EOF
func (l *lineReader) ReadLine() (string, error) {
	var sb strings.Builder
	for {
		chunk, isPrefix, err := l.r.ReadLine()
		if err != nil {
			return "", err
		}
		if sb.Len()+len(chunk) > maxLineSize {
			return "", fmt.Errorf("事件流单行超过 %d 字节上限", maxLineSize)
		}
		sb.Write(chunk)
		if !isPrefix {
			break
		}
	}
	return strings.TrimSuffix(sb.String(), "\r"), nil
}
