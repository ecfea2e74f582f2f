// Package stream 订阅客户端测试
package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"deal-reconciler/internal/auth"
	"deal-reconciler/internal/config"
	"deal-reconciler/internal/core/model"
)

// newTestClient 构建指向测试服务器的订阅客户端
func newTestClient(t *testing.T, handler http.HandlerFunc, bufferSize int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(&config.StreamConfig{
		URL:                srv.URL,
		HandshakeTimeoutMs: 5000,
		BufferSize:         bufferSize,
	}, auth.NewEnvProvider("test-token"), zap.NewNop())
	t.Cleanup(func() { c.Close() })
	return c
}

// waitPatch 等待一条补丁（2 秒超时）
func waitPatch(t *testing.T, ch <-chan *model.Patch) *model.Patch {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("等待补丁超时")
		return nil
	}
}

// assertNoTransportError 断言错误通道为空
func assertNoTransportError(t *testing.T, ch <-chan error) {
	t.Helper()
	select {
	case err := <-ch:
		t.Fatalf("不应收到传输错误: %v", err)
	default:
	}
}

// TestClient_FrameAssembly 测试 SSE 帧组装
// 注释行跳过、跨多个 data: 行的载荷按换行拼接、心跳哨兵不产生补丁
func TestClient_FrameAssembly(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %s", got)
		}
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %s", got)
		}

		io.WriteString(w, ": keep-alive\n\n")
		io.WriteString(w, "data: {\"type\":\"payout.requested\",\n")
		io.WriteString(w, "data: \"payload\":{\"offer_id\":\"deal-1\"}}\n\n")
		io.WriteString(w, "data: heartbeat\n\n")
		io.WriteString(w, "data: {\"type\":\"receipt.generated\",\"payload\":{\"offer_id\":\"deal-2\",\"receipt_url\":\"https://x/r.pdf\"}}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}
	go c.Run(ctx)

	// 跨两个 data: 行的帧组装为一条补丁
	p1 := waitPatch(t, c.PatchCh())
	if p1.TargetID != "deal-1" || p1.Kind != model.KindPayoutRequested {
		t.Fatalf("首条补丁 = %s/%s", p1.TargetID, p1.Kind)
	}

	// 心跳哨兵帧被跳过，下一条补丁直接是回执事件
	p2 := waitPatch(t, c.PatchCh())
	if p2.TargetID != "deal-2" || p2.Kind != model.KindReceiptGenerated {
		t.Fatalf("次条补丁 = %s/%s", p2.TargetID, p2.Kind)
	}

	assertNoTransportError(t, c.ErrCh())
}

// TestClient_LongLivedSubscription 测试订阅的长生命周期
// 握手完成后连接不随任何启动期限时被拆除：
// 间隔到达的补丁照常投递，期间不出现传输错误
func TestClient_LongLivedSubscription(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		io.WriteString(w, "data: {\"type\":\"payout.requested\",\"payload\":{\"offer_id\":\"deal-1\"}}\n\n")
		fl.Flush()

		time.Sleep(300 * time.Millisecond)
		io.WriteString(w, "data: {\"type\":\"payout.succeeded\",\"payload\":{\"offer_id\":\"deal-1\",\"status\":\"PAID_OUT\"}}\n\n")
		fl.Flush()
		<-r.Context().Done()
	}, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}
	go c.Run(ctx)

	p1 := waitPatch(t, c.PatchCh())
	if p1.Kind != model.KindPayoutRequested {
		t.Fatalf("首条补丁种类 = %s", p1.Kind)
	}

	// 首条补丁之后连接保持存活，延迟到达的事件仍被投递
	p2 := waitPatch(t, c.PatchCh())
	if p2.Kind != model.KindPayoutCompleted {
		t.Fatalf("次条补丁种类 = %s", p2.Kind)
	}

	assertNoTransportError(t, c.ErrCh())
}

// TestClient_ServerCloseEmitsTransportError 测试服务端关闭
// 关闭前已送达的补丁照常投递；随后上报一次传输错误，不自动重连
func TestClient_ServerCloseEmitsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"type\":\"payout.requested\",\"payload\":{\"offer_id\":\"deal-1\"}}\n\n")
		w.(http.Flusher).Flush()
		// 返回即关闭连接
	}, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}
	go c.Run(ctx)

	if p := waitPatch(t, c.PatchCh()); p.TargetID != "deal-1" {
		t.Fatalf("TargetID = %s", p.TargetID)
	}

	select {
	case err := <-c.ErrCh():
		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("错误类型 = %T, 期望 *TransportError", err)
		}
		if !strings.Contains(err.Error(), "事件流被服务端关闭") {
			t.Fatalf("错误描述 = %q", err.Error())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("等待传输错误超时")
	}
}

// TestClient_CloseIdempotent 测试幂等关闭
// 主动关闭后读取循环静默退出，不上报传输错误；重复关闭无副作用
func TestClient_CloseIdempotent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, ": hello\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	if err := c.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("重复关闭失败: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("关闭后读取循环未退出")
	}
	assertNoTransportError(t, c.ErrCh())
}

// TestClient_DropOnFull 测试补丁通道满时丢弃
// 消费方停滞时客户端不阻塞读取循环，超出缓冲区的补丁被丢弃
func TestClient_DropOnFull(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 5; i++ {
			io.WriteString(w, "data: {\"type\":\"payout.requested\",\"payload\":{\"offer_id\":\"deal-")
			io.WriteString(w, string(rune('0'+i)))
			io.WriteString(w, "\"}}\n\n")
		}
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}
	go c.Run(ctx)

	// 等待读取循环消费完所有帧（缓冲区容量 1，其余被丢弃）
	time.Sleep(300 * time.Millisecond)

	var got []*model.Patch
drain:
	for {
		select {
		case p := <-c.PatchCh():
			got = append(got, p)
		default:
			break drain
		}
	}

	if len(got) != 1 {
		t.Fatalf("补丁数 = %d, 期望缓冲区容量 1", len(got))
	}
	if got[0].TargetID != "deal-0" {
		t.Fatalf("TargetID = %s, 期望最先到达的 deal-0", got[0].TargetID)
	}
}

// TestClient_ConnectRejected 测试握手被拒绝
func TestClient_ConnectRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"detail":"forbidden"}`)
	}, 16)

	err := c.Connect(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("错误类型 = %T, 期望 *TransportError", err)
	}
	if !strings.Contains(err.Error(), "403") {
		t.Fatalf("错误描述 = %q", err.Error())
	}
}

// TestClient_ConnectUnauthenticated 测试未认证时不发起订阅
func TestClient_ConnectUnauthenticated(t *testing.T) {
	requested := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested <- struct{}{}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(&config.StreamConfig{
		URL:                srv.URL,
		HandshakeTimeoutMs: 5000,
		BufferSize:         16,
	}, auth.NewEnvProvider(""), zap.NewNop())

	err := c.Connect(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("错误类型 = %T, 期望 *TransportError", err)
	}
	select {
	case <-requested:
		t.Fatal("未认证时不应发起 HTTP 请求")
	default:
	}
}
