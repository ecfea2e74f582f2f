// Package payout 打款重试分发器测试
package payout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"deal-reconciler/internal/auth"
	"deal-reconciler/internal/config"
)

// newTestDispatcher 构建指向测试服务器的分发器
func newTestDispatcher(t *testing.T, handler http.HandlerFunc, refresh RefreshFunc) *Dispatcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewDispatcher(&config.APIConfig{
		BaseURL:         srv.URL,
		TimeoutMs:       5000,
		RetryPayoutPath: "/internal/payouts/offers/%s/retry_payout",
	}, auth.NewEnvProvider("test-token"), refresh, zap.NewNop())
}

// TestRetryPayout_Accepted 测试受理成功路径
// 202 响应: 无错误，恰好触发一次快照刷新
func TestRetryPayout_Accepted(t *testing.T) {
	var gotMethod, gotPath string
	refreshCount := 0

	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %s", got)
		}
		w.WriteHeader(http.StatusAccepted)
	}, func(ctx context.Context) { refreshCount++ })

	if err := d.RetryPayout(context.Background(), "deal-7"); err != nil {
		t.Fatalf("重试失败: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("Method = %s, 期望 POST", gotMethod)
	}
	if gotPath != "/internal/payouts/offers/deal-7/retry_payout" {
		t.Fatalf("Path = %s", gotPath)
	}
	if refreshCount != 1 {
		t.Fatalf("刷新次数 = %d, 期望恰好 1 次", refreshCount)
	}
}

// TestRetryPayout_Rejected 测试非 202 响应
// 失败不触发刷新，错误描述优先取 detail
func TestRetryPayout_Rejected(t *testing.T) {
	refreshCount := 0
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"detail":"payout already in progress","message":"ignored"}`))
	}, func(ctx context.Context) { refreshCount++ })

	err := d.RetryPayout(context.Background(), "deal-7")
	var re *RetryError
	if !errors.As(err, &re) {
		t.Fatalf("错误类型 = %T, 期望 *RetryError", err)
	}
	if re.Status != http.StatusConflict {
		t.Fatalf("Status = %d, 期望 409", re.Status)
	}
	if re.Message != "payout already in progress" {
		t.Fatalf("Message = %q", re.Message)
	}
	if refreshCount != 0 {
		t.Fatalf("刷新次数 = %d, 失败时不应触发刷新", refreshCount)
	}
}

// TestRetryPayout_EmptyID 测试空标识校验
func TestRetryPayout_EmptyID(t *testing.T) {
	called := false
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, nil)

	err := d.RetryPayout(context.Background(), "")
	var re *RetryError
	if !errors.As(err, &re) {
		t.Fatalf("错误类型 = %T, 期望 *RetryError", err)
	}
	if called {
		t.Fatal("空标识不应发起 HTTP 请求")
	}
}

// TestRetryPayout_TransportError 测试传输层失败
func TestRetryPayout_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	refreshCount := 0
	d := NewDispatcher(&config.APIConfig{
		BaseURL:         srv.URL,
		TimeoutMs:       5000,
		RetryPayoutPath: "/internal/payouts/offers/%s/retry_payout",
	}, auth.NewEnvProvider("test-token"), func(ctx context.Context) { refreshCount++ }, zap.NewNop())
	srv.Close() // 故意先关闭，制造连接失败

	err := d.RetryPayout(context.Background(), "deal-7")
	var re *RetryError
	if !errors.As(err, &re) {
		t.Fatalf("错误类型 = %T, 期望 *RetryError", err)
	}
	if re.Status != 0 {
		t.Fatalf("Status = %d, 传输层失败应为 0", re.Status)
	}
	if refreshCount != 0 {
		t.Fatal("传输失败不应触发刷新")
	}
}

// TestRetryPayout_IDEscaping 测试标识路径转义
func TestRetryPayout_IDEscaping(t *testing.T) {
	var gotEscaped string
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotEscaped = r.URL.EscapedPath()
		w.WriteHeader(http.StatusAccepted)
	}, nil)

	if err := d.RetryPayout(context.Background(), "deal/彼岸 7"); err != nil {
		t.Fatalf("重试失败: %v", err)
	}
	if gotEscaped != "/internal/payouts/offers/deal%2F%E5%BD%BC%E5%B2%B8%207/retry_payout" {
		t.Fatalf("EscapedPath = %s", gotEscaped)
	}
}
