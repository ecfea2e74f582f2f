// Package auth 提供会话身份能力对象。
// 身份由外部身份提供方托管；核心只依赖“是否已认证”和“取令牌”两个能力，
// 以注入的能力对象表示，不使用进程级全局状态。
package auth

import (
	"context"
	"errors"
)

// ErrNotAuthenticated 当前会话未认证
var ErrNotAuthenticated = errors.New("当前会话未认证")

// TokenProvider 身份能力接口
// 拉取快照、订阅事件流、发起动作前都必须先确认 Authenticated 为 true
type TokenProvider interface {
	// Authenticated 当前是否已认证
	Authenticated() bool
	// Token 获取 bearer 认证令牌
	// 参数 ctx: 上下文，用于取消令牌获取
	// 返回: 令牌字符串；未认证时返回 ErrNotAuthenticated
	Token(ctx context.Context) (string, error)
}

// EnvProvider 基于静态令牌的 TokenProvider 实现
// 令牌经由环境变量注入（见 config 包），非空即视为已认证
type EnvProvider struct {
	// token bearer 认证令牌
	token string
}

// NewEnvProvider 创建静态令牌身份提供方
// 参数 token: bearer 认证令牌，可为空（表示未认证）
func NewEnvProvider(token string) *EnvProvider {
	return &EnvProvider{token: token}
}

// Authenticated 当前是否已认证
func (p *EnvProvider) Authenticated() bool {
	return p.token != ""
}

// Token 获取 bearer 认证令牌
func (p *EnvProvider) Token(_ context.Context) (string, error) {
	if p.token == "" {
		return "", ErrNotAuthenticated
	}
	return p.token, nil
}
