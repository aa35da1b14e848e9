// Package qrcode 生成邀请链接二维码
package qrcode

import (
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/skip2/go-qrcode"
)

// RecoveryLevel 纠错级别
type RecoveryLevel int

const (
	// Low 7% 纠错
	Low RecoveryLevel = iota
	// Medium 15% 纠错
	Medium
	// High 25% 纠错
	High
	// Highest 30% 纠错
	Highest
)

// Generator 二维码生成器
type Generator struct {
	size          int
	recoveryLevel RecoveryLevel
}

// Option 生成器选项
type Option func(*Generator)

// WithSize 设置边长（像素）
func WithSize(size int) Option {
	return func(g *Generator) {
		if size > 0 {
			g.size = size
		}
	}
}

// WithRecoveryLevel 设置纠错级别
func WithRecoveryLevel(level RecoveryLevel) Option {
	return func(g *Generator) {
		g.recoveryLevel = level
	}
}

// NewGenerator 创建二维码生成器，默认 256 像素、15% 纠错
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{size: 256, recoveryLevel: Medium}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) level() qrcode.RecoveryLevel {
	switch g.recoveryLevel {
	case Low:
		return qrcode.Low
	case High:
		return qrcode.High
	case Highest:
		return qrcode.Highest
	default:
		return qrcode.Medium
	}
}

// PNG 生成 PNG 图片
func (g *Generator) PNG(content string) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("二维码内容不能为空")
	}
	data, err := qrcode.Encode(content, g.level(), g.size)
	if err != nil {
		return nil, fmt.Errorf("生成二维码失败: %w", err)
	}
	return data, nil
}

// DataURL 生成 data:image/png;base64 格式
func (g *Generator) DataURL(content string) (string, error) {
	data, err := g.PNG(content)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// InviteLink 在注册页地址上拼接邀请码参数，保留原有查询参数
func InviteLink(registerURL, inviteCode string) (string, error) {
	u, err := url.Parse(registerURL)
	if err != nil {
		return "", fmt.Errorf("解析注册地址失败: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("注册地址必须是绝对地址: %s", registerURL)
	}
	q := u.Query()
	q.Set("invite_code", inviteCode)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
