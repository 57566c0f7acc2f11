// Package config 提供配置加载功能
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/qiminjie89/quasihttp/pkg/quasihttp"
)

// ClientConfig 客户端配置
type ClientConfig struct {
	Remote    string              `yaml:"remote"`
	Services  map[string][]string `yaml:"services"` // 服务名 → 实例地址
	Transport TransportConfig     `yaml:"transport"`
	Send      SendConfig          `yaml:"send"`
	Auth      AuthConfig          `yaml:"auth"`
	Log       LogConfig           `yaml:"log"`
}

// ServerConfig 服务端配置
type ServerConfig struct {
	Server    ListenConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ListenConfig 服务端监听配置
type ListenConfig struct {
	Addr              string        `yaml:"addr"`
	MaxHeaderSize     int           `yaml:"max_header_size"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`
}

// TransportConfig 传输层配置
type TransportConfig struct {
	Network          string        `yaml:"network"` // tcp, ws
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	ReadBufferSize   int           `yaml:"read_buffer_size"`
	WriteBufferSize  int           `yaml:"write_buffer_size"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	Path             string        `yaml:"path"` // WebSocket 路径
}

// SendConfig 发送选项（客户端默认值，可被单次调用覆盖）
type SendConfig struct {
	Timeout                 time.Duration `yaml:"timeout"`
	MaxHeaderSize           int           `yaml:"max_header_size"`
	ResponseBuffering       *bool         `yaml:"response_buffering,omitempty"`
	ResponseBodyBufferLimit int64         `yaml:"response_body_buffer_limit"`
	EnsureNonNullResponse   *bool         `yaml:"ensure_non_null_response,omitempty"`
}

// Options 转换为客户端默认发送选项
func (c SendConfig) Options() quasihttp.Options {
	return quasihttp.Options{
		Timeout:                 c.Timeout,
		MaxHeaderSize:           c.MaxHeaderSize,
		ResponseBuffering:       c.ResponseBuffering,
		ResponseBodyBufferLimit: c.ResponseBodyBufferLimit,
		EnsureNonNullResponse:   c.EnsureNonNullResponse,
	}
}

// AuthConfig JWT 配置
type AuthConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Secret   string        `yaml:"secret"`
	ClientID string        `yaml:"client_id"`
	Expiry   time.Duration `yaml:"expiry"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoadClientConfig 加载客户端配置
func LoadClientConfig(path string) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Transport.Network == "" {
		cfg.Transport.Network = "tcp"
	}
	return &cfg, nil
}

// LoadServerConfig 加载服务端配置
func LoadServerConfig(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Transport.Network == "" {
		cfg.Transport.Network = "tcp"
	}
	return &cfg, nil
}

func load(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
