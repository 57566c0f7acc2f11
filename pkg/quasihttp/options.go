package quasihttp

import (
	"time"

	"github.com/qiminjie89/quasihttp/internal/protocol"
)

// 默认值
const (
	DefaultTimeout                 = 60 * time.Second
	DefaultMaxHeaderSize           = protocol.DefaultMaxHeaderSize
	DefaultResponseBodyBufferLimit = 128 << 20
)

// Options 发送选项，零值与 nil 表示未设置
// 合并顺序：单次调用 → 客户端默认 → 内置默认
type Options struct {
	// Timeout 从连接分配完成（旁路模式为调用开始）起计时，分配阶段受 ctx 与 Reset 约束
	Timeout                 time.Duration
	MaxHeaderSize           int
	ResponseBuffering       *bool
	ResponseBodyBufferLimit int64
	EnsureNonNullResponse   *bool

	// Extra 透传给传输层的附加参数
	Extra map[string]interface{}
}

// Bool 返回 v 的指针，用于设置三态选项
func Bool(v bool) *bool {
	return &v
}

// Merge 以 o 为主，未设置的字段取 fallback
func (o *Options) Merge(fallback *Options) Options {
	var out Options
	if o != nil {
		out = *o
	}
	if fallback == nil {
		return out
	}
	if out.Timeout <= 0 {
		out.Timeout = fallback.Timeout
	}
	if out.MaxHeaderSize <= 0 {
		out.MaxHeaderSize = fallback.MaxHeaderSize
	}
	if out.ResponseBuffering == nil {
		out.ResponseBuffering = fallback.ResponseBuffering
	}
	if out.ResponseBodyBufferLimit <= 0 {
		out.ResponseBodyBufferLimit = fallback.ResponseBodyBufferLimit
	}
	if out.EnsureNonNullResponse == nil {
		out.EnsureNonNullResponse = fallback.EnsureNonNullResponse
	}
	if out.Extra == nil {
		out.Extra = fallback.Extra
	}
	return out
}

// settings 合并后的生效选项
type settings struct {
	timeout         time.Duration
	maxHeaderSize   int
	buffering       bool
	bufferLimit     int64
	ensureNonNull   bool
	effectiveOption Options
}

func resolve(call, client *Options) settings {
	o := call.Merge(client)
	s := settings{
		timeout:       o.Timeout,
		maxHeaderSize: o.MaxHeaderSize,
		buffering:     true,
		bufferLimit:   o.ResponseBodyBufferLimit,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.maxHeaderSize <= 0 {
		s.maxHeaderSize = DefaultMaxHeaderSize
	}
	if o.ResponseBuffering != nil {
		s.buffering = *o.ResponseBuffering
	}
	if s.bufferLimit <= 0 {
		s.bufferLimit = DefaultResponseBodyBufferLimit
	}
	if o.EnsureNonNullResponse != nil {
		s.ensureNonNull = *o.EnsureNonNullResponse
	}

	o.Timeout = s.timeout
	o.MaxHeaderSize = s.maxHeaderSize
	o.ResponseBuffering = Bool(s.buffering)
	o.ResponseBodyBufferLimit = s.bufferLimit
	o.EnsureNonNullResponse = Bool(s.ensureNonNull)
	s.effectiveOption = o
	return s
}

// chunkSize 分块写入的软上限，与头部上限共用一个配置
func (s *settings) chunkSize() int {
	if s.maxHeaderSize > protocol.MaxBodyChunkData {
		return protocol.MaxBodyChunkData
	}
	return s.maxHeaderSize
}
