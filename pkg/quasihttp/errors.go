package quasihttp

import (
	"errors"
	"fmt"

	"github.com/qiminjie89/quasihttp/internal/protocol"
)

// 客户端错误
var (
	ErrMissingDependency   = errors.New("quasihttp: missing dependency: no transport configured")
	ErrMissingReaderWriter = errors.New("quasihttp: no reader/writer for connection")
	ErrSendTimeout         = errors.New("quasihttp: send timeout")
	ErrClientReset         = errors.New("quasihttp: client reset")
	ErrNoResponse          = errors.New("quasihttp: no response")
	ErrBufferLimitExceeded = errors.New("quasihttp: response body buffering limit exceeded")
	ErrResponseClosed      = errors.New("quasihttp: response body closed")
)

// 区分请求侧与响应侧的头部错误，原始错误仍可通过 errors.Is 识别
var (
	ErrRequestHeaders  = errors.New("quasihttp: request headers")
	ErrResponseHeaders = errors.New("quasihttp: response headers")
)

// 服务端错误
var (
	ErrNoHandler    = errors.New("quasihttp: no handler")
	ErrServerClosed = errors.New("quasihttp: server closed")
)

// 协议层错误，便于调用方只引用本包
var (
	ErrChunkTooLarge   = protocol.ErrChunkTooLarge
	ErrHeadersTooLarge = protocol.ErrHeadersTooLarge
	ErrUnexpectedEnd   = protocol.ErrUnexpectedEnd
	ErrBodyEnded       = protocol.ErrBodyEnded
)

func requestHeaderError(err error) error {
	return fmt.Errorf("%w: %w", ErrRequestHeaders, err)
}

func responseHeaderError(err error) error {
	return fmt.Errorf("%w: %w", ErrResponseHeaders, err)
}
