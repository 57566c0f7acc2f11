package quasihttp

import (
	"context"
	"io"
)

// Connection 传输层分配的连接句柄，在一次传输期间由该传输独占
type Connection interface {
	// Reader 返回读端，不可读时返回 nil
	Reader() io.Reader
	// Writer 返回写端，不可写时返回 nil
	Writer() io.Writer
	// Release 释放连接，每个连接只会被调用一次
	Release() error
}

// ClientTransport 面向连接的传输
type ClientTransport interface {
	AllocateConnection(ctx context.Context, remote string, opts *Options) (Connection, error)
}

// BypassTransport 旁路传输：进程内直接交换请求与响应对象，不经过帧编码
type BypassTransport interface {
	ProcessSendRequest(ctx context.Context, remote string, req *Request, opts *Options) (*Response, error)
}

// Listener 服务端接受连接
type Listener interface {
	Accept(ctx context.Context) (Connection, error)
	Close() error
	Addr() string
}
