// Package transport 提供 quasihttp 的传输层实现：TCP、WebSocket、进程内管道与旁路
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/qiminjie89/quasihttp/pkg/quasihttp"
)

// ErrUnknownRemote 进程内传输未注册该地址
var ErrUnknownRemote = errors.New("transport: unknown remote")

// Conn 基于 net.Conn 的连接
type Conn struct {
	conn net.Conn

	once sync.Once
	err  error
}

// NewConn 包装 net.Conn
func NewConn(c net.Conn) *Conn {
	return &Conn{conn: c}
}

// Reader 读端
func (c *Conn) Reader() io.Reader { return c.conn }

// Writer 写端
func (c *Conn) Writer() io.Writer { return c.conn }

// Release 关闭底层连接，可重复调用
func (c *Conn) Release() error {
	c.once.Do(func() {
		c.err = c.conn.Close()
	})
	return c.err
}

// RemoteAddr 返回远程地址
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// TCPTransport TCP 客户端传输，每次 Send 建立一条新连接
type TCPTransport struct {
	DialTimeout time.Duration
}

// AllocateConnection 拨号 remote
func (t *TCPTransport) AllocateConnection(ctx context.Context, remote string, _ *quasihttp.Options) (quasihttp.Connection, error) {
	d := net.Dialer{Timeout: t.DialTimeout}
	c, err := d.DialContext(ctx, "tcp", remote)
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}

// TCPListener TCP 服务端监听
type TCPListener struct {
	ln net.Listener
}

// ListenTCP 监听地址
func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPListener{ln: ln}, nil
}

// Accept 接受新连接，ctx 结束时关闭监听
func (l *TCPListener) Accept(ctx context.Context) (quasihttp.Connection, error) {
	stop := context.AfterFunc(ctx, func() {
		l.ln.Close()
	})
	defer stop()

	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}

// Close 关闭监听
func (l *TCPListener) Close() error {
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr 监听地址
func (l *TCPListener) Addr() string {
	return l.ln.Addr().String()
}
