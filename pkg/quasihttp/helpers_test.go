package quasihttp

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qiminjie89/quasihttp/internal/protocol"
)

// fakeTransport 由测试决定如何分配连接
type fakeTransport struct {
	allocate func(ctx context.Context, remote string) (Connection, error)
}

func (f *fakeTransport) AllocateConnection(ctx context.Context, remote string, _ *Options) (Connection, error) {
	return f.allocate(ctx, remote)
}

func transportOf(conn Connection) *fakeTransport {
	return &fakeTransport{allocate: func(context.Context, string) (Connection, error) {
		return conn, nil
	}}
}

// fakeBypass 旁路传输
type fakeBypass func(ctx context.Context, remote string, req *Request) (*Response, error)

func (f fakeBypass) ProcessSendRequest(ctx context.Context, remote string, req *Request, _ *Options) (*Response, error) {
	return f(ctx, remote, req)
}

// scriptedConn 读端返回预置字节，写端记录客户端写出的内容
type scriptedConn struct {
	in       io.Reader
	out      bytes.Buffer
	noReader bool
	noWriter bool
	releases atomic.Int32
}

func newScriptedConn(in []byte) *scriptedConn {
	return &scriptedConn{in: bytes.NewReader(in)}
}

func (c *scriptedConn) Reader() io.Reader {
	if c.noReader {
		return nil
	}
	return c.in
}

func (c *scriptedConn) Writer() io.Writer {
	if c.noWriter {
		return nil
	}
	return &c.out
}

func (c *scriptedConn) Release() error {
	c.releases.Add(1)
	return nil
}

// hangingConn 读取一直阻塞到连接被释放
type hangingConn struct {
	closed    chan struct{}
	started   chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
	releases  atomic.Int32
}

func newHangingConn() *hangingConn {
	return &hangingConn{
		closed:  make(chan struct{}),
		started: make(chan struct{}),
	}
}

func (c *hangingConn) Reader() io.Reader {
	return readerFunc(func([]byte) (int, error) {
		<-c.closed
		return 0, io.ErrClosedPipe
	})
}

func (c *hangingConn) Writer() io.Writer {
	c.startOnce.Do(func() { close(c.started) })
	return io.Discard
}

func (c *hangingConn) Release() error {
	c.releases.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

// pipeConn 基于 net.Pipe 的连接
type pipeConn struct {
	net.Conn
	releases atomic.Int32
}

func (c *pipeConn) Reader() io.Reader { return c.Conn }
func (c *pipeConn) Writer() io.Writer { return c.Conn }

func (c *pipeConn) Release() error {
	c.releases.Add(1)
	return c.Conn.Close()
}

// pipeTransport 每次分配一对 net.Pipe，服务端一侧交给 Server 处理
type pipeTransport struct {
	server *Server

	mu    sync.Mutex
	conns []*pipeConn
}

func (p *pipeTransport) AllocateConnection(ctx context.Context, remote string, _ *Options) (Connection, error) {
	client, server := net.Pipe()
	go p.server.ServeConnection(context.Background(), &pipeConn{Conn: server})

	c := &pipeConn{Conn: client}
	p.mu.Lock()
	p.conns = append(p.conns, c)
	p.mu.Unlock()
	return c, nil
}

func echoHandler(ctx context.Context, req *Request) (*Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		if body, err = io.ReadAll(req.Body); err != nil {
			return nil, err
		}
	}

	resp := &Response{
		StatusCode:    protocol.StatusOK,
		StatusMessage: "OK",
		HTTPVersion:   req.HTTPVersion,
		ContentType:   req.ContentType,
		Header:        req.Header.Clone(),
	}
	if resp.Header == nil {
		resp.Header = Header{}
	}
	resp.Header.Set("X-Method", req.Method)
	resp.Header.Set("X-Target", req.Target)
	if len(body) > 0 {
		resp.Body = bytes.NewReader(body)
		resp.ContentLength = req.ContentLength
	}
	return resp, nil
}

// wireResponse 构造服务端写出的响应字节
func wireResponse(t *testing.T, code int, length int64, body []byte) []byte {
	t.Helper()

	f := &protocol.HeaderFrame{
		Version:           protocol.Version1,
		StatusCode:        int32(code),
		HTTPStatusMessage: protocol.StatusText[code],
		ContentLength:     length,
	}
	payload, err := f.Marshal(DefaultMaxHeaderSize)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, protocol.WriteFrame(&buf, payload))
	switch {
	case length > 0:
		buf.Write(body)
	case length < 0:
		cw := protocol.NewChunkWriter(&buf, 0)
		_, err := cw.Write(body)
		require.NoError(t, err)
		require.NoError(t, cw.EndWrites())
	}
	return buf.Bytes()
}
