package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qiminjie89/quasihttp/pkg/logger"
	"github.com/qiminjie89/quasihttp/pkg/quasihttp"
)

// DefaultWebSocketPath 默认升级路径
const DefaultWebSocketPath = "/quasi"

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	Path             string
}

func (c WebSocketConfig) path() string {
	if c.Path == "" {
		return DefaultWebSocketPath
	}
	return c.Path
}

// WebSocketListener WebSocket 服务端监听，每条 WebSocket 连接承载一次交换
type WebSocketListener struct {
	cfg      WebSocketConfig
	upgrader websocket.Upgrader
	ln       net.Listener
	server   *http.Server
	connCh   chan *WebSocketConn
	doneCh   chan struct{}
	once     sync.Once
}

// ListenWebSocket 监听地址并在 cfg.Path 上接受升级请求
func ListenWebSocket(addr string, cfg WebSocketConfig) (*WebSocketListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	l := &WebSocketListener{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
			HandshakeTimeout: cfg.HandshakeTimeout,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ln:     ln,
		connCh: make(chan *WebSocketConn),
		doneCh: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.path(), l.handleWebSocket)
	l.server = &http.Server{Handler: mux}

	go func() {
		if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("websocket listener stopped", zap.Error(err))
		}
	}()
	return l, nil
}

func (l *WebSocketListener) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	wsConn := newWebSocketConn(conn, r.RemoteAddr)
	select {
	case l.connCh <- wsConn:
	case <-l.doneCh:
		conn.Close()
	}
}

// Accept 接受新连接
func (l *WebSocketListener) Accept(ctx context.Context) (quasihttp.Connection, error) {
	select {
	case conn := <-l.connCh:
		return conn, nil
	case <-l.doneCh:
		return nil, http.ErrServerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close 关闭监听
func (l *WebSocketListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.doneCh)
		err = l.server.Close()
	})
	return err
}

// Addr 监听地址
func (l *WebSocketListener) Addr() string {
	return l.ln.Addr().String()
}

// WebSocketTransport WebSocket 客户端传输
type WebSocketTransport struct {
	cfg    WebSocketConfig
	dialer websocket.Dialer
}

// NewWebSocketTransport 创建 WebSocket 客户端传输
func NewWebSocketTransport(cfg WebSocketConfig) *WebSocketTransport {
	return &WebSocketTransport{
		cfg: cfg,
		dialer: websocket.Dialer{
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// AllocateConnection 拨号 ws://remote/path
func (t *WebSocketTransport) AllocateConnection(ctx context.Context, remote string, _ *quasihttp.Options) (quasihttp.Connection, error) {
	u := url.URL{Scheme: "ws", Host: remote, Path: t.cfg.path()}
	conn, resp, err := t.dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return newWebSocketConn(conn, conn.RemoteAddr().String()), nil
}

// WebSocketConn 将 WebSocket 消息序列适配为字节流
// 每次 Write 发送一条二进制消息，Read 按顺序拼接收到的消息
type WebSocketConn struct {
	conn       *websocket.Conn
	remoteAddr string
	cur        io.Reader

	once sync.Once
	err  error
}

func newWebSocketConn(conn *websocket.Conn, remoteAddr string) *WebSocketConn {
	return &WebSocketConn{conn: conn, remoteAddr: remoteAddr}
}

// Read 读取数据，对端正常关闭视为流结束
func (c *WebSocketConn) Read(p []byte) (int, error) {
	for {
		if c.cur == nil {
			mt, r, err := c.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			c.cur = r
		}

		n, err := c.cur.Read(p)
		if err == io.EOF {
			c.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write 写入数据
func (c *WebSocketConn) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Reader 读端
func (c *WebSocketConn) Reader() io.Reader { return c }

// Writer 写端
func (c *WebSocketConn) Writer() io.Writer { return c }

// Release 发送关闭帧并关闭底层连接，可重复调用
func (c *WebSocketConn) Release() error {
	c.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.err = c.conn.Close()
	})
	return c.err
}

// RemoteAddr 返回远程地址
func (c *WebSocketConn) RemoteAddr() string {
	return c.remoteAddr
}
