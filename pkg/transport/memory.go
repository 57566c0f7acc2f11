package transport

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/qiminjie89/quasihttp/pkg/logger"
	"github.com/qiminjie89/quasihttp/pkg/quasihttp"
)

// MemoryTransport 进程内传输：按地址注册 Server，每次分配一对 net.Pipe
type MemoryTransport struct {
	mu      sync.RWMutex
	servers map[string]*quasihttp.Server
	wg      sync.WaitGroup
}

// NewMemoryTransport 创建进程内传输
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		servers: make(map[string]*quasihttp.Server),
	}
}

// Register 注册 remote 对应的服务端
func (t *MemoryTransport) Register(remote string, s *quasihttp.Server) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.servers[remote] = s
}

// AllocateConnection 建立管道，服务端一侧交给注册的 Server 处理
func (t *MemoryTransport) AllocateConnection(ctx context.Context, remote string, _ *quasihttp.Options) (quasihttp.Connection, error) {
	t.mu.RLock()
	s, ok := t.servers[remote]
	t.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownRemote
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, server := net.Pipe()
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := s.ServeConnection(context.Background(), NewConn(server)); err != nil {
			logger.Debug("memory connection finished with error",
				zap.String("remote", remote),
				zap.Error(err),
			)
		}
	}()
	return NewConn(client), nil
}

// Wait 等待所有服务端处理结束
func (t *MemoryTransport) Wait() {
	t.wg.Wait()
}

// BypassTransport 旁路传输：直接调用 Handler，不经过帧编码
type BypassTransport struct {
	mu       sync.RWMutex
	handlers map[string]quasihttp.Handler
}

// NewBypassTransport 创建旁路传输
func NewBypassTransport() *BypassTransport {
	return &BypassTransport{handlers: make(map[string]quasihttp.Handler)}
}

// Register 注册 remote 对应的 Handler
func (t *BypassTransport) Register(remote string, h quasihttp.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[remote] = h
}

// ProcessSendRequest 直接交换请求与响应对象
func (t *BypassTransport) ProcessSendRequest(ctx context.Context, remote string, req *quasihttp.Request, _ *quasihttp.Options) (*quasihttp.Response, error) {
	t.mu.RLock()
	h, ok := t.handlers[remote]
	t.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownRemote
	}
	return h.ServeQuasi(ctx, req)
}
