// Package quasihttp 实现 quasi-HTTP 客户端编排与服务端收发协议
package quasihttp

import (
	"context"
	"errors"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/qiminjie89/quasihttp/pkg/logger"
	"github.com/qiminjie89/quasihttp/pkg/metrics"
)

// Client 发送编排器
// 每次 Send 在独立的 goroutine 中执行发送协议，并与超时计时器竞争；
// Reset 取消当前所有进行中的传输
type Client struct {
	// Transport 面向连接的传输
	Transport ClientTransport
	// Bypass 旁路传输，设置后优先使用
	Bypass BypassTransport
	// DefaultOptions 客户端级默认选项
	DefaultOptions Options
	// Clock 计时器来源，nil 时使用系统时钟
	Clock clock.Clock

	mu     sync.Mutex
	active map[*transfer]struct{}
}

// NewClient 创建客户端
func NewClient(transport ClientTransport, opts Options) *Client {
	c := &Client{
		Transport:      transport,
		DefaultOptions: opts,
	}
	if b, ok := transport.(BypassTransport); ok {
		c.Bypass = b
	}
	return c
}

// Send 发送请求并等待响应
// opts 为 nil 时使用客户端默认选项
// 未开启响应缓冲时，调用方读完或关闭响应后连接才会释放
func (c *Client) Send(ctx context.Context, remote string, req *Request, opts *Options) (*Response, error) {
	if c.Transport == nil && c.Bypass == nil {
		return nil, ErrMissingDependency
	}
	if req == nil {
		return nil, errors.New("quasihttp: nil request")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s := resolve(opts, &c.DefaultOptions)
	clk := c.clock()
	start := clk.Now()

	t := newTransfer(ctx)
	c.register(t)
	defer c.unregister(t)

	mode := "connection"
	if c.Bypass != nil {
		mode = "bypass"
	}
	logger.Debug("send started",
		zap.String("transfer_id", t.id),
		zap.String("remote", remote),
		zap.String("mode", mode),
		zap.Duration("timeout", s.timeout),
	)

	go c.run(t, remote, req, &s)

	select {
	case <-t.done:
	case <-ctx.Done():
		t.abort(ctx.Err())
	}

	resp, err := t.outcome()
	outcome := outcomeOf(err)
	metrics.ClientSends.WithLabelValues(outcome, mode).Inc()
	metrics.ClientSendDuration.WithLabelValues(outcome).Observe(clk.Since(start).Seconds())

	if err != nil {
		logger.Debug("send failed",
			zap.String("transfer_id", t.id),
			zap.String("remote", remote),
			zap.Error(err),
		)
		return nil, err
	}
	return resp, nil
}

// run 执行发送协议，结果写入 t
func (c *Client) run(t *transfer, remote string, req *Request, s *settings) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("send panic recovered",
				zap.String("transfer_id", t.id),
				zap.Any("panic", r),
			)
			t.abort(errors.New("quasihttp: transport panic"))
		}
	}()

	if c.Bypass != nil {
		t.startTimer(c.clock(), s.timeout)
		resp, err := c.Bypass.ProcessSendRequest(t.ctx, remote, req, &s.effectiveOption)
		if err != nil {
			t.abort(err)
			return
		}
		c.finish(t, resp, false, s)
		return
	}

	conn, err := c.Transport.AllocateConnection(t.ctx, remote, &s.effectiveOption)
	if err != nil {
		t.abort(err)
		return
	}
	if conn == nil {
		t.abort(ErrMissingReaderWriter)
		return
	}
	if !t.attach(conn) {
		// 分配期间已超时或被重置
		conn.Release()
		return
	}
	t.startTimer(c.clock(), s.timeout)

	resp, keep, err := exchange(t.ctx, conn, req, s, t.releaseConnection)
	if err != nil {
		t.abort(err)
		return
	}
	c.finish(t, resp, keep, s)
}

// finish 处理协议得到的响应
func (c *Client) finish(t *transfer, resp *Response, keep bool, s *settings) {
	if resp == nil && s.ensureNonNull {
		t.abort(ErrNoResponse)
		return
	}
	if !t.settle(resp, nil) {
		// 已超时或被重置，丢弃响应
		if resp != nil {
			resp.Close()
		}
		t.releaseConnection()
		return
	}
	if !keep {
		t.releaseConnection()
	}
}

// Reset 取消所有进行中的传输，被取消的 Send 返回 ErrClientReset
// 不影响 Reset 之后发起的 Send
func (c *Client) Reset() {
	c.mu.Lock()
	detached := c.active
	c.active = nil
	c.mu.Unlock()

	metrics.ClientResets.Inc()

	cancelled := 0
	for t := range detached {
		if t.abort(ErrClientReset) {
			cancelled++
		}
	}
	metrics.ClientResetTransfers.Add(float64(cancelled))
	metrics.ClientActiveTransfers.Sub(float64(len(detached)))

	logger.Info("client reset",
		zap.Int("detached", len(detached)),
		zap.Int("cancelled", cancelled),
	)
}

// ActiveTransfers 当前进行中的传输数
func (c *Client) ActiveTransfers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

func (c *Client) register(t *transfer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		c.active = make(map[*transfer]struct{})
	}
	c.active[t] = struct{}{}
	metrics.ClientActiveTransfers.Inc()
}

func (c *Client) unregister(t *transfer) {
	t.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[t]; ok {
		delete(c.active, t)
		metrics.ClientActiveTransfers.Dec()
	}
}

func (c *Client) clock() clock.Clock {
	if c.Clock != nil {
		return c.Clock
	}
	return clock.New()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrSendTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, ErrClientReset):
		return metrics.OutcomeReset
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeError
	}
}
