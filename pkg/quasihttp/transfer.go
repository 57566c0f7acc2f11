package quasihttp

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// transfer 一次进行中的 Send
// 结果槽只写一次：先到的结果（协议完成、超时、重置、调用方取消）生效
type transfer struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	settled bool
	resp    *Response
	err     error
	conn    Connection
	timer   *clock.Timer

	releaseOnce sync.Once
	releaseErr  error
}

func newTransfer(parent context.Context) *transfer {
	ctx, cancel := context.WithCancel(parent)
	return &transfer{
		id:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// settle 写入结果，已有结果时返回 false
func (t *transfer) settle(resp *Response, err error) bool {
	t.mu.Lock()
	if t.settled {
		t.mu.Unlock()
		return false
	}
	t.settled = true
	t.resp, t.err = resp, err
	timer := t.timer
	close(t.done)
	t.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	return true
}

// abort 以 err 结束传输，取消进行中的 I/O 并释放连接
func (t *transfer) abort(err error) bool {
	if !t.settle(nil, err) {
		return false
	}
	t.cancel()
	t.releaseConnection()
	return true
}

// attach 绑定已分配的连接，传输已结束时返回 false，连接由调用方释放
func (t *transfer) attach(conn Connection) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.settled {
		return false
	}
	t.conn = conn
	return true
}

// startTimer 启动超时计时
func (t *transfer) startTimer(clk clock.Clock, d time.Duration) {
	timer := clk.AfterFunc(d, func() {
		t.abort(ErrSendTimeout)
	})

	t.mu.Lock()
	settled := t.settled
	if !settled {
		t.timer = timer
	}
	t.mu.Unlock()

	if settled {
		timer.Stop()
	}
}

// releaseConnection 释放连接，每个连接只释放一次
func (t *transfer) releaseConnection() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	t.releaseOnce.Do(func() {
		t.releaseErr = conn.Release()
	})
	return t.releaseErr
}

func (t *transfer) outcome() (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resp, t.err
}
