package quasihttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/quasihttp/internal/protocol"
	"github.com/qiminjie89/quasihttp/pkg/logger"
	"github.com/qiminjie89/quasihttp/pkg/metrics"
)

// Handler 处理一次请求
type Handler interface {
	ServeQuasi(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc 函数形式的 Handler
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// ServeQuasi 调用 f
func (f HandlerFunc) ServeQuasi(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Server 服务端接收协议
// 每个连接承载一次请求/响应交换
type Server struct {
	Handler           Handler
	MaxHeaderSize     int
	ProcessingTimeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// remoteAddresser 可提供对端地址的连接
type remoteAddresser interface {
	RemoteAddr() string
}

// ServeConnection 在连接上读取请求、调用 Handler 并写回响应，结束后释放连接
func (s *Server) ServeConnection(ctx context.Context, conn Connection) error {
	metrics.ServerActiveConnections.Inc()
	defer metrics.ServerActiveConnections.Dec()

	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			if err := conn.Release(); err != nil {
				logger.Debug("release connection failed", zap.Error(err))
			}
		})
	}
	defer release()

	if s.Handler == nil {
		metrics.ServerConnectionAborts.WithLabelValues("no_handler").Inc()
		return ErrNoHandler
	}
	r, w := conn.Reader(), conn.Writer()
	if r == nil || w == nil {
		metrics.ServerConnectionAborts.WithLabelValues("no_reader_writer").Inc()
		return ErrMissingReaderWriter
	}

	if s.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ProcessingTimeout)
		defer cancel()
	}
	// 超时或关闭时释放连接，中断阻塞的读写
	stop := context.AfterFunc(ctx, release)
	defer stop()

	maxHeaderSize := s.maxHeaderSize()
	start := time.Now()

	frame, err := readHeader(r, maxHeaderSize, requestHeaderError)
	if err != nil {
		metrics.ServerConnectionAborts.WithLabelValues("bad_request").Inc()
		if errors.Is(err, ErrRequestHeaders) {
			s.writeError(w, protocol.StatusBadRequest, err)
		}
		return err
	}
	if frame == nil {
		metrics.ServerConnectionAborts.WithLabelValues("empty").Inc()
		return nil
	}

	req := requestFromFrame(frame)
	req.Body = newBody(r, frame.ContentLength)
	if a, ok := conn.(remoteAddresser); ok {
		req.RemoteAddr = a.RemoteAddr()
	}

	resp, err := s.invoke(ctx, req)
	if err == nil && resp == nil {
		err = ErrNoResponse
	}
	// 对端写完请求体之前不会读取响应
	if ctx.Err() == nil && (resp == nil || resp.Body != req.Body) {
		if derr := drainBody(req.Body); derr != nil {
			metrics.ServerConnectionAborts.WithLabelValues("bad_request").Inc()
			if resp != nil {
				resp.Close()
			}
			return fmt.Errorf("quasihttp: drain request body: %w", derr)
		}
	}
	if err != nil {
		logger.Warn("handler failed",
			zap.String("method", req.Method),
			zap.String("target", req.Target),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			metrics.ServerConnectionAborts.WithLabelValues("timeout").Inc()
			return err
		}
		metrics.ServerRequests.WithLabelValues(metrics.StatusClass(protocol.StatusInternalServerError)).Inc()
		s.writeError(w, protocol.StatusInternalServerError, err)
		return err
	}
	defer resp.Close()

	if err := s.writeResponse(w, resp, maxHeaderSize); err != nil {
		metrics.ServerConnectionAborts.WithLabelValues("write_failed").Inc()
		return err
	}

	metrics.ServerRequests.WithLabelValues(metrics.StatusClass(resp.StatusCode)).Inc()
	metrics.ServerRequestDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Serve 循环接受连接并逐个处理，ctx 结束或 Close 后返回 ErrServerClosed
func (s *Server) Serve(ctx context.Context, l Listener) error {
	logger.Info("quasihttp server serving", zap.String("addr", l.Addr()))

	stop := context.AfterFunc(ctx, func() {
		l.Close()
	})
	defer stop()

	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				s.wg.Wait()
				return ErrServerClosed
			}
			logger.Error("accept failed", zap.Error(err))
			s.wg.Wait()
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.ServeConnection(ctx, conn); err != nil {
				logger.Debug("connection finished with error", zap.Error(err))
			}
		}()
	}
}

// Close 标记服务关闭，配合 Listener.Close 结束 Serve
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) maxHeaderSize() int {
	if s.MaxHeaderSize > 0 {
		return s.MaxHeaderSize
	}
	return DefaultMaxHeaderSize
}

// invoke 调用 Handler，panic 转为错误
func (s *Server) invoke(ctx context.Context, req *Request) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic recovered",
				zap.String("target", req.Target),
				zap.Any("panic", r),
			)
			resp, err = nil, fmt.Errorf("quasihttp: handler panic: %v", r)
		}
	}()
	return s.Handler.ServeQuasi(ctx, req)
}

func (s *Server) writeResponse(w io.Writer, resp *Response, maxHeaderSize int) error {
	if err := writeHeader(w, resp.headerFrame(), maxHeaderSize, responseHeaderError); err != nil {
		return err
	}
	chunkSize := min(maxHeaderSize, protocol.MaxBodyChunkData)
	if err := writeBody(w, effectiveLength(resp.ContentLength, resp.Body), resp.Body, chunkSize); err != nil {
		return fmt.Errorf("quasihttp: write response body: %w", err)
	}
	return nil
}

// drainBody 丢弃 Handler 未读完的请求体
func drainBody(body io.Reader) error {
	if body == nil {
		return nil
	}
	_, err := io.Copy(io.Discard, body)
	if errors.Is(err, protocol.ErrBodyEnded) {
		return nil
	}
	return err
}

// writeError 尽力写回错误响应，失败则放弃
func (s *Server) writeError(w io.Writer, code int, cause error) {
	resp := NewResponse(code, strings.NewReader(cause.Error()))
	resp.ContentType = protocol.ContentTypeText
	if err := s.writeResponse(w, resp, s.maxHeaderSize()); err != nil {
		logger.Debug("write error response failed", zap.Error(err))
	}
}
