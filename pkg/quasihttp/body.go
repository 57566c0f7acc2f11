package quasihttp

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/qiminjie89/quasihttp/internal/protocol"
)

// newBody 按长度约定构造消息体：0 无消息体，>0 原始字节，<0 分块帧
func newBody(r io.Reader, length int64) io.Reader {
	switch {
	case length == 0:
		return nil
	case length > 0:
		return &exactReader{r: r, remaining: length}
	default:
		return protocol.NewChunkReader(r)
	}
}

// exactReader 恰好读取 remaining 字节，源提前结束视为协议错误
type exactReader struct {
	r         io.Reader
	remaining int64
}

func (e *exactReader) Read(p []byte) (int, error) {
	if e.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > e.remaining {
		p = p[:e.remaining]
	}
	n, err := e.r.Read(p)
	e.remaining -= int64(n)
	if err == io.EOF && e.remaining > 0 {
		return n, fmt.Errorf("%w: body short by %d bytes", ErrUnexpectedEnd, e.remaining)
	}
	return n, err
}

// writeBody 按长度约定写出消息体
func writeBody(w io.Writer, length int64, body io.Reader, chunkSize int) error {
	switch {
	case length == 0 || body == nil:
		return nil
	case length > 0:
		n, err := io.CopyN(w, body, length)
		if err == io.EOF {
			return fmt.Errorf("%w: body provided %d of %d bytes", ErrUnexpectedEnd, n, length)
		}
		return err
	default:
		cw := protocol.NewChunkWriter(w, chunkSize)
		if _, err := cw.ReadFrom(body); err != nil {
			return err
		}
		return cw.EndWrites()
	}
}

// bufferBody 将消息体读入内存，超过 limit 返回 ErrBufferLimitExceeded
func bufferBody(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBufferLimitExceeded, limit)
	}
	return data, nil
}

// releasingBody 直接读取连接的响应体，读完、出错或关闭时释放连接
type releasingBody struct {
	r       io.Reader
	release func() error
	once    sync.Once
	closed  atomic.Bool
}

func newReleasingBody(r io.Reader, release func() error) *releasingBody {
	return &releasingBody{r: r, release: release}
}

func (b *releasingBody) Read(p []byte) (int, error) {
	if b.closed.Load() {
		return 0, ErrResponseClosed
	}
	n, err := b.r.Read(p)
	if err != nil {
		b.done()
	}
	return n, err
}

// Close 释放连接，之后的读取返回 ErrResponseClosed
func (b *releasingBody) Close() error {
	b.closed.Store(true)
	return b.done()
}

func (b *releasingBody) done() error {
	var err error
	b.once.Do(func() {
		err = b.release()
	})
	return err
}
