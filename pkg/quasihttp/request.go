package quasihttp

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/qiminjie89/quasihttp/internal/protocol"
)

// Request quasi-HTTP 请求
//
// ContentLength 约定：0 表示无消息体；>0 表示 Body 恰好提供这么多字节，
// 按原始字节发送；<0 表示长度未知，按消息体帧分块发送。
// Body 为 nil 时按无消息体处理。
type Request struct {
	Method        string
	Target        string
	HTTPVersion   string
	ContentLength int64
	ContentType   string
	Header        Header
	Body          io.Reader

	// RemoteAddr 服务端填充的对端地址
	RemoteAddr string
}

// NewRequest 创建请求，能确定长度的 body 自动填充 ContentLength
func NewRequest(method, target string, body io.Reader) *Request {
	req := &Request{
		Method: method,
		Target: target,
		Header: Header{},
	}
	if body == nil {
		return req
	}

	req.Body = body
	switch v := body.(type) {
	case *bytes.Buffer:
		req.ContentLength = int64(v.Len())
	case *bytes.Reader:
		req.ContentLength = int64(v.Len())
	case *strings.Reader:
		req.ContentLength = int64(v.Len())
	default:
		req.ContentLength = -1
	}
	if req.ContentLength == 0 {
		req.Body = nil
	}
	return req
}

// SetMsgpackBody 以 msgpack 编码 v 作为请求体
func (r *Request) SetMsgpackBody(v interface{}) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	r.Body = bytes.NewReader(data)
	r.ContentLength = int64(len(data))
	r.ContentType = protocol.ContentTypeMsgpack
	return nil
}

func (r *Request) headerFrame() *protocol.HeaderFrame {
	return &protocol.HeaderFrame{
		Version:       protocol.Version1,
		Method:        r.Method,
		RequestTarget: r.Target,
		HTTPVersion:   r.HTTPVersion,
		ContentLength: effectiveLength(r.ContentLength, r.Body),
		ContentType:   r.ContentType,
		Headers:       r.Header,
	}
}

func requestFromFrame(f *protocol.HeaderFrame) *Request {
	return &Request{
		Method:        f.Method,
		Target:        f.RequestTarget,
		HTTPVersion:   f.HTTPVersion,
		ContentLength: f.ContentLength,
		ContentType:   f.ContentType,
		Header:        f.Headers,
	}
}

// Response quasi-HTTP 响应
//
// 未开启缓冲时 Body 直接读取连接，读到结尾或调用 Close 后释放连接。
type Response struct {
	StatusCode    int
	StatusMessage string
	HTTPVersion   string
	ContentLength int64
	ContentType   string
	Header        Header
	Body          io.Reader

	closeOnce sync.Once
	release   func() error
	closeErr  error
}

// NewResponse 创建响应
func NewResponse(statusCode int, body io.Reader) *Response {
	resp := &Response{
		StatusCode:    statusCode,
		StatusMessage: protocol.StatusText[statusCode],
		Header:        Header{},
	}
	if body != nil {
		req := NewRequest("", "", body)
		resp.Body = req.Body
		resp.ContentLength = req.ContentLength
	}
	return resp
}

// SetMsgpackBody 以 msgpack 编码 v 作为响应体
func (r *Response) SetMsgpackBody(v interface{}) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	r.Body = bytes.NewReader(data)
	r.ContentLength = int64(len(data))
	r.ContentType = protocol.ContentTypeMsgpack
	return nil
}

// IsSuccess 状态码是否为 2xx
func (r *Response) IsSuccess() bool {
	return protocol.IsSuccess(r.StatusCode)
}

// SetReleaseFunc 设置响应关闭时的释放动作，供传输层使用
func (r *Response) SetReleaseFunc(fn func() error) {
	r.release = fn
}

// Close 释放响应占用的资源，可重复调用
func (r *Response) Close() error {
	r.closeOnce.Do(func() {
		if c, ok := r.Body.(io.Closer); ok {
			r.closeErr = c.Close()
		}
		if r.release != nil {
			if err := r.release(); err != nil && r.closeErr == nil {
				r.closeErr = err
			}
		}
	})
	return r.closeErr
}

func (r *Response) headerFrame() *protocol.HeaderFrame {
	return &protocol.HeaderFrame{
		Version:           protocol.Version1,
		StatusCode:        int32(r.StatusCode),
		HTTPStatusMessage: r.StatusMessage,
		HTTPVersion:       r.HTTPVersion,
		ContentLength:     effectiveLength(r.ContentLength, r.Body),
		ContentType:       r.ContentType,
		Headers:           r.Header,
	}
}

func responseFromFrame(f *protocol.HeaderFrame) *Response {
	return &Response{
		StatusCode:    int(f.StatusCode),
		StatusMessage: f.HTTPStatusMessage,
		HTTPVersion:   f.HTTPVersion,
		ContentLength: f.ContentLength,
		ContentType:   f.ContentType,
		Header:        Header(f.Headers),
	}
}

// DecodeMsgpackBody 读取全部消息体并以 msgpack 解码
func DecodeMsgpackBody(body io.Reader, v interface{}) error {
	if body == nil {
		return ErrNoResponse
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	return protocol.Decode(data, v)
}

func effectiveLength(n int64, body io.Reader) int64 {
	if body == nil {
		return 0
	}
	return n
}
