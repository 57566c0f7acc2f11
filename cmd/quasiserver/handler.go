package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qiminjie89/quasihttp/internal/protocol"
	"github.com/qiminjie89/quasihttp/pkg/auth"
	"github.com/qiminjie89/quasihttp/pkg/quasihttp"
)

// HeaderRequestID 服务端为每个请求生成的 ID
const HeaderRequestID = "X-Request-Id"

// InfoReply /info 的 msgpack 响应
type InfoReply struct {
	RequestID  string `msgpack:"request_id"`
	ClientID   string `msgpack:"client_id,omitempty"`
	RemoteAddr string `msgpack:"remote_addr"`
	ServerTime int64  `msgpack:"server_time"`
}

// router 按请求目标分发
type router struct {
	routes map[string]quasihttp.HandlerFunc
}

func newRouter() *router {
	r := &router{routes: make(map[string]quasihttp.HandlerFunc)}
	r.routes["/echo"] = handleEcho
	r.routes["/info"] = handleInfo
	return r
}

// ServeQuasi 分发请求并附加请求 ID
func (r *router) ServeQuasi(ctx context.Context, req *quasihttp.Request) (*quasihttp.Response, error) {
	requestID := uuid.NewString()

	path := req.Target
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	h, ok := r.routes[path]
	var resp *quasihttp.Response
	if !ok {
		resp = quasihttp.NewResponse(protocol.StatusNotFound, strings.NewReader("no route for "+path))
		resp.ContentType = protocol.ContentTypeText
	} else {
		var err error
		resp, err = h(context.WithValue(ctx, requestIDKey{}, requestID), req)
		if err != nil {
			return nil, err
		}
	}
	if resp.Header == nil {
		resp.Header = quasihttp.Header{}
	}
	resp.Header.Set(HeaderRequestID, requestID)
	return resp, nil
}

type requestIDKey struct{}

// handleEcho 原样返回请求体，保持请求的长度约定
func handleEcho(_ context.Context, req *quasihttp.Request) (*quasihttp.Response, error) {
	resp := quasihttp.NewResponse(protocol.StatusOK, nil)
	resp.ContentType = req.ContentType
	if req.Body == nil {
		return resp, nil
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	resp.Body = bytes.NewReader(data)
	resp.ContentLength = int64(len(data))
	if req.ContentLength < 0 {
		resp.ContentLength = -1
	}
	return resp, nil
}

// handleInfo 返回请求上下文信息
func handleInfo(ctx context.Context, req *quasihttp.Request) (*quasihttp.Response, error) {
	reply := InfoReply{
		RemoteAddr: req.RemoteAddr,
		ServerTime: time.Now().UnixMilli(),
	}
	reply.RequestID, _ = ctx.Value(requestIDKey{}).(string)
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		reply.ClientID = claims.ClientID
	}

	resp := quasihttp.NewResponse(protocol.StatusOK, nil)
	if err := resp.SetMsgpackBody(reply); err != nil {
		return nil, err
	}
	return resp, nil
}
