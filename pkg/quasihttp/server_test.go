package quasihttp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qiminjie89/quasihttp/internal/protocol"
)

func sendTo(t *testing.T, h Handler, req *Request) (*Response, error) {
	t.Helper()
	transport := &pipeTransport{server: &Server{Handler: h}}
	c := NewClient(transport, Options{Timeout: 5 * time.Second})
	return c.Send(context.Background(), "pipe", req, nil)
}

func readBody(t *testing.T, resp *Response) string {
	t.Helper()
	if resp.Body == nil {
		return ""
	}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestServerHandlerError(t *testing.T) {
	h := HandlerFunc(func(context.Context, *Request) (*Response, error) {
		return nil, errors.New("backend unavailable")
	})
	resp, err := sendTo(t, h, NewRequest(protocol.MethodGet, "/fail", nil))
	require.NoError(t, err)
	require.Equal(t, protocol.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "Internal Server Error", resp.StatusMessage)
	require.Equal(t, protocol.ContentTypeText, resp.ContentType)
	require.Equal(t, "backend unavailable", readBody(t, resp))
}

func TestServerHandlerPanic(t *testing.T) {
	h := HandlerFunc(func(context.Context, *Request) (*Response, error) {
		panic("boom")
	})
	resp, err := sendTo(t, h, NewRequest(protocol.MethodGet, "/panic", nil))
	require.NoError(t, err)
	require.Equal(t, protocol.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "boom")
}

func TestServerNilResponse(t *testing.T) {
	h := HandlerFunc(func(context.Context, *Request) (*Response, error) {
		return nil, nil
	})
	resp, err := sendTo(t, h, NewRequest(protocol.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, protocol.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, readBody(t, resp), ErrNoResponse.Error())
}

func TestServerUnreadRequestBody(t *testing.T) {
	notFound := HandlerFunc(func(context.Context, *Request) (*Response, error) {
		return NewResponse(protocol.StatusNotFound, nil), nil
	})
	failing := HandlerFunc(func(context.Context, *Request) (*Response, error) {
		return nil, errors.New("rejected")
	})
	large := bytes.Repeat([]byte("x"), 256<<10)

	cases := []struct {
		name    string
		handler Handler
		body    func() io.Reader
		length  int64
		status  int
	}{
		{"known length", notFound, func() io.Reader { return bytes.NewReader([]byte("hello")) }, 5, protocol.StatusNotFound},
		{"chunked", notFound, func() io.Reader { return io.MultiReader(bytes.NewReader([]byte("hello"))) }, -1, protocol.StatusNotFound},
		{"large known length", notFound, func() io.Reader { return bytes.NewReader(large) }, int64(len(large)), protocol.StatusNotFound},
		{"large chunked", notFound, func() io.Reader { return io.MultiReader(bytes.NewReader(large)) }, -1, protocol.StatusNotFound},
		{"handler error", failing, func() io.Reader { return bytes.NewReader([]byte("hello")) }, 5, protocol.StatusInternalServerError},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := NewRequest(protocol.MethodPost, "/nope", c.body())
			require.Equal(t, c.length, req.ContentLength)

			start := time.Now()
			resp, err := sendTo(t, c.handler, req)
			require.NoError(t, err)
			require.Equal(t, c.status, resp.StatusCode)
			require.Less(t, time.Since(start), 2*time.Second)
		})
	}
}

func TestServerPartiallyReadRequestBody(t *testing.T) {
	h := HandlerFunc(func(_ context.Context, req *Request) (*Response, error) {
		buf := make([]byte, 3)
		if _, err := io.ReadFull(req.Body, buf); err != nil {
			return nil, err
		}
		return NewResponse(protocol.StatusOK, bytes.NewReader(buf)), nil
	})

	req := NewRequest(protocol.MethodPost, "/head", io.MultiReader(bytes.NewReader([]byte("car seat"))))
	resp, err := sendTo(t, h, req)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusOK, resp.StatusCode)
	require.Equal(t, "car", readBody(t, resp))
}

func TestServerRequestFields(t *testing.T) {
	var got *Request
	var body []byte
	h := HandlerFunc(func(_ context.Context, req *Request) (*Response, error) {
		got = req
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		resp := NewResponse(protocol.StatusOK, nil)
		if err := resp.SetMsgpackBody(map[string]int{"n": len(body)}); err != nil {
			return nil, err
		}
		return resp, nil
	})

	req := NewRequest(protocol.MethodPost, "/items?id=7", bytes.NewBufferString("payload"))
	req.HTTPVersion = "1.1"
	req.ContentType = protocol.ContentTypeOctetStream
	req.Header.Add("X-Multi", "1")
	req.Header.Add("X-Multi", "2")

	resp, err := sendTo(t, h, req)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusOK, resp.StatusCode)
	require.Equal(t, protocol.ContentTypeMsgpack, resp.ContentType)

	var out map[string]int
	require.NoError(t, DecodeMsgpackBody(resp.Body, &out))
	require.Equal(t, 7, out["n"])

	require.Equal(t, protocol.MethodPost, got.Method)
	require.Equal(t, "/items?id=7", got.Target)
	require.Equal(t, "1.1", got.HTTPVersion)
	require.EqualValues(t, 7, got.ContentLength)
	require.Equal(t, protocol.ContentTypeOctetStream, got.ContentType)
	require.Equal(t, []string{"1", "2"}, got.Header.Values("X-Multi"))
	require.Equal(t, "payload", string(body))
}

func TestServerBadRequestHeaders(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	s := &Server{Handler: HandlerFunc(echoHandler)}
	done := make(chan error, 1)
	go func() {
		done <- s.ServeConnection(context.Background(), &pipeConn{Conn: server})
	}()

	_, err := client.Write([]byte{0, 3, 7, 0, 0})
	require.NoError(t, err)

	payload, err := protocol.ReadFrame(client)
	require.NoError(t, err)
	f, err := protocol.UnmarshalHeaderFrame(payload, 0)
	require.NoError(t, err)
	require.EqualValues(t, protocol.StatusBadRequest, f.StatusCode)

	body, err := io.ReadAll(io.LimitReader(client, f.ContentLength))
	require.NoError(t, err)
	require.Contains(t, string(body), "request headers")

	err = <-done
	require.ErrorIs(t, err, ErrRequestHeaders)
	require.ErrorIs(t, err, protocol.ErrInvalidVersion)
}

func TestServerEmptyConnection(t *testing.T) {
	conn := newScriptedConn(nil)
	s := &Server{Handler: HandlerFunc(echoHandler)}
	require.NoError(t, s.ServeConnection(context.Background(), conn))
	require.Zero(t, conn.out.Len())
	require.EqualValues(t, 1, conn.releases.Load())
}

func TestServerNoHandler(t *testing.T) {
	conn := newScriptedConn(nil)
	s := &Server{}
	require.ErrorIs(t, s.ServeConnection(context.Background(), conn), ErrNoHandler)
	require.EqualValues(t, 1, conn.releases.Load())
}

func TestServerProcessingTimeout(t *testing.T) {
	conn := newHangingConn()
	s := &Server{Handler: HandlerFunc(echoHandler), ProcessingTimeout: 20 * time.Millisecond}

	err := s.ServeConnection(context.Background(), conn)
	require.Error(t, err)
	require.EqualValues(t, 1, conn.releases.Load())
}

// chanListener 测试用监听器
type chanListener struct {
	conns     chan Connection
	done      chan struct{}
	closeOnce sync.Once
}

func newChanListener() *chanListener {
	return &chanListener{conns: make(chan Connection), done: make(chan struct{})}
}

func (l *chanListener) Accept(ctx context.Context) (Connection, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *chanListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

func (l *chanListener) Addr() string { return "chan" }

func TestServeListener(t *testing.T) {
	l := newChanListener()
	s := &Server{Handler: HandlerFunc(echoHandler)}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, l) }()

	c := NewClient(&fakeTransport{allocate: func(ctx context.Context, _ string) (Connection, error) {
		client, server := net.Pipe()
		select {
		case l.conns <- &pipeConn{Conn: server}:
			return &pipeConn{Conn: client}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}, Options{})

	for i := 0; i < 3; i++ {
		resp, err := c.Send(context.Background(), "chan", NewRequest(protocol.MethodPost, "/echo", bytes.NewReader([]byte("ping"))), nil)
		require.NoError(t, err)
		require.Equal(t, "ping", readBody(t, resp))
	}

	cancel()
	select {
	case err := <-served:
		require.ErrorIs(t, err, ErrServerClosed)
	case <-time.After(time.Second):
		t.Fatal("serve did not stop")
	}
}
