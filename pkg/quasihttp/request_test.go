package quasihttp

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qiminjie89/quasihttp/internal/protocol"
)

func TestNewRequestLength(t *testing.T) {
	require.EqualValues(t, 3, NewRequest("GET", "/", strings.NewReader("abc")).ContentLength)
	require.EqualValues(t, 2, NewRequest("GET", "/", bytes.NewReader([]byte("ab"))).ContentLength)
	require.EqualValues(t, 4, NewRequest("GET", "/", bytes.NewBufferString("abcd")).ContentLength)
	require.EqualValues(t, -1, NewRequest("GET", "/", io.MultiReader(strings.NewReader("x"))).ContentLength)

	req := NewRequest("GET", "/", strings.NewReader(""))
	require.Zero(t, req.ContentLength)
	require.Nil(t, req.Body)

	req = NewRequest("GET", "/", nil)
	require.Zero(t, req.ContentLength)
	require.NotNil(t, req.Header)

	// 无消息体时忽略声明的长度
	req = &Request{ContentLength: 10}
	require.Zero(t, req.headerFrame().ContentLength)
}

func TestRequestMsgpackBody(t *testing.T) {
	type payload struct {
		Name  string
		Count int
	}

	req := NewRequest(protocol.MethodPost, "/rpc", nil)
	require.NoError(t, req.SetMsgpackBody(payload{Name: "a", Count: 2}))
	require.Equal(t, protocol.ContentTypeMsgpack, req.ContentType)
	require.Positive(t, req.ContentLength)

	var got payload
	require.NoError(t, DecodeMsgpackBody(req.Body, &got))
	require.Equal(t, payload{Name: "a", Count: 2}, got)

	require.ErrorIs(t, DecodeMsgpackBody(nil, &got), ErrNoResponse)
}

func TestFrameConversion(t *testing.T) {
	resp := NewResponse(protocol.StatusNotFound, strings.NewReader("missing"))
	resp.Header.Set("X-Id", "1")
	f := resp.headerFrame()
	require.EqualValues(t, protocol.StatusNotFound, f.StatusCode)
	require.Equal(t, "Not Found", f.HTTPStatusMessage)
	require.EqualValues(t, 7, f.ContentLength)

	back := responseFromFrame(f)
	require.Equal(t, resp.StatusCode, back.StatusCode)
	require.Equal(t, resp.StatusMessage, back.StatusMessage)
	require.Equal(t, resp.Header, back.Header)

	req := &Request{Method: "GET", Target: "/x", HTTPVersion: "1.0", Header: nil}
	got := requestFromFrame(req.headerFrame())
	require.Equal(t, "GET", got.Method)
	require.Equal(t, "/x", got.Target)
	require.Nil(t, got.Header)
}

func TestHeader(t *testing.T) {
	h := Header{}
	h.Add("k", "1")
	h.Add("k", "2")
	require.Equal(t, "1", h.Get("k"))
	require.Equal(t, []string{"1", "2"}, h.Values("k"))

	h.Set("k", "3")
	require.Equal(t, []string{"3"}, h.Values("k"))
	require.Empty(t, h.Get("missing"))

	h["nil"] = nil
	c := h.Clone()
	require.Equal(t, h, c)
	require.Nil(t, c["nil"])
	c.Add("k", "4")
	require.Equal(t, []string{"3"}, h.Values("k"))

	h.Del("k")
	require.NotContains(t, h, "k")
	require.Nil(t, Header(nil).Clone())
}

func TestResolveOptions(t *testing.T) {
	s := resolve(nil, nil)
	require.Equal(t, DefaultTimeout, s.timeout)
	require.Equal(t, DefaultMaxHeaderSize, s.maxHeaderSize)
	require.True(t, s.buffering)
	require.EqualValues(t, DefaultResponseBodyBufferLimit, s.bufferLimit)
	require.False(t, s.ensureNonNull)

	client := &Options{
		Timeout:               time.Second,
		MaxHeaderSize:         1024,
		ResponseBuffering:     Bool(false),
		EnsureNonNullResponse: Bool(true),
		Extra:                 map[string]interface{}{"k": "client"},
	}
	s = resolve(nil, client)
	require.Equal(t, time.Second, s.timeout)
	require.Equal(t, 1024, s.maxHeaderSize)
	require.False(t, s.buffering)
	require.True(t, s.ensureNonNull)

	call := &Options{Timeout: 2 * time.Second, ResponseBuffering: Bool(true)}
	s = resolve(call, client)
	require.Equal(t, 2*time.Second, s.timeout)
	require.Equal(t, 1024, s.maxHeaderSize)
	require.True(t, s.buffering)
	require.True(t, s.ensureNonNull)
	require.Equal(t, "client", s.effectiveOption.Extra["k"])
	require.Equal(t, 2*time.Second, s.effectiveOption.Timeout)

	s = resolve(&Options{MaxHeaderSize: 1 << 20}, nil)
	require.Equal(t, protocol.MaxBodyChunkData, s.chunkSize())
}

func TestExactReader(t *testing.T) {
	r := newBody(strings.NewReader("abcdef"), 4)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "abcd", string(data))

	_, err = io.ReadAll(newBody(strings.NewReader("ab"), 4))
	require.ErrorIs(t, err, ErrUnexpectedEnd)

	require.Nil(t, newBody(strings.NewReader("ab"), 0))
}

func TestWriteBodyShortSource(t *testing.T) {
	err := writeBody(io.Discard, 10, strings.NewReader("abc"), 0)
	require.ErrorIs(t, err, ErrUnexpectedEnd)

	srcErr := errors.New("source failed")
	err = writeBody(io.Discard, -1, readerFunc(func([]byte) (int, error) { return 0, srcErr }), 16)
	require.ErrorIs(t, err, srcErr)
}

func TestBufferBody(t *testing.T) {
	data, err := bufferBody(strings.NewReader("12345"), 5)
	require.NoError(t, err)
	require.Equal(t, "12345", string(data))

	_, err = bufferBody(strings.NewReader("123456"), 5)
	require.ErrorIs(t, err, ErrBufferLimitExceeded)
}

func TestReleasingBody(t *testing.T) {
	released := 0
	b := newReleasingBody(strings.NewReader("ab"), func() error {
		released++
		return nil
	})

	data, err := io.ReadAll(b)
	require.NoError(t, err)
	require.Equal(t, "ab", string(data))
	require.Equal(t, 1, released)

	require.NoError(t, b.Close())
	require.Equal(t, 1, released)
	_, err = b.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrResponseClosed)

	// 读取出错时释放
	readErr := errors.New("read failed")
	released = 0
	b = newReleasingBody(readerFunc(func([]byte) (int, error) { return 0, readErr }), func() error {
		released++
		return nil
	})
	_, err = b.Read(make([]byte, 1))
	require.ErrorIs(t, err, readErr)
	require.Equal(t, 1, released)
}
