package quasihttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/qiminjie89/quasihttp/internal/protocol"
	"github.com/qiminjie89/quasihttp/pkg/metrics"
)

// exchange 在已分配的连接上完成一次请求/响应交换
// keep 为 true 时连接交由响应体释放，否则由调用方释放
func exchange(ctx context.Context, conn Connection, req *Request, s *settings, release func() error) (resp *Response, keep bool, err error) {
	r, w := conn.Reader(), conn.Writer()
	if r == nil || w == nil {
		return nil, false, ErrMissingReaderWriter
	}

	// 1. 请求头部
	if err := writeHeader(w, req.headerFrame(), s.maxHeaderSize, requestHeaderError); err != nil {
		return nil, false, err
	}

	// 2. 请求消息体
	if err := writeBody(w, effectiveLength(req.ContentLength, req.Body), req.Body, s.chunkSize()); err != nil {
		return nil, false, fmt.Errorf("quasihttp: write request body: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	// 3. 响应头部
	frame, err := readHeader(r, s.maxHeaderSize, responseHeaderError)
	if err != nil {
		return nil, false, err
	}
	if frame == nil {
		return nil, false, nil
	}
	resp = responseFromFrame(frame)

	// 4. 响应消息体
	body := newBody(r, frame.ContentLength)
	if body == nil {
		return resp, false, nil
	}

	// 5. 缓冲策略
	if s.buffering {
		data, err := bufferBody(body, s.bufferLimit)
		if err != nil {
			return nil, false, err
		}
		resp.Body = bytes.NewReader(data)
		return resp, false, nil
	}
	resp.Body = newReleasingBody(body, release)
	return resp, true, nil
}

// writeHeader 编码并写出头部帧，编码失败交由 wrap 标注所属一侧
func writeHeader(w io.Writer, frame *protocol.HeaderFrame, maxSize int, wrap func(error) error) error {
	payload, err := frame.Marshal(maxSize)
	if err != nil {
		return wrap(err)
	}
	metrics.HeaderFrameBytes.WithLabelValues("sent").Observe(float64(len(payload)))

	if err := protocol.WriteFrame(w, payload); err != nil {
		return fmt.Errorf("quasihttp: write headers: %w", err)
	}
	return nil
}

// readHeader 读取并解码头部帧，流在帧边界结束时返回 nil
func readHeader(r io.Reader, maxSize int, wrap func(error) error) (*protocol.HeaderFrame, error) {
	payload, err := protocol.ReadFrame(r)
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		if errors.Is(err, protocol.ErrUnexpectedEnd) || errors.Is(err, protocol.ErrMalformedLength) {
			return nil, wrap(err)
		}
		return nil, fmt.Errorf("quasihttp: read headers: %w", err)
	}
	metrics.HeaderFrameBytes.WithLabelValues("received").Observe(float64(len(payload)))

	frame, err := protocol.UnmarshalHeaderFrame(payload, maxSize)
	if err != nil {
		return nil, wrap(err)
	}
	return frame, nil
}
