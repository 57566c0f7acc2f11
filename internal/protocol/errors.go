package protocol

import "errors"

// 编解码错误
var (
	ErrChunkTooLarge      = errors.New("quasihttp: chunk size exceeds hard limit")
	ErrHeadersTooLarge    = errors.New("quasihttp: headers exceed max size")
	ErrInvalidVersion     = errors.New("quasihttp: invalid protocol version")
	ErrInvalidHeaderFrame = errors.New("quasihttp: invalid header frame")
	ErrInvalidBodyFrame   = errors.New("quasihttp: invalid body frame")
	ErrMalformedLength    = errors.New("quasihttp: malformed frame length")
	ErrUnexpectedEnd      = errors.New("quasihttp: unexpected end of stream")
)

// 分块读写错误
var (
	ErrBodyEnded     = errors.New("quasihttp: body already at end")
	ErrWriteAfterEnd = errors.New("quasihttp: write after end of body")
)
