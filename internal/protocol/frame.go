package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

/*
线路帧格式（头部帧与消息体帧共用）：
+----------+------------------+
|  Length  |     Payload      |
|  2 bytes |       变长        |
+----------+------------------+
Length 为大端序，描述 Payload 的完整长度
*/

const (
	LengthPrefixSize = 2
	MaxFrameLength   = 0xFFFF // 单帧硬上限，与配置无关
)

// WriteFrame 写入一个带长度前缀的帧，前缀与负载一次性写出
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameLength {
		return fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, len(payload), MaxFrameLength)
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:LengthPrefixSize], uint16(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	_, err := w.Write(buf)
	return err
}

// ReadFrame 从 reader 读取一个帧的负载
// 在帧边界处遇到流结束时返回 io.EOF，帧中途结束返回 ErrUnexpectedEnd
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: truncated length prefix", ErrUnexpectedEnd)
		}
		return nil, err
	}

	length := binary.BigEndian.Uint16(prefix[:])
	if length == 0 {
		return nil, ErrMalformedLength
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: expected %d bytes of frame", ErrUnexpectedEnd, length)
		}
		return nil, err
	}

	return payload, nil
}
