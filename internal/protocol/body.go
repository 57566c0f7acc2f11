package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

/*
消息体帧负载格式（subsequent chunk，仅用于长度未知的消息体）：
+---------+-------+------------+-----------+
| Version | Flags | DataLength |   Data    |
| 1 byte  | 1 byte|  4 bytes   |   变长     |
+---------+-------+------------+-----------+
DataLength == 0 为结束帧
*/

const (
	bodyFrameHeaderSize = 1 + 1 + 4

	// MaxBodyChunkData 单个消息体帧可承载的最大数据量
	MaxBodyChunkData = MaxFrameLength - bodyFrameHeaderSize
)

// BodyFrame 消息体帧
type BodyFrame struct {
	Version byte
	Flags   byte
	Data    []byte // 引用调用方缓冲区，长度为 0 表示结束
}

// IsTerminator 是否为结束帧
func (b *BodyFrame) IsTerminator() bool {
	return len(b.Data) == 0
}

// Marshal 编码消息体帧负载
func (b *BodyFrame) Marshal() ([]byte, error) {
	if len(b.Data) > MaxBodyChunkData {
		return nil, fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, len(b.Data), MaxBodyChunkData)
	}
	buf := make([]byte, bodyFrameHeaderSize+len(b.Data))
	b.put(buf)
	return buf, nil
}

func (b *BodyFrame) put(buf []byte) {
	buf[0] = b.Version
	buf[1] = b.Flags
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(b.Data)))
	copy(buf[bodyFrameHeaderSize:], b.Data)
}

// UnmarshalBodyFrame 解码消息体帧负载，Data 引用 payload
func UnmarshalBodyFrame(payload []byte) (*BodyFrame, error) {
	if len(payload) < bodyFrameHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidBodyFrame, len(payload))
	}
	if payload[0] != Version1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, payload[0])
	}

	dataLen := binary.BigEndian.Uint32(payload[2:6])
	if int64(dataLen) != int64(len(payload)-bodyFrameHeaderSize) {
		return nil, fmt.Errorf("%w: data length %d, frame carries %d",
			ErrInvalidBodyFrame, dataLen, len(payload)-bodyFrameHeaderSize)
	}

	return &BodyFrame{
		Version: payload[0],
		Flags:   payload[1],
		Data:    payload[bodyFrameHeaderSize:],
	}, nil
}

// WriteBodyFrame 写入一个消息体帧，data 为空时写入结束帧
func WriteBodyFrame(w io.Writer, data []byte) error {
	if len(data) > MaxBodyChunkData {
		return fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, len(data), MaxBodyChunkData)
	}

	// 长度前缀与负载放在同一缓冲区，一次写出
	payloadLen := bodyFrameHeaderSize + len(data)
	buf := make([]byte, LengthPrefixSize+payloadLen)
	binary.BigEndian.PutUint16(buf[0:LengthPrefixSize], uint16(payloadLen))
	f := BodyFrame{Version: Version1, Data: data}
	f.put(buf[LengthPrefixSize:])

	_, err := w.Write(buf)
	return err
}

// ReadBodyFrame 读取并解码一个消息体帧
func ReadBodyFrame(r io.Reader) (*BodyFrame, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return UnmarshalBodyFrame(payload)
}
