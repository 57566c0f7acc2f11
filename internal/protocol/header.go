package protocol

import (
	"encoding/binary"
	"fmt"
	"sort"
)

/*
头部帧负载格式（字段顺序固定）：
+---------+-------+--------+--------+-------------+---------------+
| Version | Flags | Method | Target | HTTPVersion | StatusMessage |
| 1 byte  | 1 byte|  str   |  str   |     str     |      str      |
+---------+-------+--------+--------+-------------+---------------+
| StatusCode | ContentLength | ContentType | HeaderCount | Headers... |
|  4 bytes   | 8 bytes(有符号)|     str     |   4 bytes   |            |
+------------+---------------+-------------+-------------+------------+
str    = 4 字节长度 + UTF-8 字节
Header = key(str) | valueCount(4 bytes) | value(str)...
HeaderCount / valueCount 为 -1 表示 nil
*/

const (
	DefaultMaxHeaderSize = 8192

	fixedHeaderSize = 1 + 1 + 4 + 8 + 4 // version, flags, status, content length, header count
	stringLenSize   = 4
	countSize       = 4
)

// nilCount 表示 nil 的数量值
const nilCount int32 = -1

// HeaderFrame 请求或响应的头部帧（lead chunk）
type HeaderFrame struct {
	Version byte
	Flags   byte

	// 请求字段
	Method        string
	RequestTarget string

	// 响应字段
	StatusCode        int32
	HTTPStatusMessage string

	// 公共字段
	HTTPVersion   string
	ContentLength int64 // 0 无消息体，>0 定长原始字节，<0 分块编码
	ContentType   string
	Headers       map[string][]string // 按 key 排序编码，不保留 key 的插入顺序
}

// Size 返回编码后的负载长度
func (f *HeaderFrame) Size() int {
	n := fixedHeaderSize
	n += 5 * stringLenSize
	n += len(f.Method) + len(f.RequestTarget) + len(f.HTTPVersion) + len(f.HTTPStatusMessage) + len(f.ContentType)
	for k, vs := range f.Headers {
		n += stringLenSize + len(k) + countSize
		for _, v := range vs {
			n += stringLenSize + len(v)
		}
	}
	return n
}

// Marshal 编码头部帧，maxSize <= 0 时只受硬上限约束
func (f *HeaderFrame) Marshal(maxSize int) ([]byte, error) {
	if f.Version == 0 {
		return nil, ErrInvalidVersion
	}

	size := f.Size()
	if size > MaxFrameLength {
		return nil, fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, size, MaxFrameLength)
	}
	if maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrHeadersTooLarge, size, maxSize)
	}

	e := encoder{buf: make([]byte, 0, size)}
	e.byte(f.Version)
	e.byte(f.Flags)
	e.str(f.Method)
	e.str(f.RequestTarget)
	e.str(f.HTTPVersion)
	e.str(f.HTTPStatusMessage)
	e.uint32(uint32(f.StatusCode))
	e.uint64(uint64(f.ContentLength))
	e.str(f.ContentType)

	if f.Headers == nil {
		e.int32(nilCount)
	} else {
		// map 无序，按 key 排序保证编码确定
		keys := make([]string, 0, len(f.Headers))
		for k := range f.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		e.uint32(uint32(len(keys)))
		for _, k := range keys {
			e.str(k)
			vs := f.Headers[k]
			if vs == nil {
				e.int32(nilCount)
				continue
			}
			e.uint32(uint32(len(vs)))
			for _, v := range vs {
				e.str(v)
			}
		}
	}

	return e.buf, nil
}

// UnmarshalHeaderFrame 解码头部帧，maxSize <= 0 时只受硬上限约束
func UnmarshalHeaderFrame(data []byte, maxSize int) (*HeaderFrame, error) {
	if maxSize > 0 && len(data) > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrHeadersTooLarge, len(data), maxSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidVersion)
	}
	if data[0] != Version1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, data[0])
	}

	d := decoder{buf: data}
	f := &HeaderFrame{}
	f.Version = d.byte()
	f.Flags = d.byte()
	f.Method = d.str()
	f.RequestTarget = d.str()
	f.HTTPVersion = d.str()
	f.HTTPStatusMessage = d.str()
	f.StatusCode = int32(d.uint32())
	f.ContentLength = int64(d.uint64())
	f.ContentType = d.str()

	count := d.count()
	if count >= 0 {
		f.Headers = make(map[string][]string, count)
		for i := 0; i < count && d.err == nil; i++ {
			key := d.str()
			n := d.count()
			if d.err != nil {
				break
			}
			if n < 0 {
				f.Headers[key] = nil
				continue
			}
			values := make([]string, 0, n)
			for j := 0; j < n && d.err == nil; j++ {
				values = append(values, d.str())
			}
			f.Headers[key] = values
		}
	}

	if d.err != nil {
		return nil, d.err
	}
	if d.off != len(d.buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidHeaderFrame, len(d.buf)-d.off)
	}
	return f, nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) byte(b byte) {
	e.buf = append(e.buf, b)
}

func (e *encoder) uint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *encoder) int32(v int32) {
	e.uint32(uint32(v))
}

func (e *encoder) uint64(v uint64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
}

func (e *encoder) str(s string) {
	e.uint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// decoder 遇到第一个错误后停止，后续读取返回零值
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) need(n int, what string) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.err = fmt.Errorf("%w: %s overruns buffer at offset %d", ErrInvalidHeaderFrame, what, d.off)
		return false
	}
	return true
}

func (d *decoder) byte() byte {
	if !d.need(1, "byte") {
		return 0
	}
	b := d.buf[d.off]
	d.off++
	return b
}

func (d *decoder) uint32() uint32 {
	if !d.need(4, "int32") {
		return 0
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) uint64() uint64 {
	if !d.need(8, "int64") {
		return 0
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v
}

func (d *decoder) count() int {
	n := int32(d.uint32())
	if d.err != nil {
		return 0
	}
	if n < nilCount {
		d.err = fmt.Errorf("%w: negative count %d", ErrInvalidHeaderFrame, n)
		return 0
	}
	// 每个元素至少占 4 字节，提前拒绝明显越界的数量
	if n > 0 && int(n) > (len(d.buf)-d.off)/4 {
		d.err = fmt.Errorf("%w: count %d overruns buffer", ErrInvalidHeaderFrame, n)
		return 0
	}
	return int(n)
}

func (d *decoder) str() string {
	n := int32(d.uint32())
	if d.err != nil {
		return ""
	}
	if n == nilCount {
		return ""
	}
	if !d.need(int(n), "string") {
		return ""
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s
}
