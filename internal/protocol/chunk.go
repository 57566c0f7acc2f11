package protocol

import (
	"fmt"
	"io"
)

// ChunkWriter 将任意写入转换为消息体帧序列
// 写完后必须调用 EndWrites 写出结束帧
type ChunkWriter struct {
	w        io.Writer
	maxChunk int
	ended    bool
}

// NewChunkWriter 创建分块写入器，maxChunk 为单帧数据的软上限
func NewChunkWriter(w io.Writer, maxChunk int) *ChunkWriter {
	if maxChunk <= 0 || maxChunk > MaxBodyChunkData {
		maxChunk = MaxBodyChunkData
	}
	return &ChunkWriter{w: w, maxChunk: maxChunk}
}

// Write 按软上限切分 p 并逐帧写出
func (cw *ChunkWriter) Write(p []byte) (n int, err error) {
	if cw.ended {
		return 0, ErrWriteAfterEnd
	}
	for len(p) > 0 {
		m := min(len(p), cw.maxChunk)
		if err = WriteBodyFrame(cw.w, p[:m]); err != nil {
			return n, err
		}
		n += m
		p = p[m:]
	}
	return n, nil
}

// ReadFrom 读空 r，每次读取结果作为一帧写出
func (cw *ChunkWriter) ReadFrom(r io.Reader) (n int64, err error) {
	if cw.ended {
		return 0, ErrWriteAfterEnd
	}
	buf := make([]byte, cw.maxChunk)
	for {
		nr, rerr := r.Read(buf)
		if nr > 0 {
			if werr := WriteBodyFrame(cw.w, buf[:nr]); werr != nil {
				return n, werr
			}
			n += int64(nr)
		}
		if rerr == io.EOF {
			return n, nil
		}
		if rerr != nil {
			return n, rerr
		}
	}
}

// EndWrites 写出结束帧，重复调用无效果
func (cw *ChunkWriter) EndWrites() error {
	if cw.ended {
		return nil
	}
	cw.ended = true
	return WriteBodyFrame(cw.w, nil)
}

// ChunkReader 将消息体帧序列还原为连续字节流
type ChunkReader struct {
	r     io.Reader
	cur   []byte
	ended bool
	err   error
}

// NewChunkReader 创建分块读取器
func NewChunkReader(r io.Reader) *ChunkReader {
	return &ChunkReader{r: r}
}

// Read 读取结束帧时返回 io.EOF，之后再读返回 ErrBodyEnded
func (cr *ChunkReader) Read(p []byte) (int, error) {
	if cr.err != nil {
		return 0, cr.err
	}
	if cr.ended {
		cr.err = ErrBodyEnded
		return 0, cr.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	for len(cr.cur) == 0 {
		frame, err := ReadBodyFrame(cr.r)
		if err != nil {
			if err == io.EOF {
				err = fmt.Errorf("%w: body ended without terminator", ErrUnexpectedEnd)
			}
			cr.err = err
			return 0, err
		}
		if frame.IsTerminator() {
			cr.ended = true
			return 0, io.EOF
		}
		cr.cur = frame.Data
	}

	n := copy(p, cr.cur)
	cr.cur = cr.cur[n:]
	return n, nil
}

// Ended 是否已读到结束帧
func (cr *ChunkReader) Ended() bool {
	return cr.ended
}
