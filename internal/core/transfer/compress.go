package transfer

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

// 块编码标志字节
const (
	// chunkRaw 原样载荷
	chunkRaw byte = 0x00
	// chunkFlate DEFLATE 压缩载荷
	chunkFlate byte = 0x01
)

// encodeChunk 编码一个明文块：标志字节 ‖ 载荷
//
// 压缩后不变小的块退回原样编码，避免不可压缩数据膨胀。
func encodeChunk(plain []byte, compress bool) ([]byte, error) {
	if !compress {
		return rawChunk(plain), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(chunkFlate)
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plain); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	if buf.Len()-1 >= len(plain) {
		return rawChunk(plain), nil
	}
	return buf.Bytes(), nil
}

// decodeChunk 解码一个明文块
func decodeChunk(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrChunkCorrupted
	}
	body := data[1:]

	switch data[0] {
	case chunkRaw:
		return append([]byte(nil), body...), nil
	case chunkFlate:
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		plain, err := io.ReadAll(r)
		if err != nil {
			return nil, ErrChunkCorrupted
		}
		return plain, nil
	default:
		return nil, ErrChunkCorrupted
	}
}

// rawChunk 原样编码
func rawChunk(plain []byte) []byte {
	out := make([]byte, 1+len(plain))
	out[0] = chunkRaw
	copy(out[1:], plain)
	return out
}
