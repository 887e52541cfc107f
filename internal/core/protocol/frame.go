package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ============================================================================
//                              消息类型
// ============================================================================

// MessageType 控制协议消息类型
type MessageType uint8

const (
	// MsgSessionCreateReq 会话创建请求（明文，握手前）
	MsgSessionCreateReq MessageType = iota + 1
	// MsgSessionCreateResp 会话创建响应（明文，握手前）
	MsgSessionCreateResp
	// MsgSessionActivate 会话激活
	MsgSessionActivate
	// MsgSessionPing 会话心跳
	MsgSessionPing
	// MsgSessionTerminate 会话终止
	MsgSessionTerminate
	// MsgBandwidthAdjust 带宽调整通知（服务端 → 客户端）
	MsgBandwidthAdjust
	// MsgTransferOffer 文件传输要约
	MsgTransferOffer
	// MsgTransferChunk 文件传输数据块
	MsgTransferChunk
	// MsgTransferComplete 文件传输完成
	MsgTransferComplete
	// MsgStreamData 媒体流数据
	MsgStreamData
	// MsgError 错误通知
	MsgError
)

// String 返回消息类型的字符串表示
func (t MessageType) String() string {
	switch t {
	case MsgSessionCreateReq:
		return "session_create_req"
	case MsgSessionCreateResp:
		return "session_create_resp"
	case MsgSessionActivate:
		return "session_activate"
	case MsgSessionPing:
		return "session_ping"
	case MsgSessionTerminate:
		return "session_terminate"
	case MsgBandwidthAdjust:
		return "bandwidth_adjust"
	case MsgTransferOffer:
		return "transfer_offer"
	case MsgTransferChunk:
		return "transfer_chunk"
	case MsgTransferComplete:
		return "transfer_complete"
	case MsgStreamData:
		return "stream_data"
	case MsgError:
		return "error"
	default:
		return "unknown"
	}
}

// Sealed 检查该类型的载荷是否必须走加密信封
//
// 握手前的会话创建往返与错误通知以明文传输，其余全部加密。
func (t MessageType) Sealed() bool {
	switch t {
	case MsgSessionCreateReq, MsgSessionCreateResp, MsgError:
		return false
	default:
		return true
	}
}

// ============================================================================
//                              Frame - 控制帧
// ============================================================================

// lengthPrefixBytes 长度前缀字节数（大端序 uint32）
const lengthPrefixBytes = 4

// Frame 控制协议帧
type Frame struct {
	// Type 消息类型
	Type MessageType `cbor:"type"`

	// ID 消息标识（UUID）
	ID string `cbor:"id"`

	// TS 发送时间
	TS time.Time `cbor:"ts"`

	// Payload CBOR 编码的消息体；Sealed 类型为编码后的加密信封
	Payload cbor.RawMessage `cbor:"payload"`
}

// ==== CBOR 编解码模式 ====

// encMode 确定性编码：同一逻辑数据总是产生相同字节
var encMode cbor.EncMode

// decMode 标准解码：未知字段静默忽略，保证向前兼容
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal 以协议标准配置编码 CBOR
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal 以协议标准配置解码 CBOR
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// ============================================================================
//                              帧读写
// ============================================================================

// WriteFrame 将一帧写入 w：长度前缀 + CBOR 帧体
func WriteFrame(w io.Writer, f *Frame, maxBytes int) error {
	body, err := encMode.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if maxBytes > 0 && len(body) > maxBytes {
		return ErrFrameTooLarge
	}

	var prefix [lengthPrefixBytes]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame 从 r 读取一帧
//
// 超过 maxBytes 的帧不读取帧体直接拒绝，防止恶意长度前缀
// 导致的内存放大。
func ReadFrame(r io.Reader, maxBytes int) (*Frame, error) {
	var prefix [lengthPrefixBytes]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if maxBytes > 0 && n > uint32(maxBytes) {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return DecodeFrame(body)
}

// DecodeFrame 解码一个 CBOR 帧体
func DecodeFrame(body []byte) (*Frame, error) {
	var f Frame
	if err := decMode.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type.String() == "unknown" {
		return nil, fmt.Errorf("%w: type %d", ErrMalformedFrame, f.Type)
	}
	return &f, nil
}
