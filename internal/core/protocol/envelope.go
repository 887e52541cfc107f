package protocol

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-deskrelay/pkg/interfaces/cryptocore"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// envelopeAAD 构造信封的关联数据：会话 ID ‖ 消息类型
//
// 篡改帧类型或把信封挪到别的会话都会导致认证失败。
func envelopeAAD(sessionID types.SessionID, msgType MessageType) []byte {
	aad := make([]byte, 0, len(sessionID)+1)
	aad = append(aad, []byte(sessionID)...)
	return append(aad, byte(msgType))
}

// NewFrame 构造一个明文帧（仅限非 Sealed 类型）
func NewFrame(msgType MessageType, payload any) (*Frame, error) {
	body, err := Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return &Frame{
		Type:    msgType,
		ID:      uuid.NewString(),
		TS:      time.Now(),
		Payload: body,
	}, nil
}

// SealFrame 构造一个加密帧
//
// payload 先编码为 CBOR，再经加密引擎封入信封，
// 信封本身编码后作为帧载荷。
func SealFrame(engine cryptocore.Engine, sessionID types.SessionID, msgType MessageType, payload any) (*Frame, error) {
	body, err := Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	env, err := engine.EncryptMessage(sessionID, body, envelopeAAD(sessionID, msgType))
	if err != nil {
		return nil, err
	}
	sealed, err := Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	return &Frame{
		Type:    msgType,
		ID:      uuid.NewString(),
		TS:      time.Now(),
		Payload: sealed,
	}, nil
}

// OpenFrame 解开一个加密帧的载荷到 payload
//
// 校验信封的 AAD 与帧类型、期望会话一致后再解密；
// 任何不符返回 ErrEnvelopeMismatch。
func OpenFrame(engine cryptocore.Engine, f *Frame, sessionID types.SessionID, payload any) error {
	var env types.EncryptedEnvelope
	if err := Unmarshal(f.Payload, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.SessionID != sessionID || !bytes.Equal(env.Metadata, envelopeAAD(sessionID, f.Type)) {
		return ErrEnvelopeMismatch
	}

	plain, _, err := engine.DecryptMessage(&env)
	if err != nil {
		return err
	}
	return Unmarshal(plain, payload)
}

// DecodePayload 解码一个明文帧的载荷（仅限非 Sealed 类型）
func DecodePayload(f *Frame, payload any) error {
	if f.Type.Sealed() {
		return ErrUnexpectedMessage
	}
	if err := Unmarshal(f.Payload, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}
