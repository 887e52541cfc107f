package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// TestCrossEngineKeyAgreement 两个独立引擎通过盐下发派生同一份密钥
func TestCrossEngineKeyAgreement(t *testing.T) {
	server := NewManager(config.DefaultCryptoConfig())
	_, err := server.GenerateIdentity()
	require.NoError(t, err)
	client := NewManager(config.DefaultCryptoConfig())
	_, err = client.GenerateIdentity()
	require.NoError(t, err)

	serverPub, err := server.CurrentPublicKey()
	require.NoError(t, err)
	clientPub, err := client.CurrentPublicKey()
	require.NoError(t, err)

	sessionID := types.NewSessionID()

	// 服务端发起：生成盐；客户端采用下发的盐
	sk, err := server.EstablishSession(sessionID, clientPub)
	require.NoError(t, err)
	require.Len(t, sk.Salt, 32)
	_, err = client.EstablishSessionWithSalt(sessionID, serverPub, sk.Salt)
	require.NoError(t, err)

	// 服务端加密，客户端解密
	env, err := server.EncryptMessage(sessionID, []byte("hello"), []byte("meta"))
	require.NoError(t, err)
	plain, meta, err := client.DecryptMessage(env)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plain)
	assert.Equal(t, []byte("meta"), meta)

	// 反方向：客户端加密流块，服务端解密
	data, err := client.EncryptStream(sessionID, 0, []byte("chunk"))
	require.NoError(t, err)
	seq, payload, err := server.DecryptStream(sessionID, data)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)
	assert.Equal(t, []byte("chunk"), payload)
}

// TestEstablishSessionWithSaltValidation 盐长度校验
func TestEstablishSessionWithSaltValidation(t *testing.T) {
	m := NewManager(config.DefaultCryptoConfig())
	_, err := m.GenerateIdentity()
	require.NoError(t, err)
	pub, err := m.CurrentPublicKey()
	require.NoError(t, err)

	_, err = m.EstablishSessionWithSalt(types.NewSessionID(), pub, []byte("short"))
	assert.ErrorIs(t, err, ErrInvalidSalt)
}
