package crypto_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kemtls-go/kemtls-client/pkg/crypto"
)

func TestMasterSecretTLS12IsDeterministicAnd48Bytes(t *testing.T) {
	preMaster := []byte("pre-master-secret-material")
	clientRandom := make([]byte, 32)
	serverRandom := make([]byte, 32)
	for i := range clientRandom {
		clientRandom[i] = byte(i)
		serverRandom[i] = byte(255 - i)
	}

	ms1, err := crypto.MasterSecretTLS12(sha256.Size, preMaster, clientRandom, serverRandom)
	require.NoError(t, err)
	require.Len(t, ms1, 48)

	ms2, err := crypto.MasterSecretTLS12(sha256.Size, preMaster, clientRandom, serverRandom)
	require.NoError(t, err)
	require.Equal(t, ms1, ms2)

	swapped, err := crypto.MasterSecretTLS12(sha256.Size, preMaster, serverRandom, clientRandom)
	require.NoError(t, err)
	require.NotEqual(t, ms1, swapped)
}

func TestMasterSecretTLS12EMSDiffersFromNonEMS(t *testing.T) {
	preMaster := []byte("pre-master-secret-material")
	clientRandom := make([]byte, 32)
	serverRandom := make([]byte, 32)
	sessionHash := make([]byte, 32)
	for i := range sessionHash {
		sessionHash[i] = byte(i * 3)
	}

	plain, err := crypto.MasterSecretTLS12(sha256.Size, preMaster, clientRandom, serverRandom)
	require.NoError(t, err)

	ems, err := crypto.MasterSecretTLS12EMS(sha256.Size, preMaster, sessionHash)
	require.NoError(t, err)

	require.Len(t, ems, 48)
	require.NotEqual(t, plain, ems)
}

func TestKeyBlockTLS12ProducesRequestedLength(t *testing.T) {
	masterSecret := make([]byte, 48)
	clientRandom := make([]byte, 32)
	serverRandom := make([]byte, 32)

	const keyLen, ivLen = 32, 12
	block, err := crypto.KeyBlockTLS12(sha256.Size, masterSecret, clientRandom, serverRandom, 2*(keyLen+ivLen))
	require.NoError(t, err)
	require.Len(t, block, 2*(keyLen+ivLen))

	clientKey := block[0:keyLen]
	serverKey := block[keyLen : 2*keyLen]
	require.NotEqual(t, clientKey, serverKey)
}

func TestVerifyDataTLS12Is12BytesAndLabelSensitive(t *testing.T) {
	masterSecret := make([]byte, 48)
	handshakeHash := make([]byte, 32)

	clientSide, err := crypto.VerifyDataTLS12(sha256.Size, masterSecret, "client finished", handshakeHash)
	require.NoError(t, err)
	require.Len(t, clientSide, 12)

	serverSide, err := crypto.VerifyDataTLS12(sha256.Size, masterSecret, "server finished", handshakeHash)
	require.NoError(t, err)
	require.NotEqual(t, clientSide, serverSide)
}
