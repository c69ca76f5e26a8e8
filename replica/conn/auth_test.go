package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScramblePasswordEmptyPassword(t *testing.T) {
	assert.Nil(t, scramblePassword([]byte("01234567890123456789"), ""))
}

func TestScramblePasswordDeterministic(t *testing.T) {
	authData := []byte("01234567890123456789")
	a := scramblePassword(authData, "secret")
	b := scramblePassword(authData, "secret")
	require.Len(t, a, 20)
	assert.Equal(t, a, b)

	c := scramblePassword(authData, "other")
	assert.NotEqual(t, a, c)
}

func TestBuildHandshakeResponse41ContainsUsernameAndScramble(t *testing.T) {
	scramble := []byte{1, 2, 3, 4}
	resp := buildHandshakeResponse41("repl", scramble)

	// capability(4) + maxpacket(4) + charset(1) + filler(23) = 32 bytes
	// before the NUL-terminated username.
	require.Greater(t, len(resp), 32)
	assert.Equal(t, []byte("repl"), resp[32:32+4])
}

func TestParseErrPacketWithSQLState(t *testing.T) {
	pkt := append([]byte{errPacket, 0xB5, 0x04, '#'}, append([]byte("28000"), []byte("Access denied")...)...)
	err := parseErrPacket(pkt)
	var se *sqlError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, uint16(0x04B5), se.Code)
	assert.Equal(t, "Access denied", se.Message)
}

func TestParseErrPacketWithoutSQLState(t *testing.T) {
	pkt := append([]byte{errPacket, 0x19, 0x04}, []byte("short message")...)
	err := parseErrPacket(pkt)
	code, ok := Code(err)
	require.True(t, ok)
	assert.Equal(t, uint16(0x0419), code)
}
