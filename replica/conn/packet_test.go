package conn

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePacketThenReadPacketRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := &Conn{netConn: client, r: bufio.NewReader(client)}
	s := &Conn{netConn: server, r: bufio.NewReader(server)}

	payload := []byte("hello binlog")
	done := make(chan error, 1)
	go func() { done <- c.writePacket(payload) }()

	got, err := s.readPacket()
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, payload, got)
}

func TestWritePacketSplitsAtBoundary(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := &Conn{netConn: client, r: bufio.NewReader(client)}
	s := &Conn{netConn: server, r: bufio.NewReader(server)}

	payload := make([]byte, 0xffffff+10)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan error, 1)
	go func() { done <- c.writePacket(payload) }()

	client.SetDeadline(time.Now().Add(5 * time.Second))
	server.SetDeadline(time.Now().Add(5 * time.Second))

	got, err := s.readPacket()
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, payload, got)
}
