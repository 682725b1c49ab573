package smtp

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportConnectIsIdempotent(t *testing.T) {
	srv := newFakeServer(t, nil)
	tr := NewTransport(srv.config())

	require.NoError(t, tr.Connect())
	require.NoError(t, tr.Connect())
	assert.True(t, tr.Connected())

	assert.Equal(t, 1, srv.Accepted())
	assert.Equal(t, []string{"HELO 127.0.0.1"}, srv.Commands())
}

func TestTransportLocalName(t *testing.T) {
	srv := newFakeServer(t, nil)
	config := srv.config()
	config.LocalName = "mail.example.com"
	tr := NewTransport(config)

	require.NoError(t, tr.Connect())
	assert.Equal(t, []string{"HELO mail.example.com"}, srv.Commands())
}

func TestTransportDefaults(t *testing.T) {
	var (
		gotAddr    string
		gotTimeout time.Duration
	)
	tr := NewTransport(Configuration{
		Host: "relay.example.com",
		Dial: func(network, address string, timeout time.Duration) (net.Conn, error) {
			gotAddr = address
			gotTimeout = timeout
			return nil, errors.New("no network in tests")
		},
	})

	err := tr.Connect()

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "relay.example.com:25", gotAddr)
	assert.Equal(t, 20*time.Second, gotTimeout)
	assert.False(t, tr.Connected())
}

func TestTransportBadGreeting(t *testing.T) {
	srv := newFakeServer(t, map[string]string{
		"BANNER": "554 no service",
	})
	tr := NewTransport(srv.config())

	err := tr.Connect()

	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, ReplyServiceReady, protoErr.Expected)
	assert.Equal(t, 554, protoErr.Actual)
	assert.Equal(t, "", protoErr.Command)
	assert.False(t, tr.Connected())
}

func TestTransportHeloRejected(t *testing.T) {
	srv := newFakeServer(t, map[string]string{
		"HELO": "501 Syntax error",
	})
	tr := NewTransport(srv.config())

	err := tr.Connect()

	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, "HELO 127.0.0.1", protoErr.Command)
	assert.Equal(t, 501, protoErr.Actual)
}

func TestTransportPeerHangsUp(t *testing.T) {
	srv := newFakeServer(t, map[string]string{
		"BANNER": "",
	})
	tr := NewTransport(srv.config())

	err := tr.Connect()

	var readErr *SocketReadError
	require.True(t, errors.As(err, &readErr))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, KindSocketRead, KindOf(err))
}

func TestTransportMalformedReply(t *testing.T) {
	srv := newFakeServer(t, map[string]string{
		"HELO": "25",
	})
	tr := NewTransport(srv.config())

	err := tr.Connect()

	var readErr *SocketReadError
	require.True(t, errors.As(err, &readErr))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestTransportExpectReturnsText(t *testing.T) {
	srv := newFakeServer(t, map[string]string{
		"NOOP": "250 2.0.0 nothing to do",
	})
	tr := NewTransport(srv.config())

	_, err := tr.command(CmdNoop.Structure)
	require.NoError(t, err)

	text, err := tr.Expect(ReplyOK)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0 nothing to do", text)
	assert.Equal(t, "NOOP", tr.LastCommand())
}

func TestTransportDisconnect(t *testing.T) {
	srv := newFakeServer(t, nil)
	tr := NewTransport(srv.config())

	require.NoError(t, tr.Connect())
	require.NoError(t, tr.Disconnect())
	assert.False(t, tr.Connected())
	assert.Equal(t, "QUIT", srv.Commands()[len(srv.Commands())-1])

	// second call is a no-op
	require.NoError(t, tr.Disconnect())
}

func TestTransportDisconnectFailureStillCloses(t *testing.T) {
	srv := newFakeServer(t, map[string]string{
		"QUIT": "500 Unrecognized command",
	})
	tr := NewTransport(srv.config())

	require.NoError(t, tr.Connect())

	err := tr.Disconnect()

	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, ReplyServiceClosing, protoErr.Expected)
	assert.False(t, tr.Connected())
}

func TestTransportReadLineNotConnected(t *testing.T) {
	tr := NewTransport(Configuration{Host: "127.0.0.1"})

	_, err := tr.ReadLine()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestTransportWriteLineConnectsLazily(t *testing.T) {
	srv := newFakeServer(t, nil)
	tr := NewTransport(srv.config())

	n, err := tr.WriteLine("NOOP")
	require.NoError(t, err)
	assert.Equal(t, len("NOOP\r\n"), n)
	assert.True(t, tr.Connected())

	_, err = tr.Expect(ReplyOK)
	require.NoError(t, err)
	assert.Equal(t, []string{"HELO 127.0.0.1", "NOOP"}, srv.Commands())
}
