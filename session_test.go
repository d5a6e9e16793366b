package indiclient

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDialer returns a preconnected net.Pipe half, or a fixed error, letting
// tests drive the other half as a stand-in INDI server -- grounded on the
// teacher's Dialer/NetworkDialer split built for exactly this purpose.
type mockDialer struct {
	conn io.ReadWriteCloser
	err  error
}

func (d *mockDialer) Dial(network, address string) (io.ReadWriteCloser, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func newConnectedSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	s := NewSession(newTestLogger(), &mockDialer{conn: client})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx, "tcp", "test:7624"))

	return s, server
}

func readLineWithTimeout(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a line from the session")
		return ""
	}
}

func TestSession_ConnectSendsHandshake(t *testing.T) {
	s, server := newConnectedSession(t)
	defer s.Disconnect()

	require.NoError(t, s.SendHandshake())

	line := readLineWithTimeout(t, bufio.NewReader(server))
	assert.Equal(t, "<getProperties version='1.7'/>\n", line)
}

// TestSession_AutoPingReply is scenario E4: a pingRequest from the server
// must be answered with a matching-uid pingReply without caller involvement.
func TestSession_AutoPingReply(t *testing.T) {
	s, server := newConnectedSession(t)
	defer s.Disconnect()

	_, err := server.Write([]byte(`<pingRequest uid="xyz"/>`))
	require.NoError(t, err)

	msg := <-s.Messages()
	require.Equal(t, MsgPingRequest, msg.Kind)
	assert.Equal(t, "xyz", msg.UID)

	reader := bufio.NewReader(server)
	line := readLineWithTimeout(t, reader)
	assert.Equal(t, `<pingReply uid="xyz"/>`+"\n", line)
}

func TestSession_ConnectDialError(t *testing.T) {
	wantErr := errors.New("connection refused")
	s := NewSession(newTestLogger(), &mockDialer{err: wantErr})

	err := s.Connect(context.Background(), "tcp", "test:7624")
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, s.IsConnected())
}

func TestSession_ConnectIsIdempotentOnceReady(t *testing.T) {
	s, server := newConnectedSession(t)
	defer s.Disconnect()
	_ = server

	err := s.Connect(context.Background(), "tcp", "test:7624")
	assert.NoError(t, err)
}

func TestSession_SendRejectsNonSendableKind(t *testing.T) {
	s, server := newConnectedSession(t)
	defer s.Disconnect()
	_ = server

	err := s.Send(&Message{Kind: MsgDefineProperty})
	assert.ErrorIs(t, err, ErrNotSerializable)
}

func TestSession_DisconnectClosesConnection(t *testing.T) {
	s, server := newConnectedSession(t)
	_ = server

	require.NoError(t, s.Disconnect())
	assert.False(t, s.IsConnected())

	err := s.Send(&Message{Kind: MsgGetProperties, Version: "1.7"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

// TestSession_MessagesChannelClosesOnDisconnect checks that the receive loop
// tears down and closes its fan-out channels once the connection ends.
func TestSession_MessagesChannelClosesOnDisconnect(t *testing.T) {
	s, server := newConnectedSession(t)
	_ = server

	messages := s.Messages()
	require.NoError(t, s.Disconnect())

	select {
	case _, open := <-messages:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("messages channel was not closed after disconnect")
	}
}
