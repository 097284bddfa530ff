package session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fixedConfig is a minimal Configuration that targets a given address and
// leaves every socket option absent.
type fixedConfig struct {
	host string
	port string
}

func (c *fixedConfig) GetAddress() (string, string) { return c.host, c.port }
func (c *fixedConfig) Reuse() *bool                 { return nil }
func (c *fixedConfig) MMS() *int32                  { return nil }
func (c *fixedConfig) Linger() *LingerOption        { return nil }
func (c *fixedConfig) Nagle() *bool                 { return nil }
func (c *fixedConfig) Keepalive() *bool             { return nil }

// freeLoopbackPort briefly binds port 0 to let the kernel pick a free
// port, then releases it for the test's own listener to reuse.
func freeLoopbackPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	return port
}

func TestControllerEchoEndToEnd(t *testing.T) {
	port := freeLoopbackPort(t)
	cfg := &fixedConfig{host: "127.0.0.1", port: port}

	server := NewController(2)
	serverSvc := &echoBackService{svc: newRecordingService(), controller: server}
	server.AttachService(serverSvc)
	server.AttachConfiguration(cfg)
	require.True(t, server.Accept())
	defer server.Stop()

	client := NewController(1)
	clientSvc := newRecordingService()
	client.AttachService(clientSvc)
	client.AttachConfiguration(cfg)
	defer client.Stop()

	sid := client.Connect()
	require.NotZero(t, sid)

	deadline := time.Now().Add(2 * time.Second)
	for !client.IsState(sid, StateConnected) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, client.IsState(sid, StateConnected))

	require.True(t, client.Write(sid, []byte("Hello")))

	select {
	case msg := <-clientSvc.onMessage:
		require.Equal(t, "Hello", string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestControllerWriteToUnknownSIDReturnsFalse(t *testing.T) {
	c := NewController(1)
	require.False(t, c.Write(SID(99999), []byte("x")))
}

func TestControllerConnectWithoutConfigurationReturnsZero(t *testing.T) {
	c := NewController(1)
	require.Zero(t, c.Connect())
}

func TestControllerAcceptWithoutConfigurationReturnsFalse(t *testing.T) {
	c := NewController(1)
	require.False(t, c.Accept())
}

// echoBackService echoes every received message back to its sender,
// reproducing GameServer::OnMessage in src/main.cpp, while also
// delegating bookkeeping to a wrapped recordingService.
type echoBackService struct {
	svc        *recordingService
	controller *Controller
}

func (e *echoBackService) OnConnected(sid SID) { e.svc.OnConnected(sid) }

func (e *echoBackService) OnMessage(sid SID, data []byte) {
	e.svc.OnMessage(sid, data)
	wb := NewWriteBuffer()
	wb.Put(data)
	wb.Commit()
	e.controller.WriteBuffer(sid, wb)
}

func (e *echoBackService) OnError(sid SID, err error) { e.svc.OnError(sid, err) }
func (e *echoBackService) OnClose(sid SID, err error) { e.svc.OnClose(sid, err) }
