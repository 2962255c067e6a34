package licclient

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"serwer-licencji/internal/license"
)

// fakeServer odpowiada na każde żądanie funkcją przekazaną w teście i
// liczy komendy, które do niego dotarły.
type fakeServer struct {
	listener net.Listener

	mu      sync.Mutex
	handler func(license.Request) license.Response
	counts  map[string]int
}

func newFakeServer(t *testing.T, handler func(license.Request) license.Response) *fakeServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fs := &fakeServer{
		listener: listener,
		handler:  handler,
		counts:   make(map[string]int),
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go fs.handleConn(conn)
		}
	}()

	return fs
}

func (fs *fakeServer) handleConn(conn net.Conn) {
	defer conn.Close()

	var req license.Request
	if err := license.ReadMessage(bufio.NewReader(conn), license.DefaultMaxMessageBytes, &req); err != nil {
		return
	}

	fs.mu.Lock()
	fs.counts[req.Command]++
	handler := fs.handler
	fs.mu.Unlock()

	license.WriteMessage(conn, handler(req))
}

func (fs *fakeServer) addr() string {
	return fs.listener.Addr().String()
}

func (fs *fakeServer) count(command string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.counts[command]
}

func (fs *fakeServer) setHandler(handler func(license.Request) license.Response) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.handler = handler
}

func okServer(sessionID string) func(license.Request) license.Response {
	return func(req license.Request) license.Response {
		switch req.Command {
		case license.CommandCheckout:
			return license.Response{
				Status:    license.StatusSuccess,
				Message:   "License checked out successfully",
				SessionID: sessionID,
			}
		case license.CommandHeartbeat:
			return license.Response{Status: license.StatusSuccess, Message: "Heartbeat updated"}
		case license.CommandCheckin:
			return license.Response{Status: license.StatusSuccess, Message: "License checked in successfully"}
		case license.CommandQuery:
			return license.Response{
				Status:            license.StatusSuccess,
				SoftwareName:      "Fake",
				TotalLicenses:     10,
				ActiveSessions:    1,
				AvailableLicenses: 9,
			}
		default:
			return license.Response{Status: license.StatusError, Code: license.CodeBadRequest, Message: "Unknown command"}
		}
	}
}

func TestCheckoutHoldsSessionAndRenews(t *testing.T) {
	sessionID := uuid.NewString()
	fs := newFakeServer(t, okServer(sessionID))

	client := New(fs.addr(), "SW013", 1,
		fastTimings()...,
	)

	resp, err := client.Checkout()
	require.NoError(t, err)
	require.Equal(t, license.StatusSuccess, resp.Status)
	require.Equal(t, sessionID, client.SessionID())

	// Pętla odnawiania musi wysyłać kolejne heartbeaty.
	require.Eventually(t, func() bool {
		return fs.count(license.CommandHeartbeat) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	resp, err = client.Checkin()
	require.NoError(t, err)
	require.Equal(t, license.StatusSuccess, resp.Status)
	require.Empty(t, client.SessionID())

	// Po checkinie pętla stoi: licznik heartbeatów przestaje rosnąć.
	after := fs.count(license.CommandHeartbeat)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, after, fs.count(license.CommandHeartbeat))
}

func TestCheckoutDeniedLeavesNoSession(t *testing.T) {
	fs := newFakeServer(t, func(req license.Request) license.Response {
		return license.Response{
			Status:  license.StatusError,
			Code:    license.CodeCapacityExhausted,
			Message: "No licenses available",
		}
	})

	client := New(fs.addr(), "SW013", 1, fastTimings()...)

	resp, err := client.Checkout()
	require.NoError(t, err)
	require.Equal(t, license.StatusError, resp.Status)
	require.Empty(t, client.SessionID())

	time.Sleep(100 * time.Millisecond)
	require.Zero(t, fs.count(license.CommandHeartbeat))
}

func TestDoubleCheckoutRejected(t *testing.T) {
	sessionID := uuid.NewString()
	fs := newFakeServer(t, okServer(sessionID))

	client := New(fs.addr(), "SW013", 1, fastTimings()...)
	defer client.Close()

	_, err := client.Checkout()
	require.NoError(t, err)

	_, err = client.Checkout()
	require.Error(t, err)
	require.Contains(t, err.Error(), "already checked out")
}

func TestHeartbeatSessionGoneTriggersTeardown(t *testing.T) {
	sessionID := uuid.NewString()
	fs := newFakeServer(t, okServer(sessionID))

	client := New(fs.addr(), "SW013", 1, fastTimings()...)

	_, err := client.Checkout()
	require.NoError(t, err)
	require.Equal(t, sessionID, client.SessionID())

	// Serwer przestaje rozpoznawać sesję: klient ma natychmiast porzucić
	// lease zamiast ponawiać w nieskończoność.
	fs.setHandler(func(req license.Request) license.Response {
		if req.Command == license.CommandHeartbeat {
			return license.Response{
				Status:  license.StatusError,
				Code:    license.CodeNotFound,
				Message: "Session not found or not active",
			}
		}
		return okServer(sessionID)(req)
	})

	require.Eventually(t, func() bool {
		return client.SessionID() == ""
	}, 2*time.Second, 10*time.Millisecond)

	failedAt := fs.count(license.CommandHeartbeat)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, failedAt, fs.count(license.CommandHeartbeat))

	_, err = client.Checkin()
	require.ErrorIs(t, err, ErrNoSession)
}

func TestHeartbeatTransientFailureKeepsRenewing(t *testing.T) {
	sessionID := uuid.NewString()
	fs := newFakeServer(t, okServer(sessionID))

	client := New(fs.addr(), "SW013", 1, fastTimings()...)
	defer client.Close()

	_, err := client.Checkout()
	require.NoError(t, err)

	fs.setHandler(func(req license.Request) license.Response {
		if req.Command == license.CommandHeartbeat {
			return license.Response{
				Status:  license.StatusError,
				Code:    license.CodeTransient,
				Message: "Error updating heartbeat",
			}
		}
		return okServer(sessionID)(req)
	})

	// Błąd przejściowy nie zrywa sesji i pętla próbuje dalej.
	require.Eventually(t, func() bool {
		return fs.count(license.CommandHeartbeat) >= 3
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, sessionID, client.SessionID())
}

func TestQuery(t *testing.T) {
	fs := newFakeServer(t, okServer(uuid.NewString()))

	client := New(fs.addr(), "SW013", 1, fastTimings()...)

	resp, err := client.Query()
	require.NoError(t, err)
	require.Equal(t, license.StatusSuccess, resp.Status)
	require.Equal(t, 9, resp.AvailableLicenses)
}

// fastTimings skraca interwały na potrzeby testów.
func fastTimings() []Option {
	return []Option{
		WithHeartbeatInterval(20 * time.Millisecond),
		WithRequestTimeout(time.Second),
		WithHostname("test-host"),
	}
}
