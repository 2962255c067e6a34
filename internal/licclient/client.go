package licclient

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"serwer-licencji/internal/license"
)

var ErrNoSession = errors.New("no active license session")

// Client performs the leasing protocol against a license server. Each call
// is one dial, one request, one response. While a lease is held exactly
// one background renewal goroutine keeps it alive.
type Client struct {
	serverAddr        string
	softwareID        string
	userID            int64
	hostname          string
	requestTimeout    time.Duration
	heartbeatInterval time.Duration

	mu        sync.Mutex
	sessionID string
	stop      chan struct{}
	done      chan struct{}
}

type Option func(*Client)

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) { c.heartbeatInterval = d }
}

func WithHostname(hostname string) Option {
	return func(c *Client) { c.hostname = hostname }
}

func New(serverAddr string, softwareID string, userID int64, opts ...Option) *Client {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	c := &Client{
		serverAddr:        serverAddr,
		softwareID:        softwareID,
		userID:            userID,
		hostname:          hostname,
		requestTimeout:    10 * time.Second,
		heartbeatInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendRaw performs a single request/response exchange without any client
// state. Used by tooling that operates on sessions it does not hold.
func SendRaw(serverAddr string, req license.Request) (*license.Response, error) {
	c := &Client{serverAddr: serverAddr, requestTimeout: 10 * time.Second}
	return c.send(req)
}

func (c *Client) send(req license.Request) (*license.Response, error) {
	conn, err := net.DialTimeout("tcp", c.serverAddr, c.requestTimeout)
	if err != nil {
		return nil, fmt.Errorf("error communicating with license server: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.requestTimeout))

	if err := license.WriteMessage(conn, req); err != nil {
		return nil, fmt.Errorf("error communicating with license server: %w", err)
	}

	var resp license.Response
	if err := license.ReadMessage(bufio.NewReader(conn), license.DefaultMaxMessageBytes, &resp); err != nil {
		return nil, fmt.Errorf("error communicating with license server: %w", err)
	}

	return &resp, nil
}

// Checkout acquires a seat. On success the client holds the session and
// starts the renewal loop.
func (c *Client) Checkout() (*license.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID != "" {
		return nil, fmt.Errorf("license already checked out (session %s)", c.sessionID)
	}

	log.Printf("Attempting to check out license for %s for user %d", c.softwareID, c.userID)

	resp, err := c.send(license.Request{
		Command:    license.CommandCheckout,
		SoftwareID: c.softwareID,
		UserID:     c.userID,
		Hostname:   c.hostname,
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != license.StatusSuccess {
		return resp, nil
	}

	c.sessionID = resp.SessionID
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.renewalLoop(c.sessionID, c.stop, c.done)

	log.Printf("License checked out successfully. Session ID: %s", c.sessionID)
	return resp, nil
}

// Checkin releases the seat and stops the renewal loop.
func (c *Client) Checkin() (*license.Response, error) {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	if sessionID == "" {
		return nil, ErrNoSession
	}

	log.Printf("Checking in license for session %s", sessionID)

	resp, err := c.send(license.Request{
		Command:   license.CommandCheckin,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}

	if resp.Status == license.StatusSuccess {
		c.teardown()
		log.Println("License checked in successfully")
	} else {
		log.Printf("Failed to check in license: %s", resp.Message)
	}

	return resp, nil
}

func (c *Client) Query() (*license.Response, error) {
	return c.send(license.Request{
		Command:    license.CommandQuery,
		SoftwareID: c.softwareID,
	})
}

// SessionID returns the held session id, or the empty string when no lease
// is held.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Close stops the renewal loop without checking in. The lease is left for
// the server-side reaper.
func (c *Client) Close() {
	c.teardown()
}

func (c *Client) teardown() {
	c.mu.Lock()
	stop := c.stop
	done := c.done
	c.sessionID = ""
	c.stop = nil
	c.done = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (c *Client) renewalLoop(sessionID string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	log.Printf("Starting renewal loop for session %s", sessionID)

	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			log.Printf("Renewal loop stopped for session %s", sessionID)
			return
		case <-ticker.C:
			resp, err := c.send(license.Request{
				Command:   license.CommandHeartbeat,
				SessionID: sessionID,
			})
			if err != nil {
				// Retry on the next tick; the server tolerates a missed
				// heartbeat up to the staleness threshold.
				log.Printf("Error sending heartbeat: %v", err)
				continue
			}
			if resp.Status == license.StatusSuccess {
				continue
			}

			log.Printf("Heartbeat failed: %s", resp.Message)
			if sessionGone(resp) {
				// The lease is dead server-side; renewing it further is
				// pointless.
				c.abandon(sessionID)
				return
			}
		}
	}
}

// abandon clears local state after the server reported the session gone.
// Unlike teardown it runs inside the renewal goroutine, so it must not
// wait on done.
func (c *Client) abandon(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == sessionID {
		c.sessionID = ""
		c.stop = nil
		c.done = nil
	}
	log.Printf("Session %s is no longer recognized by the server, local teardown", sessionID)
}

func sessionGone(resp *license.Response) bool {
	if resp.Code == license.CodeNotFound || resp.Code == license.CodeConflict {
		return true
	}
	message := strings.ToLower(resp.Message)
	return strings.Contains(message, "invalid") || strings.Contains(message, "not found")
}
