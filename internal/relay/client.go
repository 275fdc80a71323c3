package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Client is one connected platform connector. The write mutex
// serializes frames from the read loop and the worker pool.
type Client struct {
	ID          string
	Name        string
	Platform    string
	ConnectedAt time.Time

	mu         sync.Mutex
	conn       *websocket.Conn
	lastSeenAt time.Time
}

// touch refreshes the activity timestamp.
func (c *Client) touch() {
	c.mu.Lock()
	c.lastSeenAt = time.Now()
	c.mu.Unlock()
}

// LastSeen returns the client's last activity timestamp.
func (c *Client) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeenAt
}

// send marshals and writes one envelope, bounded by timeout.
func (c *Client) send(ctx context.Context, env Envelope, timeout time.Duration) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// close shuts the connection with the given status.
func (c *Client) close(status websocket.StatusCode, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(status, reason)
	}
}

// ClientStore tracks connected clients by ID.
type ClientStore struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewClientStore creates an empty store.
func NewClientStore() *ClientStore {
	return &ClientStore{clients: make(map[string]*Client)}
}

// AddIfUnder inserts the client only while the store holds fewer than
// max entries. The check and insert are one critical section, so a
// connection burst cannot overshoot the cap.
func (s *ClientStore) AddIfUnder(c *Client, max int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) >= max {
		return false
	}
	s.clients[c.ID] = c
	return true
}

// Remove deletes the client with the given ID.
func (s *ClientStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
}

// Get returns the client with the given ID.
func (s *ClientStore) Get(id string) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	return c, ok
}

// Len returns the number of connected clients.
func (s *ClientStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Range calls fn for each client. Iteration stops when fn returns false.
func (s *ClientStore) Range(fn func(id string, c *Client) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, c := range s.clients {
		if !fn(id, c) {
			return
		}
	}
}
