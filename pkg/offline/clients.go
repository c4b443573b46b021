package offline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client is an open page that may be controlled by a worker version.
type Client struct {
	ID          string    `json:"id"`
	Controller  string    `json:"controller,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Controlled reports whether a worker version serves the client.
func (c Client) Controlled() bool {
	return c.Controller != ""
}

// Clients tracks the open pages of one registration.
type Clients struct {
	mu      sync.RWMutex
	clients map[string]*Client
	current string // version controlling newly connected clients
	now     func() time.Time
}

// NewClients creates an empty client set.
func NewClients() *Clients {
	return &Clients{
		clients: make(map[string]*Client),
		now:     time.Now,
	}
}

// Connect registers a new client. It is controlled by the active version,
// if there is one.
func (c *Clients) Connect() Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	client := &Client{
		ID:          uuid.NewString(),
		Controller:  c.current,
		ConnectedAt: c.now(),
	}
	c.clients[client.ID] = client
	return *client
}

// Get returns the client with id.
func (c *Clients) Get(id string) (Client, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	client, ok := c.clients[id]
	if !ok {
		return Client{}, false
	}
	return *client, true
}

// Disconnect forgets the client and reports whether it was known.
func (c *Clients) Disconnect(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.clients[id]; !ok {
		return false
	}
	delete(c.clients, id)
	return true
}

// Claim makes version the controller of every open client and of clients
// connecting later. It returns the number of clients that changed
// controller.
func (c *Clients) Claim(version string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = version

	changed := 0
	for _, client := range c.clients {
		if client.Controller != version {
			client.Controller = version
			changed++
		}
	}
	return changed
}

// Controlled returns the number of clients with a controller.
func (c *Clients) Controlled() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, client := range c.clients {
		if client.Controlled() {
			n++
		}
	}
	return n
}

// List returns every client, oldest first.
func (c *Clients) List() []Client {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]Client, 0, len(c.clients))
	for _, client := range c.clients {
		list = append(list, *client)
	}

	sort.Slice(list, func(i, j int) bool {
		if !list[i].ConnectedAt.Equal(list[j].ConnectedAt) {
			return list[i].ConnectedAt.Before(list[j].ConnectedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}
