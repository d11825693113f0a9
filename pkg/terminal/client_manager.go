package terminal

import (
	"fmt"
	"sync"
	"time"

	"github.com/antibyte/retrocalc/pkg/configuration"
	"github.com/antibyte/retrocalc/pkg/logger"
)

const (
	MaxClientsDefault = 100 // Maximale Anzahl gleichzeitiger Clients
)

// RateLimitInfo counts connection attempts of one IP
type RateLimitInfo struct {
	requests  int
	lastReset time.Time
}

// ClientManager tracks open websocket clients and rate limits upgrades.
type ClientManager struct {
	clients    map[*Client]struct{}
	rateLimits map[string]*RateLimitInfo // ipAddress -> RateLimitInfo
	maxClients int
	perMinute  int
	now        func() time.Time
	mu         sync.RWMutex
}

// NewClientManager reads its limits from the [Network] section
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients:    make(map[*Client]struct{}),
		rateLimits: make(map[string]*RateLimitInfo),
		maxClients: configuration.GetInt("Network", "max_clients", MaxClientsDefault),
		perMinute:  configuration.GetInt("Network", "max_connections_per_minute", 30),
		now:        time.Now,
	}
}

// AddClient registers a client. It fails when the server is full.
func (cm *ClientManager) AddClient(client *Client) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.maxClients > 0 && len(cm.clients) >= cm.maxClients {
		return fmt.Errorf("maximum of %d clients reached", cm.maxClients)
	}
	cm.clients[client] = struct{}{}
	logger.ServerDebug("client added for session %s (%d open)", client.sessionID, len(cm.clients))
	return nil
}

// RemoveClient forgets a client; unknown clients are ignored.
func (cm *ClientManager) RemoveClient(client *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, exists := cm.clients[client]; exists {
		delete(cm.clients, client)
		logger.ServerDebug("client removed for session %s (%d open)", client.sessionID, len(cm.clients))
	}
}

// GetClientCount returns the number of open clients
func (cm *ClientManager) GetClientCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// CloseAll asks every client to shut down
func (cm *ClientManager) CloseAll() {
	cm.mu.RLock()
	clients := make([]*Client, 0, len(cm.clients))
	for c := range cm.clients {
		clients = append(clients, c)
	}
	cm.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

// CheckRateLimit counts one connection attempt from ipAddress.
func (cm *ClientManager) CheckRateLimit(ipAddress string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := cm.now()
	rateLimit, exists := cm.rateLimits[ipAddress]
	if !exists {
		rateLimit = &RateLimitInfo{lastReset: now}
		cm.rateLimits[ipAddress] = rateLimit
	}

	if now.Sub(rateLimit.lastReset) > time.Minute {
		rateLimit.requests = 0
		rateLimit.lastReset = now
	}
	rateLimit.requests++
	if cm.perMinute > 0 && rateLimit.requests > cm.perMinute {
		logger.SecurityWarn("Rate limit exceeded for IP %s: %d connections in last minute", ipAddress, rateLimit.requests)
		return fmt.Errorf("rate limit exceeded: too many requests from %s", ipAddress)
	}
	return nil
}
