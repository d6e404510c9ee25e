package notification

import (
	"sync"

	"github.com/gorilla/websocket"

	"project-alert-service/internal/logging"
)

const maxConnectionsPerTenant = 10

// WebSocketManager manages in-app WebSocket connections per tenant.
type WebSocketManager struct {
	connections map[string]map[*websocket.Conn]bool // tenantID -> set of connections
	mutex       sync.Mutex
	logger      *logging.Logger
}

func NewWebSocketManager(logger *logging.Logger) *WebSocketManager {
	return &WebSocketManager{
		connections: make(map[string]map[*websocket.Conn]bool),
		logger:      logger,
	}
}

// AddConnection registers conn for tenantID. It reports false when the tenant
// already has the maximum number of connections.
func (m *WebSocketManager) AddConnection(tenantID string, conn *websocket.Conn) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.connections[tenantID]; !exists {
		m.connections[tenantID] = make(map[*websocket.Conn]bool)
	}
	if len(m.connections[tenantID]) >= maxConnectionsPerTenant {
		m.logger.Warnf("Max connections reached for tenant %s", tenantID)
		return false
	}
	m.connections[tenantID][conn] = true
	m.logger.Infof("Added WebSocket connection for tenant %s (total: %d)", tenantID, len(m.connections[tenantID]))
	return true
}

// RemoveConnection removes a WebSocket connection
func (m *WebSocketManager) RemoveConnection(tenantID string, conn *websocket.Conn) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if conns, exists := m.connections[tenantID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(m.connections, tenantID)
		}
		m.logger.Infof("Removed WebSocket connection for tenant %s (remaining: %d)", tenantID, len(conns))
	}
}

// SendToTenant writes message to every connection of tenantID and returns how
// many received it. Broken connections are dropped.
func (m *WebSocketManager) SendToTenant(tenantID string, message []byte) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delivered := 0
	if conns, exists := m.connections[tenantID]; exists {
		for conn := range conns {
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				m.logger.Errorf("Failed to send WebSocket message to tenant %s: %v", tenantID, err)
				delete(conns, conn)
				_ = conn.Close()
				continue
			}
			delivered++
		}
		if len(conns) == 0 {
			delete(m.connections, tenantID)
		}
	}
	return delivered
}

// Count returns the number of open connections for tenantID.
func (m *WebSocketManager) Count(tenantID string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.connections[tenantID])
}
