package websockets

import (
	"encoding/json"
	"server/config"
	"server/internal/database"
	"server/internal/events"
	"server/internal/logger"
	. "server/internal/models"
	"sync"

	"github.com/gofiber/websocket/v2"
)

type connection struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *connection) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Manager pushes blood request status updates to the owning doctor's open
// websocket connections, replacing client-side polling where a socket is
// available.
type Manager struct {
	mu          sync.RWMutex
	connections map[string][]*connection
	log         logger.Logger
}

func New(db database.DB, eventBus *events.EventBus, config config.Config) (*Manager, error) {
	manager := &Manager{
		connections: make(map[string][]*connection),
		log:         logger.New("websockets"),
	}

	eventBus.Subscribe(manager.handleEvent)

	return manager, nil
}

func (m *Manager) HandleWebSocket(c *websocket.Conn) {
	log := m.log.Function("HandleWebSocket")

	user, ok := c.Locals("user").(User)
	if !ok || user.ID == "" {
		log.ErMsg("websocket connection without an authenticated user")
		_ = c.Close()
		return
	}

	conn := &connection{conn: c}
	m.register(user.ID, conn)
	defer m.unregister(user.ID, conn)

	// Reads are only used to detect the peer closing.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func (m *Manager) handleEvent(event events.Event) {
	if event.Type != events.TypeRequestUpdated || event.DoctorID == "" {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		m.log.Function("handleEvent").Er("failed to marshal event", err)
		return
	}

	m.mu.RLock()
	conns := make([]*connection, len(m.connections[event.DoctorID]))
	copy(conns, m.connections[event.DoctorID])
	m.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.write(payload); err != nil {
			m.log.Function("handleEvent").
				Warn("failed to push event to websocket", "doctorID", event.DoctorID, "error", err)
		}
	}
}

func (m *Manager) register(doctorID string, conn *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[doctorID] = append(m.connections[doctorID], conn)
}

func (m *Manager) unregister(doctorID string, conn *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns := m.connections[doctorID]
	for i, c := range conns {
		if c == conn {
			m.connections[doctorID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(m.connections[doctorID]) == 0 {
		delete(m.connections, doctorID)
	}
}
