package provider

import (
	"sync"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// MapFunc rewrites notification data for one provider. It receives a copy.
type MapFunc func(data domain.NotificationData) domain.NotificationData

type mappingKey struct {
	provider     string
	notification string
}

// Mappings holds per-(provider, notification name) data transforms.
type Mappings struct {
	mu    sync.RWMutex
	funcs map[mappingKey]MapFunc
}

func NewMappings() *Mappings {
	return &Mappings{funcs: make(map[mappingKey]MapFunc)}
}

func (m *Mappings) Register(provider, notification string, fn MapFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs[mappingKey{provider: provider, notification: notification}] = fn
}

// Apply returns a copy of n with the mapping for provider applied. The
// original is never modified.
func (m *Mappings) Apply(provider string, n *domain.Notification) *domain.Notification {
	out := n.Clone()
	if m == nil {
		return &out
	}

	m.mu.RLock()
	fn, ok := m.funcs[mappingKey{provider: provider, notification: n.Name}]
	m.mu.RUnlock()

	if ok && fn != nil {
		out.Data = fn(out.Data)
	}
	return &out
}
