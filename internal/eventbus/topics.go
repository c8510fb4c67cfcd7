package eventbus

import (
	"context"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/plexica/plexica/internal/logger"
)

// TopicRegistrar creates event-bus topics for a plugin's declared publish
// and subscribe events. Registration is best-effort during activation;
// message delivery itself lives outside this platform.
type TopicRegistrar interface {
	EnsureTopics(ctx context.Context, pluginID string, topics []string) error
	RemoveTopics(ctx context.Context, pluginID string) error
}

// MemoryTopics tracks declared topics in process memory. It stands in for
// the external bus in development and tests.
type MemoryTopics struct {
	topics cmap.ConcurrentMap[string, []string]
	log    *logger.Logger
}

// NewMemoryTopics returns an empty in-memory registrar.
func NewMemoryTopics(log *logger.Logger) *MemoryTopics {
	return &MemoryTopics{topics: cmap.New[[]string](), log: log.WithComponent("eventbus")}
}

// EnsureTopics records the topics for the plugin, replacing any previous
// declaration. Idempotent.
func (m *MemoryTopics) EnsureTopics(_ context.Context, pluginID string, topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	m.topics.Set(pluginID, append([]string(nil), topics...))
	m.log.WithFields(map[string]any{"plugin_id": pluginID, "topics": len(topics)}).Debug("ensured event topics")
	return nil
}

// RemoveTopics forgets the plugin's topics.
func (m *MemoryTopics) RemoveTopics(_ context.Context, pluginID string) error {
	m.topics.Remove(pluginID)
	return nil
}

// Topics returns the recorded topics for a plugin. Test hook.
func (m *MemoryTopics) Topics(pluginID string) []string {
	topics, _ := m.topics.Get(pluginID)
	return topics
}
