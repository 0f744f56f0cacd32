package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every Vega topic when none is configured.
const DefaultTopicPrefix = "vega"

// Topics provides builders for Vega MQTT topics under a configurable root.
//
// Topic hierarchy:
//
//	{prefix}/resource/{collection}/{id}        retained record, empty payload once removed
//	{prefix}/connection/{receiver_id}/state    retained connection record
//	{prefix}/registry/status                   push channel status events
//	{prefix}/command/{action}                  connect/disconnect requests
//	{prefix}/system/status                     online/offline with LWT
//
// Example:
//
//	topics := mqtt.NewTopics("vega")
//	topic := topics.Resource("senders", "c3f2...")
//	// Returns: "vega/resource/senders/c3f2..."
type Topics struct {
	Prefix string
}

// NewTopics returns builders rooted at prefix. Surrounding slashes are
// trimmed and an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// =============================================================================
// Resource Topics
// =============================================================================

// Resource returns the topic carrying the current value of one registry record.
//
// Example: vega/resource/receivers/6b9d...
func (t Topics) Resource(collection, id string) string {
	return fmt.Sprintf("%s/resource/%s/%s", t.root(), collection, id)
}

// AllResources returns a pattern matching every record topic.
//
// Pattern: vega/resource/#
func (t Topics) AllResources() string {
	return fmt.Sprintf("%s/resource/#", t.root())
}

// =============================================================================
// Connection Topics
// =============================================================================

// ConnectionState returns the topic carrying a receiver's connection record.
//
// Example: vega/connection/6b9d.../state
func (t Topics) ConnectionState(receiverID string) string {
	return fmt.Sprintf("%s/connection/%s/state", t.root(), receiverID)
}

// AllConnectionStates returns a pattern matching every connection state topic.
//
// Pattern: vega/connection/+/state
func (t Topics) AllConnectionStates() string {
	return fmt.Sprintf("%s/connection/+/state", t.root())
}

// RegistryStatus returns the topic for push channel status events.
//
// Example: vega/registry/status
func (t Topics) RegistryStatus() string {
	return fmt.Sprintf("%s/registry/status", t.root())
}

// Command returns the topic on which an action is requested.
//
// Example: vega/command/connect
func (t Topics) Command(action string) string {
	return fmt.Sprintf("%s/command/%s", t.root(), action)
}

// AllCommands returns a pattern matching every command topic.
//
// Pattern: vega/command/+
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+", t.root())
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: vega/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.root())
}

// AllTopics returns a pattern matching all Vega topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: vega/#
func (t Topics) AllTopics() string {
	return t.root() + "/#"
}
