package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "unifi"

// Topics builds topic names under a configured prefix.
//
//	topics := mqtt.NewTopics("unifi")
//	topics.Event("network", "EVT_WU_Connected")
//	// Returns: "unifi/network/EVT_WU_Connected"
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the normalised prefix.
func (t Topics) Prefix() string {
	return t.prefix
}

// Status returns the retained bridge status topic.
//
// Example: unifi/status
func (t Topics) Status() string {
	return t.prefix + "/status"
}

// Event returns the topic for one classified controller event.
// Both segments are sanitised so they cannot introduce extra levels
// or wildcards.
//
// Example: unifi/access/access.logs.add
func (t Topics) Event(subsystem, event string) string {
	return t.prefix + "/" + SanitizeSegment(subsystem) + "/" + SanitizeSegment(event)
}

// AllEvents returns a pattern matching every event the bridge publishes.
//
// Pattern: unifi/#
func (t Topics) AllEvents() string {
	return t.prefix + "/#"
}

var segmentReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// SanitizeSegment makes s safe to use as a single topic level.
// An empty segment becomes "_".
func SanitizeSegment(s string) string {
	s = segmentReplacer.Replace(s)
	if s == "" {
		return "_"
	}
	return s
}
