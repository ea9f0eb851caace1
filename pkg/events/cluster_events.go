package events

import (
	"strings"
	"time"
)

const clusterEventPrefix = "CLUSTER_"

// ClusterEventType maps a topology event type ("split") to its bus code
// ("CLUSTER_SPLIT").
func ClusterEventType(eventType string) string {
	return clusterEventPrefix + strings.ToUpper(eventType)
}

func IsClusterEvent(e Event) bool {
	return strings.HasPrefix(e.EventType(), clusterEventPrefix)
}

func NewClusterEvent(eventType string, data map[string]interface{}, at time.Time) BaseEvent {
	return BaseEvent{Type: ClusterEventType(eventType), Data: data, OccurredAt: at}
}

// StringIDs reads a list of ids from a decoded payload field. JSON decoding
// yields []interface{}, in-process delivery may keep []string.
func StringIDs(data map[string]interface{}, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
