package ingest

import "strings"

// MatchTopic reports whether topic matches an MQTT subscription pattern.
// "+" matches exactly one level and "#" (last level only) matches the rest,
// including the parent level itself.
func MatchTopic(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	p := strings.Split(pattern, "/")
	t := strings.Split(topic, "/")

	// $SYS style topics are never matched by a leading wildcard
	if strings.HasPrefix(topic, "$") && (p[0] == "+" || p[0] == "#") {
		return false
	}

	for i, seg := range p {
		if seg == "#" {
			return i == len(p)-1
		}
		if i >= len(t) {
			return false
		}
		if seg != "+" && seg != t[i] {
			return false
		}
	}
	return len(p) == len(t)
}
