package transport

import "strings"

// DefaultTopic matches the data topic of every turbine.
const DefaultTopic = "ecoguard/turbine/+/data"

// MatchTopic reports whether topic matches the MQTT filter, honoring the
// single level (+) and multi level (#) wildcards.
func MatchTopic(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}

	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")

	for i, f := range fl {
		if f == "#" {
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}

	return len(fl) == len(tl)
}

// TurbineFromTopic returns the turbine level of a topic matching
// DefaultTopic.
func TurbineFromTopic(topic string) (string, bool) {
	if !MatchTopic(DefaultTopic, topic) {
		return "", false
	}

	id := strings.Split(topic, "/")[2]
	if id == "" {
		return "", false
	}

	return id, true
}

func validFilter(filter string) bool {
	if filter == "" {
		return false
	}

	levels := strings.Split(filter, "/")
	for i, l := range levels {
		switch {
		case l == "#" && i != len(levels)-1:
			return false
		case l != "#" && l != "+" && strings.ContainsAny(l, "#+"):
			return false
		}
	}

	return true
}
