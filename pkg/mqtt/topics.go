package mqtt

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Topic joins base and parts with "/".
func Topic(base string, parts ...string) string {
	return strings.Join(append([]string{strings.TrimSuffix(base, "/")}, parts...), "/")
}

// ParseSetTopic splits "<base>/<device>/<capability>/set".
func ParseSetTopic(base, topic string) (deviceID, capability string, ok bool) {
	rest, found := strings.CutPrefix(topic, strings.TrimSuffix(base, "/")+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "set" || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// EncodePayload renders a capability value the homie way: booleans as
// "true"/"false", numbers in shortest form, nil as the empty string.
func EncodePayload(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// DecodePayload is the inverse of EncodePayload for command input.
func DecodePayload(payload []byte) any {
	s := strings.TrimSpace(string(payload))
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
