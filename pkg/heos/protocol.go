package heos

import (
	"encoding/json"
	"net/url"
	"strings"
)

// HEOS CLI framing: commands are "heos://group/command?k=v&k=v\r\n" and every
// reply or event is one JSON object per CRLF-terminated line.

const (
	commandPrefix   = "heos://"
	eventPrefix     = "event/"
	resultSuccess   = "success"
	underProcessMsg = "command under process"
)

type header struct {
	Command string `json:"command"`
	Result  string `json:"result"`
	Message string `json:"message"`
}

type response struct {
	HEOS    header          `json:"heos"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (r response) attrs() map[string]string {
	return parseMessage(r.HEOS.Message)
}

func (r response) isEvent() bool {
	return strings.HasPrefix(r.HEOS.Command, eventPrefix)
}

func (r response) pending() bool {
	return strings.Contains(r.HEOS.Message, underProcessMsg)
}

type param struct {
	key   string
	value string
}

// encodeCommand renders a command line. Values are written verbatim except
// for the three characters the CLI reserves.
func encodeCommand(command string, params ...param) string {
	var b strings.Builder
	b.WriteString(commandPrefix)
	b.WriteString(command)
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(escapeValue(p.value))
	}
	b.WriteString("\r\n")
	return b.String()
}

var valueEscaper = strings.NewReplacer("%", "%25", "&", "%26", "=", "%3D")

func escapeValue(v string) string {
	return valueEscaper.Replace(v)
}

// parseMessage splits a "k=v&k2=v2" message. Bare flags map to "".
func parseMessage(msg string) map[string]string {
	attrs := make(map[string]string)
	if msg == "" {
		return attrs
	}
	for _, part := range strings.Split(msg, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		if unescaped, err := url.PathUnescape(value); err == nil {
			value = unescaped
		}
		attrs[key] = value
	}
	return attrs
}

func parseEvent(r response) Event {
	attrs := r.attrs()
	return Event{
		Type:     EventType(strings.TrimPrefix(r.HEOS.Command, eventPrefix)),
		PlayerID: attrs["pid"],
		Attrs:    attrs,
	}
}
