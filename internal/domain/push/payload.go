// internal/domain/push/payload.go
package push

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Fields is a flat string map. Push data maps are string-valued on the wire,
// but webhook senders often send numbers and booleans, so scalars of any
// JSON type are accepted and stringified.
type Fields map[string]string

func (f *Fields) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Fields, len(raw))
	for k, v := range raw {
		if s, ok := scalarString(v); ok {
			out[k] = s
		}
	}
	*f = out
	return nil
}

// scalarString renders a JSON scalar as a string. Objects, arrays and null
// are skipped.
func scalarString(v json.RawMessage) (string, bool) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return "", false
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", false
		}
		return s, true
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return "", false
		}
		return strconv.FormatBool(b), true
	case '{', '[', 'n':
		return "", false
	default:
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			return "", false
		}
		return n.String(), true
	}
}

// Body is the display part of an FCM-style message.
type Body struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// Payload is an inbound push message. Senders use three shapes: FCM style
// {notification, data}, a flat object {title, body, url, ...}, or plain text.
type Payload struct {
	Notification *Body
	Data         Fields
	Top          Fields
	// Text is set when the payload was not a JSON object.
	Text string
}

// ParsePayload decodes raw push bytes. It never fails: anything that is not
// a JSON object becomes a text payload.
func ParsePayload(raw []byte) Payload {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return TextPayload(string(raw))
	}

	p := Payload{Data: Fields{}, Top: Fields{}}
	for k, v := range obj {
		switch k {
		case "notification":
			var n Body
			if err := json.Unmarshal(v, &n); err == nil {
				p.Notification = &n
			}
		case "data":
			var d Fields
			if err := json.Unmarshal(v, &d); err == nil {
				p.Data = d
			}
		default:
			if s, ok := scalarString(v); ok {
				p.Top[k] = s
			}
		}
	}
	return p
}

// TextPayload wraps plain text as a payload body.
func TextPayload(text string) Payload {
	return Payload{Text: strings.TrimSpace(text), Data: Fields{}, Top: Fields{}}
}

// IsText reports whether the payload fell back to plain text.
func (p Payload) IsText() bool {
	return p.Notification == nil && len(p.Data) == 0 && len(p.Top) == 0
}

// Get looks a field up in the data map first, then at the top level.
func (p Payload) Get(key string) string {
	if v := p.Data[key]; v != "" {
		return v
	}
	return p.Top[key]
}

// Type is the message type discriminator, if any.
func (p Payload) Type() string {
	return p.Get("type")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Title resolves the display title: notification, data, top level, default.
func (p Payload) Title() string {
	var n Body
	if p.Notification != nil {
		n = *p.Notification
	}
	return firstNonEmpty(n.Title, p.Data["title"], p.Top["title"], DefaultTitle)
}

// BodyText resolves the display body the same way, accepting "message" as
// an alias of "body".
func (p Payload) BodyText() string {
	if p.IsText() && p.Text != "" {
		return p.Text
	}
	var n Body
	if p.Notification != nil {
		n = *p.Notification
	}
	return firstNonEmpty(n.Body, p.Data["body"], p.Data["message"], p.Top["body"], p.Top["message"], DefaultBody)
}
