package metrics

import "encoding/json"

// DebugRecord is a free-form debug event a task emits via
// pkg/user.Context's LogDebug, distinct from the RawRequest/stats-log
// stream every request feeds automatically: a DebugRecord is opt-in,
// tagged by the caller, and carries whatever request/header/body
// context the caller wants to inspect later.
type DebugRecord struct {
	Tag     string
	Request *RawRequest
	Headers map[string]string
	Body    string
}

// debugRecordWire is DebugRecord's on-disk JSON shape (spec.md §6):
// `{tag, request?, header?, body?}`, where header is a JSON-encoded
// string of the header map rather than a nested object, preserving
// the wire format an earlier debug-log draft already committed to.
type debugRecordWire struct {
	Tag     string       `json:"tag"`
	Request *RawRequest  `json:"request,omitempty"`
	Header  *string      `json:"header,omitempty"`
	Body    string       `json:"body,omitempty"`
}

// MarshalJSON implements json.Marshaler, encoding Headers as a JSON
// string under the "header" key instead of a nested object.
func (d DebugRecord) MarshalJSON() ([]byte, error) {
	wire := debugRecordWire{Tag: d.Tag, Request: d.Request, Body: d.Body}
	if len(d.Headers) > 0 {
		enc, err := json.Marshal(d.Headers)
		if err != nil {
			return nil, err
		}
		s := string(enc)
		wire.Header = &s
	}
	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler, reversing MarshalJSON's
// string-encoded header field back into a map.
func (d *DebugRecord) UnmarshalJSON(data []byte) error {
	var wire debugRecordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	d.Tag = wire.Tag
	d.Request = wire.Request
	d.Body = wire.Body
	d.Headers = nil
	if wire.Header != nil {
		var headers map[string]string
		if err := json.Unmarshal([]byte(*wire.Header), &headers); err != nil {
			return err
		}
		d.Headers = headers
	}
	return nil
}
