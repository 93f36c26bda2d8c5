package hub

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"time"
)

// ProtocolVersion is bumped whenever the field-abbreviation mapping changes;
// legacy decoders key off this to fall back to unabbreviated payloads.
const ProtocolVersion = 1

// CompressionThresholdBytes is the default size above which the codec
// attempts gzip; overridable via config.HubConfig.
const CompressionThresholdBytes = 10 * 1024

// compressionMinReduction is the minimum fractional size reduction gzip
// must achieve before the codec keeps the compressed form.
const compressionMinReduction = 0.10

// longToShort is the fixed bidirectional field-abbreviation mapping applied
// recursively to every JSON object in a payload before transmission.
var longToShort = map[string]string{
	"message_id":          "mid",
	"channel_id":           "cid",
	"author_name":          "an",
	"author_id":            "aid",
	"author_kind":          "ak",
	"author_display_name":  "an",
	"content":              "c",
	"created_at":           "ts",
	"metadata":             "m",
	"workflow_id":          "wid",
	"task_id":              "tid",
	"agent_id":             "agid",
	"agent_handle":         "ah",
	"status":               "st",
	"session_id":           "sid",
	"is_final":             "fin",
	"reply_to_id":          "rid",
}

var shortToLong = invert(longToShort)

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// timestampFields are the long-form field names whose values, when
// ISO-8601 strings, are rewritten to integer epoch milliseconds by the
// codec before abbreviation.
var timestampFields = map[string]bool{
	"created_at":   true,
	"started_at":   true,
	"completed_at": true,
	"updated_at":   true,
}

// Envelope is the wire-level frame every event is delivered in. The
// compression marker is the gzip magic number on the wire, not a field
// here: a compressed Frame's Bytes are raw deflate output, detected by
// Decode via isGzip before the envelope is even parsed.
type Envelope struct {
	Event   string          `json:"e"`
	Data    json.RawMessage `json:"d"`
	Version int             `json:"_v"`
}

// Frame is the fully encoded byte form of one Envelope, ready for transport.
type Frame struct {
	Bytes          []byte
	OriginalBytes  int
	OptimizedBytes int
	Compressed     bool
}

// Encode builds the wire envelope for one event. When optimize is true, the
// payload is field-abbreviated (recursively) and, if large enough, gzipped.
func Encode(eventName string, payload any, optimize bool) (*Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	original := len(raw)

	data := raw
	if optimize {
		var generic any
		if err := json.Unmarshal(raw, &generic); err == nil {
			abbreviated := abbreviate(generic)
			if reencoded, err := json.Marshal(abbreviated); err == nil {
				data = reencoded
			}
		}
	}

	env := Envelope{Event: eventName, Data: data, Version: ProtocolVersion}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	if optimize && len(body) > CompressionThresholdBytes {
		if compressed, ok := tryGzip(body); ok {
			return &Frame{Bytes: compressed, OriginalBytes: original, OptimizedBytes: len(compressed), Compressed: true}, nil
		}
	}

	return &Frame{Bytes: body, OriginalBytes: original, OptimizedBytes: len(body), Compressed: false}, nil
}

// tryGzip gzips body at level 6 and reports ok=true only if the compressed
// form is at least compressionMinReduction smaller.
func tryGzip(body []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression-3) // level 6
	if err != nil {
		return nil, false
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	compressed := buf.Bytes()
	reduction := 1 - float64(len(compressed))/float64(len(body))
	if reduction < compressionMinReduction {
		return nil, false
	}
	return compressed, true
}

// Decode reverses Encode: gunzips if necessary, then restores long-form
// field names and ISO-8601 timestamps, and unmarshals into dst.
func Decode(raw []byte, dst any) error {
	body := raw
	if isGzip(raw) {
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return err
		}
		defer r.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r); err != nil {
			return err
		}
		body = buf.Bytes()
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}

	var generic any
	if err := json.Unmarshal(env.Data, &generic); err != nil {
		return err
	}
	restored := unabbreviate(generic)
	restoredBytes, err := json.Marshal(restored)
	if err != nil {
		return err
	}
	return json.Unmarshal(restoredBytes, dst)
}

func isGzip(b []byte) bool {
	return len(b) > 2 && b[0] == 0x1f && b[1] == 0x8b
}

// abbreviate recursively replaces long field names with their short form and
// converts recognized timestamp fields from RFC3339 to epoch milliseconds.
func abbreviate(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, raw := range val {
			converted := raw
			if timestampFields[k] {
				if s, ok := raw.(string); ok {
					if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
						converted = t.UnixMilli()
					}
				}
			}
			newKey := k
			if short, ok := longToShort[k]; ok {
				newKey = short
			}
			out[newKey] = abbreviate(converted)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = abbreviate(item)
		}
		return out
	default:
		return v
	}
}

// unabbreviate reverses abbreviate: restores long field names. Epoch
// millisecond timestamps are left as numbers (callers decode them directly
// into time.Time-compatible fields via their own json tags, e.g. via a
// custom UnmarshalJSON, or treat them as int64 millis).
func unabbreviate(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, raw := range val {
			newKey := k
			if long, ok := shortToLong[k]; ok {
				newKey = long
			}
			converted := unabbreviate(raw)
			if timestampFields[newKey] {
				if ms, ok := asNumber(converted); ok {
					converted = time.UnixMilli(int64(ms)).UTC().Format(time.RFC3339Nano)
				}
			}
			out[newKey] = converted
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = unabbreviate(item)
		}
		return out
	default:
		return v
	}
}

func asNumber(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}
