package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Marshal encodes a frame to JSON.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON bytes into a value.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// DecodeFrame decodes a single inbound frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type")
	}
	return &f, nil
}

// EncodeCommand encodes a command with the given message id.
func EncodeCommand(id uint64, cmd Command) ([]byte, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(cmd)+1)
	for k, v := range cmd {
		out[k] = v
	}
	out["id"] = id
	return json.Marshal(out)
}

// IsEmptyPayload reports whether an event payload carries nothing usable:
// absent, null, or the heartbeat marker.
func IsEmptyPayload(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	var s string
	if trimmed[0] == '"' && json.Unmarshal(trimmed, &s) == nil {
		return s == HeartbeatData
	}
	return false
}

// DecodePayload decodes an event payload into a generic value. Objects
// become map[string]any.
func DecodePayload(data json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// ParseVersion converts a version announced by the integration into an
// integer. Numbers are truncated; strings use their leading integer
// component ("3.1.2" -> 3). Anything else yields 0.
func ParseVersion(v any) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			f, ferr := val.Float64()
			if ferr != nil {
				return 0
			}
			return int(f)
		}
		return int(n)
	case string:
		head := strings.SplitN(strings.TrimPrefix(val, "v"), ".", 2)[0]
		n, err := strconv.Atoi(head)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
