package wire

import (
	"encoding/json"
	"time"
)

// EntityState is the hub's record of a single entity.
type EntityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
	Context     *Context       `json:"context,omitempty"`

	// Extra holds record fields not modelled above, such as last_reported,
	// so they survive a decode and re-encode.
	Extra map[string]json.RawMessage `json:"-"`
}

// entityStateFields are the keys decoded into EntityState's typed fields.
var entityStateFields = []string{"entity_id", "state", "attributes", "last_changed", "last_updated", "context"}

// entityStateJSON is EntityState without its JSON methods.
type entityStateJSON EntityState

// UnmarshalJSON decodes the typed fields and keeps the rest in Extra.
func (s *EntityState) UnmarshalJSON(data []byte) error {
	var typed entityStateJSON
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, key := range entityStateFields {
		delete(all, key)
	}
	typed.Extra = nil
	if len(all) > 0 {
		typed.Extra = all
	}
	*s = EntityState(typed)
	return nil
}

// MarshalJSON encodes the typed fields plus Extra. Typed fields win over
// Extra entries with the same key.
func (s EntityState) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(entityStateJSON(s))
	if err != nil || len(s.Extra) == 0 {
		return data, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for key, raw := range s.Extra {
		if _, typed := all[key]; !typed {
			all[key] = raw
		}
	}
	return json.Marshal(all)
}

// Clone returns a deep copy of the state record.
func (s *EntityState) Clone() *EntityState {
	if s == nil {
		return nil
	}
	c := *s
	c.Attributes = CloneMap(s.Attributes)
	if s.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for k, v := range s.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	if s.Context != nil {
		ctx := *s.Context
		ctx.ParentID = cloneString(s.Context.ParentID)
		ctx.UserID = cloneString(s.Context.UserID)
		c.Context = &ctx
	}
	return &c
}

// Service describes one callable service of a domain.
type Service struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	Target      map[string]any `json:"target,omitempty"`
}

// Clone returns a deep copy of the service description.
func (s Service) Clone() Service {
	s.Fields = CloneMap(s.Fields)
	s.Target = CloneMap(s.Target)
	return s
}

// Services maps domain -> service name -> description, as returned by
// get_services.
type Services map[string]map[string]Service

// Clone returns a deep copy of the registry.
func (s Services) Clone() Services {
	if s == nil {
		return nil
	}
	out := make(Services, len(s))
	for domain, svcs := range s {
		inner := make(map[string]Service, len(svcs))
		for name, svc := range svcs {
			inner[name] = svc.Clone()
		}
		out[domain] = inner
	}
	return out
}

// CloneMap deep-copies a JSON-decoded object.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a JSON-decoded value. Scalars are returned as is.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
