package stepmodel

import "encoding/json"

// RawDataEntry carries a named snapshot of the unprocessed source payload a
// graph object was derived from. Synchronization shrinks these when a batch
// is rejected for size (see internal/sync).
type RawDataEntry struct {
	Name    string         `json:"name"`
	RawData map[string]any `json:"rawData"`
}

// Entity is a node in the collected graph. Key is unique for the lifetime of
// a single run; Properties holds every field besides the well-known ones.
type Entity struct {
	Key        string
	Type       string
	Class      string
	Properties map[string]any
	RawData    []RawDataEntry
}

// MarshalJSON flattens Properties alongside the well-known underscored
// fields so the wire format matches what the persister API expects.
func (e *Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Properties)+4)
	for k, v := range e.Properties {
		out[k] = v
	}
	out["_key"] = e.Key
	out["_type"] = e.Type
	if e.Class != "" {
		out["_class"] = e.Class
	}
	if len(e.RawData) > 0 {
		out["_rawData"] = e.RawData
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the well-known underscored fields out of the flat
// wire object, leaving the remainder in Properties.
func (e *Entity) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["_key"]; ok {
		if err := json.Unmarshal(v, &e.Key); err != nil {
			return err
		}
		delete(raw, "_key")
	}
	if v, ok := raw["_type"]; ok {
		if err := json.Unmarshal(v, &e.Type); err != nil {
			return err
		}
		delete(raw, "_type")
	}
	if v, ok := raw["_class"]; ok {
		if err := json.Unmarshal(v, &e.Class); err != nil {
			return err
		}
		delete(raw, "_class")
	}
	if v, ok := raw["_rawData"]; ok {
		if err := json.Unmarshal(v, &e.RawData); err != nil {
			return err
		}
		delete(raw, "_rawData")
	}
	e.Properties = make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		e.Properties[k] = val
	}
	return nil
}

// RelationshipMapping describes the target of a mapped relationship, used
// in place of ToEntityKey when the target entity is resolved server-side.
type RelationshipMapping struct {
	TargetFilterKeys       []string       `json:"targetFilterKeys"`
	TargetEntity           map[string]any `json:"targetEntity"`
	RelationshipProperties map[string]any `json:"relationshipProperties,omitempty"`
}

// Relationship is an edge in the collected graph. Either ToEntityKey is set
// (direct relationship) or Mapping is set (mapped relationship), never both.
type Relationship struct {
	Key           string
	Type          string
	FromEntityKey string
	ToEntityKey   string
	Mapping       *RelationshipMapping
	Properties    map[string]any
}

// MarshalJSON flattens Properties alongside the well-known fields, as Entity does.
func (r *Relationship) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Properties)+5)
	for k, v := range r.Properties {
		out[k] = v
	}
	out["_key"] = r.Key
	out["_type"] = r.Type
	if r.FromEntityKey != "" {
		out["_fromEntityKey"] = r.FromEntityKey
	}
	if r.Mapping != nil {
		out["_mapping"] = r.Mapping
	} else {
		out["_toEntityKey"] = r.ToEntityKey
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Relationship) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["_key"]; ok {
		_ = json.Unmarshal(v, &r.Key)
		delete(raw, "_key")
	}
	if v, ok := raw["_type"]; ok {
		_ = json.Unmarshal(v, &r.Type)
		delete(raw, "_type")
	}
	if v, ok := raw["_fromEntityKey"]; ok {
		_ = json.Unmarshal(v, &r.FromEntityKey)
		delete(raw, "_fromEntityKey")
	}
	if v, ok := raw["_toEntityKey"]; ok {
		_ = json.Unmarshal(v, &r.ToEntityKey)
		delete(raw, "_toEntityKey")
	}
	if v, ok := raw["_mapping"]; ok {
		r.Mapping = &RelationshipMapping{}
		if err := json.Unmarshal(v, r.Mapping); err != nil {
			return err
		}
		delete(raw, "_mapping")
	}
	r.Properties = make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		r.Properties[k] = val
	}
	return nil
}
