package annotation

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Annotation is one identified measurement record. Records are addressed by
// (Type, ID); the pair is unique within a store.
type Annotation struct {
	Type    Type       `json:"type"`
	ID      string     `json:"id"`
	Edit    EditPolicy `json:"edit"`
	Payload any        `json:"payload"`
}

// Store maps type -> id -> record. It is created empty with a session,
// survives workspace resets, and is cleared only at session teardown.
// Single control flow owns it; no locking.
type Store struct {
	byType map[Type]map[string]*Annotation
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byType: make(map[Type]map[string]*Annotation)}
}

// Get returns the record for (t, id), or nil if absent.
func (s *Store) Get(t Type, id string) *Annotation {
	return s.byType[t][id]
}

// Apply stores a new record under (a.Type, a.ID). The incoming record's
// edit policy decides the fate of an existing one: overwrite and append
// replace (for append the producing operation was handed the existing
// record and a.Payload is the merge result), false keeps what is stored.
// The policy arrives from the document on every pass, so editing edit:
// in the file unlocks a record on the next run. Reports whether the
// store now holds the new payload.
func (s *Store) Apply(a *Annotation) bool {
	ids := s.byType[a.Type]
	if ids == nil {
		ids = make(map[string]*Annotation)
		s.byType[a.Type] = ids
	}

	if ids[a.ID] != nil && a.Edit == EditLocked {
		return false
	}

	ids[a.ID] = a
	return true
}

// IDs returns the ids present for a type, sorted.
func (s *Store) IDs(t Type) []string {
	ids := make([]string, 0, len(s.byType[t]))
	for id := range s.byType[t] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ByType returns all records of a type in id order.
func (s *Store) ByType(t Type) []*Annotation {
	out := make([]*Annotation, 0, len(s.byType[t]))
	for _, id := range s.IDs(t) {
		out = append(out, s.byType[t][id])
	}
	return out
}

// All returns every record, ordered by type then id.
func (s *Store) All() []*Annotation {
	var out []*Annotation
	for _, t := range Types() {
		out = append(out, s.ByType(t)...)
	}
	return out
}

// Len counts stored records.
func (s *Store) Len() int {
	n := 0
	for _, ids := range s.byType {
		n += len(ids)
	}
	return n
}

// Clear drops all records. Session teardown only.
func (s *Store) Clear() {
	s.byType = make(map[Type]map[string]*Annotation)
}

// Encode serializes the store as indented JSON (type -> id -> record).
func (s *Store) Encode() ([]byte, error) {
	out := make(map[Type]map[string]*Annotation, len(s.byType))
	for t, ids := range s.byType {
		if len(ids) == 0 {
			continue
		}
		out[t] = ids
	}
	return json.MarshalIndent(out, "", "  ")
}

// Decode replaces the store contents from Encode output. Payloads are
// re-typed per annotation type so operations receive concrete structs.
func (s *Store) Decode(data []byte) error {
	var raw map[Type]map[string]struct {
		Type    Type            `json:"type"`
		ID      string          `json:"id"`
		Edit    EditPolicy      `json:"edit"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("annotation: decode store: %w", err)
	}

	byType := make(map[Type]map[string]*Annotation, len(raw))
	for t, ids := range raw {
		if _, err := ParseType(string(t)); err != nil {
			return err
		}
		byType[t] = make(map[string]*Annotation, len(ids))
		for id, r := range ids {
			payload, err := decodePayload(t, r.Payload)
			if err != nil {
				return fmt.Errorf("annotation: decode %s/%s: %w", t, id, err)
			}
			byType[t][id] = &Annotation{Type: t, ID: id, Edit: r.Edit, Payload: payload}
		}
	}
	s.byType = byType
	return nil
}

func decodePayload(t Type, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var dst any
	switch t {
	case Comment:
		dst = &CommentPayload{}
	case Contour:
		dst = &ContourPayload{}
	case Drawing:
		dst = &DrawingPayload{}
	case Landmark:
		dst = &LandmarkPayload{}
	case Line:
		dst = &LinePayload{}
	case Mask:
		dst = &MaskPayload{}
	case Reference:
		dst = &ReferencePayload{}
	case ShapeFeatures, TextureFeatures:
		dst = &FeaturesPayload{}
	default:
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, err
		}
		return generic, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, err
	}
	return dst, nil
}
