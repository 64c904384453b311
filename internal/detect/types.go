package detect

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type is the unified entity vocabulary shared by every backend.
type Type int

const (
	PhoneNumber Type = iota + 1
	Link
	Email
	Address
	Date
)

var typeNames = map[Type]string{
	PhoneNumber: "phoneNumber",
	Link:        "link",
	Email:       "email",
	Address:     "address",
	Date:        "date",
}

var typesByName = map[string]Type{
	"phoneNumber": PhoneNumber,
	"link":        Link,
	"email":       Email,
	"address":     Address,
	"date":        Date,
}

// AllTypes lists the vocabulary in declaration order.
func AllTypes() []Type {
	return []Type{PhoneNumber, Link, Email, Address, Date}
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// ParseType accepts exactly the five vocabulary names.
func ParseType(s string) (Type, error) {
	t, ok := typesByName[strings.TrimSpace(s)]
	if !ok {
		return 0, fmt.Errorf("unknown detection type %q", s)
	}
	return t, nil
}

// ParseTypes parses a comma separated list such as "phoneNumber,link".
func ParseTypes(s string) ([]Type, error) {
	out := make([]Type, 0)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := ParseType(part)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid detection type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(data []byte) error {
	parsed, err := ParseType(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TypeSet is a bitmask over Type.
type TypeSet uint8

func NewTypeSet(types ...Type) TypeSet {
	var s TypeSet
	for _, t := range types {
		s = s.With(t)
	}
	return s
}

func AllTypeSet() TypeSet {
	return NewTypeSet(AllTypes()...)
}

func (s TypeSet) With(t Type) TypeSet {
	if !t.Valid() {
		return s
	}
	return s | 1<<uint(t)
}

func (s TypeSet) Has(t Type) bool {
	return t.Valid() && s&(1<<uint(t)) != 0
}

func (s TypeSet) Empty() bool { return s == 0 }

func (s TypeSet) Types() []Type {
	out := make([]Type, 0, len(typeNames))
	for _, t := range AllTypes() {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s TypeSet) String() string {
	names := make([]string, 0, len(typeNames))
	for _, t := range s.Types() {
		names = append(names, t.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// Entity is one normalized match. Start and End are expressed in the
// OffsetUnit requested through Options; End is exclusive.
type Entity struct {
	Type  Type              `json:"type"`
	Text  string            `json:"text"`
	Start int               `json:"start"`
	End   int               `json:"end"`
	Data  map[string]string `json:"data"`
}

func (e Entity) String() string {
	return fmt.Sprintf("%s(%q)[%d:%d]", e.Type, e.Text, e.Start, e.End)
}

// Options is the caller supplied request filter. A nil Types slice requests
// every type; a non-nil empty slice requests none.
type Options struct {
	Types   []Type     `json:"types,omitempty"`
	Offsets OffsetUnit `json:"offsets,omitempty"`
}

func (o *Options) TypeSet() TypeSet {
	if o == nil || o.Types == nil {
		return AllTypeSet()
	}
	return NewTypeSet(o.Types...)
}

func (o *Options) offsetUnit() OffsetUnit {
	if o == nil || o.Offsets == "" {
		return OffsetBytes
	}
	return o.Offsets
}

// UnmarshalJSON keeps the nil/empty distinction of Types: an explicit
// "types": [] is preserved as an empty, non-nil slice.
func (o *Options) UnmarshalJSON(data []byte) error {
	var raw struct {
		Types   *[]Type    `json:"types"`
		Offsets OffsetUnit `json:"offsets"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	o.Offsets = raw.Offsets
	o.Types = nil
	if raw.Types != nil {
		o.Types = append(make([]Type, 0, len(*raw.Types)), (*raw.Types)...)
	}
	return nil
}
