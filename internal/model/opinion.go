package model

import (
	"encoding/json"
	"fmt"
)

// Opinion is a user's stance on a movie. The zero value is OpinionNone,
// which is persisted as NULL and counts towards neither counter.
type Opinion string

const (
	OpinionNone Opinion = ""
	OpinionLike Opinion = "L"
	OpinionHate Opinion = "H"
)

// ParseOpinion validates the wire representation of an opinion. An empty
// string maps to OpinionNone.
func ParseOpinion(s string) (Opinion, error) {
	switch Opinion(s) {
	case OpinionNone, OpinionLike, OpinionHate:
		return Opinion(s), nil
	}
	return OpinionNone, fmt.Errorf("%q is not a valid choice", s)
}

// Valid reports whether o is one of the known values.
func (o Opinion) Valid() bool {
	_, err := ParseOpinion(string(o))
	return err == nil
}

// MarshalJSON encodes OpinionNone as null.
func (o Opinion) MarshalJSON() ([]byte, error) {
	if o == OpinionNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(o))
}

// UnmarshalJSON accepts "L", "H", "" and null.
func (o *Opinion) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = OpinionNone
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("opinion must be a string or null")
	}
	v, err := ParseOpinion(s)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Tally counts LIKE and HATE values. It is the in-memory counterpart of
// the recount query run by the MySQL store.
func Tally(values []Opinion) (likes, hates int) {
	for _, v := range values {
		switch v {
		case OpinionLike:
			likes++
		case OpinionHate:
			hates++
		}
	}
	return likes, hates
}
