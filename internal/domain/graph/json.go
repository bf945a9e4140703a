package graph

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// Strings decodes a JSON string array column; malformed or empty values
// decode to nil.
func Strings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// JSONStrings encodes ss as a JSON array, never null.
func JSONStrings(ss []string) datatypes.JSON {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return datatypes.JSON(b)
}

// JSONValue encodes v for a JSON column.
func JSONValue(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
