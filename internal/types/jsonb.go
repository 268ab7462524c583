package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions. These ensure Document implements both
// sql.Scanner and driver.Valuer, catching any method signature drift at
// compile time rather than at runtime.
var (
	_ sql.Scanner   = (*Document)(nil)
	_ driver.Valuer = Document(nil)
)

// Document is an opaque JSONB payload produced and consumed by the downstream
// content pipeline (ideas, scripts, assets, analytics). The scheduling core
// stores and returns it verbatim without interpreting its structure.
type Document map[string]any

// Scan implements sql.Scanner for JSONB columns.
func (d *Document) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, d)
}

// Value implements driver.Valuer for JSONB columns. Nil documents map to SQL
// NULL rather than the JSON literal "null".
func (d Document) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}
