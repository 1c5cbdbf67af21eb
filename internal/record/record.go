// Package record defines the user-account record schema and the field
// accessor table used for searches and partial updates.
//
// The schema is a fixed, enumerated set of fields. Callers that address
// fields by runtime name (find, update patches, projections) go through
// Value/Apply, which reject unknown names instead of reflecting over
// arbitrary attributes.
package record

import (
	"fmt"
	"unicode"

	"github.com/dmitrijs2005/userdb/internal/common"
)

// Record is a single user-account record. Identity is external: records are
// addressed by shard reference, no field here is globally unique.
type Record struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	IPReg        string `json:"ip_reg"`
	LastLogged   string `json:"last_logged"`
	LastIP       string `json:"last_ip"`
}

// FieldNames lists the schema fields in canonical order.
var FieldNames = []string{"username", "password_hash", "ip_reg", "last_logged", "last_ip"}

type accessor struct {
	get func(*Record) string
	set func(*Record, string)
}

var fields = map[string]accessor{
	"username": {
		get: func(r *Record) string { return r.Username },
		set: func(r *Record, v string) { r.Username = v },
	},
	"password_hash": {
		get: func(r *Record) string { return r.PasswordHash },
		set: func(r *Record, v string) { r.PasswordHash = v },
	},
	"ip_reg": {
		get: func(r *Record) string { return r.IPReg },
		set: func(r *Record, v string) { r.IPReg = v },
	},
	"last_logged": {
		get: func(r *Record) string { return r.LastLogged },
		set: func(r *Record, v string) { r.LastLogged = v },
	},
	"last_ip": {
		get: func(r *Record) string { return r.LastIP },
		set: func(r *Record, v string) { r.LastIP = v },
	},
}

// Known reports whether name is a schema field.
func Known(name string) bool {
	_, ok := fields[name]
	return ok
}

// Value returns the named field. Unknown names yield ErrUnknownField.
func (r *Record) Value(name string) (string, error) {
	a, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", common.ErrUnknownField, name)
	}
	return a.get(r), nil
}

// Apply merges the patch into the record. Fields absent from the patch are
// left unchanged. The patch is checked in full before anything is written,
// so a patch with an unknown key changes nothing.
func (r *Record) Apply(patch map[string]string) error {
	for name := range patch {
		if !Known(name) {
			return fmt.Errorf("%w: unknown field %q", common.ErrValidation, name)
		}
	}
	for name, value := range patch {
		fields[name].set(r, value)
	}
	return nil
}

// Validate checks the rules a record must satisfy before being persisted.
// Only structural presence is enforced here, schema validation beyond that
// belongs to the caller.
func (r *Record) Validate() error {
	if r.Username == "" {
		return fmt.Errorf("%w: username must not be empty", common.ErrValidation)
	}
	runes := []rune(r.Username)
	if !unicode.IsLetter(runes[0]) {
		return fmt.Errorf("%w: username must start with a letter", common.ErrValidation)
	}
	return nil
}

// Project renders the record as a field-name map. With a nil or empty list
// every schema field is included, otherwise only the named ones, which must
// all be known.
func (r *Record) Project(names []string) (map[string]string, error) {
	if len(names) == 0 {
		names = FieldNames
	}
	out := make(map[string]string, len(names))
	for _, name := range names {
		v, err := r.Value(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
