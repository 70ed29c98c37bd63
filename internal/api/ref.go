package api

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
)

var errBadRef = errors.New("reference must be an id string or an object with an id")

// Ref is a reference to another record. Clients may send either the bare
// id or an embedded object carrying "id" (or "_id").
type Ref struct {
	ID string
}

func (r *Ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		r.ID = ""
		return nil
	}

	switch b[0] {
	case '"':
		return json.Unmarshal(b, &r.ID)
	case '{':
		var obj struct {
			ID    string `json:"id"`
			AltID string `json:"_id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		r.ID = obj.ID
		if r.ID == "" {
			r.ID = obj.AltID
		}
		return nil
	default:
		return errBadRef
	}
}

func (r Ref) IsZero() bool {
	return r.ID == ""
}

// resolve parses the reference, recording a field error when it is
// missing or malformed.
func (r Ref) resolve(field string, verr *scheduling.ValidationError) uuid.UUID {
	if r.IsZero() {
		verr.Add(field, "is required")
		return uuid.Nil
	}
	id, err := uuid.Parse(r.ID)
	if err != nil {
		verr.Add(field, "must be a valid UUID")
		return uuid.Nil
	}
	return id
}

// resolveOptional is resolve for references that may be absent.
func resolveOptional(r *Ref, field string, verr *scheduling.ValidationError) *uuid.UUID {
	if r == nil || r.IsZero() {
		return nil
	}
	id := r.resolve(field, verr)
	if id == uuid.Nil {
		return nil
	}
	return &id
}
