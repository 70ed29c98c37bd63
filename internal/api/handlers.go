package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/auth"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
)

const maxBodyBytes = 1 << 20

// Handlers serves the scheduling endpoints.
type Handlers struct {
	svc    *scheduling.Service
	logger zerolog.Logger
}

func NewHandlers(svc *scheduling.Service, logger zerolog.Logger) *Handlers {
	return &Handlers{svc: svc, logger: logger}
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeServiceError(w, r, h.logger, err)
}

// decode reads a JSON body into dst, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		msg := "could not parse JSON"
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		writeError(w, http.StatusBadRequest, "invalid_request_body", msg)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

// query collects typed query parameters and their field errors.
type query struct {
	values url.Values
	verr   scheduling.ValidationError
}

func newQuery(r *http.Request) *query {
	return &query{values: r.URL.Query()}
}

func (q *query) get(key string) string {
	return q.values.Get(key)
}

func (q *query) uuidParam(key string, required bool) *uuid.UUID {
	raw := q.get(key)
	if raw == "" {
		if required {
			q.verr.Add(key, "is required")
		}
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		q.verr.Add(key, "must be a valid UUID")
		return nil
	}
	return &id
}

func (q *query) intParam(key string) int {
	raw := q.get(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		q.verr.Add(key, "must be an integer")
	}
	return n
}

func (q *query) timeParam(key string) *time.Time {
	raw := q.get(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		q.verr.Add(key, "must be an RFC 3339 timestamp")
		return nil
	}
	return &t
}

func (q *query) dateParam(key string) scheduling.Date {
	raw := q.get(key)
	if raw == "" {
		q.verr.Add(key, "is required")
		return scheduling.Date{}
	}
	d, err := scheduling.ParseDate(raw)
	if err != nil {
		q.verr.Add(key, "must be YYYY-MM-DD")
	}
	return d
}

func (q *query) err() error {
	return q.verr.Err()
}
