// Package router maps the REST gateway onto the record store.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/cartodb-adapter/internal/core/model"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/observability"
	"github.com/mohammed-shakir/cartodb-adapter/pkg/cartodb"
)

// Store is the record API served over HTTP; *cartodb.Adapter satisfies it.
type Store interface {
	FindAll(ctx context.Context, typeName string) (model.FeatureCollection, error)
	FindQuery(ctx context.Context, typeName string, filter map[string]any) (model.FeatureCollection, error)
	FindByID(ctx context.Context, typeName string, id int64) (model.Record, error)
	CreateRecord(ctx context.Context, typeName string, rec model.Record) (model.Record, error)
	UpdateRecord(ctx context.Context, typeName string, rec model.Record) (model.Record, error)
	DeleteRecord(ctx context.Context, typeName string, rec model.Record) (model.Record, error)
}

const maxBody = 1 << 20

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s is usable as a type or filter column name.
func IsIdentifier(s string) bool { return identRe.MatchString(s) }

type handlers struct {
	store  Store
	logger *slog.Logger
}

// Mount registers the record routes on r.
func Mount(r chi.Router, store Store, logger *slog.Logger) {
	h := &handlers{store: store, logger: logger}
	r.Route("/types/{type}/records", func(r chi.Router) {
		r.Get("/", observe("/types/{type}/records", h.list))
		r.Post("/", observe("/types/{type}/records", h.create))
		r.Get("/{id}", observe("/types/{type}/records/{id}", h.get))
		r.Put("/{id}", observe("/types/{type}/records/{id}", h.update))
		r.Delete("/{id}", observe("/types/{type}/records/{id}", h.remove))
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func observe(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		fn(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	typeName, err := typeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	filter, err := ParseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var fc model.FeatureCollection
	if len(filter) == 0 {
		fc, err = h.store.FindAll(r.Context(), typeName)
	} else {
		fc, err = h.store.FindQuery(r.Context(), typeName, filter)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	typeName, id, err := typeAndID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := h.store.FindByID(r.Context(), typeName, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	typeName, err := typeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := decodeRecord(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := h.store.CreateRecord(r.Context(), typeName, rec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *handlers) update(w http.ResponseWriter, r *http.Request) {
	typeName, id, err := typeAndID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := decodeRecord(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec.ID = id
	out, err := h.store.UpdateRecord(r.Context(), typeName, rec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) remove(w http.ResponseWriter, r *http.Request) {
	typeName, id, err := typeAndID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := h.store.DeleteRecord(r.Context(), typeName, model.Record{ID: id})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "status", code, "err", err)
	}
	writeError(w, code, err)
}

// StatusFor maps store errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, cartodb.ErrNotFound),
		errors.Is(err, cartodb.ErrCreateFailed),
		errors.Is(err, cartodb.ErrUpdateFailed),
		errors.Is(err, cartodb.ErrDeleteFailed):
		return http.StatusNotFound
	case errors.Is(err, cartodb.ErrNoAccount), errors.Is(err, cartodb.ErrNoAPIKey):
		return http.StatusServiceUnavailable
	case errors.Is(err, cartodb.ErrUnsupportedValue),
		errors.Is(err, cartodb.ErrUnsupportedGeometry),
		errors.Is(err, cartodb.ErrNoColumns):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// ParseFilter turns query parameters into equality conditions. Each key may
// appear once and must look like a column name.
func ParseFilter(r *http.Request) (map[string]any, error) {
	q := r.URL.Query()
	if len(q) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(q))
	for k, vs := range q {
		if !IsIdentifier(k) {
			return nil, fmt.Errorf("invalid filter column %q", k)
		}
		if len(vs) != 1 {
			return nil, fmt.Errorf("filter column %q given %d times", k, len(vs))
		}
		out[k] = vs[0]
	}
	return out, nil
}

func typeParam(r *http.Request) (string, error) {
	t := strings.TrimSpace(chi.URLParam(r, "type"))
	if !IsIdentifier(t) {
		return "", fmt.Errorf("invalid type name %q", t)
	}
	return t, nil
}

func typeAndID(r *http.Request) (string, int64, error) {
	t, err := typeParam(r)
	if err != nil {
		return "", 0, err
	}
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("invalid record id %q", raw)
	}
	return t, id, nil
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (model.Record, error) {
	var rec model.Record
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return model.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
