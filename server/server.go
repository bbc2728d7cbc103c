// Package server contains the HTTP plumbing shared by the device wrappers:
// method-aware route tables and the single-key JSON payload convention.
package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi"
)

// MethodPath is a route table key.
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps method+path to handlers.  Wrappers fill one of these and
// the entrypoint binds it onto a router.
type RouteTable map[MethodPath]http.HandlerFunc

// Bind attaches every route in the table to r.
func (rt RouteTable) Bind(r chi.Router) {
	for mp, h := range rt {
		r.Method(mp.Method, mp.Path, h)
	}
}

// Endpoints lists the table's routes, sorted, for discovery responses.
func (rt RouteTable) Endpoints() []string {
	out := make([]string, 0, len(rt))
	for mp := range rt {
		out = append(out, mp.Method+" "+mp.Path)
	}
	sort.Strings(out)
	return out
}

// Single-key JSON payloads.  Clients in any language can produce and
// consume these without a schema.
type (
	// Uint64T is {"u64": value}
	Uint64T struct {
		U64 uint64 `json:"u64"`
	}

	// IntT is {"int": value}
	IntT struct {
		Int int `json:"int"`
	}

	// StrT is {"str": value}
	StrT struct {
		Str string `json:"str"`
	}

	// BoolT is {"bool": value}
	BoolT struct {
		Bool bool `json:"bool"`
	}
)

// EncodeJSON writes v as a JSON response.
func EncodeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// DecodeJSON parses a request body into v, replying 400 on garbage.  The
// bool return tells the handler whether to keep going.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
