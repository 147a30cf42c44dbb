package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// envelope is the shape of every response: {success, message} or {success:false, error}
// with endpoint specific fields next to them.
type envelope map[string]any

func success(message string) envelope {
	return envelope{"success": true, "message": message}
}

func failure(err string) envelope {
	return envelope{"success": false, "error": err}
}

func (e envelope) with(key string, value any) envelope {
	e[key] = value
	return e
}

// JSON writes v with the given status code. v is encoded before anything is written so an
// encoding failure can still be answered with a 500.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "err", err)
		body = []byte(`{"success":false,"error":"failed to encode response"}`)
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(append(body, '\n'))
	if err != nil {
		slog.Debug("failed to write response", "err", err)
	}
}

// The front-end always reads the envelope, failures are described by it and not by the
// status code.
func reply(w http.ResponseWriter, e envelope) {
	JSON(w, http.StatusOK, e)
}

// decodeBody reads a json body into v, form encoded bodies are read with form.
func decodeBody(r *http.Request, v any, form func(r *http.Request)) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return json.NewDecoder(r.Body).Decode(v)
	}
	form(r)
	return nil
}
