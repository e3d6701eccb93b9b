package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/validator"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into dst and validates it. An empty body
// leaves dst untouched when allowEmpty is set.
func decodeJSON(r *http.Request, dst interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF && allowEmpty {
			return nil
		}
		if err == io.EOF {
			return errors.BadRequest("request body is required")
		}
		return errors.BadRequest("invalid JSON body: " + err.Error())
	}
	if verrs := validator.Validate(dst); len(verrs) > 0 {
		return errors.ValidationError("request validation failed", verrs)
	}
	return nil
}

// queryInt parses an integer query parameter, falling back to def when absent
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.BadRequest(key + " must be a non-negative integer")
	}
	return v, nil
}
