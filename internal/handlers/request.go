package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

// maxJSONBytes bounds JSON request bodies.
const maxJSONBytes = 16 << 10

// decodeJSON reads a JSON object into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return err
		}
		return BadRequest("Invalid request body", err.Error()).Wrap(err)
	}
	return nil
}

// pathID validates a UUID path parameter.
func pathID(raw, message string) (string, error) {
	raw = strings.TrimSpace(raw)
	id, err := uuid.Parse(raw)
	if raw == "" || err != nil {
		return "", BadRequest(message)
	}
	return id.String(), nil
}

func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

var errDisplayNameAddress = errors.New("email must be a bare address")

// validateEmail accepts only a bare addr-spec, rejecting display-name forms.
func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return err
	}
	if addr.Address != email {
		return errDisplayNameAddress
	}
	return nil
}
