package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "", "")
}

func writeConflict(c *echo.Context, msg, code string) error {
	return writeError(c, http.StatusConflict, "conflict_error", msg, "", code)
}

func writeServerError(c *echo.Context, msg string) error {
	return writeError(c, http.StatusInternalServerError, "server_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

// decodeJSON decodes one JSON document from r. An empty body yields the zero
// value of T.
func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	if r == nil {
		return out, nil
	}
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		return out, newInvalidRequest("invalid JSON body: " + err.Error())
	}
	return out, nil
}

func newSessionID() string {
	return "sess_" + uuid.NewString()
}

func newRoundID() string {
	return "round_" + uuid.NewString()
}
