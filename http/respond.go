package http

import (
	"io"
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/quadrant/models"
	"github.com/aukilabs/quadrant/quadtree"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeBadRequest = "bad_request"
	ErrTypeInternal   = "internal"

	maxBodySize = 1 << 20
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusCode maps an error type to the HTTP status it is reported with.
func StatusCode(err error) int {
	switch errors.Type(err) {
	case ErrTypeBadRequest,
		quadtree.ErrTypeInvalidConfig,
		models.ErrTypeOutOfBounds:
		return http.StatusBadRequest

	case ErrTypeUnauthorized:
		return http.StatusUnauthorized

	case models.ErrTypeWorldNotFound,
		models.ErrTypeEntityNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logs.WithTag("status", status).Error(errors.New("encoding response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusCode(err)

	typ := errors.Type(err)
	if status == http.StatusInternalServerError {
		logs.WithTag("status", status).Error(err)
		typ = ErrTypeInternal
	}

	writeJSON(w, status, errorResponse{
		Error:   typ,
		Message: err.Error(),
	})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return errors.New("reading request body failed").
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return errors.New("decoding request body failed").
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}
	return nil
}
