package web

import (
	stderrors "errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/coedaniel/aws-propuestas-v3/internal/errors"
)

// errorBody is the JSON shape of every API error.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// renderError writes err as a JSON error response. Non-AppErrors become 500s
// and their message is not exposed.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := err.(*errors.AppError)
	if !ok {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Unhandled error")
		appErr = errors.NewInternal(nil)
	}
	if appErr.Status >= 500 {
		zerolog.Ctx(r.Context()).Warn().
			Str("code", string(appErr.Code)).
			AnErr("cause", appErr.Unwrap()).
			Msg(appErr.Message)
	}

	renderJSON(w, appErr.Status, errorBody{Error: errorDetail{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Status:  appErr.Status,
		Details: appErr.Details,
	}})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a JSON request body into v. An empty body is allowed when
// allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		if allowEmpty {
			return nil
		}
		return errors.NewInvalidRequest("request body is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && stderrors.Is(err, io.EOF) {
			return nil
		}
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
