package proxy

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/core"
)

// maxJSONBodyBytes bounds decode-time allocation independent of the
// body-limits policy, which the BodyLimit middleware enforces earlier in
// the chain; this is a decoder-local backstop, not a policy knob.
const maxJSONBodyBytes = 1 << 20

// ErrorInfo is the {error:{message,type,code}} shape every non-2xx response
// carries.
type ErrorInfo struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Response is the JSON envelope for every handler response.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// WriteJSON writes data as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 envelope wrapping data.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// DecodeJSONBody decodes r's body into dst, rejecting unknown fields and
// bodies larger than maxJSONBodyBytes. It writes the error response itself
// on failure so callers only need to check for a non-nil return.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		err := core.NewUserError("request body is empty")
		WriteError(w, err, nil)
		return err
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		apiErr := core.NewUserError("invalid JSON body").WithCause(err)
		WriteError(w, apiErr, nil)
		return apiErr
	}
	return nil
}

// WriteError translates a core.Error into the external envelope, logging it
// at Warn. Non-*core.Error values are wrapped as an opaque 500.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	e, ok := core.AsError(err)
	if !ok {
		e = core.NewHTTPInvalidResponse(err.Error())
	}
	status := core.HTTPStatusFor(e)

	if logger != nil {
		logger.Warn("request failed",
			zap.String("family", string(e.Family)),
			zap.String("code", string(e.Code)),
			zap.Int("status", status),
			zap.Error(e.Cause),
		)
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Message: e.Message,
			Type:    string(e.Family),
			Code:    string(e.Code),
		},
		Timestamp: time.Now().UTC(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}
