package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"cityinfo.org/internal/audit"
	"cityinfo.org/internal/cityinfo"
	"cityinfo.org/internal/patch"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorDetails(w, r, code, msg, nil)
}

// writeErrorDetails adds a per-field or per-operation "errors" array.
func writeErrorDetails(w http.ResponseWriter, r *http.Request, code int, msg string, details any) {
	payload := map[string]any{
		"error": msg,
	}
	if details != nil {
		payload["errors"] = details
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// decodeJSON reads exactly one JSON value into dst.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, r, http.StatusBadRequest, err.Error())
}

// handleStoreError maps repository and validation failures to a status. Storage
// failures are logged with the request id and reported as 500 without detail.
func (a *API) handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *cityinfo.ValidationError
	var perr *patch.OperationError
	switch {
	case errors.As(err, &verr):
		writeErrorDetails(w, r, http.StatusBadRequest, "validation failed", verr.Errors)
	case errors.As(err, &perr):
		writeErrorDetails(w, r, http.StatusBadRequest, "invalid patch document", []*patch.OperationError{perr})
	case errors.Is(err, patch.ErrInvalidPatch):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, cityinfo.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to send
		a.logger.Info("request cancelled", zap.String("request_id", RequestIDFromContext(r.Context())))
	default:
		a.logger.Error("store operation failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// pathID parses a positive integer route parameter.
func pathID(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false", name)
	}
	return v, nil
}

func (a *API) audit(ctx context.Context, event string, fields map[string]any) {
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		a.logger.Warn("audit log failed", zap.String("event", event), zap.Error(err))
	}
}
