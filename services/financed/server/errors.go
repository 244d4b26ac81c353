package server

import (
	"errors"
	"log/slog"
	"net/http"

	"campusfi/native/amm"
	nativecommon "campusfi/native/common"
	"campusfi/native/tranche"
)

var errNotFound = errors.New("not found")

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errNotFound), errors.Is(err, amm.ErrUnknownPool), errors.Is(err, tranche.ErrUnknownSeries):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, nativecommon.Kind(err)
	case errors.Is(err, nativecommon.ErrInvalidConfiguration):
		return http.StatusBadRequest, nativecommon.Kind(err)
	}
	switch kind := nativecommon.Kind(err); kind {
	case "Internal":
		return http.StatusInternalServerError, kind
	default:
		return http.StatusUnprocessableEntity, kind
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("route", r.URL.Path), slog.Any("error", err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}
