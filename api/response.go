package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	upscaler "github.com/CheapNud/CheapUpscaler-sub000"
)

// errorResponse is the JSON body for every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("encode response", slog.Any("error", err))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, errorResponse{Error: msg})
}

// writeQueueError maps queue sentinel errors onto HTTP statuses.
func (a *API) writeQueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, upscaler.ErrJobNotFound):
		a.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, upscaler.ErrJobAlreadyExists),
		errors.Is(err, upscaler.ErrJobRunning),
		errors.Is(err, upscaler.ErrInvalidTransition):
		a.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, upscaler.ErrValidation):
		a.writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error("request failed", slog.Any("error", err))
		a.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
