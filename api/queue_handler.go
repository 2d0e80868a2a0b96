package api

import (
	"net/http"
)

// QueueStateResponse is the body of GET /v1/queue.
type QueueStateResponse struct {
	Paused bool `json:"paused"`
}

func (a *API) queueState(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, QueueStateResponse{Paused: a.queue.QueuePaused()})
}

func (a *API) pauseQueue(w http.ResponseWriter, r *http.Request) {
	a.queue.PauseQueue(r.Context())
	a.writeJSON(w, http.StatusOK, QueueStateResponse{Paused: true})
}

func (a *API) resumeQueue(w http.ResponseWriter, r *http.Request) {
	a.queue.ResumeQueue(r.Context())
	a.writeJSON(w, http.StatusOK, QueueStateResponse{Paused: false})
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.queue.Statistics(r.Context()))
}

// toolReport lists the external binaries the pipelines depend on and
// whether each one was found on this host.
func (a *API) toolReport(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.tools.Report())
}
