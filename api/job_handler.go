package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CheapNud/CheapUpscaler-sub000/id"
	"github.com/CheapNud/CheapUpscaler-sub000/job"
)

// CreateJobRequest is the body of POST /v1/jobs.
type CreateJobRequest struct {
	SourcePath string       `json:"source_path"`
	OutputPath string       `json:"output_path"`
	Settings   job.Settings `json:"settings"`
}

// AppliedResponse reports whether a job control request took effect.
// Control operations are idempotent: asking to cancel an already
// finished job is not an error, it just does nothing.
type AppliedResponse struct {
	Applied bool `json:"applied"`
}

// ClearFinishedResponse is the body of DELETE /v1/jobs/finished.
type ClearFinishedResponse struct {
	Removed int `json:"removed"`
}

func (a *API) createJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	j, err := a.queue.AddJob(r.Context(), req.SourcePath, req.OutputPath, req.Settings)
	if err != nil {
		a.writeQueueError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, j)
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	if s := r.URL.Query().Get("status"); s != "" {
		status := job.Status(s)
		if !status.Valid() {
			a.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", s))
			return
		}
		a.writeJSON(w, http.StatusOK, a.queue.ListByStatus(r.Context(), status))
		return
	}
	a.writeJSON(w, http.StatusOK, a.queue.GetAll(r.Context()))
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobIDParam(w, r)
	if !ok {
		return
	}
	j, err := a.queue.GetByID(r.Context(), jobID)
	if err != nil {
		a.writeQueueError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, j)
}

func (a *API) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobIDParam(w, r)
	if !ok {
		return
	}
	if err := a.queue.Delete(r.Context(), jobID); err != nil {
		a.writeQueueError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, a.queue.Cancel)
}

func (a *API) pauseJob(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, a.queue.Pause)
}

func (a *API) resumeJob(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, a.queue.Resume)
}

func (a *API) retryJob(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, a.queue.Retry)
}

func (a *API) clearFinished(w http.ResponseWriter, r *http.Request) {
	removed, err := a.queue.ClearFinished(r.Context())
	if err != nil {
		a.writeQueueError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, ClearFinishedResponse{Removed: removed})
}

// control runs one of the queue's job control operations and reports
// whether it applied.
func (a *API) control(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, jobID id.JobID) (bool, error)) {
	jobID, ok := a.jobIDParam(w, r)
	if !ok {
		return
	}
	applied, err := op(r.Context(), jobID)
	if err != nil {
		a.writeQueueError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, AppliedResponse{Applied: applied})
}

func (a *API) jobIDParam(w http.ResponseWriter, r *http.Request) (id.JobID, bool) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid job ID: %v", err))
		return id.JobID{}, false
	}
	return jobID, true
}
