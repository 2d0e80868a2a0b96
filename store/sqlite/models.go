package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CheapNud/CheapUpscaler-sub000/id"
	"github.com/CheapNud/CheapUpscaler-sub000/job"
)

// timeLayout is how timestamps are stored; RFC 3339 with sub-second
// precision sorts lexicographically, which the status index relies on.
const timeLayout = time.RFC3339Nano

// jobColumns is the canonical column list shared by every query.
const jobColumns = `id, source_path, output_path, kind, settings, status,
	progress, current_frame, total_frames, time_remaining_ms,
	last_error, error_detail, retry_count, max_retries,
	owning_pid, owning_hostname,
	created_at, queued_at, started_at, completed_at, updated_at`

// jobModel mirrors one upscaler_jobs row.
type jobModel struct {
	ID              string
	SourcePath      string
	OutputPath      string
	Kind            string
	Settings        []byte
	Status          string
	Progress        float64
	CurrentFrame    int64
	TotalFrames     int64
	TimeRemainingMS sql.NullInt64
	LastError       string
	ErrorDetail     string
	RetryCount      int64
	MaxRetries      int64
	OwningPID       int64
	OwningHostname  string
	CreatedAt       string
	QueuedAt        string
	StartedAt       sql.NullString
	CompletedAt     sql.NullString
	UpdatedAt       string
}

func toJobModel(j *job.Job) (*jobModel, error) {
	settings, err := json.Marshal(j.Settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	m := &jobModel{
		ID:             j.ID.String(),
		SourcePath:     j.SourcePath,
		OutputPath:     j.OutputPath,
		Kind:           string(j.Kind),
		Settings:       settings,
		Status:         string(j.Status),
		Progress:       j.Progress,
		CurrentFrame:   j.CurrentFrame,
		TotalFrames:    j.TotalFrames,
		LastError:      j.LastError,
		ErrorDetail:    j.ErrorDetail,
		RetryCount:     int64(j.RetryCount),
		MaxRetries:     int64(j.MaxRetries),
		OwningPID:      int64(j.OwningPID),
		OwningHostname: j.OwningHostname,
		CreatedAt:      j.CreatedAt.UTC().Format(timeLayout),
		QueuedAt:       j.QueuedAt.UTC().Format(timeLayout),
		UpdatedAt:      j.UpdatedAt.UTC().Format(timeLayout),
	}
	if j.TimeRemaining != nil {
		m.TimeRemainingMS = sql.NullInt64{Int64: j.TimeRemaining.Milliseconds(), Valid: true}
	}
	if j.StartedAt != nil {
		m.StartedAt = sql.NullString{String: j.StartedAt.UTC().Format(timeLayout), Valid: true}
	}
	if j.CompletedAt != nil {
		m.CompletedAt = sql.NullString{String: j.CompletedAt.UTC().Format(timeLayout), Valid: true}
	}
	return m, nil
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w", m.ID, err)
	}
	var settings job.Settings
	if err := json.Unmarshal(m.Settings, &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	j := &job.Job{
		ID:             jobID,
		SourcePath:     m.SourcePath,
		OutputPath:     m.OutputPath,
		Kind:           job.Kind(m.Kind),
		Settings:       settings,
		Status:         job.Status(m.Status),
		Progress:       m.Progress,
		CurrentFrame:   m.CurrentFrame,
		TotalFrames:    m.TotalFrames,
		LastError:      m.LastError,
		ErrorDetail:    m.ErrorDetail,
		RetryCount:     int(m.RetryCount),
		MaxRetries:     int(m.MaxRetries),
		OwningPID:      int(m.OwningPID),
		OwningHostname: m.OwningHostname,
	}
	if m.TimeRemainingMS.Valid {
		d := time.Duration(m.TimeRemainingMS.Int64) * time.Millisecond
		j.TimeRemaining = &d
	}
	if j.CreatedAt, err = parseTime(m.CreatedAt); err != nil {
		return nil, err
	}
	if j.QueuedAt, err = parseTime(m.QueuedAt); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = parseTime(m.UpdatedAt); err != nil {
		return nil, err
	}
	if j.StartedAt, err = parseNullTime(m.StartedAt); err != nil {
		return nil, err
	}
	if j.CompletedAt, err = parseNullTime(m.CompletedAt); err != nil {
		return nil, err
	}
	return j, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (m *jobModel) scanArgs() []any {
	return []any{
		&m.ID, &m.SourcePath, &m.OutputPath, &m.Kind, &m.Settings, &m.Status,
		&m.Progress, &m.CurrentFrame, &m.TotalFrames, &m.TimeRemainingMS,
		&m.LastError, &m.ErrorDetail, &m.RetryCount, &m.MaxRetries,
		&m.OwningPID, &m.OwningHostname,
		&m.CreatedAt, &m.QueuedAt, &m.StartedAt, &m.CompletedAt, &m.UpdatedAt,
	}
}

func (m *jobModel) insertArgs() []any {
	return []any{
		m.ID, m.SourcePath, m.OutputPath, m.Kind, m.Settings, m.Status,
		m.Progress, m.CurrentFrame, m.TotalFrames, m.TimeRemainingMS,
		m.LastError, m.ErrorDetail, m.RetryCount, m.MaxRetries,
		m.OwningPID, m.OwningHostname,
		m.CreatedAt, m.QueuedAt, m.StartedAt, m.CompletedAt, m.UpdatedAt,
	}
}
