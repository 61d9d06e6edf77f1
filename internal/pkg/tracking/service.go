package tracking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/salescope/ingest/internal/pkg/persistence"
	"github.com/salescope/ingest/internal/pkg/status"
	"github.com/salescope/ingest/internal/pkg/utils"
)

// DB provides persistence functionality
type DB interface {
	LoadFileRecord(ctx context.Context, id string) (*persistence.FileRecord, error)
	UpdateFileRecord(ctx context.Context, rec *persistence.FileRecord) error
	ListFileRecords(ctx context.Context, jobID string) ([]*persistence.FileRecord, error)
}

// Update carries optional fields applied together with a status change
type Update struct {
	ErrorCode      status.ErrorCode
	ErrorMessage   string
	ErrorDetails   string
	CallID         string
	IncrementRetry bool
}

// Service owns the file record state machine
type Service struct {
	db  DB
	now func() time.Time
}

// NewService creates the instance
func NewService(db DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("no DB")
	}
	return &Service{db: db, now: time.Now}, nil
}

// UpdateStatus moves a file record to newStatus.
// An illegal transition is rejected with *status.InvalidTransitionError
// and the record is left unchanged
func (s *Service) UpdateStatus(ctx context.Context, id string, newStatus status.File, upd *Update) (*persistence.FileRecord, error) {
	rec, err := s.db.LoadFileRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("can't load file record: %w", err)
	}
	from := status.FileFrom(rec.Status)
	if !status.CanTransition(from, newStatus) {
		return nil, &status.InvalidTransitionError{ID: id, From: from, To: newStatus}
	}
	now := s.now()
	rec.Status = newStatus.String()
	// started stamp is set on the first processing entry only
	if newStatus == status.Processing && !rec.StartedAt.Valid {
		rec.StartedAt = utils.ToSQLTime(now)
	}
	if status.EndsAttempt(newStatus) {
		rec.CompletedAt = utils.ToSQLTime(now)
	}
	if upd != nil {
		if upd.ErrorCode != 0 {
			rec.ErrorCode = utils.ToSQLStr(upd.ErrorCode.String())
		}
		if upd.ErrorMessage != "" {
			rec.ErrorMessage = utils.ToSQLStr(upd.ErrorMessage)
		}
		if upd.ErrorDetails != "" {
			rec.ErrorDetails = utils.ToSQLStr(upd.ErrorDetails)
		}
		if upd.CallID != "" {
			rec.CallID = utils.ToSQLStr(upd.CallID)
		}
		if upd.IncrementRetry {
			rec.RetryCount++
		}
	}
	if err := s.db.UpdateFileRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("can't save file record: %w", err)
	}
	goapp.Log.Debug().Str("ID", id).Str("from", from.String()).Str("to", newStatus.String()).Msg("file status")
	return rec, nil
}

// RetryFile re-enters retrying from failed and clears prior error fields
func (s *Service) RetryFile(ctx context.Context, id string) (*persistence.FileRecord, error) {
	rec, err := s.db.LoadFileRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("can't load file record: %w", err)
	}
	from := status.FileFrom(rec.Status)
	if from != status.Failed {
		return nil, &status.InvalidTransitionError{ID: id, From: from, To: status.Retrying}
	}
	rec.Status = status.Retrying.String()
	rec.ErrorCode = utils.ToSQLStr("")
	rec.ErrorMessage = utils.ToSQLStr("")
	rec.ErrorDetails = utils.ToSQLStr("")
	rec.CompletedAt = utils.ToSQLTime(time.Time{})
	if err := s.db.UpdateFileRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("can't save file record: %w", err)
	}
	return rec, nil
}

// Stats aggregates file records of one job
type Stats struct {
	Counts         map[string]int32 `json:"counts"`
	Total          int32            `json:"total"`
	AvgFileSize    float64          `json:"avgFileSize"`
	AvgLatencySecs float64          `json:"avgLatencySecs"`
	RetryTotal     int32            `json:"retryTotal"`
	SuccessRate    float64          `json:"successRate"`
}

// JobStats computes aggregate statistics over a job's file records
func (s *Service) JobStats(ctx context.Context, jobID string) (*Stats, error) {
	recs, err := s.db.ListFileRecords(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("can't list file records: %w", err)
	}
	res := &Stats{Counts: map[string]int32{}}
	var sizeSum, latencySum float64
	var latencyCount int32
	for _, r := range recs {
		res.Total++
		res.Counts[r.Status]++
		res.RetryTotal += r.RetryCount
		sizeSum += float64(r.FileSize)
		if r.Status == status.Completed.String() && r.StartedAt.Valid && r.CompletedAt.Valid {
			latencySum += r.CompletedAt.Time.Sub(r.StartedAt.Time).Seconds()
			latencyCount++
		}
	}
	if res.Total > 0 {
		res.AvgFileSize = sizeSum / float64(res.Total)
	}
	if latencyCount > 0 {
		res.AvgLatencySecs = latencySum / float64(latencyCount)
	}
	completed := res.Counts[status.Completed.String()]
	failed := res.Counts[status.Failed.String()]
	if completed+failed > 0 {
		res.SuccessRate = float64(completed) / float64(completed+failed)
	}
	return res, nil
}

// TimelineEvent is one point of a file's processing history
type TimelineEvent struct {
	At    time.Time `json:"at"`
	Event string    `json:"event"`
}

// Timeline replays the stamped fields of a record in chronological order
func (s *Service) Timeline(ctx context.Context, id string) ([]TimelineEvent, error) {
	rec, err := s.db.LoadFileRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("can't load file record: %w", err)
	}
	res := []TimelineEvent{{At: rec.Created, Event: "discovered"}}
	if rec.StartedAt.Valid {
		res = append(res, TimelineEvent{At: rec.StartedAt.Time, Event: "processing started"})
	}
	for i := int32(0); i < rec.RetryCount; i++ {
		// retries carry no own stamps, report them between start and end
		if rec.StartedAt.Valid {
			res = append(res, TimelineEvent{At: rec.StartedAt.Time, Event: fmt.Sprintf("retry %d", i+1)})
		}
	}
	if rec.CompletedAt.Valid {
		ev := rec.Status
		if utils.FromSQLStr(rec.ErrorCode) != "" {
			ev = fmt.Sprintf("%s (%s)", rec.Status, rec.ErrorCode.String)
		}
		res = append(res, TimelineEvent{At: rec.CompletedAt.Time, Event: ev})
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].At.Before(res[j].At) })
	return res, nil
}
