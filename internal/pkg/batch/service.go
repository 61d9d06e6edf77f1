package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/salescope/ingest/internal/pkg/config"
	"github.com/salescope/ingest/internal/pkg/messages"
	"github.com/salescope/ingest/internal/pkg/persistence"
	"github.com/salescope/ingest/internal/pkg/provider"
	"github.com/salescope/ingest/internal/pkg/scorer"
	"github.com/salescope/ingest/internal/pkg/status"
	"github.com/salescope/ingest/internal/pkg/tracking"
	tapi "github.com/salescope/ingest/internal/pkg/transcriber/api"
	"github.com/salescope/ingest/internal/pkg/utils"
)

// DB provides persistence functionality
type DB interface {
	LoadFolder(ctx context.Context, id string) (*persistence.Folder, error)
	InsertJob(ctx context.Context, j *persistence.Job) error
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
	UpdateJob(ctx context.Context, j *persistence.Job) error
	InsertFileRecord(ctx context.Context, r *persistence.FileRecord) error
	LoadFileRecord(ctx context.Context, id string) (*persistence.FileRecord, error)
	InsertCall(ctx context.Context, c *persistence.Call) error
	ListActiveNotificationSinks(ctx context.Context) ([]*persistence.NotificationSink, error)
}

// Tracker owns file record status transitions
type Tracker interface {
	UpdateStatus(ctx context.Context, id string, newStatus status.File, upd *tracking.Update) (*persistence.FileRecord, error)
	RetryFile(ctx context.Context, id string) (*persistence.FileRecord, error)
	JobStats(ctx context.Context, jobID string) (*tracking.Stats, error)
}

// Scorer provides transcript scoring
type Scorer interface {
	Score(ctx context.Context, text string) (*scorer.Result, error)
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// ServiceData keeps data required for service work
type ServiceData struct {
	DB          DB
	Tracker     Tracker
	Factory     *provider.Factory
	Validator   *config.Validator
	Transcriber tapi.Transcriber
	Scorer      Scorer
	MsgSender   MsgSender
	WorkDir     string
	Testing     bool
}

// ErrJobNotRunning is returned on stop of a job not in the in-flight table
var ErrJobNotRunning = fmt.Errorf("job is not running")

// Options tune one batch run
type Options struct {
	JobID   string
	JobName string
}

type sinkNotifier struct {
	sink *persistence.NotificationSink
	p    provider.Notifier
}

type jobRun struct {
	job           *persistence.Job
	folder        *persistence.Folder
	storage       provider.Storage
	monitor       provider.Monitor
	monitorHandle string
	notifiers     []*sinkNotifier

	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}

	lock    *sync.Mutex
	timers  map[string]*time.Timer
	settled map[string]bool
	pending sync.WaitGroup
}

func (r *jobRun) settle(id string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if !r.settled[id] {
		r.settled[id] = true
		r.pending.Done()
	}
}

func (r *jobRun) addTimer(id string, t *time.Timer) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.timers[id] = t
}

func (r *jobRun) dropTimer(id string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.timers, id)
}

func (r *jobRun) stopTimers() {
	r.lock.Lock()
	defer r.lock.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}

// Service is the batch processing orchestrator
type Service struct {
	db          DB
	tracker     Tracker
	factory     *provider.Factory
	validator   *config.Validator
	transcriber tapi.Transcriber
	scorer      Scorer
	sender      MsgSender
	workDir     string
	testing     bool

	lock *sync.Mutex
	jobs map[string]*jobRun
}

// NewService creates the orchestrator instance
func NewService(data *ServiceData) (*Service, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	return &Service{db: data.DB, tracker: data.Tracker, factory: data.Factory,
		validator: data.Validator, transcriber: data.Transcriber, scorer: data.Scorer,
		sender: data.MsgSender, workDir: data.WorkDir, testing: data.Testing,
		lock: &sync.Mutex{}, jobs: map[string]*jobRun{}}, nil
}

func validate(data *ServiceData) error {
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Tracker == nil {
		return fmt.Errorf("no Tracker")
	}
	if data.Factory == nil {
		return fmt.Errorf("no Factory")
	}
	if data.Validator == nil {
		return fmt.Errorf("no Validator")
	}
	if data.Transcriber == nil {
		return fmt.Errorf("no Transcriber")
	}
	if data.Scorer == nil {
		return fmt.Errorf("no Scorer")
	}
	if data.WorkDir == "" {
		return fmt.Errorf("no WorkDir")
	}
	return nil
}

// StartBatchProcessing creates a job for the folder and starts processing it.
// It returns the new job id without waiting for completion.
// Provider configuration or connectivity problems fail here, before anything is created
func (s *Service) StartBatchProcessing(ctx context.Context, folderID string, opts *Options) (string, error) {
	folder, err := s.db.LoadFolder(ctx, folderID)
	if err != nil {
		return "", fmt.Errorf("can't load folder: %w", err)
	}
	if !folder.Active {
		return "", fmt.Errorf("folder '%s' is not active", folderID)
	}
	if err := s.validator.ValidateFolder(folder.Config).Err(); err != nil {
		return "", err
	}
	cfg := folder.Config
	storage, err := s.factory.GetStorage(ctx, cfg.Storage.Type, cfg.Storage.Config)
	if err != nil {
		return "", err
	}
	monitor, err := s.factory.GetMonitor(ctx, cfg.Monitor.Type, cfg.Monitor.Config, storage)
	if err != nil {
		return "", err
	}
	notifiers := s.loadNotifiers(ctx)

	job := &persistence.Job{ID: jobID(opts), FolderID: folder.ID,
		Name: jobName(folder, opts), Status: status.JobPending.String(), Created: time.Now()}
	if err := s.db.InsertJob(ctx, job); err != nil {
		return "", fmt.Errorf("can't insert job: %w", err)
	}

	handle, err := monitor.StartMonitoring(ctx, cfg.Monitor.Config)
	if err != nil {
		s.failJob(context.Background(), job, fmt.Errorf("can't start monitor: %w", err), notifiers)
		return "", fmt.Errorf("can't start monitor: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	run := &jobRun{job: job, folder: folder, storage: storage, monitor: monitor,
		monitorHandle: handle, notifiers: notifiers, ctx: runCtx, cancel: cancel,
		sem:  make(chan struct{}, waveSize(cfg)),
		lock: &sync.Mutex{}, timers: map[string]*time.Timer{}, settled: map[string]bool{}}

	s.lock.Lock()
	s.jobs[job.ID] = run
	s.lock.Unlock()

	go s.processBatchJob(run)
	goapp.Log.Info().Str("ID", job.ID).Str("folder", folder.ID).Msg("batch job started")
	return job.ID, nil
}

// StopBatchProcessing cancels a running job.
// It is an error to stop a job that is not in flight
func (s *Service) StopBatchProcessing(ctx context.Context, jobID string) error {
	s.lock.Lock()
	run, ok := s.jobs[jobID]
	if ok {
		delete(s.jobs, jobID)
	}
	s.lock.Unlock()
	if !ok {
		return fmt.Errorf("can't stop '%s': %w", jobID, ErrJobNotRunning)
	}
	run.cancel()
	run.stopTimers()
	if err := run.monitor.StopMonitoring(run.monitorHandle); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", jobID).Msg("can't stop monitor")
	}
	job, err := s.db.LoadJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("can't load job: %w", err)
	}
	from := status.JobFrom(job.Status)
	if !status.CanTransitionJob(from, status.JobCancelled) {
		return fmt.Errorf("can't cancel job in status '%s'", job.Status)
	}
	job.Status = status.JobCancelled.String()
	job.CompletedAt = utils.ToSQLTime(time.Now())
	if err := s.db.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("can't update job: %w", err)
	}
	s.sendStatusChange(ctx, jobID)
	goapp.Log.Info().Str("ID", jobID).Msg("batch job cancelled")
	return nil
}

// RunningJobs lists ids currently in the in-flight table
func (s *Service) RunningJobs() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	res := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		res = append(res, id)
	}
	return res
}

func (s *Service) processBatchJob(run *jobRun) {
	defer func() {
		s.lock.Lock()
		delete(s.jobs, run.job.ID)
		s.lock.Unlock()
		run.stopTimers()
		if err := run.monitor.StopMonitoring(run.monitorHandle); err != nil {
			goapp.Log.Debug().Err(err).Str("ID", run.job.ID).Msg("monitor already stopped")
		}
	}()
	ctx := run.ctx
	err := s.runJob(run)
	if ctx.Err() != nil {
		// cancelled, stop already settled the job status
		return
	}
	if err != nil {
		s.failJob(ctx, run.job, err, run.notifiers)
		return
	}
	s.finishJob(ctx, run)
}

func (s *Service) runJob(run *jobRun) error {
	ctx := run.ctx
	job := run.job
	job.Status = status.JobRunning.String()
	job.StartedAt = utils.ToSQLTime(time.Now())
	if err := s.db.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("can't update job: %w", err)
	}
	s.sendStatusChange(ctx, job.ID)

	files, err := run.monitor.ScanForFiles(ctx, run.folder.Config.Monitor.Config)
	if err != nil {
		return fmt.Errorf("can't scan for files: %w", err)
	}
	goapp.Log.Info().Str("ID", job.ID).Int("files", len(files)).Msg("scan completed")
	s.notify(ctx, run.notifiers, config.CondFolderScanCompleted, job,
		map[string]string{"fileCount": fmt.Sprintf("%d", len(files))}, "")

	recs, err := s.createRecords(ctx, run, files)
	if err != nil {
		return err
	}
	job.TotalFiles = int32(len(files))
	if err := s.db.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("can't update job: %w", err)
	}
	s.sendStatusChange(ctx, job.ID)

	run.pending.Add(len(recs))
	s.runWaves(run, recs)
	if ctx.Err() != nil {
		return nil
	}
	// retries may still be in flight, wait for every record to settle
	waitDone := make(chan struct{})
	go func() {
		run.pending.Wait()
		close(waitDone)
	}()
	select {
	case <-ctx.Done():
	case <-waitDone:
	}
	return nil
}

// createRecords inserts one file record per discovered file.
// A path reported twice in one scan settles immediately as a duplicate
func (s *Service) createRecords(ctx context.Context, run *jobRun, files []provider.FileInfo) ([]*persistence.FileRecord, error) {
	seen := map[string]bool{}
	var res []*persistence.FileRecord
	for _, f := range files {
		rec := &persistence.FileRecord{ID: uuid.New().String(), JobID: run.job.ID,
			FileName: f.Name, FilePath: f.Path, FileSize: f.Size,
			Status: status.Discovered.String(), Created: time.Now()}
		if err := s.db.InsertFileRecord(ctx, rec); err != nil {
			return nil, fmt.Errorf("can't insert file record: %w", err)
		}
		if seen[f.Path] {
			if _, err := s.tracker.UpdateStatus(ctx, rec.ID, status.Skipped, &tracking.Update{
				ErrorCode: status.ECDuplicateFile, ErrorMessage: fmt.Sprintf("duplicate path '%s'", f.Path)}); err != nil {
				goapp.Log.Error().Err(err).Str("ID", rec.ID).Msg("can't mark duplicate")
			}
			continue
		}
		seen[f.Path] = true
		res = append(res, rec)
	}
	return res, nil
}

func (s *Service) runWaves(run *jobRun, recs []*persistence.FileRecord) {
	size := waveSize(run.folder.Config)
	for i := 0; i < len(recs); i += size {
		if run.ctx.Err() != nil {
			return
		}
		end := i + size
		if end > len(recs) {
			end = len(recs)
		}
		var wg sync.WaitGroup
		for _, rec := range recs[i:end] {
			wg.Add(1)
			go func(rec *persistence.FileRecord) {
				defer wg.Done()
				s.processFile(run, rec)
			}(rec)
		}
		wg.Wait()
		s.refreshCounters(run)
	}
}

// processFile runs the first attempt of one record: admission, validation, pipeline
func (s *Service) processFile(run *jobRun, rec *persistence.FileRecord) {
	ctx := run.ctx
	if ctx.Err() != nil {
		return
	}
	if _, err := s.tracker.UpdateStatus(ctx, rec.ID, status.Queued, nil); err != nil {
		goapp.Log.Error().Err(err).Str("ID", rec.ID).Msg("can't queue file")
		run.settle(rec.ID)
		return
	}
	if code, msg := s.checkEligible(run, rec); code != 0 {
		if _, err := s.tracker.UpdateStatus(ctx, rec.ID, status.Skipped,
			&tracking.Update{ErrorCode: code, ErrorMessage: msg}); err != nil {
			goapp.Log.Error().Err(err).Str("ID", rec.ID).Msg("can't skip file")
		}
		goapp.Log.Info().Str("ID", rec.ID).Str("file", rec.FileName).Str("code", code.String()).Msg("file skipped")
		run.settle(rec.ID)
		return
	}
	s.attempt(run, rec.ID)
}

// checkEligible validates a file against the folder processing config.
// A non-zero code means the file is permanently ineligible
func (s *Service) checkEligible(run *jobRun, rec *persistence.FileRecord) (status.ErrorCode, string) {
	cfg := run.folder.Config.Processing
	if !extAllowed(cfg.AllowedExtensions, rec.FileName) {
		return status.ECInvalidFormat, fmt.Sprintf("extension of '%s' is not allowed", rec.FileName)
	}
	if rec.FileSize > cfg.MaxFileSize {
		return status.ECFileTooLarge, fmt.Sprintf("file size %d exceeds limit %d", rec.FileSize, cfg.MaxFileSize)
	}
	if err := utils.ValidateFileName(rec.FileName); err != nil {
		return status.ECInvalidFilename, err.Error()
	}
	return 0, ""
}

// attempt runs one processing attempt under the concurrency cap
// and either settles the record or schedules a retry
func (s *Service) attempt(run *jobRun, recID string) {
	ctx := run.ctx
	select {
	case run.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-run.sem }()

	rec, err := s.tracker.UpdateStatus(ctx, recID, status.Processing, nil)
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", recID).Msg("can't enter processing")
		run.settle(recID)
		return
	}
	code, err := s.pipeline(ctx, run, rec)
	if err == nil {
		s.notify(ctx, run.notifiers, config.CondFileProcessed, run.job,
			map[string]string{"fileID": rec.ID, "file": rec.FileName}, "")
		run.settle(recID)
		return
	}
	if ctx.Err() != nil {
		return
	}
	goapp.Log.Warn().Err(err).Str("ID", recID).Str("code", code.String()).Msg("file attempt failed")
	s.handleFailure(run, rec, code, err)
}

// pipeline downloads, transcribes, scores and persists one file
func (s *Service) pipeline(ctx context.Context, run *jobRun, rec *persistence.FileRecord) (status.ErrorCode, error) {
	localPath := filepath.Join(s.workDir, rec.JobID, rec.FileName)
	if err := run.storage.DownloadFile(ctx, rec.FilePath, localPath); err != nil {
		return status.ECStorageError, fmt.Errorf("can't download: %w", err)
	}
	tr, err := s.transcriber.Transcribe(ctx, localPath)
	if err != nil {
		return status.ECProcessingError, fmt.Errorf("can't transcribe: %w", err)
	}
	sc, err := s.scorer.Score(ctx, tr.Text)
	if err != nil {
		return status.ECProcessingError, fmt.Errorf("can't score: %w", err)
	}
	call := &persistence.Call{ID: uuid.New().String(), FileID: rec.ID, Transcript: tr.Text,
		Duration: tr.DurationSeconds, WordCount: int32(tr.WordCount),
		OverallScore: sc.OverallScore, CategoryScores: sc.CategoryScores, Notes: sc.AnalysisNotes}
	if err := s.db.InsertCall(ctx, call); err != nil {
		return status.ECProcessingError, fmt.Errorf("can't save call: %w", err)
	}
	if _, err := s.tracker.UpdateStatus(ctx, rec.ID, status.Completed,
		&tracking.Update{CallID: call.ID}); err != nil {
		return status.ECProcessingError, fmt.Errorf("can't complete file: %w", err)
	}
	goapp.Log.Info().Str("ID", rec.ID).Str("file", rec.FileName).Msg("file processed")
	return 0, nil
}

// handleFailure applies the retry policy after a failed attempt
func (s *Service) handleFailure(run *jobRun, rec *persistence.FileRecord, code status.ErrorCode, cause error) {
	ctx := run.ctx
	rcfg := run.folder.Config.Processing.Retry
	attempt := int(rec.RetryCount)
	if rcfg.Enabled && code.IsRetryable() && attempt < rcfg.MaxRetries {
		if _, err := s.tracker.UpdateStatus(ctx, rec.ID, status.Retrying, &tracking.Update{
			IncrementRetry: true, ErrorCode: code, ErrorMessage: cause.Error()}); err != nil {
			goapp.Log.Error().Err(err).Str("ID", rec.ID).Msg("can't enter retrying")
			run.settle(rec.ID)
			return
		}
		delay := RetryDelay(&rcfg, attempt)
		if s.testing {
			delay = 0
		}
		goapp.Log.Info().Str("ID", rec.ID).Dur("after", delay).Int("attempt", attempt+1).Msg("retry scheduled")
		timer := time.AfterFunc(delay, func() {
			run.dropTimer(rec.ID)
			if run.ctx.Err() != nil {
				return
			}
			s.attempt(run, rec.ID)
			s.refreshCounters(run)
		})
		run.addTimer(rec.ID, timer)
		return
	}
	upd := &tracking.Update{ErrorCode: code, ErrorMessage: cause.Error()}
	if rcfg.Enabled && code.IsRetryable() {
		upd.ErrorCode = status.ECMaxRetriesExceeded
		upd.ErrorDetails = fmt.Sprintf("%s: %s", code.String(), cause.Error())
	} else if !rcfg.Enabled && code.IsRetryable() {
		upd.ErrorCode = status.ECMaxRetriesExceeded
		upd.ErrorDetails = fmt.Sprintf("%s: retries disabled", code.String())
	}
	if _, err := s.tracker.UpdateStatus(ctx, rec.ID, status.Failed, upd); err != nil {
		goapp.Log.Error().Err(err).Str("ID", rec.ID).Msg("can't fail file")
	}
	s.notify(ctx, run.notifiers, config.CondFileFailed, run.job,
		map[string]string{"fileID": rec.ID, "file": rec.FileName, "errorCode": upd.ErrorCode.String()}, cause.Error())
	run.settle(rec.ID)
}

// ReprocessFile manually retries a failed file after its job has finished.
// The attempt runs synchronously, reusing the folder's storage provider
func (s *Service) ReprocessFile(ctx context.Context, fileID string) error {
	rec, err := s.db.LoadFileRecord(ctx, fileID)
	if err != nil {
		return fmt.Errorf("can't load file record: %w", err)
	}
	job, err := s.db.LoadJob(ctx, rec.JobID)
	if err != nil {
		return fmt.Errorf("can't load job: %w", err)
	}
	folder, err := s.db.LoadFolder(ctx, job.FolderID)
	if err != nil {
		return fmt.Errorf("can't load folder: %w", err)
	}
	storage, err := s.factory.GetStorage(ctx, folder.Config.Storage.Type, folder.Config.Storage.Config)
	if err != nil {
		return err
	}
	if _, err := s.tracker.RetryFile(ctx, fileID); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// single attempt, the run is gone before any timer could fire
	folder = singleAttempt(folder)
	run := &jobRun{job: job, folder: folder, storage: storage,
		notifiers: s.loadNotifiers(ctx), ctx: runCtx, cancel: cancel,
		sem:  make(chan struct{}, 1),
		lock: &sync.Mutex{}, timers: map[string]*time.Timer{}, settled: map[string]bool{}}
	run.pending.Add(1)
	s.attempt(run, fileID)
	s.refreshCounters(run)
	return nil
}

// RetryDelay computes the wait before retry attempt (0-based)
func RetryDelay(cfg *config.RetryConfig, attempt int) time.Duration {
	res := time.Duration(cfg.DelaySeconds) * time.Second
	if cfg.ExponentialBackoff {
		res *= time.Duration(1 << attempt)
	}
	return res
}

// refreshCounters recomputes and saves job counters.
// Runs on the job task and in retry timer goroutines,
// stats read and job write are one critical section so a late refresh can't save stale counters
func (s *Service) refreshCounters(run *jobRun) {
	ctx := run.ctx
	if ctx.Err() != nil {
		return
	}
	if err := s.updateCounters(run); err != nil {
		goapp.Log.Error().Err(err).Str("ID", run.job.ID).Msg("can't update counters")
		return
	}
	s.sendStatusChange(ctx, run.job.ID)
}

func (s *Service) updateCounters(run *jobRun) error {
	run.lock.Lock()
	defer run.lock.Unlock()
	stats, err := s.tracker.JobStats(run.ctx, run.job.ID)
	if err != nil {
		return fmt.Errorf("can't load stats: %w", err)
	}
	job := run.job
	job.ProcessedFiles = stats.Counts[status.Completed.String()]
	job.FailedFiles = stats.Counts[status.Failed.String()]
	job.SkippedFiles = stats.Counts[status.Skipped.String()]
	return s.db.UpdateJob(run.ctx, job)
}

func (s *Service) finishJob(ctx context.Context, run *jobRun) {
	s.refreshCounters(run)
	run.lock.Lock()
	job := run.job
	from := status.JobFrom(job.Status)
	if !status.CanTransitionJob(from, status.JobCompleted) {
		run.lock.Unlock()
		goapp.Log.Warn().Str("ID", job.ID).Str("status", job.Status).Msg("job not running, skip finish")
		return
	}
	job.Status = status.JobCompleted.String()
	job.CompletedAt = utils.ToSQLTime(time.Now())
	err := s.db.UpdateJob(ctx, job)
	run.lock.Unlock()
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", job.ID).Msg("can't update job")
		return
	}
	s.sendStatusChange(ctx, job.ID)
	s.notify(ctx, run.notifiers, config.CondBatchCompleted, job,
		map[string]string{"processed": fmt.Sprintf("%d", job.ProcessedFiles),
			"failed": fmt.Sprintf("%d", job.FailedFiles), "skipped": fmt.Sprintf("%d", job.SkippedFiles)}, "")
	goapp.Log.Info().Str("ID", job.ID).Msg("batch job completed")
}

func (s *Service) failJob(ctx context.Context, job *persistence.Job, cause error, notifiers []*sinkNotifier) {
	goapp.Log.Error().Err(cause).Str("ID", job.ID).Msg("batch job failed")
	job.Status = status.JobFailed.String()
	job.Error = utils.ToSQLStr(cause.Error())
	job.CompletedAt = utils.ToSQLTime(time.Now())
	if err := s.db.UpdateJob(ctx, job); err != nil {
		goapp.Log.Error().Err(err).Str("ID", job.ID).Msg("can't update job")
	}
	s.sendStatusChange(ctx, job.ID)
	s.notify(ctx, notifiers, config.CondBatchFailed, job, nil, cause.Error())
}

// notify delivers the event to every matching sink.
// Delivery is best-effort, one sink's failure never affects the caller or the other sinks
func (s *Service) notify(ctx context.Context, notifiers []*sinkNotifier, condition string,
	job *persistence.Job, data map[string]string, msg string) {
	ev := &provider.Event{Condition: condition, JobID: job.ID, FolderID: job.FolderID,
		Message: msg, Data: data, At: time.Now()}
	var errs error
	for _, n := range notifiers {
		if !wantsCondition(n.sink, condition) {
			continue
		}
		if err := n.p.SendNotification(ctx, ev); err != nil {
			goapp.Log.Error().Err(err).Str("sink", n.sink.Name).Str("condition", condition).Msg("can't notify")
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		goapp.Log.Warn().Err(errs).Str("condition", condition).Msg("some notifications failed")
	}
}

func (s *Service) loadNotifiers(ctx context.Context) []*sinkNotifier {
	sinks, err := s.db.ListActiveNotificationSinks(ctx)
	if err != nil {
		goapp.Log.Error().Err(err).Msg("can't load notification sinks")
		return nil
	}
	var res []*sinkNotifier
	for _, sink := range sinks {
		p, err := s.factory.GetNotifier(ctx, sink.Type, sink.Config)
		if err != nil {
			goapp.Log.Error().Err(err).Str("sink", sink.Name).Msg("can't build notifier, skip")
			continue
		}
		res = append(res, &sinkNotifier{sink: sink, p: p})
	}
	return res
}

func (s *Service) sendStatusChange(ctx context.Context, jobID string) {
	if s.sender == nil {
		return
	}
	err := s.sender.SendMessage(ctx, &messages.JobMessage{
		QueueMessage: amessages.QueueMessage{ID: jobID}}, messages.StatusChange)
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", jobID).Msg("can't send status change")
	}
}

func wantsCondition(sink *persistence.NotificationSink, condition string) bool {
	for _, c := range sink.Conditions {
		if c == condition {
			return true
		}
	}
	return false
}

func extAllowed(allowed []string, name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range allowed {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}

func waveSize(cfg *config.FolderConfig) int {
	res := cfg.Processing.MaxConcurrentFiles
	if res < 1 {
		res = 1
	}
	if res > 20 {
		res = 20
	}
	return res
}

func singleAttempt(folder *persistence.Folder) *persistence.Folder {
	res, cfg, proc := *folder, *folder.Config, *folder.Config.Processing
	proc.Retry.Enabled = false
	cfg.Processing = &proc
	res.Config = &cfg
	return &res
}

func jobID(opts *Options) string {
	if opts != nil && opts.JobID != "" {
		return opts.JobID
	}
	return uuid.New().String()
}

func jobName(folder *persistence.Folder, opts *Options) string {
	if opts != nil && opts.JobName != "" {
		return opts.JobName
	}
	return fmt.Sprintf("%s %s", folder.Name, time.Now().Format("2006-01-02 15:04:05"))
}
