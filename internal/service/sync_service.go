package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"datakit/internal/domain"
	"datakit/internal/pipeline"
	"datakit/internal/pipeline/sinks"
	"datakit/internal/storage"
	"datakit/internal/tabular"
)

// ─────────────────────────────────────────────────────────────
// Sync Service — business logic for data sync jobs
// ─────────────────────────────────────────────────────────────

// SyncService manages sync jobs, scheduling, and file watching.
// It is decoupled from its output surface via the EventEmitter interface.
type SyncService struct {
	store       *storage.JobStore
	datasets    domain.DatasetStore
	emitter     EventEmitter
	runningJobs jobLocks

	// watcher / cron lifecycle
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewSyncService creates a SyncService ready for use.
func NewSyncService(
	store *storage.JobStore,
	datasets domain.DatasetStore,
	emitter EventEmitter,
) *SyncService {
	if datasets != nil {
		sinks.SetDatasetStore(datasets)
	}
	return &SyncService{
		store:    store,
		datasets: datasets,
		emitter:  emitter,
	}
}

// ── Job CRUD ───────────────────────────────────────────────

type CreateSyncJobInput struct {
	Name          string                    `json:"name"`
	SourceType    string                    `json:"sourceType"`
	SourceConfig  map[string]any            `json:"sourceConfig"`
	Transforms    []tabular.TransformConfig `json:"transforms"`
	SinkType      string                    `json:"sinkType"`
	SinkConfig    map[string]any            `json:"sinkConfig"`
	SyncMode      string                    `json:"syncMode"`
	DedupeKey     string                    `json:"dedupeKey"`
	TriggerType   string                    `json:"triggerType"`
	TriggerConfig string                    `json:"triggerConfig"`
	Enabled       bool                      `json:"enabled"`
}

func (s *SyncService) CreateJob(ctx context.Context, input CreateSyncJobInput) (*pipeline.SyncJob, error) {
	if _, err := pipeline.GetSource(input.SourceType); err != nil {
		return nil, err
	}
	if _, err := pipeline.GetSink(input.SinkType); err != nil {
		return nil, err
	}

	job := &pipeline.SyncJob{
		Name:          input.Name,
		SourceType:    input.SourceType,
		SourceCfg:     input.SourceConfig,
		Transforms:    input.Transforms,
		SinkType:      input.SinkType,
		SinkCfg:       input.SinkConfig,
		SyncMode:      pipeline.SyncMode(input.SyncMode),
		DedupeKey:     input.DedupeKey,
		TriggerType:   input.TriggerType,
		TriggerConfig: input.TriggerConfig,
		Enabled:       input.Enabled,
	}
	if job.SyncMode == "" {
		job.SyncMode = pipeline.SyncReplace
	}
	if job.TriggerType == "" {
		job.TriggerType = "manual"
	}

	if err := s.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("create sync job: %w", err)
	}
	s.RestartWatchers(ctx)
	return job, nil
}

func (s *SyncService) GetJob(id string) (*pipeline.SyncJob, error) {
	return s.store.GetJob(id)
}

func (s *SyncService) ListJobs() ([]pipeline.SyncJob, error) {
	return s.store.ListJobs()
}

func (s *SyncService) UpdateJob(ctx context.Context, id string, input CreateSyncJobInput) error {
	job, err := s.store.GetJob(id)
	if err != nil {
		return err
	}
	job.Name = input.Name
	job.SourceType = input.SourceType
	job.SourceCfg = input.SourceConfig
	job.Transforms = input.Transforms
	job.SinkType = input.SinkType
	job.SinkCfg = input.SinkConfig
	job.SyncMode = pipeline.SyncMode(input.SyncMode)
	job.DedupeKey = input.DedupeKey
	job.TriggerType = input.TriggerType
	job.TriggerConfig = input.TriggerConfig
	job.Enabled = input.Enabled

	if err := s.store.UpdateJob(job); err != nil {
		return err
	}
	s.RestartWatchers(ctx)
	return nil
}

func (s *SyncService) DeleteJob(ctx context.Context, id string) error {
	err := s.store.DeleteJob(id)
	if err == nil {
		s.RestartWatchers(ctx)
	}
	return err
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes a single sync job synchronously and emits events on success.
func (s *SyncService) RunJob(ctx context.Context, id string) (*pipeline.SyncResult, error) {
	// Prevent concurrent execution of the same job.
	if !s.runningJobs.Acquire(id) {
		return nil, fmt.Errorf("job %s is already running", id)
	}
	defer s.runningJobs.Release(id)

	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}

	s.store.UpdateJobStatus(id, "running", "")

	engine := &pipeline.Engine{}

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	result, runErr := engine.RunSync(runCtx, job)

	runLog := &pipeline.SyncRunLog{
		JobID:       id,
		StartedAt:   start,
		FinishedAt:  time.Now(),
		Status:      result.Status,
		RowsRead:    result.RowsRead,
		RowsWritten: result.RowsWritten,
	}
	if runErr != nil {
		runLog.Error = runErr.Error()
	}
	s.store.CreateRunLog(runLog)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	s.store.UpdateJobStatus(id, result.Status, errMsg)

	if result.Status == "success" {
		s.emitter.Emit(ctx, "sync:job-completed", map[string]string{
			"jobId":  id,
			"status": result.Status,
		})
	}

	return result, runErr
}

// ListSources returns the available source descriptors.
func (s *SyncService) ListSources() []pipeline.SourceSpec {
	return pipeline.ListSources()
}

// ListSinks returns the available sink descriptors.
func (s *SyncService) ListSinks() []pipeline.SinkSpec {
	return pipeline.ListSinks()
}

// ListRunLogs returns the last 50 run logs for a job.
func (s *SyncService) ListRunLogs(jobID string) ([]pipeline.SyncRunLog, error) {
	return s.store.ListRunLogs(jobID, 50)
}

// ── Preview / Schema Discovery ─────────────────────────────

func (s *SyncService) PreviewSource(ctx context.Context, sourceType string, cfgJSON string) (*PreviewResult, error) {
	var cfg pipeline.SourceConfig
	if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
		return nil, fmt.Errorf("parse source config: %w", err)
	}

	engine := &pipeline.Engine{}

	previewCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	records, schema, err := engine.Preview(previewCtx, sourceType, cfg, 10)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Schema: schema, Records: records}, nil
}

// PreviewResult is the response from PreviewSource.
type PreviewResult struct {
	Schema  *tabular.Schema  `json:"schema"`
	Records []tabular.Record `json:"records"`
}

func (s *SyncService) DiscoverSchema(ctx context.Context, sourceType string, cfgJSON string) (*tabular.Schema, error) {
	var cfg pipeline.SourceConfig
	if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
		return nil, fmt.Errorf("parse source config: %w", err)
	}

	source, err := pipeline.GetSource(sourceType)
	if err != nil {
		return nil, err
	}

	discCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	return source.Discover(discCtx, cfg)
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher/cron and rebuilds them from scratch.
func (s *SyncService) RestartWatchers(ctx context.Context) {
	s.stopWatchers()

	jobs, err := s.store.ListEnabledTriggeredJobs()
	if err != nil {
		log.Printf("sync watcher: failed to list jobs: %v", err)
		return
	}

	// ── Cron jobs ──
	var cronJobs []struct {
		jobID string
		expr  string
	}
	for _, j := range jobs {
		if j.TriggerType == "schedule" && j.TriggerConfig != "" {
			cronJobs = append(cronJobs, struct {
				jobID string
				expr  string
			}{jobID: j.ID, expr: j.TriggerConfig})
		}
	}

	if len(cronJobs) > 0 {
		c := cron.New()
		for _, cj := range cronJobs {
			jid := cj.jobID
			_, err := c.AddFunc(cj.expr, func() {
				log.Printf("sync cron: running job %s", jid)
				if _, err := s.RunJob(ctx, jid); err != nil {
					log.Printf("sync cron: job %s failed: %v", jid, err)
				}
				s.emitter.Emit(ctx, "sync:job-completed", jid)
			})
			if err != nil {
				log.Printf("sync cron: invalid expression %q for job %s: %v", cj.expr, cj.jobID, err)
			}
		}
		c.Start()
		s.cronSched = c
		log.Printf("sync cron: scheduled %d job(s)", len(cronJobs))
	}

	// ── File watchers ──
	type watchEntry struct {
		jobID string
		path  string
	}
	var entries []watchEntry
	for _, j := range jobs {
		if j.TriggerType == "file_watch" && j.TriggerConfig != "" {
			entries = append(entries, watchEntry{jobID: j.ID, path: j.TriggerConfig})
		}
	}

	if len(entries) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("sync watcher: failed to create watcher: %v", err)
		return
	}
	s.watcher = watcher

	pathToJob := make(map[string]string)
	watchedDirs := make(map[string]bool)
	for _, e := range entries {
		absPath, err := filepath.Abs(e.path)
		if err != nil {
			log.Printf("sync watcher: bad path %q: %v", e.path, err)
			continue
		}
		pathToJob[absPath] = e.jobID

		dir := filepath.Dir(absPath)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				log.Printf("sync watcher: failed to watch dir %q: %v", dir, err)
			} else {
				watchedDirs[dir] = true
			}
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	go func() {
		timers := make(map[string]*time.Timer)
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				jobID, ok := pathToJob[absPath]
				if !ok {
					continue
				}
				if t, exists := timers[jobID]; exists {
					t.Stop()
				}
				jid := jobID
				timers[jobID] = time.AfterFunc(500*time.Millisecond, func() {
					log.Printf("sync watcher: file changed %q, running job %s", absPath, jid)
					if _, err := s.RunJob(ctx, jid); err != nil {
						log.Printf("sync watcher: run failed for job %s: %v", jid, err)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("sync watcher: error: %v", err)
			}
		}
	}()

	log.Printf("sync watcher: watching %d file(s)", len(pathToJob))
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *SyncService) WaitRunning(ctx context.Context) {
	s.runningJobs.Drain(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *SyncService) Stop() {
	s.stopWatchers()
}

func (s *SyncService) stopWatchers() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
