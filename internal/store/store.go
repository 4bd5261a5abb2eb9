// Package store owns the persistent master tables and the anomaly model.
// Every read-merge-analyze-persist cycle runs under one writer lock.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/satark-cli/internal/anomaly"
	"github.com/KaramelBytes/satark-cli/internal/merge"
	"github.com/KaramelBytes/satark-cli/internal/pipeline"
	"github.com/KaramelBytes/satark-cli/internal/table"
	"github.com/KaramelBytes/satark-cli/internal/telemetry"
)

const modelKey = "model/current"

func masterKey(k table.Kind) string { return "master/" + string(k) }

// envelope wraps each persisted artifact with a revision id.
type envelope struct {
	Revision string          `json:"revision"`
	SavedAt  time.Time       `json:"saved_at"`
	Payload  json.RawMessage `json:"payload"`
}

// ArtifactInfo describes one persisted artifact.
type ArtifactInfo struct {
	Revision string    `json:"revision,omitempty"`
	SavedAt  time.Time `json:"saved_at,omitempty"`
}

// MasterInfo summarizes a master table.
type MasterInfo struct {
	ArtifactInfo
	Kind    table.Kind `json:"kind"`
	Rows    int        `json:"rows"`
	Columns []string   `json:"columns"`
}

// ModelInfo summarizes the stored model.
type ModelInfo struct {
	ArtifactInfo
	ID        string    `json:"id"`
	Features  []string  `json:"features"`
	Trees     int       `json:"trees"`
	TrainedOn int       `json:"trained_on"`
	TrainedAt time.Time `json:"trained_at"`
}

// Snapshot is a read-only view of the store for listings.
type Snapshot struct {
	Masters []MasterInfo `json:"masters"`
	Model   *ModelInfo   `json:"model,omitempty"`
}

// CycleResult reports an ingest followed by analysis.
type CycleResult struct {
	Merges []merge.Stats
	Result *pipeline.Result
}

// Store is the single owner of process-wide state.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	merger   *merge.Merger
	pipeline *pipeline.Pipeline
	logger   *slog.Logger

	masters map[table.Kind]*table.Table
	model   *anomaly.Forest
	info    map[string]ArtifactInfo
}

// Open loads every artifact from backend. Missing artifacts start empty.
func Open(ctx context.Context, backend Backend, merger *merge.Merger, p *pipeline.Pipeline, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if merger == nil {
		merger = merge.New(nil, merge.Options{})
	}
	if p == nil {
		p = pipeline.New(nil, nil, logger)
	}
	s := &Store{
		backend:  backend,
		merger:   merger,
		pipeline: p,
		logger:   logger,
		masters:  make(map[table.Kind]*table.Table, len(table.Kinds)),
		info:     make(map[string]ArtifactInfo),
	}
	for _, k := range table.Kinds {
		t := table.New(k)
		found, err := s.load(ctx, masterKey(k), t)
		if err != nil {
			return nil, err
		}
		if found && t.Kind != k {
			return nil, fmt.Errorf("artifact %s holds a %s table", masterKey(k), t.Kind)
		}
		s.masters[k] = t
	}
	var f anomaly.Forest
	found, err := s.load(ctx, modelKey, &f)
	if err != nil {
		return nil, err
	}
	if found {
		if err := f.Validate(); err != nil {
			logger.Warn("discarding invalid stored model", "error", err)
		} else {
			s.model = &f
		}
	}
	logger.Debug("store opened",
		"enrolment_rows", s.masters[table.Enrolment].Len(),
		"biometric_rows", s.masters[table.Biometric].Len(),
		"demographic_rows", s.masters[table.Demographic].Len(),
		"model", s.model != nil)
	return s, nil
}

func (s *Store) load(ctx context.Context, key string, into any) (bool, error) {
	raw, err := s.backend.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	if err := json.Unmarshal(env.Payload, into); err != nil {
		return false, fmt.Errorf("decode %s payload: %w", key, err)
	}
	s.info[key] = ArtifactInfo{Revision: env.Revision, SavedAt: env.SavedAt}
	return true, nil
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	env := envelope{Revision: uuid.NewString(), SavedAt: time.Now().UTC(), Payload: payload}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.backend.Save(ctx, key, raw); err != nil {
		return err
	}
	s.info[key] = ArtifactInfo{Revision: env.Revision, SavedAt: env.SavedAt}
	return nil
}

// Ingest merges batches into their masters and persists the changed ones.
// Batches are keyed by kind; nil or empty batches are ignored. If any batch
// fails to merge, no master changes.
func (s *Store) Ingest(ctx context.Context, batches map[table.Kind]*table.Table) ([]merge.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ingestLocked(ctx, batches)
}

func (s *Store) ingestLocked(ctx context.Context, batches map[table.Kind]*table.Table) ([]merge.Stats, error) {
	next := make(map[table.Kind]*table.Table)
	var stats []merge.Stats
	for _, k := range table.Kinds {
		b := batches[k]
		if b == nil {
			continue
		}
		if b.Kind == "" {
			b = b.Clone()
			b.Kind = k
		}
		merged, st, err := s.merger.Merge(s.masters[k], b)
		if err != nil {
			return nil, fmt.Errorf("merge %s: %w", k, err)
		}
		next[k] = merged
		stats = append(stats, st)
	}
	for _, k := range table.Kinds {
		t, ok := next[k]
		if !ok {
			continue
		}
		if err := s.save(ctx, masterKey(k), t); err != nil {
			return stats, fmt.Errorf("persist %s master: %w", k, err)
		}
		s.masters[k] = t
	}
	for _, st := range stats {
		telemetry.RecordMerge(string(st.Kind), st.Accepted, st.Total)
		s.logger.Info("merged batch", "kind", st.Kind, "incoming", st.Incoming,
			"accepted", st.Accepted, "replaced", st.Replaced, "total", st.Total)
	}
	return stats, nil
}

// Analyze runs the pipeline over the current masters, reusing the stored
// model. A newly trained model is persisted.
func (s *Store) Analyze(ctx context.Context) (*pipeline.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyzeLocked(ctx, s.model)
}

// Train discards the stored model, fits a fresh one and persists it.
func (s *Store) Train(ctx context.Context) (*pipeline.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyzeLocked(ctx, nil)
}

// Cycle ingests batches and analyzes the result while holding the lock
// throughout.
func (s *Store) Cycle(ctx context.Context, batches map[table.Kind]*table.Table) (*CycleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, err := s.ingestLocked(ctx, batches)
	if err != nil {
		return nil, err
	}
	res, err := s.analyzeLocked(ctx, s.model)
	if err != nil {
		return nil, err
	}
	return &CycleResult{Merges: stats, Result: res}, nil
}

func (s *Store) analyzeLocked(ctx context.Context, model *anomaly.Forest) (*pipeline.Result, error) {
	res, err := s.pipeline.Process(pipeline.Input{
		Enrolment:   s.masters[table.Enrolment],
		Biometric:   s.masters[table.Biometric],
		Demographic: s.masters[table.Demographic],
		Model:       model,
	})
	if err != nil {
		telemetry.RecordRunError()
		return nil, err
	}
	telemetry.RecordRun(telemetry.RunStats{
		Processed: res.Summary.Processed,
		Critical:  res.Summary.CriticalCount,
		Anomalies: res.Detection.Count,
		Mode:      string(res.Detection.Mode),
		Duration:  res.Duration,
	})
	if res.Detection.NewModel() && res.Model != nil {
		if err := s.save(ctx, modelKey, res.Model); err != nil {
			return nil, fmt.Errorf("persist model: %w", err)
		}
		s.model = res.Model
		s.logger.Info("model persisted", "model_id", res.Model.ID, "mode", res.Detection.Mode)
	}
	return res, nil
}

// Master returns a copy of kind's master table.
func (s *Store) Master(kind table.Kind) *table.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.masters[kind].Clone()
}

// Model returns the current model, or nil.
func (s *Store) Model() *anomaly.Forest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Snapshot describes the stored artifacts.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap Snapshot
	for _, k := range table.Kinds {
		t := s.masters[k]
		snap.Masters = append(snap.Masters, MasterInfo{
			ArtifactInfo: s.info[masterKey(k)],
			Kind:         k,
			Rows:         t.Len(),
			Columns:      append([]string(nil), t.Columns...),
		})
	}
	if s.model != nil {
		snap.Model = &ModelInfo{
			ArtifactInfo: s.info[modelKey],
			ID:           s.model.ID,
			Features:     append([]string(nil), s.model.Features...),
			Trees:        len(s.model.Trees),
			TrainedOn:    s.model.TrainedOn,
			TrainedAt:    s.model.TrainedAt,
		}
	}
	return snap
}

// Close releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}
