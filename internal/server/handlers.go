package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/satark-cli/internal/pipeline"
	"github.com/KaramelBytes/satark-cli/internal/table"
	"github.com/KaramelBytes/satark-cli/internal/telemetry"
)

// Upload form fields per dataset kind.
var uploadFields = map[table.Kind]string{
	table.Enrolment:   "enrolment_file",
	table.Biometric:   "biometric_file",
	table.Demographic: "demographic_file",
}

type datasetInfo struct {
	EnrolmentRecords   int    `json:"enrolment_records"`
	BiometricRecords   int    `json:"biometric_records"`
	DemographicRecords int    `json:"demographic_records"`
	Source             string `json:"source"`
}

type analysisResponse struct {
	*pipeline.Result
	ProcessingTimeMs float64     `json:"processing_time_ms,omitempty"`
	DatasetInfo      datasetInfo `json:"dataset_info"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func (s *Server) datasetInfo(source string) datasetInfo {
	info := datasetInfo{Source: source}
	for _, m := range s.store.Snapshot().Masters {
		switch m.Kind {
		case table.Enrolment:
			info.EnrolmentRecords = m.Rows
		case table.Biometric:
			info.BiometricRecords = m.Rows
		case table.Demographic:
			info.DemographicRecords = m.Rows
		}
	}
	return info
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInitialData(w http.ResponseWriter, r *http.Request) {
	info := s.datasetInfo("persistent_store")
	if info.EnrolmentRecords == 0 || info.BiometricRecords == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "No data available. Please upload files or run training.",
		})
		return
	}
	res, err := s.store.Analyze(r.Context())
	if err != nil {
		s.logger.Error("analysis failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{Result: res, DatasetInfo: info})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	type part struct {
		slot int
		kind table.Kind
		file multipart.File
		name string
	}
	var parts []part
	for i, kind := range table.Kinds {
		file, header, err := r.FormFile(uploadFields[kind])
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			for _, p := range parts {
				_ = p.file.Close()
			}
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", uploadFields[kind], err))
			return
		}
		parts = append(parts, part{slot: i, kind: kind, file: file, name: header.Filename})
	}

	// Each part is parsed on its own goroutine; results land in fixed slots.
	parsed := make([]*table.Table, len(table.Kinds))
	var g errgroup.Group
	for _, p := range parts {
		g.Go(func() error {
			defer p.file.Close()
			data, err := io.ReadAll(p.file)
			if err != nil {
				return fmt.Errorf("read %s: %w", p.name, err)
			}
			if len(data) == 0 {
				return nil
			}
			t, err := table.Read(data, p.name, p.kind, table.ReadOptions{})
			if err != nil {
				return err
			}
			parsed[p.slot] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.uploadError(w, err)
		return
	}

	batches := make(map[table.Kind]*table.Table)
	for i, kind := range table.Kinds {
		if parsed[i] != nil {
			batches[kind] = parsed[i]
		}
	}
	if len(batches) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "No valid files received or empty files."})
		return
	}

	cycle, err := s.store.Cycle(r.Context(), batches)
	if err != nil {
		s.uploadError(w, err)
		return
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1000
	writeJSON(w, http.StatusOK, analysisResponse{
		Result:           cycle.Result,
		ProcessingTimeMs: math.Round(elapsed*100) / 100,
		DatasetInfo:      s.datasetInfo("live_update"),
	})
}

func (s *Server) uploadError(w http.ResponseWriter, err error) {
	var mal *table.MalformedInputError
	if errors.As(err, &mal) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("upload failed", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.fetcher == nil {
		writeError(w, http.StatusServiceUnavailable, "Sync failed: official data source is not configured")
		return
	}
	batches, fetchErr := s.fetcher.FetchAll(r.Context(), s.cfg.SyncKinds)
	for k, t := range batches {
		telemetry.RecordFetch(string(k), t.Len())
	}
	if fetchErr != nil {
		s.logger.Warn("official sync incomplete", "error", fetchErr)
	}
	if len(batches) == 0 && fetchErr != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Sync failed: %v", fetchErr))
		return
	}
	if _, err := s.store.Ingest(r.Context(), batches); err != nil {
		s.logger.Error("sync merge failed", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Sync failed: %v", err))
		return
	}
	info := s.datasetInfo("official_sync")
	resp := map[string]any{
		"status":           "success",
		"message":          "Official Data Synced successfully",
		"enrolment_size":   info.EnrolmentRecords,
		"biometric_size":   info.BiometricRecords,
		"demographic_size": info.DemographicRecords,
	}
	if fetchErr != nil {
		resp["warning"] = fetchErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
