package api

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/signal.report/internal/config"
	"github.com/banshee-data/signal.report/internal/dsp"
	"github.com/banshee-data/signal.report/internal/export"
	"github.com/banshee-data/signal.report/internal/fsutil"
	"github.com/banshee-data/signal.report/internal/httputil"
	"github.com/banshee-data/signal.report/internal/monitoring"
	"github.com/banshee-data/signal.report/internal/pipeline"
	"github.com/banshee-data/signal.report/internal/report"
	"github.com/banshee-data/signal.report/internal/security"
	"github.com/banshee-data/signal.report/internal/version"
)

const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Multipart form fields accepted by the processing endpoints.
const (
	FieldLocation          = "location"
	FieldAccelerometer     = "accelerometer"
	FieldSamplingRate      = "sampling_rate"
	FieldCutoffFreq        = "cutoff_freq"
	FieldFilterOrder       = "filter_order"
	FieldCalibrationBuffer = "calibration_buffer"
	FieldPreviewRows       = "preview_rows"
	FieldLabel             = "label"
	FieldFormat            = "format"
)

// formMemory is how much of a multipart body is held in memory before
// spilling file parts to disk.
const formMemory = 8 << 20

//go:embed templates/*
var templateFS embed.FS

var (
	indexTemplate  = template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl"))
	filterTemplate = template.Must(template.ParseFS(templateFS, "templates/filter.html.tmpl"))
)

// Server serves the upload form and the processing API.
type Server struct {
	cfg    *config.PipelineConfig
	runner *pipeline.Runner
	report report.Options

	// When artifactDir is set every successful run also writes its
	// artefacts to a per-run directory below it.
	fsys           fsutil.FileSystem
	artifactDir    string
	artifactFormat export.Format

	mu    sync.Mutex
	stats RunStats
}

// RunStats counts requests handled since the server started.
type RunStats struct {
	Runs      int            `json:"runs"`
	Failures  int            `json:"failures"`
	ByKind    map[string]int `json:"failures_by_kind"`
	LastRunID string         `json:"last_run_id,omitempty"`
	LastRunAt time.Time      `json:"last_run_at,omitempty"`
}

// NewServer returns a server using cfg for defaults and limits. A nil runner
// uses pipeline.NewRunner.
func NewServer(cfg *config.PipelineConfig, runner *pipeline.Runner) *Server {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}
	if runner == nil {
		runner = pipeline.NewRunner()
	}
	return &Server{
		cfg:    cfg,
		runner: runner,
		stats:  RunStats{ByKind: make(map[string]int)},
	}
}

// SetReportOptions changes how /api/report renders its page.
func (s *Server) SetReportOptions(o report.Options) {
	s.report = o
}

// SetArtifactDir makes every successful run write its artefacts below dir,
// which must already exist.
func (s *Server) SetArtifactDir(fsys fsutil.FileSystem, dir string, format export.Format) {
	s.fsys = fsys
	s.artifactDir = dir
	s.artifactFormat = format
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.showIndex)
	mux.HandleFunc("/api/preview", s.previewInputs)
	mux.HandleFunc("/api/process", s.processJSON)
	mux.HandleFunc("/api/report", s.processReport)
	mux.HandleFunc("/api/export", s.exportCombined)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

func (s *Server) showIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	buf := bytes.NewBuffer(nil)
	err := indexTemplate.Execute(buf, struct {
		Version  string
		Params   pipeline.Params
		MaxOrder int
	}{version.String(), s.cfg.Params(), dsp.MaxOrder})
	if err != nil {
		httputil.InternalServerError(w, "failed to render template")
		return
	}
	httputil.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (s *Server) previewInputs(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	in, err := s.runner.PreviewInputs(up.req)
	if err != nil {
		httputil.WritePipelineError(w, err)
		return
	}
	httputil.WriteJSONOK(w, in)
}

func (s *Server) processJSON(w http.ResponseWriter, r *http.Request) {
	res, _, ok := s.process(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, res)
}

func (s *Server) processReport(w http.ResponseWriter, r *http.Request) {
	res, _, ok := s.process(w, r)
	if !ok {
		return
	}
	buf := bytes.NewBuffer(nil)
	if err := report.RenderHTML(buf, res, s.report); err != nil {
		monitoring.Logf("render report %s: %v", res.RunID, err)
		httputil.InternalServerError(w, "failed to render report")
		return
	}
	httputil.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (s *Server) exportCombined(w http.ResponseWriter, r *http.Request) {
	res, up, ok := s.process(w, r)
	if !ok {
		return
	}
	formatName := up.format
	if formatName == "" {
		formatName = s.cfg.GetOutputFormat()
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	buf := bytes.NewBuffer(nil)
	contentType := "text/csv; charset=utf-8"
	if format == export.FormatParquet {
		contentType = "application/vnd.apache.parquet"
		err = export.WriteParquet(buf, res)
	} else {
		err = export.WriteCSV(buf, res.Combined)
	}
	if err != nil {
		monitoring.Logf("export %s: %v", res.RunID, err)
		httputil.InternalServerError(w, "failed to export combined table")
		return
	}

	filename := runName(res, up.label) + "-" + export.CombinedBase + "." + string(format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		monitoring.Logf("write export %s: %v", res.RunID, err)
	}
}

// process reads the upload and runs the pipeline under the configured
// request timeout. It has written the response when ok is false.
func (s *Server) process(w http.ResponseWriter, r *http.Request) (*pipeline.Result, upload, bool) {
	up, ok := s.readRequest(w, r)
	if !ok {
		return nil, up, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.GetRequestTimeout())
	defer cancel()

	res, err := s.runner.Run(ctx, up.req)
	s.record(res, err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			monitoring.Logf("run abandoned: %v", err)
			httputil.WriteJSONError(w, http.StatusServiceUnavailable, "processing timed out")
			return nil, up, false
		}
		httputil.WritePipelineError(w, err)
		return nil, up, false
	}
	if err := s.saveArtifacts(res, up.label); err != nil {
		monitoring.Logf("save artifacts for %s: %v", res.RunID, err)
		httputil.InternalServerError(w, "failed to save artifacts")
		return nil, up, false
	}
	return res, up, true
}

// runName names a run's files: the sanitised label and run ID, or the run
// ID alone.
func runName(res *pipeline.Result, label string) string {
	if strings.TrimSpace(label) == "" {
		return security.SanitizeFilename(res.RunID)
	}
	return security.SanitizeFilename(label + "-" + res.RunID)
}

func (s *Server) saveArtifacts(res *pipeline.Result, label string) error {
	if s.artifactDir == "" {
		return nil
	}
	dir := filepath.Join(s.artifactDir, runName(res, label))
	if err := security.ValidatePathWithinDirectory(dir, s.artifactDir); err != nil {
		return err
	}
	m, err := export.WriteArtifacts(s.fsys, dir, res, export.Options{
		Format: s.artifactFormat,
		Report: s.report,
	})
	if err != nil {
		return err
	}
	monitoring.Logf("run %s artefacts written to %s", res.RunID, m.OutputDir)
	return nil
}

func (s *Server) record(res *pipeline.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Runs++
	if err != nil {
		s.stats.Failures++
		kind := string(pipeline.KindOf(err))
		if kind == "" {
			kind = "Other"
		}
		s.stats.ByKind[kind]++
		return
	}
	s.stats.LastRunID = res.RunID
	s.stats.LastRunAt = res.StartedAt
}

// Stats returns a copy of the run counters.
func (s *Server) Stats() RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.ByKind = make(map[string]int, len(s.stats.ByKind))
	for k, v := range s.stats.ByKind {
		out.ByKind[k] = v
	}
	return out
}

// upload is one parsed processing request.
type upload struct {
	req    pipeline.Request
	label  string
	format string
}

// readRequest turns a multipart POST into a pipeline request. Missing files
// are left nil for the pipeline to report; parameters absent from the form
// take the configured defaults.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request) (upload, bool) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return upload{}, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.GetMaxUploadBytes())
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return upload{}, false
		}
		httputil.BadRequest(w, "expected multipart/form-data upload")
		return upload{}, false
	}

	up := upload{
		label:  strings.TrimSpace(r.FormValue(FieldLabel)),
		format: strings.TrimSpace(r.FormValue(FieldFormat)),
	}
	var err error
	if up.req.LocationCSV, err = formFile(r, FieldLocation); err != nil {
		httputil.BadRequest(w, err.Error())
		return upload{}, false
	}
	if up.req.AccelerometerCSV, err = formFile(r, FieldAccelerometer); err != nil {
		httputil.BadRequest(w, err.Error())
		return upload{}, false
	}
	if up.req.Params, err = s.formParams(r); err != nil {
		httputil.WritePipelineError(w, err)
		return upload{}, false
	}
	return up, true
}

// formFile reads an uploaded file. An absent field yields nil, nil.
func formFile(r *http.Request, field string) ([]byte, error) {
	f, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s upload: %v", field, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s upload: %v", field, err)
	}
	return data, nil
}

func (s *Server) formParams(r *http.Request) (pipeline.Params, error) {
	p := s.cfg.Params()
	ints := []struct {
		field string
		dst   *int
	}{
		{FieldSamplingRate, &p.SamplingRateHz},
		{FieldFilterOrder, &p.FilterOrder},
		{FieldCalibrationBuffer, &p.CalibrationBufferS},
		{FieldPreviewRows, &p.PreviewRows},
	}
	for _, f := range ints {
		v := strings.TrimSpace(r.FormValue(f.field))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, invalidField(f.field, v)
		}
		*f.dst = n
	}
	if v := strings.TrimSpace(r.FormValue(FieldCutoffFreq)); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, invalidField(FieldCutoffFreq, v)
		}
		p.CutoffHz = c
	}
	return p, nil
}

func invalidField(field, value string) error {
	return &pipeline.Error{
		Kind:  pipeline.KindInvalidParameter,
		Stage: pipeline.StageValidate,
		Err:   fmt.Errorf("%s: %q is not a number", field, value),
	}
}

// configView is the public shape of the effective configuration.
type configView struct {
	Params         pipeline.Params `json:"params"`
	MaxUploadBytes int64           `json:"max_upload_bytes"`
	RequestTimeout string          `json:"request_timeout"`
	MaxFilterOrder int             `json:"max_filter_order"`
	Version        string          `json:"version"`
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, configView{
		Params:         s.cfg.Params(),
		MaxUploadBytes: s.cfg.GetMaxUploadBytes(),
		RequestTimeout: s.cfg.GetRequestTimeout().String(),
		MaxFilterOrder: dsp.MaxOrder,
		Version:        version.Version,
	})
}
