package api

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"tailscale.com/tsweb"

	"github.com/banshee-data/signal.report/internal/dsp"
	"github.com/banshee-data/signal.report/internal/httputil"
	"github.com/banshee-data/signal.report/internal/pipeline"
	"github.com/banshee-data/signal.report/internal/version"
)

// filterView is what the filter debug page renders.
type filterView struct {
	Order          int
	CutoffHz       float64
	SamplingRateHz int
	Wn             float64
	B, A           []float64
	PadLen         int
	MinSamples     int
}

// AttachAdminRoutes registers the loopback-only debug pages under /debug/.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("build", "build version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, version.String()+"\n")
	})

	debug.HandleFunc("config", "effective processing configuration", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.cfg)
	})

	debug.HandleFunc("runs", "run counters since start", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.Stats())
	})

	// Coefficient table for the configured filter, or for ?order=&cutoff=&fs=.
	debug.HandleFunc("filter", "Butterworth coefficients for the configured filter", func(w http.ResponseWriter, r *http.Request) {
		p, err := s.filterParams(r)
		if err != nil {
			httputil.WritePipelineError(w, err)
			return
		}
		if err := p.Validate(); err != nil {
			httputil.WritePipelineError(w, err)
			return
		}
		wn, err := dsp.NormalizedCutoff(p.CutoffHz, float64(p.SamplingRateHz))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b, a, err := dsp.Butter(p.FilterOrder, wn)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		buf := bytes.NewBuffer(nil)
		err = filterTemplate.Execute(buf, filterView{
			Order:          p.FilterOrder,
			CutoffHz:       p.CutoffHz,
			SamplingRateHz: p.SamplingRateHz,
			Wn:             wn,
			B:              b,
			A:              a,
			PadLen:         dsp.PadLen(b, a),
			MinSamples:     dsp.MinSamples(p.FilterOrder),
		})
		if err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})
}

func (s *Server) filterParams(r *http.Request) (pipeline.Params, error) {
	p := s.cfg.Params()
	q := r.URL.Query()
	if v := q.Get("order"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, invalidField("order", v)
		}
		p.FilterOrder = n
	}
	if v := q.Get("fs"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, invalidField("fs", v)
		}
		p.SamplingRateHz = n
	}
	if v := q.Get("cutoff"); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, invalidField("cutoff", v)
		}
		p.CutoffHz = c
	}
	return p, nil
}
