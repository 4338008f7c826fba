// Package api serves the acquisition status endpoints.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/scanlog/internal/httputil"
	"github.com/banshee-data/scanlog/internal/lms"
	"github.com/banshee-data/scanlog/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// StatsSource is satisfied by *lms.Broadcaster.
type StatsSource interface {
	Stats() lms.BroadcastStats
	Latest() (lms.ScanMessage, bool)
}

// DeviceSource is satisfied by *lms.Worker.
type DeviceSource interface {
	Info() (lms.DeviceInfo, bool)
}

// HistoryFunc returns up to limit recent scans, newest first.
type HistoryFunc func(limit int) ([]lms.ScanMessage, error)

type Server struct {
	stats   StatsSource
	device  DeviceSource
	history HistoryFunc
}

// NewServer builds a server over the broadcaster and worker. device and
// history may be nil.
func NewServer(stats StatsSource, device DeviceSource, history HistoryFunc) *Server {
	return &Server{stats: stats, device: device, history: history}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
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
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// Register mounts the /api/ routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/device", s.showDevice)
	mux.HandleFunc("/api/scans/latest", s.latestScan)
	mux.HandleFunc("/api/scans", s.listScans)
	mux.HandleFunc("/api/version", s.showVersion)
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.stats.Stats())
}

type deviceResponse struct {
	Baud           int     `json:"baud"`
	OperatingMode  int     `json:"operating_mode"`
	MeasuringMode  int     `json:"measuring_mode"`
	MeasuringUnits int     `json:"measuring_units"`
	ScanResolution float64 `json:"scan_resolution"`
	ScanAngle      float64 `json:"scan_angle"`
	UpdateRate     float64 `json:"update_rate_hz"`
	MaxDistance    float64 `json:"max_distance_m"`
}

func (s *Server) showDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.device == nil {
		httputil.NotFound(w, "no device attached")
		return
	}
	info, ok := s.device.Info()
	if !ok {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "device not initialized")
		return
	}
	httputil.WriteJSONOK(w, deviceResponse{
		Baud:           info.Baud,
		OperatingMode:  info.OperatingMode,
		MeasuringMode:  info.MeasuringMode,
		MeasuringUnits: info.MeasuringUnits,
		ScanResolution: info.ScanResolution,
		ScanAngle:      info.ScanAngle,
		UpdateRate:     info.UpdateRate,
		MaxDistance:    info.MaxDistance,
	})
}

// latestScan returns the last published scan. ?format=text answers with
// the LmsScan(...) line used in converted logs.
func (s *Server) latestScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	msg, ok := s.stats.Latest()
	if !ok {
		httputil.NotFound(w, "no scans published yet")
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(msg.String() + "\n"))
		return
	}
	httputil.WriteJSONOK(w, msg)
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.history == nil {
		httputil.NotFound(w, "scan history is not recorded")
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			httputil.BadRequest(w, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	scans, err := s.history(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if scans == nil {
		scans = []lms.ScanMessage{}
	}
	httputil.WriteJSONOK(w, scans)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, version.Current())
}
