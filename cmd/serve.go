package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/resale-estimator/internal/appraise"
	"github.com/sells-group/resale-estimator/internal/features"
	"github.com/sells-group/resale-estimator/internal/geo"
	"github.com/sells-group/resale-estimator/internal/metrics"
	"github.com/sells-group/resale-estimator/internal/store"
	"github.com/sells-group/resale-estimator/pkg/onemap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the estimate HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		e, err := initEnv(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		api := &server{
			appraiser: e.Appraiser,
			geocoder:  e.Geocoder,
			history:   e.History,
			metrics:   e.Metrics,
			gatherer:  e.Registry,
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(api, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type appraiser interface {
	Appraise(ctx context.Context, lat, lon float64, listing features.Listing) (*appraise.Result, error)
}

type geocoder interface {
	Search(ctx context.Context, address string) (*onemap.Location, error)
}

type history interface {
	Get(ctx context.Context, id string) (*store.Estimate, error)
	Recent(ctx context.Context, limit int) ([]store.Estimate, error)
}

// server holds the handlers' dependencies. geocoder, history, metrics and
// gatherer may be nil.
type server struct {
	appraiser appraiser
	geocoder  geocoder
	history   history
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
}

const (
	responseSuccess = "success"
	responseFailed  = "request failed"
)

// estimateResponse is the payload of both estimate endpoints.
type estimateResponse struct {
	Response string           `json:"response"`
	Attr     *features.Vector `json:"attr,omitempty"`
	Price    string           `json:"price,omitempty"`
	Version  string           `json:"version,omitempty"`
	ID       string           `json:"request_id,omitempty"`
	Message  string           `json:"message,omitempty"`
}

type estimateRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
	features.Listing
}

func buildRouter(s *server, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/estimate", s.handleEstimateQuery)
	r.Post("/estimate", s.handleEstimateJSON)
	r.Get("/estimates", s.handleRecent)
	r.Get("/estimates/{id}", s.handleGet)

	return r
}

// handleEstimateQuery serves GET /estimate?address=&level=&area=&lease=.
// latitude and longitude may be given instead of address.
func (s *server) handleEstimateQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	listing, err := features.ParseListing(map[string]string{
		features.AttrStoreyRange:    q.Get("level"),
		features.AttrFloorArea:      q.Get("area"),
		features.AttrRemainingLease: q.Get("lease"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var lat, lon float64
	if address := q.Get("address"); address != "" {
		lat, lon, err = s.geocode(r.Context(), address)
	} else {
		lat, lon, err = parsePoint(q.Get("latitude"), q.Get("longitude"))
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.estimate(w, r, lat, lon, listing)
}

// handleEstimateJSON serves POST /estimate.
func (s *server) handleEstimateJSON(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, estimateResponse{Response: responseFailed, Message: "invalid request body"})
		return
	}

	var lat, lon float64
	var err error
	switch {
	case req.Latitude != nil && req.Longitude != nil:
		lat, lon = *req.Latitude, *req.Longitude
	case req.Address != "":
		lat, lon, err = s.geocode(r.Context(), req.Address)
	default:
		err = eris.Wrap(geo.ErrInvalidCoordinate, "latitude and longitude, or address, are required")
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.estimate(w, r, lat, lon, req.Listing)
}

func (s *server) estimate(w http.ResponseWriter, r *http.Request, lat, lon float64, listing features.Listing) {
	res, err := s.appraiser.Appraise(r.Context(), lat, lon, listing)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, estimateResponse{
		Response: responseSuccess,
		Attr:     resultAttrs(res),
		Price:    res.Price,
		Version:  string(res.Version),
		ID:       w.Header().Get(requestIDHeader),
	})
}

func (s *server) geocode(ctx context.Context, address string) (float64, float64, error) {
	if s.geocoder == nil {
		return 0, 0, eris.Wrap(onemap.ErrUpstreamUnavailable, "geocoder not configured")
	}
	start := time.Now()
	loc, err := s.geocoder.Search(ctx, address)
	s.metrics.ObserveGeocode(time.Since(start).Seconds(), err)
	if err != nil {
		return 0, 0, err
	}
	return loc.Latitude, loc.Longitude, nil
}

// handleRecent serves GET /estimates?limit=.
func (s *server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "estimate history disabled"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	rows, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		zap.L().Error("list estimates", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if rows == nil {
		rows = []store.Estimate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"estimates": rows, "count": len(rows)})
}

// handleGet serves GET /estimates/{id}.
func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "estimate history disabled"})
		return
	}

	e, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "estimate not found"})
	case err != nil:
		zap.L().Error("get estimate", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	default:
		writeJSON(w, http.StatusOK, e)
	}
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("estimate failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", w.Header().Get(requestIDHeader)),
			zap.Error(err),
		)
	}
	writeJSON(w, status, estimateResponse{Response: responseFailed, Message: msg})
}

// statusFor maps pipeline errors to an HTTP status and a client message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, onemap.ErrNoResults):
		return http.StatusNotFound, "invalid address"
	case errors.Is(err, geo.ErrInvalidCoordinate), errors.Is(err, features.ErrInvalidListing):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, features.ErrMissingAttribute):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, onemap.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "address lookup unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "estimate timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func parsePoint(latRaw, lonRaw string) (float64, float64, error) {
	if latRaw == "" || lonRaw == "" {
		return 0, 0, eris.Wrap(geo.ErrInvalidCoordinate, "address or latitude and longitude are required")
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return 0, 0, eris.Wrapf(geo.ErrInvalidCoordinate, "latitude %q", latRaw)
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return 0, 0, eris.Wrapf(geo.ErrInvalidCoordinate, "longitude %q", lonRaw)
	}
	return lat, lon, nil
}

// resultAttrs echoes the query point ahead of the feature vector.
func resultAttrs(res *appraise.Result) *features.Vector {
	v := features.NewVector()
	v.SetNumber("latitude", res.Location.Lat)
	v.SetNumber("longitude", res.Location.Lon)
	if res.Features == nil {
		return v
	}
	for _, k := range res.Features.Keys() {
		val, _ := res.Features.Get(k)
		if val.Categorical {
			v.SetLabel(k, val.Label)
		} else {
			v.SetNumber(k, val.Number)
		}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

const requestIDHeader = "X-Request-ID"

// requestID tags every response with the caller's X-Request-ID or a new uuid.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", w.Header().Get(requestIDHeader)),
		)
	})
}
