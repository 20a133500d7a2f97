package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/resale-estimator/internal/appraise"
	"github.com/sells-group/resale-estimator/internal/config"
	"github.com/sells-group/resale-estimator/internal/db"
	"github.com/sells-group/resale-estimator/internal/metrics"
	"github.com/sells-group/resale-estimator/internal/model"
	"github.com/sells-group/resale-estimator/internal/refdata"
	"github.com/sells-group/resale-estimator/internal/resilience"
	"github.com/sells-group/resale-estimator/internal/schema"
	"github.com/sells-group/resale-estimator/internal/store"
	"github.com/sells-group/resale-estimator/pkg/onemap"
)

// env holds the components shared by estimate and serve.
type env struct {
	Refs      *refdata.Store
	Appraiser *appraise.Appraiser
	Geocoder  *onemap.Client
	History   store.Store
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
}

// Close releases the history store if one was opened.
func (e *env) Close() {
	if e.History != nil {
		if err := e.History.Close(); err != nil {
			zap.L().Warn("close estimate history", zap.Error(err))
		}
	}
}

// initEnv loads the reference data and model named by c. History is opened
// only when withHistory is set.
func initEnv(ctx context.Context, c *config.Config, withHistory bool) (*env, error) {
	ver, err := schema.Lookup(c.Model.Version)
	if err != nil {
		return nil, err
	}

	e := &env{Registry: prometheus.NewRegistry()}
	e.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	e.Metrics = metrics.NewMetrics(e.Registry)

	elite := c.Data.EliteTopRows
	if elite == 0 {
		elite = ver.EliteTopRows
	}
	e.Refs, err = loadRefs(ctx, c, ver.Kinds(), elite)
	if err != nil {
		return nil, err
	}
	e.Metrics.SetReferenceRows(kindCounts(e.Refs.Counts()))

	opts := []appraise.Option{appraise.WithMetrics(e.Metrics)}
	if withHistory {
		e.History, err = store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL, c.Store.SQLitePath)
		if err != nil {
			return nil, eris.Wrap(err, "open estimate history")
		}
		if err := e.History.Migrate(ctx); err != nil {
			e.Close()
			return nil, eris.Wrap(err, "migrate estimate history")
		}
		opts = append(opts, appraise.WithRecorder(e.History))
	}

	e.Appraiser, err = buildAppraiser(c, ver, e.Refs, opts...)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Geocoder = newGeocoder(c.OneMap)

	zap.L().Info("estimator ready",
		zap.String("version", string(ver.Tag)),
		zap.Int("columns", ver.Width()),
		zap.String("artifact", c.Model.ArtifactPath),
	)
	return e, nil
}

// loadRefs reads the reference datasets from the configured source. A nil
// kinds loads every dataset.
func loadRefs(ctx context.Context, c *config.Config, kinds []refdata.Kind, eliteTopRows int) (*refdata.Store, error) {
	var src refdata.Source
	switch c.Data.Source {
	case "postgres":
		pool, err := db.Connect(ctx, c.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "connect reference database")
		}
		defer pool.Close()
		src = refdata.NewPostgresSource(pool)
	default:
		src = refdata.NewCSVSource(c.Data.Dir)
	}

	return refdata.Load(ctx, src, refdata.LoadOptions{
		EliteTopRows: eliteTopRows,
		Kinds:        kinds,
	})
}

// buildAppraiser loads the model artifact and pairs it with ver.
func buildAppraiser(c *config.Config, ver schema.Version, refs *refdata.Store, opts ...appraise.Option) (*appraise.Appraiser, error) {
	art, err := model.LoadArtifact(c.Model.ArtifactPath)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(c.Model.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	scorer, scaler, err := appraise.ScorerFromArtifact(art, ver, c.Model.RemoteURL,
		model.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, err
	}

	opts = append(opts, appraise.WithTimeout(timeout))
	return appraise.New(refs, ver, scorer, scaler, opts...)
}

// newGeocoder builds the OneMap client. Requests are authenticated only
// when credentials are configured.
func newGeocoder(c config.OneMapConfig) *onemap.Client {
	opts := []onemap.Option{
		onemap.WithRetryPolicy(resilience.DefaultPolicy().WithRetries(c.Retries)),
		onemap.WithBreaker(resilience.NewBreaker("onemap", 5, 30*time.Second)),
	}
	if c.BaseURL != "" {
		opts = append(opts, onemap.WithBaseURL(c.BaseURL))
	}
	if c.RateLimit > 0 {
		opts = append(opts, onemap.WithRateLimit(c.RateLimit))
	}
	if c.Email != "" {
		var cache onemap.TokenCache = &onemap.MemoryTokenCache{}
		if c.TokenCache != "" {
			cache = &onemap.FileTokenCache{Path: c.TokenCache}
		}
		opts = append(opts, onemap.WithTokenSource(onemap.NewTokenSource(cache, c.Email, c.Password, c.BaseURL, nil)))
	}
	return onemap.NewClient(opts...)
}

func kindCounts(counts map[refdata.Kind]int) map[string]int {
	out := make(map[string]int, len(counts))
	for k, n := range counts {
		out[string(k)] = n
	}
	return out
}
