package report

import (
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/silent-mammoth/whistle/internal/whistlelog"
)

// Series is one month chart: parallel slices with a value for every calendar
// day of the month, zero-filled where no sessions exist.
type Series struct {
	Values []int    `json:"values"`
	Labels []int    `json:"labels"`
	Dates  []string `json:"dates"`
}

// EngineConfig configures the aggregation engine.
type EngineConfig struct {
	// BotDenylist holds lowercased user-agent substrings identifying bots.
	BotDenylist []string
	// TopValues is the leaderboard size.
	TopValues int
	// ChartCacheTTL bounds chart staleness; ChartCacheEntries bounds memory.
	ChartCacheTTL     time.Duration
	ChartCacheEntries int
}

// Engine produces the dashboard view models. Month chart series are cached
// with a short TTL since they are recomputed on every dashboard hit and may
// lag behind the newest whistles.
type Engine struct {
	repo   *whistlelog.Repo
	cfg    EngineConfig
	charts otter.Cache[string, Series]
}

// NewEngine creates an Engine over the whistle repository.
func NewEngine(repo *whistlelog.Repo, cfg EngineConfig) *Engine {
	if cfg.TopValues <= 0 {
		cfg.TopValues = 5
	}
	if cfg.ChartCacheEntries <= 0 {
		cfg.ChartCacheEntries = 64
	}
	if cfg.ChartCacheTTL <= 0 {
		cfg.ChartCacheTTL = 30 * time.Second
	}
	charts, err := otter.MustBuilder[string, Series](cfg.ChartCacheEntries).
		Cost(func(_ string, _ Series) uint32 { return 1 }).
		WithTTL(cfg.ChartCacheTTL).
		Build()
	if err != nil {
		panic("report: failed to create chart cache: " + err.Error())
	}
	return &Engine{repo: repo, cfg: cfg, charts: charts}
}

// ChartSeries returns the daily session counts for every calendar day of the
// month. Anonymous series apply the non-bot filter.
func (e *Engine) ChartSeries(year int, month time.Month, authenticated bool) (Series, error) {
	key := fmt.Sprintf("%04d-%02d|%t", year, month, authenticated)
	if s, ok := e.charts.Get(key); ok {
		return s, nil
	}

	start, end := MonthBounds(year, month)
	counts, err := e.repo.DailySessionCounts(start, end, authenticated, e.cfg.BotDenylist)
	if err != nil {
		return Series{}, fmt.Errorf("chart series: %w", err)
	}

	days := int(end.Sub(start).Hours() / 24)
	s := Series{
		Values: make([]int, days),
		Labels: make([]int, days),
		Dates:  make([]string, days),
	}
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		date := day.Format(dateLayout)
		s.Values[i] = counts[date]
		s.Labels[i] = day.Day()
		s.Dates[i] = date
	}

	e.charts.Set(key, s)
	return s, nil
}
