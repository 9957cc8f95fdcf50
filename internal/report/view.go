package report

import (
	"fmt"
	"math"
	"time"

	"github.com/silent-mammoth/whistle/internal/whistlelog"
)

// SessionRow is one day-view table row: a subject's activity for the day.
type SessionRow struct {
	SubjectID    string         `json:"subject_id"`
	Whistles     int            `json:"whistles"`
	FirstSeen    string         `json:"first_seen"`
	LastSeen     string         `json:"last_seen"`
	StatusCounts map[string]int `json:"status_counts"`
}

// LeaderboardRow is one top-values row with its share of all sessions.
type LeaderboardRow struct {
	Value    string `json:"value"`
	Sessions int    `json:"sessions"`
	Percent  int    `json:"percent"`
}

// DayView is the full dashboard payload for one calendar day.
type DayView struct {
	Date             string `json:"date"`
	MonthHasWhistles bool   `json:"month_has_whistles"`

	AuthenticatedChart Series `json:"authenticated_chart"`
	AnonymousChart     Series `json:"anonymous_chart"`

	StatusCodes           []int        `json:"status_codes"`
	AuthenticatedSessions []SessionRow `json:"authenticated_sessions"`
	AnonymousSessions     []SessionRow `json:"anonymous_sessions"`

	TopUserAgents []LeaderboardRow `json:"top_useragents"`
	TopViewports  []LeaderboardRow `json:"top_viewports"`

	PreviousDay   string `json:"previous_day"`
	NextDay       string `json:"next_day"`
	PreviousMonth string `json:"previous_month"`
	NextMonth     string `json:"next_month"`
}

// DayView assembles the dashboard payload for the given YYYY-MM-DD date.
func (e *Engine) DayView(date string) (*DayView, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("day view: %w", err)
	}
	dayStart, dayEnd := DayBounds(t)
	monthStart, monthEnd := MonthBounds(t.Year(), t.Month())

	v := &DayView{Date: date}

	if v.AuthenticatedChart, err = e.ChartSeries(t.Year(), t.Month(), true); err != nil {
		return nil, err
	}
	if v.AnonymousChart, err = e.ChartSeries(t.Year(), t.Month(), false); err != nil {
		return nil, err
	}
	for _, n := range v.AuthenticatedChart.Values {
		if n > 0 {
			v.MonthHasWhistles = true
		}
	}
	for _, n := range v.AnonymousChart.Values {
		if n > 0 {
			v.MonthHasWhistles = true
		}
	}

	codes, err := e.repo.StatusCodes(dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("day view: %w", err)
	}
	v.StatusCodes = codes

	authed, err := e.repo.SessionSummaries(dayStart, dayEnd, true, e.cfg.BotDenylist, codes)
	if err != nil {
		return nil, fmt.Errorf("day view: %w", err)
	}
	anon, err := e.repo.SessionSummaries(dayStart, dayEnd, false, e.cfg.BotDenylist, codes)
	if err != nil {
		return nil, fmt.Errorf("day view: %w", err)
	}
	v.AuthenticatedSessions = sessionRows(authed)
	v.AnonymousSessions = sessionRows(anon)

	agents, agentTotal, err := e.repo.TopUserAgents(monthStart, monthEnd, e.cfg.TopValues)
	if err != nil {
		return nil, fmt.Errorf("day view: %w", err)
	}
	viewports, viewportTotal, err := e.repo.TopViewports(monthStart, monthEnd, e.cfg.TopValues)
	if err != nil {
		return nil, fmt.Errorf("day view: %w", err)
	}
	v.TopUserAgents = leaderboard(agents, agentTotal)
	v.TopViewports = leaderboard(viewports, viewportTotal)

	// Adjust* only fails on a malformed date, already ruled out above.
	v.PreviousDay, _ = AdjustDay(date, Previous)
	v.NextDay, _ = AdjustDay(date, Next)
	v.PreviousMonth, _ = AdjustMonth(date, Previous)
	v.NextMonth, _ = AdjustMonth(date, Next)

	return v, nil
}

func sessionRows(summaries []whistlelog.SessionSummary) []SessionRow {
	rows := make([]SessionRow, 0, len(summaries))
	for _, s := range summaries {
		row := SessionRow{
			SubjectID:    s.SubjectID,
			Whistles:     s.Whistles,
			FirstSeen:    time.Unix(0, s.FirstTsNs).UTC().Format(time.RFC3339),
			LastSeen:     time.Unix(0, s.LastTsNs).UTC().Format(time.RFC3339),
			StatusCounts: make(map[string]int, len(s.StatusCounts)),
		}
		for code, n := range s.StatusCounts {
			row.StatusCounts[fmt.Sprintf("%d", code)] = n
		}
		rows = append(rows, row)
	}
	return rows
}

func leaderboard(values []whistlelog.ValueSessions, total int) []LeaderboardRow {
	rows := make([]LeaderboardRow, 0, len(values))
	for _, v := range values {
		percent := 0
		if total > 0 {
			percent = int(math.Round(float64(v.Sessions) / float64(total) * 100))
		}
		rows = append(rows, LeaderboardRow{Value: v.Value, Sessions: v.Sessions, Percent: percent})
	}
	return rows
}

// WhistleRow is one recorded whistle in a session detail view.
type WhistleRow struct {
	Time            string `json:"time"`
	RequestMethod   string `json:"request_method"`
	RequestPath     string `json:"request_path"`
	ResponseCode    int    `json:"response_code"`
	RequestSummary  string `json:"request_summary"`
	ResponseSummary string `json:"response_summary"`
}

// SessionView is the detail payload for one subject's day.
type SessionView struct {
	SubjectID          string       `json:"subject_id"`
	Date               string       `json:"date"`
	IsAuthenticated    bool         `json:"is_authenticated"`
	UserAgent          string       `json:"user_agent"`
	ViewportDimensions string       `json:"viewport_dimensions"`
	FirstSeen          string       `json:"first_seen"`
	LastSeen           string       `json:"last_seen"`
	DurationSeconds    int64        `json:"duration_seconds"`
	Whistles           []WhistleRow `json:"whistles"`
}

// Session assembles the detail view for one subject on the given date.
// It returns whistlelog.ErrNoSessions when the subject has no whistles that
// day.
func (e *Engine) Session(subjectID, date string) (*SessionView, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("session view: %w", err)
	}
	start, end := DayBounds(t)

	d, err := e.repo.SessionDetail(subjectID, start, end)
	if err != nil {
		return nil, err
	}

	v := &SessionView{
		SubjectID:          d.SubjectID,
		Date:               date,
		IsAuthenticated:    d.IsAuthenticated,
		UserAgent:          d.UserAgent,
		ViewportDimensions: d.ViewportDimensions,
		FirstSeen:          time.Unix(0, d.FirstTsNs).UTC().Format(time.RFC3339),
		LastSeen:           time.Unix(0, d.LastTsNs).UTC().Format(time.RFC3339),
		DurationSeconds:    (d.LastTsNs - d.FirstTsNs) / int64(time.Second),
	}
	for _, w := range d.Whistles {
		v.Whistles = append(v.Whistles, WhistleRow{
			Time:            time.Unix(0, w.TsNs).UTC().Format(time.RFC3339),
			RequestMethod:   w.RequestMethod,
			RequestPath:     w.RequestPath,
			ResponseCode:    w.ResponseCode,
			RequestSummary:  w.RequestSummary,
			ResponseSummary: w.ResponseSummary,
		})
	}
	return v, nil
}
