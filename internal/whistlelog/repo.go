// Package whistlelog implements whistle persistence and the read-side
// aggregation queries behind the dashboard.
package whistlelog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/silent-mammoth/whistle/internal/model"
)

// ErrNoSessions is returned by SessionDetail when the subject has no
// whistles on the requested day.
var ErrNoSessions = errors.New("whistlelog: no whistles for subject and day")

// Repo provides single-row writes and aggregation reads over the whistles table.
type Repo struct {
	db *sql.DB
}

// NewRepo creates a Repo over an opened, migrated whistle database.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Insert persists exactly one whistle.
func (r *Repo) Insert(w model.Whistle) error {
	_, err := r.db.Exec(`INSERT INTO whistles (
		subject_id, request_summary, response_summary,
		request_method, request_path, response_code,
		user_agent, is_authenticated, viewport_dimensions, ts_ns
	) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		w.SubjectID, w.RequestSummary, w.ResponseSummary,
		w.RequestMethod, w.RequestPath, w.ResponseCode,
		w.UserAgent, boolToInt(w.IsAuthenticated), w.ViewportDimensions, w.TsNs,
	)
	if err != nil {
		return fmt.Errorf("whistlelog insert: %w", err)
	}
	return nil
}

// ReassignSubject rewrites all whistles attributed to oldID so they belong to
// newID. It is the persistence half of the identity migration hook: the host
// application calls it when an anonymous session authenticates, passing the
// retained anonymous session key and the resolved user identifier.
func (r *Repo) ReassignSubject(oldID, newID string) (int64, error) {
	res, err := r.db.Exec(`UPDATE whistles SET subject_id = ? WHERE subject_id = ?`, newID, oldID)
	if err != nil {
		return 0, fmt.Errorf("whistlelog reassign subject: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("whistlelog reassign subject: rows affected: %w", err)
	}
	return n, nil
}

// nonbotPredicate returns a SQL EXISTS predicate (against outer alias w)
// matching subjects that sent the liveness signal from a user agent containing
// none of the denylist substrings. The match is case-insensitive.
func nonbotPredicate(denylist []string) (string, []any) {
	var b strings.Builder
	b.WriteString(`EXISTS (SELECT 1 FROM whistles p WHERE p.subject_id = w.subject_id AND p.request_summary = ?`)
	args := []any{model.PingSignal}
	for _, needle := range denylist {
		b.WriteString(` AND instr(lower(p.user_agent), ?) = 0`)
		args = append(args, strings.ToLower(needle))
	}
	b.WriteString(`)`)
	return b.String(), args
}

// DailySessionCounts returns, per UTC calendar day inside [start, end), the
// number of distinct subjects with at least one whistle that day, for the
// given authentication flag. The liveness signal itself is excluded. For
// anonymous subjects the non-bot rule applies: the subject must have sent the
// liveness signal from a user agent not on the denylist.
// Days without sessions are absent from the map.
func (r *Repo) DailySessionCounts(start, end time.Time, authenticated bool, denylist []string) (map[string]int, error) {
	q := `SELECT date(w.ts_ns/1000000000, 'unixepoch') AS day, COUNT(DISTINCT w.subject_id)
		FROM whistles w
		WHERE w.is_authenticated = ? AND w.ts_ns >= ? AND w.ts_ns < ? AND w.request_summary <> ?`
	args := []any{boolToInt(authenticated), start.UnixNano(), end.UnixNano(), model.PingSignal}

	if !authenticated {
		pred, predArgs := nonbotPredicate(denylist)
		q += " AND " + pred
		args = append(args, predArgs...)
	}
	q += ` GROUP BY day ORDER BY day`

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("whistlelog daily session counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("whistlelog daily session counts: scan: %w", err)
		}
		counts[day] = n
	}
	return counts, rows.Err()
}

// StatusCodes returns the distinct response codes >= 400 observed on
// authenticated, non-signal whistles inside [start, end), ascending.
// These drive the status-code columns of both session tables.
func (r *Repo) StatusCodes(start, end time.Time) ([]int, error) {
	rows, err := r.db.Query(`SELECT DISTINCT response_code FROM whistles
		WHERE is_authenticated = 1 AND ts_ns >= ? AND ts_ns < ?
		  AND response_code >= 400 AND request_summary <> ?
		ORDER BY response_code`,
		start.UnixNano(), end.UnixNano(), model.PingSignal)
	if err != nil {
		return nil, fmt.Errorf("whistlelog status codes: %w", err)
	}
	defer rows.Close()

	var codes []int
	for rows.Next() {
		var c int
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("whistlelog status codes: scan: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// SessionSummary aggregates one subject's whistles for a single day.
type SessionSummary struct {
	SubjectID    string
	Whistles     int
	FirstTsNs    int64
	LastTsNs     int64
	StatusCounts map[int]int
}

// SessionSummaries groups the day's non-signal whistles by subject and reports
// count, earliest and latest timestamps, and per-code counts for the given
// status codes. Authenticated summaries are ordered by latest timestamp
// descending; anonymous summaries by count descending, with the non-bot rule
// applied.
func (r *Repo) SessionSummaries(start, end time.Time, authenticated bool, denylist []string, codes []int) ([]SessionSummary, error) {
	q := `SELECT w.subject_id, COUNT(*), MIN(w.ts_ns), MAX(w.ts_ns)
		FROM whistles w
		WHERE w.is_authenticated = ? AND w.ts_ns >= ? AND w.ts_ns < ? AND w.request_summary <> ?`
	args := []any{boolToInt(authenticated), start.UnixNano(), end.UnixNano(), model.PingSignal}

	if !authenticated {
		pred, predArgs := nonbotPredicate(denylist)
		q += " AND " + pred
		args = append(args, predArgs...)
	}
	q += ` GROUP BY w.subject_id`
	if authenticated {
		q += ` ORDER BY MAX(w.ts_ns) DESC`
	} else {
		q += ` ORDER BY COUNT(*) DESC`
	}

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("whistlelog session summaries: %w", err)
	}
	defer rows.Close()

	var summaries []SessionSummary
	index := make(map[string]int)
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.SubjectID, &s.Whistles, &s.FirstTsNs, &s.LastTsNs); err != nil {
			return nil, fmt.Errorf("whistlelog session summaries: scan: %w", err)
		}
		s.StatusCounts = make(map[int]int, len(codes))
		for _, c := range codes {
			s.StatusCounts[c] = 0
		}
		index[s.SubjectID] = len(summaries)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(summaries) == 0 || len(codes) == 0 {
		return summaries, nil
	}

	if err := r.fillStatusCounts(summaries, index, start, end, authenticated, codes); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *Repo) fillStatusCounts(summaries []SessionSummary, index map[string]int, start, end time.Time, authenticated bool, codes []int) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(codes)), ",")
	q := fmt.Sprintf(`SELECT subject_id, response_code, COUNT(*)
		FROM whistles
		WHERE is_authenticated = ? AND ts_ns >= ? AND ts_ns < ? AND request_summary <> ?
		  AND response_code IN (%s)
		GROUP BY subject_id, response_code`, placeholders)
	args := []any{boolToInt(authenticated), start.UnixNano(), end.UnixNano(), model.PingSignal}
	for _, c := range codes {
		args = append(args, c)
	}

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return fmt.Errorf("whistlelog status counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var subject string
		var code, n int
		if err := rows.Scan(&subject, &code, &n); err != nil {
			return fmt.Errorf("whistlelog status counts: scan: %w", err)
		}
		if i, ok := index[subject]; ok {
			summaries[i].StatusCounts[code] = n
		}
	}
	return rows.Err()
}

// ValueSessions is one leaderboard row: a user agent or viewport value and the
// number of sessions it appeared in.
type ValueSessions struct {
	Value    string
	Sessions int
}

// TopUserAgents returns the top limit user agents among authenticated whistles
// inside [start, end), counted per session (same subject, same day, same value
// counts once), plus the total number of qualifying sessions.
func (r *Repo) TopUserAgents(start, end time.Time, limit int) ([]ValueSessions, int, error) {
	return r.topValues("user_agent", start, end, limit)
}

// TopViewports is TopUserAgents for viewport dimensions.
func (r *Repo) TopViewports(start, end time.Time, limit int) ([]ValueSessions, int, error) {
	return r.topValues("viewport_dimensions", start, end, limit)
}

func (r *Repo) topValues(column string, start, end time.Time, limit int) ([]ValueSessions, int, error) {
	if limit <= 0 {
		limit = 5
	}
	// column is one of two compile-time constants; never user input.
	inner := fmt.Sprintf(`SELECT DISTINCT date(ts_ns/1000000000, 'unixepoch') AS day, subject_id, %s AS value
		FROM whistles
		WHERE is_authenticated = 1 AND %s <> '' AND ts_ns >= ? AND ts_ns < ?`, column, column)

	rows, err := r.db.Query(
		fmt.Sprintf(`SELECT value, COUNT(*) AS sessions FROM (%s) GROUP BY value ORDER BY sessions DESC LIMIT ?`, inner),
		start.UnixNano(), end.UnixNano(), limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("whistlelog top %s: %w", column, err)
	}
	defer rows.Close()

	var top []ValueSessions
	for rows.Next() {
		var v ValueSessions
		if err := rows.Scan(&v.Value, &v.Sessions); err != nil {
			return nil, 0, fmt.Errorf("whistlelog top %s: scan: %w", column, err)
		}
		top = append(top, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = r.db.QueryRow(
		fmt.Sprintf(`SELECT COUNT(*) FROM (%s)`, inner),
		start.UnixNano(), end.UnixNano(),
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("whistlelog top %s: total: %w", column, err)
	}
	return top, total, nil
}

// SessionDetail holds one subject's whistles for a single day.
type SessionDetail struct {
	SubjectID          string
	Whistles           []model.Whistle
	FirstTsNs          int64
	LastTsNs           int64
	UserAgent          string
	ViewportDimensions string
	IsAuthenticated    bool
}

// SessionDetail returns the ordered non-signal whistles for a subject inside
// [start, end). It returns ErrNoSessions when nothing matches.
func (r *Repo) SessionDetail(subjectID string, start, end time.Time) (*SessionDetail, error) {
	rows, err := r.db.Query(`SELECT id, subject_id, request_summary, response_summary,
			request_method, request_path, response_code,
			user_agent, is_authenticated, viewport_dimensions, ts_ns
		FROM whistles
		WHERE subject_id = ? AND ts_ns >= ? AND ts_ns < ? AND request_summary <> ?
		ORDER BY ts_ns ASC, id ASC`,
		subjectID, start.UnixNano(), end.UnixNano(), model.PingSignal)
	if err != nil {
		return nil, fmt.Errorf("whistlelog session detail: %w", err)
	}
	defer rows.Close()

	var whistles []model.Whistle
	for rows.Next() {
		var w model.Whistle
		var authed int
		if err := rows.Scan(
			&w.ID, &w.SubjectID, &w.RequestSummary, &w.ResponseSummary,
			&w.RequestMethod, &w.RequestPath, &w.ResponseCode,
			&w.UserAgent, &authed, &w.ViewportDimensions, &w.TsNs,
		); err != nil {
			return nil, fmt.Errorf("whistlelog session detail: scan: %w", err)
		}
		w.IsAuthenticated = authed != 0
		whistles = append(whistles, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(whistles) == 0 {
		return nil, ErrNoSessions
	}

	d := &SessionDetail{
		SubjectID:       subjectID,
		Whistles:        whistles,
		FirstTsNs:       whistles[0].TsNs,
		LastTsNs:        whistles[len(whistles)-1].TsNs,
		UserAgent:       whistles[0].UserAgent,
		IsAuthenticated: whistles[0].IsAuthenticated,
	}
	for _, w := range whistles {
		if w.ViewportDimensions != "" {
			d.ViewportDimensions = w.ViewportDimensions
			break
		}
	}
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
