package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/silent-mammoth/whistle/internal/report"
	"github.com/silent-mammoth/whistle/internal/whistlelog"
)

const dateLayout = "2006-01-02"

// dateParam reads the optional ?date= query parameter, defaulting to today
// (UTC). The second return value is false when the parameter is malformed and
// an error response has already been written.
func dateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if date == "" {
		return time.Now().UTC().Format(dateLayout), true
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "date: must be YYYY-MM-DD")
		return "", false
	}
	return date, true
}

// HandleDayView returns a handler for GET /api/v1/dashboard/day.
func HandleDayView(engine *report.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, ok := dateParam(w, r)
		if !ok {
			return
		}
		view, err := engine.DayView(date)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

// HandleSessionView returns a handler for
// GET /api/v1/dashboard/sessions/{subject_id}.
func HandleSessionView(engine *report.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subjectID := r.PathValue("subject_id")
		if subjectID == "" {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "subject_id: required")
			return
		}
		date, ok := dateParam(w, r)
		if !ok {
			return
		}
		view, err := engine.Session(subjectID, date)
		if errors.Is(err, whistlelog.ErrNoSessions) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "no whistles for subject on that day")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}
