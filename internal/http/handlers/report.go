package handlers

import (
	"net/http"
	"time"

	"signals/internal/domain"
	"signals/internal/estimate"
	"signals/internal/sqlinline"
)

// MetricsDaily returns the reportable counters for one day. Rows the
// suppressor already flagged never leave the store; on top of that the
// contributor floor is re-checked here from the stored filter, so a
// below-floor metric is withheld even before the day's sweep has run.
func (a *App) MetricsDaily(w http.ResponseWriter, r *http.Request) {
	day, err := parseDay(r.URL.Query().Get("day"), a.now())
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_day", "day must be formatted YYYY-MM-DD")
		return
	}

	rows, err := a.SQL.Query(r.Context(), sqlinline.QReportableCounters, day)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load metrics")
		return
	}
	defer rows.Close()

	reports := []domain.MetricReport{}
	for rows.Next() {
		var (
			rep       domain.MetricReport
			hoursSeen uint32
			filter    []byte
		)
		if err := rows.Scan(&rep.Day, &rep.Name, &rep.NoisyCount, &rep.Epsilon, &rep.Batches, &hoursSeen, &filter); err != nil {
			a.error(w, http.StatusInternalServerError, "internal", "failed to load metrics")
			return
		}

		contributors, err := estimate.Load(filter, hoursSeen)
		if err != nil {
			// An unreadable filter means the population is unknown; withhold.
			a.Logger.Error().Err(err).Str("metric", rep.Name).Msg("contributor filter unreadable")
			continue
		}
		rep.EstimatedContributors = contributors.Estimate()
		if rep.EstimatedContributors < a.Floor {
			continue
		}
		reports = append(reports, rep)
	}

	a.json(w, http.StatusOK, map[string]any{
		"day":     day.Format("2006-01-02"),
		"metrics": reports,
	})
}

func parseDay(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return domain.Day(fallback), nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return domain.Day(parsed), nil
}
