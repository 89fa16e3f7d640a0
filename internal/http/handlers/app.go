package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"signals/internal/domain"
	"signals/internal/infra"
	"signals/internal/validate"
)

// App is the handler container: the read-path SQL executor, the transactional
// counter repository, the ingestion policy, and the contributor floor.
type App struct {
	SQL      infra.SQLExecutor
	Counters domain.CounterRepository
	Policy   validate.Policy
	Floor    int
	Logger   zerolog.Logger

	// Now is replaceable in tests; nil means time.Now.
	Now func() time.Time
}

func NewApp(sql infra.SQLExecutor, counters domain.CounterRepository, policy validate.Policy, floor int, logger zerolog.Logger) *App {
	return &App{
		SQL:      sql,
		Counters: counters,
		Policy:   policy,
		Floor:    floor,
		Logger:   logger,
	}
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"success": false,
		"error":   code,
		"message": message,
	})
}
