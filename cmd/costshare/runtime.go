package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samuel/go-metrics/metrics"
	"github.com/spf13/cobra"

	"github.com/rgehrsitz/costshare/internal/audit"
	"github.com/rgehrsitz/costshare/internal/calculation"
	"github.com/rgehrsitz/costshare/internal/config"
	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/rgehrsitz/costshare/internal/logging"
	"github.com/rgehrsitz/costshare/internal/store"
)

// env is the wiring shared by the calculate and audit commands
type env struct {
	settings *config.Settings
	log      zerolog.Logger
	registry metrics.Registry

	dataset *domain.Dataset // nil when backed by PostgreSQL
	memory  *store.MemoryStore
	pg      *store.PGStore
	closeFn func()

	engine *calculation.CalculationEngine
}

func loadSettings(cmd *cobra.Command) (*config.Settings, zerolog.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	settings, err := config.LoadSettings(envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log, err := logging.New(cmd.ErrOrStderr(), settings.LogLevel, settings.LogFormat)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return settings, log, nil
}

// openEnv connects to the dataset file when --dataset is set, otherwise to
// DATABASE_URL
func openEnv(ctx context.Context, cmd *cobra.Command) (*env, error) {
	settings, log, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	e := &env{settings: settings, log: log, registry: metrics.NewRegistry(), closeFn: func() {}}

	policy := domain.DefaultComputationPolicy()
	datasetFile, _ := cmd.Flags().GetString("dataset")
	var collab calculation.Collaborators

	switch {
	case datasetFile != "":
		ds, err := config.NewInputParser().LoadFromFile(datasetFile)
		if err != nil {
			return nil, err
		}
		e.dataset = ds
		policy = ds.Policy
		e.memory = store.NewMemoryStore(ds)
		collab = calculation.Collaborators{
			Plans: e.memory, Procedures: e.memory, Catalog: e.memory,
			Breakdowns: e.memory, Ledger: e.memory, Eligibility: e.memory,
		}
		log.Debug().Str("dataset", datasetFile).Int("procedures", len(ds.TreatmentProcedures)).Msg("dataset loaded")

	case settings.DatabaseURL != "":
		pool, err := store.NewPool(ctx, settings.DatabaseURL, settings.DBMaxConns)
		if err != nil {
			return nil, err
		}
		e.closeFn = pool.Close
		e.pg = store.NewPGStore(pool)
		collab = calculation.Collaborators{
			Plans: e.pg, Procedures: e.pg, Catalog: e.pg,
			Breakdowns: e.pg, Ledger: e.pg, Eligibility: e.pg,
		}
		log.Debug().Int32("max_conns", settings.DBMaxConns).Msg("connected to database")

	default:
		return nil, fmt.Errorf("no data source: pass --dataset or set DATABASE_URL")
	}

	if policy, err = settings.ApplyPolicy(policy); err != nil {
		e.close()
		return nil, err
	}

	e.engine = calculation.NewCalculationEngine(collab, policy)
	e.engine.SetLogger(logging.NewEngineLogger(log, "calculation"))
	e.engine.RegisterMetrics(e.registry)
	return e, nil
}

func (e *env) billing() audit.BillingClient {
	if e.pg != nil {
		return e.pg
	}
	return e.memory
}

func (e *env) close() {
	e.closeFn()
}

// logMetrics writes every non-zero counter at info level
func (e *env) logMetrics() {
	ev := e.log.Info()
	n := 0
	_ = e.registry.Do(func(name string, value interface{}) error {
		if c, ok := value.(*metrics.Counter); ok && c.Count() > 0 {
			ev = ev.Uint64(name, c.Count())
			n++
		}
		return nil
	})
	if n == 0 {
		ev.Discard()
		return
	}
	ev.Msg("counters")
}
