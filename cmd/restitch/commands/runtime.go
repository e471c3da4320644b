package commands

import (
	"github.com/yairfalse/restitch/internal/engine"
	apperrors "github.com/yairfalse/restitch/internal/errors"
	"github.com/yairfalse/restitch/internal/logger"
	"github.com/yairfalse/restitch/internal/remote"
	"github.com/yairfalse/restitch/internal/session"
	"github.com/yairfalse/restitch/internal/solver"
	"github.com/yairfalse/restitch/internal/storage"
)

// runtime wires the engine and its collaborators for one command run.
type runtime struct {
	store    *storage.SQLiteStore
	sessions *session.Store
	engine   *engine.Engine
	log      logger.Logger
}

func newRuntime() (*runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var log logger.Logger
	if cfg.Logging.Format == "json" {
		log = logger.NewLogrusJSON(cfg.Logging.Level)
	} else {
		log = logger.NewLogrus()
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	client := remote.NewClient(remote.Options{
		APIBaseURL: cfg.Account.APIBaseURL,
		CDNBaseURL: cfg.Account.CDNBaseURL,
		Timeout:    cfg.Account.Timeout,
		Logger:     log,
	})
	solveClient := solver.NewClient(solver.Options{
		APIBaseURL: cfg.Solver.APIBaseURL,
		Timeout:    cfg.Solver.Timeout,
		Logger:     log,
	})
	writer := remote.NewWriter(client, solveClient)

	sessions := session.NewStore(cfg.Server.SessionTTL)
	eng := engine.New(store, client, writer, sessions, log)

	return &runtime{
		store:    store,
		sessions: sessions,
		engine:   eng,
		log:      log,
	}, nil
}

func (r *runtime) Close() {
	r.sessions.Close()
	if err := r.store.Close(); err != nil {
		r.log.Error("failed to close snapshot store", err)
	}
}

// requireCredential returns the effective credential or a usable error.
func requireCredential() (string, error) {
	if cfg.Account.Credential == "" {
		return "", apperrors.New(apperrors.ErrorTypeValidation, apperrors.ServiceNone,
			"no account credential configured").
			WithSolutions(
				"pass --credential",
				"set account.credential in the config file",
				"export RESTITCH_CREDENTIAL",
			)
	}
	return cfg.Account.Credential, nil
}

// effectiveSolverKey returns the solver key, which may legitimately be empty.
func effectiveSolverKey(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return cfg.Solver.ClientKey
}

// effectiveProxies merges flag-supplied proxies over the configured pool.
func effectiveProxies(flagValues []string) []string {
	if len(flagValues) > 0 {
		return flagValues
	}
	return cfg.Proxies
}
