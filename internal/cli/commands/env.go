package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/cli/config"
	"github.com/conduit-lang/entitycore/internal/cli/ui"
	"github.com/conduit-lang/entitycore/internal/logging"
	"github.com/conduit-lang/entitycore/internal/orm/definition"
	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/snapshot"
	"github.com/conduit-lang/entitycore/internal/orm/validation"
)

// errReported marks a failure that has already been written to the user
var errReported = errors.New("command failed")

// env is the resolved configuration of a single command invocation
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	out     io.Writer
	noColor bool
}

func newEnv(cmd *cobra.Command, flags *globalFlags) (*env, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.modelPath != "" {
		cfg.Model.Path = flags.modelPath
	}
	if flags.verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:     cfg,
		logger:  logger,
		out:     cmd.OutOrStdout(),
		noColor: flags.noColor,
	}, nil
}

func (e *env) validator() *validation.Validator {
	opts := append(e.cfg.Validation.ValidatorOptions(), validation.WithLogger(e.logger))
	return validation.New(opts...)
}

// buildModel builds the model document without finalizing it
func (e *env) buildModel() (*schema.Model, error) {
	m, err := definition.BuildFile(e.cfg.Model.Path, definition.WithLogger(e.logger))
	if err != nil {
		return nil, fmt.Errorf("building model: %w", err)
	}
	return m, nil
}

// loadModel builds, validates and finalizes the model document. Violations are
// reported to the user before errReported is returned.
func (e *env) loadModel() (*schema.Model, error) {
	m, err := e.buildModel()
	if err != nil {
		return nil, err
	}
	if err := m.Finalize(e.validator().Validate); err != nil {
		return nil, e.reportViolation(err)
	}
	return m, nil
}

func (e *env) reportViolation(err error) error {
	var v *validation.Violation
	if !errors.As(err, &v) {
		return err
	}
	ui.WriteProblem(e.out, ui.Problem{
		Context: "model validation",
		Message: v.Rule,
		Detail:  v.Message,
		Hints:   []string{"entitycore validate --all lists every finding"},
	}, e.noColor)
	return errReported
}

// openStore opens the configured snapshot store. The returned function
// releases it.
func (e *env) openStore(ctx context.Context) (snapshot.Store, func(), error) {
	sc := e.cfg.Snapshot
	if sc.Store == config.StoreRedis {
		store, err := snapshot.NewRedisStore(ctx, snapshot.RedisConfig{
			Addr:      sc.Redis.Addr,
			Password:  sc.Redis.Password,
			DB:        sc.Redis.DB,
			KeyPrefix: sc.Redis.KeyPrefix,
			TTL:       sc.Redis.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
	return snapshot.NewFileStore(sc.Dir), func() {}, nil
}

func (e *env) snapshotName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return e.cfg.Model.Name
}
