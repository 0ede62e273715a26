package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/fca/internal/catalog"
	"github.com/roach88/fca/internal/config"
	"github.com/roach88/fca/internal/dispatch"
	"github.com/roach88/fca/internal/engine"
	"github.com/roach88/fca/internal/logging"
	"github.com/roach88/fca/internal/transport/ws"
)

// loadConfig reads --config and the environment, then installs the
// process logger on stderr.
func loadConfig(opts *RootOptions, cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	if _, err := logging.Setup(cfg.Log, cmd.ErrOrStderr()); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid log config", err)
	}
	return cfg, nil
}

// device is an engine connected to a Firebolt device.
type device struct {
	engine *engine.Engine
	client *ws.Client
	modes  *engine.ModeSwitch
}

// connect loads the catalogs, dials the device and builds an engine over
// the connection. SDK mode goes through RPC modules built from the
// catalogs; Transport mode uses the connection directly.
func connect(ctx context.Context, cfg config.Config, recorder engine.Recorder) (*device, error) {
	set, err := catalog.LoadSet(cfg.Catalogs)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load catalogs", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.TransportTimeout())
	defer cancel()
	client, err := ws.Dial(dialCtx, cfg.Transport.URL, ws.WithWriteTimeout(cfg.TransportTimeout()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect to device", err)
	}

	modes := engine.NewModeSwitch(cfg.DispatchMode())
	opts := []engine.EngineOption{
		engine.WithModules(dispatch.TableFromSet(set, client)),
		engine.WithTransport(client),
		engine.WithCatalogs(set),
		engine.WithModeSource(modes),
		engine.WithLegacyIDCoercion(cfg.LegacyIDCoercion),
	}
	if recorder != nil {
		opts = append(opts, engine.WithRecorder(recorder))
	}

	return &device{
		engine: engine.New(opts...),
		client: client,
		modes:  modes,
	}, nil
}

// Close closes the device connection.
func (d *device) Close() error {
	return d.client.Close()
}
