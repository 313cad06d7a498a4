// Package cli is the probelink command line surface. Every subcommand is
// a caller of the pkg/dap transport; nothing here is required to use the
// library directly.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/probelink/probelink/internal/discovery/hidapi"
	"github.com/probelink/probelink/internal/discovery/linux"
	"github.com/probelink/probelink/internal/probestore"
	"github.com/probelink/probelink/pkg/dap"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	cmd := NewRootCmd(filepath.Join(dir, "probelink"))
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

type appProvider func() *app

func NewRootCmd(configDir string) *cobra.Command {
	cfg := Config{
		DataDir:  filepath.Join(configDir, "data"),
		Backend:  "udev",
		Capacity: 16,
	}
	configPath := filepath.Join(configDir, "config.yml")

	root := &cobra.Command{
		Use:   "probelink",
		Short: "Talk to CMSIS-DAP debug probes over USB HID",
		Long:  `probelink discovers CMSIS-DAP debug probes attached to the host and exchanges HID report frames with them.`,
	}
	var a *app
	provider := func() *app {
		return a
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "config file")
	root.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	root.PersistentFlags().StringVar(&cfg.Backend, "backend", cfg.Backend, "discovery backend (udev or hidapi)")
	root.PersistentFlags().IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "maximum number of probes to enumerate")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		fileCfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config %s: %w", configPath, err)
		}
		cfg.applyFile(cmd, fileCfg)
		a, err = newApp(cfg)
		return err
	}
	root.AddCommand(newList(provider))
	root.AddCommand(newInfo(provider))
	root.AddCommand(newWatch(provider))
	root.AddCommand(newSimulate(provider))
	return root
}

type app struct {
	log      *zap.Logger
	cfg      Config
	backends map[string]dap.Backend
}

func newApp(cfg Config) (*app, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return &app{
		log: logger,
		cfg: cfg,
		backends: map[string]dap.Backend{
			"udev":   linux.NewBackend(logger.Named("udev")),
			"hidapi": hidapi.NewBackend(logger.Named("hidapi")),
		},
	}, nil
}

func (a *app) backend() (dap.Backend, error) {
	backend, ok := a.backends[a.cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", a.cfg.Backend)
	}
	return backend, nil
}

func (a *app) openStore() (*probestore.Store, error) {
	return probestore.Open(a.log.Named("store"), filepath.Join(a.cfg.DataDir, "db"), time.Now)
}

// openSession enumerates when no path was given, requiring exactly one
// attached probe in that case.
func (a *app) openSession(path string) (*dap.Session, error) {
	backend, err := a.backend()
	if err != nil {
		return nil, err
	}
	if path == "" {
		probes, err := backend.Enumerate(a.cfg.Capacity)
		if err != nil {
			return nil, err
		}
		switch len(probes) {
		case 0:
			return nil, fmt.Errorf("no CMSIS-DAP probes found")
		case 1:
			path = probes[0].Path
		default:
			return nil, fmt.Errorf("%d probes found, specify a device path", len(probes))
		}
	}
	dev, err := backend.Open(path)
	if err != nil {
		return nil, err
	}
	return dap.Open(dev, dap.WithLogger(a.log.Named("dap")))
}
