package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/kms-identity/common"
	"github.com/ruteri/kms-identity/config"
	"github.com/ruteri/kms-identity/httpserver"
	"github.com/urfave/cli/v2"
)

// SetupLogger builds the slog logger from the logging flags.
func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// LoadConfig loads the env file, if any, and then the config file named by
// the global flags.
func LoadConfig(cCtx *cli.Context) (*config.Config, error) {
	if err := config.LoadEnvFile(cCtx.String(EnvFileFlag.Name)); err != nil {
		return nil, err
	}
	return config.Load(cCtx.String(ConfigFlag.Name))
}

// ConfigureServer merges the server section of cfg with the command line.
// Flags that were set explicitly win over the file.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, cfg *config.Config) *httpserver.HTTPServerConfig {
	listenAddr := cfg.Server.ListenAddr
	if cCtx.IsSet(ListenAddrFlag.Name) {
		listenAddr = cCtx.String(ListenAddrFlag.Name)
	}
	metricsAddr := cfg.Server.MetricsAddr
	if cCtx.IsSet(MetricsAddrFlag.Name) || metricsAddr == "" {
		metricsAddr = cCtx.String(MetricsAddrFlag.Name)
	}
	drainDuration := cfg.Server.DrainTimeout
	if cCtx.IsSet(DrainSecondsFlag.Name) {
		drainDuration = time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second
	}

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              cfg.Server.EnablePprof || cCtx.Bool(PprofFlag.Name),
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              cfg.Server.ReadTimeout,
		WriteTimeout:             cfg.Server.WriteTimeout,
	}
}

var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Value:   "kms-identity.yaml",
	EnvVars: []string{"KMS_IDENTITY_CONFIG"},
	Usage:   "path to the YAML configuration file",
}

var EnvFileFlag = &cli.StringFlag{
	Name:    "env-file",
	EnvVars: []string{"KMS_IDENTITY_ENV_FILE"},
	Usage:   "optional .env file loaded before the configuration is expanded",
}

var IdentityFlag = &cli.StringFlag{
	Name:     "identity",
	Aliases:  []string{"i"},
	Required: true,
	Usage:    "name of the configured identity to use",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "kms-identity",
	Usage: "add 'service' tag to logs",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}
var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 10,
	Usage: "seconds to wait after marking the server not ready on shutdown",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	ConfigFlag,
	EnvFileFlag,
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
