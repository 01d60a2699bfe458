package flags

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/ruteri/certificate-trust-backend/api"
	"github.com/ruteri/certificate-trust-backend/chain"
	"github.com/ruteri/certificate-trust-backend/common"
	"github.com/ruteri/certificate-trust-backend/database"
	"github.com/ruteri/certificate-trust-backend/metadata"
	"github.com/ruteri/certificate-trust-backend/registry"
)

// LoadDotEnv loads variables from an optional .env file before flags are
// parsed, so EnvVars can pick them up. Existing variables are not overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

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

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
		UploadSweepInterval:      cCtx.Duration(UploadSweepIntervalFlag.Name),
		UploadMaxAge:             cCtx.Duration(UploadMaxAgeFlag.Name),
	}
}

// OpenDatabase connects to the database and migrates the registry and
// metadata tables.
func OpenDatabase(cCtx *cli.Context) (*gorm.DB, error) {
	db, err := database.Open(cCtx.String(DatabaseFlag.Name), database.Options{Verbose: cCtx.Bool(LogDebugFlag.Name)})
	if err != nil {
		return nil, err
	}
	if err := registry.Migrate(db); err != nil {
		return nil, err
	}
	if err := metadata.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// LoadNetworks builds the per-network reader factory from the networks file.
func LoadNetworks(cCtx *cli.Context, logger *slog.Logger) (*chain.Networks, error) {
	cfg, err := chain.LoadNetworksConfig(cCtx.String(NetworksFileFlag.Name))
	if err != nil {
		return nil, err
	}
	return chain.NewNetworks(cfg, chain.DialRPC, logger), nil
}

var DatabaseFlag = &cli.StringFlag{
	Name:    "database",
	Value:   "sqlite://certificates.db",
	Usage:   "database DSN: postgres://... or sqlite://<path>",
	EnvVars: []string{"DATABASE_URL"},
}

var NetworksFileFlag = &cli.StringFlag{
	Name:    "networks-file",
	Value:   "networks.yaml",
	Usage:   "YAML file describing the ledger networks; ${VAR} references are expanded",
	EnvVars: []string{"NETWORKS_FILE"},
}

var UploadSweepIntervalFlag = &cli.DurationFlag{
	Name:    "upload-sweep-interval",
	Value:   10 * time.Minute,
	Usage:   "how often abandoned uploads are removed, 0 disables",
	EnvVars: []string{"UPLOAD_SWEEP_INTERVAL"},
}

var UploadMaxAgeFlag = &cli.DurationFlag{
	Name:    "upload-max-age",
	Value:   time.Hour,
	Usage:   "how long a prepared issuance may wait for its confirmation",
	EnvVars: []string{"UPLOAD_MAX_AGE"},
}

var LogJsonFlag = &cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	Usage:   "log in JSON format",
	EnvVars: []string{"LOG_JSON"},
}
var LogDebugFlag = &cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	Usage:   "log debug messages",
	EnvVars: []string{"LOG_DEBUG"},
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	Usage:   "address to listen on for Prometheus metrics",
	EnvVars: []string{"METRICS_ADDR"},
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var ServerFlags = []cli.Flag{
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
	UploadSweepIntervalFlag,
	UploadMaxAgeFlag,
}
