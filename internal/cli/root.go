// Package cli implements the msp CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/freshair129/eva-msp/internal/config"
	"github.com/freshair129/eva-msp/internal/msp"
	"github.com/freshair129/eva-msp/internal/validate"
)

var (
	baseFlag    string
	modeFlag    string
	formatFlag  string
	configFlag  string
	verboseFlag bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "msp",
	Short: "Versioned, file-backed agent memory with validated writes",
	Long: "msp manages a hierarchical JSON memory store: episodic, semantic, and\n" +
		"sensory writes flow through validation into an instance buffer and are\n" +
		"consolidated into the versioned Origin behind a backup.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&baseFlag, "base", "b", "", "Origin base directory (default: $MSP_BASE or config base_path)")
	RootCmd.PersistentFlags().String("origin", "", "Origin name override")
	RootCmd.PersistentFlags().StringVar(&modeFlag, "mode", "", "Validation mode: strict, warn, off")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file path (default: ./msp.yaml)")
	RootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Debug logging")
}

// loadConfig resolves config file, env, and flag overrides in that order.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg, err := config.Load(configFlag)
	if err != nil {
		exitErr("load config", err)
	}
	if baseFlag != "" {
		cfg.BasePath = baseFlag
	}
	if origin, _ := cmd.Flags().GetString("origin"); origin != "" {
		cfg.OriginName = origin
	}
	if modeFlag != "" {
		cfg.ValidationMode = modeFlag
	}
	if verboseFlag {
		cfg.Verbose = true
	}
	return cfg
}

// newLogger builds the structured event sink. Logs go to stderr so command
// output on stdout stays pipeable.
func newLogger(verbose bool) *zap.Logger {
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{"stderr"}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	log, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// openMSP builds the orchestrator and restores the persisted CLI context.
func openMSP(cmd *cobra.Command) (*msp.MSP, config.Config) {
	cfg := loadConfig(cmd)
	mode, err := validate.ParseMode(cfg.ValidationMode)
	if err != nil {
		exitErr("validation mode", err)
	}
	m := msp.New(cfg.BasePath, mode, newLogger(cfg.Verbose))
	m.SetInitialConfidence(cfg.InitialConfidence)
	m.RestoreState()
	return m, cfg
}

// saveMSP persists the CLI context for the next invocation.
func saveMSP(m *msp.MSP) {
	if err := m.PersistState(); err != nil {
		exitErr("save context", err)
	}
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

// printResult renders v per --format: indented JSON, or a plain line built
// by text() when --format=text.
func printResult(v any, text func() string) {
	if formatFlag == "text" && text != nil {
		fmt.Println(text())
		return
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
