package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"datadetector/internal/backend"
	"datadetector/internal/config"
	"datadetector/internal/detect"
	"datadetector/internal/logging"
)

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	args := flag.Args()[1:]
	var err error
	switch cmd {
	case "detect":
		err = detectCommand(args, os.Stdout)
	case "redact":
		err = redactCommand(args, os.Stdout)
	case "restore":
		err = restoreCommand(args, os.Stdout)
	case "model":
		err = modelCommand(args)
	case "serve":
		err = serve()
	case "start":
		err = startDaemon()
	case "stop":
		err = stopDaemon()
	case "restart":
		err = restartDaemon()
	case "status":
		err = status()
	case "logs":
		err = logs()
	case "stats":
		err = statsCommand(args)
	case "config":
		err = configCommand(args, os.Stdout)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		var de *detect.Error
		if errors.As(err, &de) {
			fmt.Fprintf(os.Stderr, "%s: %s\n", de.Code(), de.Message())
		} else {
			fmt.Fprintf(os.Stderr, "ddetect %s failed: %v\n", cmd, err)
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: ddetect <command> [flags]

  detect [--types a,b] [--offsets bytes|runes|utf16] [--backend name] [--file path]... [text...]
  redact [--types a,b] [--backend name] [--file path] [--json] [--mapping out.json] [text...]
  restore --mapping items.json [--file path]
  model list|info <name>|download <name>|download --all|remove <name>|verify
  serve | start | stop | restart | status | logs
  stats [--watch] [--recent] [--export json|csv]
  config init|show`)
}

func loadConfig() (config.Config, error) {
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(cfgPath)
}

// configCommand writes a default config file or prints the effective one.
func configCommand(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ddetect config [init|show]")
	}
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	switch args[0] {
	case "init":
		return initConfig(cfgPath, stdout)
	case "show":
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "# %s\n", cfgPath)
		return yaml.NewEncoder(stdout).Encode(cfg)
	default:
		return fmt.Errorf("unknown config subcommand %q", args[0])
	}
}

func initConfig(path string, stdout io.Writer) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(stdout, "Config already exists at %s\n", path)
		return nil
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Config written to %s\n", path)
	return nil
}

func newLogger(cfg config.Config) (logging.Logger, error) {
	return logging.New(logging.Options{File: cfg.Log.File, JSON: cfg.Log.Format == "json"})
}

// cliLogger keeps stdout clean for command output: without a log file
// nothing is logged.
func cliLogger(cfg config.Config) (logging.Logger, error) {
	if cfg.Log.File == "" {
		return logging.Nop(), nil
	}
	return newLogger(cfg)
}

// newNormalizer builds the configured backend, or the one named by override.
func newNormalizer(cfg config.Config, override string, logger logging.Logger) (*detect.Normalizer, error) {
	name := cfg.Backend
	if override != "" {
		name = override
	}
	b, err := backend.NewNamed(name, cfg, logger)
	if err != nil {
		return nil, err
	}
	return detect.New(b, detect.Config{Language: cfg.Language, Location: cfg.Location(), Logger: logger}), nil
}
