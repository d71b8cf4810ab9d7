package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/Joseda-hg/taskdeck/internal/config"
	"github.com/Joseda-hg/taskdeck/internal/logging"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const usage = `usage: taskdeck <command> [flags]

commands:
  serve        run the development backend
  list         list tasks (--page, --category, --status, --priority)
  add          create a task: add <title> --category <id>
  update       update a task: update <id> [--title ...]
  done         mark a task completed: done <id>
  rm           delete a task: rm <id>
  categories   list categories
  history      show the change log of a task: history <id>
  init         write the effective configuration to the config file

run "taskdeck <command> --help" for the flags of a command.
`

var errUsage = errors.New("usage error")

type command struct {
	run func(ctx context.Context, env *environment, args []string) error
}

var commands = map[string]command{
	"serve":      {run: runServe},
	"list":       {run: runList},
	"add":        {run: runAdd},
	"update":     {run: runUpdate},
	"done":       {run: runDone},
	"rm":         {run: runRemove},
	"categories": {run: runCategories},
	"history":    {run: runHistory},
	"init":       {run: runInit},
}

// environment is what a command sees of the outside world.
type environment struct {
	stdout io.Writer
	stderr io.Writer
	vars   map[string]string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vars, err := environ(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskdeck: %v\n", err)
		os.Exit(exitError)
	}

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, vars))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, vars map[string]string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "taskdeck: unknown command %q\n\n%s", args[0], usage)
		return exitUsage
	}

	env := &environment{stdout: stdout, stderr: stderr, vars: vars}
	err := cmd.run(ctx, env, args[1:])
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pflag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "taskdeck %s: %v\n", args[0], err)
		return exitUsage
	default:
		fmt.Fprintf(stderr, "taskdeck %s: %v\n", args[0], err)
		return exitError
	}
}

// environ merges the process environment over the variables of dotenv, so
// real environment variables win. A missing dotenv file is not an error.
func environ(dotenv string) (map[string]string, error) {
	vars, err := godotenv.Read(dotenv)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", dotenv, err)
		}
		vars = map[string]string{}
	}

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if ok {
			vars[key] = value
		}
	}
	return vars, nil
}

// globalFlags are accepted by every command.
type globalFlags struct {
	configPath string
	apiURL     string
	apiKey     string
	logLevel   string
	logFormat  string
	perPage    int
}

func newFlagSet(name string, env *environment, global *globalFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(env.stderr)
	fs.SortFlags = false

	fs.StringVar(&global.configPath, "config", "", "config file path")
	fs.StringVar(&global.apiURL, "api-url", "", "base URL of the task API")
	fs.StringVar(&global.apiKey, "api-key", "", "API key sent with every request")
	fs.StringVar(&global.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&global.logFormat, "log-format", "", "log format (text, json)")
	fs.IntVar(&global.perPage, "per-page", 0, "tasks per page")
	return fs
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	return nil
}

// resolvedConfigPath returns the config file in use and the directory that
// holds it.
func (g *globalFlags) resolvedConfigPath() (string, error) {
	if g.configPath != "" {
		return g.configPath, nil
	}
	return config.DefaultConfigPath()
}

// load layers the config file, the environment and the flags, in that
// order of precedence from lowest to highest.
func (g *globalFlags) load(vars map[string]string) (config.Config, string, error) {
	path, err := g.resolvedConfigPath()
	if err != nil {
		return config.Config{}, "", err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, "", err
	}
	if err := cfg.ApplyEnv(vars); err != nil {
		return config.Config{}, "", err
	}

	if g.apiURL != "" {
		cfg.APIURL = g.apiURL
	}
	if g.apiKey != "" {
		cfg.APIKey = g.apiKey
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.logFormat != "" {
		cfg.LogFormat = g.logFormat
	}
	if g.perPage != 0 {
		cfg.ItemsPerPage = g.perPage
	}
	if cfg.Server.DBDriver == "sqlite" && cfg.Server.DBDSN == "" {
		cfg.Server.DBDSN = filepath.Join(filepath.Dir(path), "taskdeck.db")
	}
	return cfg, path, nil
}

func newLogger(cfg config.Config, env *environment) (*logrus.Logger, error) {
	return logging.New(cfg.LogLevel, cfg.LogFormat, env.stderr)
}

func runInit(_ context.Context, env *environment, args []string) error {
	var global globalFlags
	fs := newFlagSet("init", env, &global)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, path, err := global.load(env.vars)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}

	fmt.Fprintf(env.stdout, "wrote %s\n", path)
	return nil
}
