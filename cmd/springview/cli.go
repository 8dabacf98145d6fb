package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/oarkflow/springview"
	"github.com/prometheus/client_golang/prometheus"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

const usage = `
springview - compile and render SpringView templates.

Usage:
  springview <command> [options] [VIEW...]

Commands:
  render    render views to stdout
  compile   build artifacts and print their locations
  check     compile views and report every failure
  purge     delete the artifacts of views
  serve     serve views over HTTP with metrics and live reload

Run "springview <command> -h" for the options of a command.
`

type options struct {
	config    string
	envFile   string
	views     string
	cache     string
	cacheExt  string
	lifetime  int
	layout    string
	data      string
	logLevel  string
	logFormat string
	addr      string
	reload    time.Duration
}

func run(outW, errW io.Writer, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(outW, usage)
		return nil
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "render", "compile", "check", "purge", "serve":
	default:
		return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", cmd)}
	}

	opts, views, exit, err := parseFlags(cmd, rest, errW)
	if err != nil || exit {
		return err
	}
	logger, err := newLogger(opts.logLevel, opts.logFormat, errW)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	engine, err := newEngine(opts, logger, reg)
	if err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}

	switch cmd {
	case "render":
		return renderViews(engine, views, outW)
	case "compile":
		return compileViews(engine, views, outW)
	case "check":
		return checkViews(engine, views, outW)
	case "purge":
		return purgeViews(engine, views, outW)
	default:
		return serve(engine, opts, reg, logger)
	}
}

func parseFlags(cmd string, args []string, output io.Writer) (*options, []string, bool, error) {
	o := &options{}
	fs := flag.NewFlagSet("springview "+cmd, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&o.config, "config", "", "Path to a YAML config file.")
	fs.StringVar(&o.envFile, "env-file", "", "Path to a .env file with SPRINGVIEW_* variables.")
	fs.StringVar(&o.views, "views", "", "Directory containing view templates.")
	fs.StringVar(&o.cache, "cache", "", "Directory for compiled artifacts.")
	fs.StringVar(&o.cacheExt, "cache-ext", "", "Artifact extension: 'json' or 'msgpack'.")
	fs.IntVar(&o.lifetime, "lifetime", -1, "Artifact lifetime in seconds (0 never expires).")
	fs.StringVar(&o.logLevel, "log-level", "info", "Logging level: 'debug', 'info', 'warn', 'error'.")
	fs.StringVar(&o.logFormat, "log-format", "text", "Log output format: 'text' or 'json'.")
	if cmd == "render" || cmd == "serve" {
		fs.StringVar(&o.layout, "layout", "", "Layout view rendered around each view.")
		fs.StringVar(&o.data, "data", "", "JSON file with variables assigned to every render.")
	}
	if cmd == "serve" {
		fs.StringVar(&o.addr, "addr", ":8080", "Listen address.")
		fs.DurationVar(&o.reload, "reload", time.Second, "Source polling interval; 0 disables live reload.")
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, nil, true, nil
		}
		return nil, nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	views := fs.Args()
	if cmd != "serve" && len(views) == 0 {
		return nil, nil, false, &ExitError{Code: 2, Message: "springview " + cmd + ": at least one view is required"}
	}
	return o, views, false, nil
}

func newLogger(levelStr, formatStr string, outW io.Writer) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(formatStr) {
	case "json":
		return slog.New(slog.NewJSONHandler(outW, handlerOpts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(outW, handlerOpts)), nil
	}
	return nil, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
}

// newEngine loads the config file and environment, lets flags override
// them and builds the engine.
func newEngine(o *options, logger *slog.Logger, reg prometheus.Registerer) (*springview.Engine, error) {
	var envFiles []string
	if o.envFile != "" {
		envFiles = append(envFiles, o.envFile)
	}
	cfg, err := springview.LoadConfig(o.config, envFiles...)
	if err != nil {
		return nil, err
	}
	if o.views != "" {
		cfg.ViewPath = o.views
	}
	if o.cache != "" {
		cfg.CachePath = o.cache
	}
	if o.cacheExt != "" {
		cfg.CacheExt = o.cacheExt
	}
	if o.lifetime >= 0 {
		cfg.CacheLifetime = o.lifetime
	}
	if o.layout != "" {
		cfg.Layout = o.layout
	}
	if o.data != "" {
		vars, err := readData(o.data)
		if err != nil {
			return nil, err
		}
		if cfg.Vars == nil {
			cfg.Vars = vars
		} else {
			for k, v := range vars {
				cfg.Vars[k] = v
			}
		}
	}
	return springview.NewFromConfig(cfg, springview.WithLogger(logger), springview.WithRegisterer(reg))
}

func readData(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading data %q: %w", path, err)
	}
	vars := map[string]any{}
	if err := json.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("parsing data %q: %w", path, err)
	}
	return vars, nil
}

func renderViews(e *springview.Engine, views []string, outW io.Writer) error {
	for _, view := range views {
		if err := e.Display(outW, view, nil); err != nil {
			return &ExitError{Code: 1, Message: err.Error()}
		}
	}
	return nil
}

func compileViews(e *springview.Engine, views []string, outW io.Writer) error {
	for _, view := range views {
		loc, err := e.Compile(view)
		if err != nil {
			return &ExitError{Code: 1, Message: err.Error()}
		}
		fmt.Fprintf(outW, "%s\t%s\n", view, loc)
	}
	return nil
}

// checkViews recompiles every view from source; a cached artifact is
// purged first so that it cannot hide an error.
func checkViews(e *springview.Engine, views []string, outW io.Writer) error {
	failed := 0
	for _, view := range views {
		err := e.CleanCache(view)
		if err == nil {
			_, err = e.Compile(view)
		}
		if err != nil {
			failed++
			fmt.Fprintf(outW, "FAIL\t%s\t%v\n", view, err)
			continue
		}
		fmt.Fprintf(outW, "ok\t%s\n", view)
	}
	if failed > 0 {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%d of %d views failed", failed, len(views))}
	}
	return nil
}

func purgeViews(e *springview.Engine, views []string, outW io.Writer) error {
	for _, view := range views {
		if err := e.CleanCache(view); err != nil {
			return &ExitError{Code: 1, Message: err.Error()}
		}
		fmt.Fprintf(outW, "purged\t%s\n", view)
	}
	return nil
}
