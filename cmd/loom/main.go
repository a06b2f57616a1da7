// ABOUTME: Entry point for the loom tool engine CLI
// ABOUTME: Wires config, store, gateway, and the tool dispatcher behind the facade

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/loom/internal/agent"
	"github.com/2389/loom/internal/config"
	"github.com/2389/loom/internal/gateway"
	"github.com/2389/loom/internal/kb"
	"github.com/2389/loom/internal/store"
	"github.com/2389/loom/internal/tools"
)

// version is overridden via -ldflags at build time.
var version = "dev"

// getConfigPath returns the path to the loom config file.
// Priority: LOOM_CONFIG env var > XDG_CONFIG_HOME/loom/loom.yaml > ~/.config/loom/loom.yaml
func getConfigPath() string {
	if envPath := os.Getenv("LOOM_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "loom.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "loom", "loom.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: loom <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  tools                  List registered tools")
		fmt.Println("  invoke <tool> [input]  Invoke a tool and print its JSON result")
		fmt.Println("  init                   Create a starter config file")
		fmt.Println("  version                Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "tools":
		err = runTools(ctx)
	case "invoke":
		err = runInvoke(ctx)
	case "init":
		err = runInit()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, or falls back to defaults when none
// exists yet.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

// engine bundles everything a command needs to invoke tools.
type engine struct {
	facade *agent.Facade
	store  store.Store
}

func (e *engine) Close() error { return e.store.Close() }

func buildEngine(cfg *config.Config) (*engine, error) {
	slog.SetDefault(setupLogger(cfg.Logging))

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	library, err := kb.Load(cfg.Tools.KnowledgeBase.Path)
	if err != nil {
		s.Close()
		return nil, err
	}

	deps := tools.Deps{
		Store:   s,
		Gateway: gateway.NewClient(cfg.Gateway.Timeout),
		KB:      library,
		Weather: tools.WeatherConfig{
			Endpoint:  cfg.Tools.Weather.Endpoint,
			Latitude:  cfg.Tools.Weather.Latitude,
			Longitude: cfg.Tools.Weather.Longitude,
		},
	}

	disp, err := tools.NewDispatcher(tools.Builtins(deps), cfg.Dispatcher.InvokeTimeout)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("building dispatcher: %w", err)
	}

	return &engine{facade: agent.New(disp), store: s}, nil
}

func runTools(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	for _, info := range eng.facade.ListTools() {
		fmt.Printf("%s  %s\n", color.CyanString("%-26s", info.Name), info.Description)
	}
	return nil
}

func runInvoke(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: loom invoke <tool> [input]")
	}
	name := os.Args[2]
	input := ""
	if len(os.Args) > 3 {
		input = strings.Join(os.Args[3:], " ")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	fmt.Println(eng.facade.Invoke(ctx, name, input))
	return nil
}

const starterConfig = `# loom configuration
database:
  path: ${HOME}/.local/share/loom/loom.db

gateway:
  timeout: 5s

dispatcher:
  invoke_timeout: 10s

tools:
  weather:
    endpoint: https://api.open-meteo.com/v1/forecast
    latitude: 40
    longitude: -74
  knowledge_base:
    path: ""

logging:
  level: info
  format: text
`

func runInit() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Wrote starter config to %s\n", path)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs), then record attrs
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
