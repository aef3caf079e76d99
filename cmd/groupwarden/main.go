// ABOUTME: Entry point for the groupwarden moderation bot
// ABOUTME: Wires the store, key store, self-heal, moderation engine, and Matrix transport

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/groupwarden/internal/admin"
	"github.com/2389/groupwarden/internal/config"
	"github.com/2389/groupwarden/internal/keystore"
	"github.com/2389/groupwarden/internal/moderation"
	"github.com/2389/groupwarden/internal/selfheal"
	"github.com/2389/groupwarden/internal/store"
	"github.com/2389/groupwarden/internal/transport"
	"github.com/2389/groupwarden/internal/transport/matrix"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  __ _ _ __ ___  _   _ _ ____      ____ _ _ __ __| | ___ _ __
 / _' | '__/ _ \| | | | '_ \ \ /\ / / _' | '__/ _' |/ _ \ '_ \
| (_| | | | (_) | |_| | |_) \ V  V / (_| | | | (_| |  __/ | | |
 \__, |_|  \___/ \__,_| .__/ \_/\_/ \__,_|_|  \__,_|\___|_| |_|
 |___/                |_|
`

// getConfigPath returns the path to the bot config file.
// Priority: GROUPWARDEN_CONFIG env var > XDG_CONFIG_HOME/groupwarden/config.yaml > ~/.config/groupwarden/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("GROUPWARDEN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "groupwarden", "config.yaml")
}

// getDataPath returns the path to the groupwarden data directory.
// Priority: XDG_DATA_HOME/groupwarden > ~/.local/share/groupwarden
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "groupwarden")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: groupwarden <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the moderation bot")
		fmt.Println("  init    Create a new config file interactively")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:   %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("User:       %s\n", cfg.Matrix.UserID)
	fmt.Println()

	logger.Info("starting groupwarden",
		"config", configPath,
		"homeserver", cfg.Matrix.Homeserver,
		"user_id", cfg.Matrix.UserID,
	)

	// Storage
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	keys := keystore.New(st, logger)

	// Resume the device pairing from the previous run so a restart does
	// not burn a fresh login and device id.
	accessToken := cfg.Matrix.AccessToken
	deviceID := ""
	if accessToken == "" {
		creds, err := keys.LoadDeviceCredentials(ctx)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("loading stored credentials: %w", err)
		}
		if creds != nil {
			accessToken = creds.AccessToken
			deviceID = creds.DeviceID
			logger.Info("restored device credentials", "device_id", creds.DeviceID)
		}
	}

	// Event dispatch
	dispatcher := transport.NewDispatcher(logger)

	// Transport
	client, err := matrix.NewClient(matrix.Config{
		Homeserver:          cfg.Matrix.Homeserver,
		UserID:              cfg.Matrix.UserID,
		AccessToken:         accessToken,
		DeviceID:            deviceID,
		Username:            cfg.Matrix.Username,
		Password:            cfg.Matrix.Password,
		OwnerID:             cfg.Matrix.OwnerID,
		UndecryptableStatus: cfg.SelfHeal.UndecryptableStatus,
	}, keys, dispatcher, logger)
	if err != nil {
		return fmt.Errorf("creating matrix client: %w", err)
	}

	// Register before Login so the rotation it dispatches is persisted.
	dispatcher.OnCredentials(keys.HandleCredentials)

	if err := client.Login(ctx); err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}

	// End-to-end encryption; its store sits next to the main database.
	if err := client.EnableEncryption(ctx, filepath.Dir(cfg.Database.Path)); err != nil {
		return fmt.Errorf("enabling encryption: %w", err)
	}
	defer client.Close()

	// Moderation
	cooldown := moderation.NewCooldown(cfg.Moderation.NoticeCooldown)
	engine := moderation.New(st, st, client, cooldown, logger)

	// Admin command channel
	adminSvc := admin.NewService(st, st, logger)
	commands := admin.NewCommands(adminSvc, client, logger)

	// Key-store self-healing
	healer := selfheal.New(st, cfg.SelfHeal.UndecryptableStatus, logger)

	// Wire handlers. Commands run before the engine only in registration
	// order; both tolerate seeing every message.
	dispatcher.OnMessage(commands.HandleMessage)
	dispatcher.OnMessage(engine.HandleMessage)
	dispatcher.OnParticipant(engine.HandleParticipant)
	dispatcher.OnReceipt(healer.HandleReceipt)

	// Out-of-band owner notice when configured
	if cfg.Matrix.OwnerID != "" {
		notifier, err := matrix.NewNotifier(client)
		if err != nil {
			return fmt.Errorf("creating notifier: %w", err)
		}
		go func() {
			if err := notifier.Notify(ctx, "groupwarden is online."); err != nil {
				logger.Warn("notifying owner", "error", err)
			}
		}()
	}

	err = client.Run(ctx)
	dispatcher.Wait()
	return err
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
		handler = slog.NewJSONHandler(os.Stdout, opts)
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

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
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

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
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

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("groupwarden configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "groupwarden.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Matrix configuration
	fmt.Println("\n--- Matrix Configuration ---")
	homeserver := prompt(reader, "Homeserver URL", "https://matrix.org")
	userID := prompt(reader, "Bot user id (e.g. @warden:matrix.org)", "")
	accessToken := prompt(reader, "Access token (leave empty to use password login)", "")
	var username, password string
	if accessToken == "" {
		username = prompt(reader, "Username", "")
		password = prompt(reader, "Password", "")
	}
	ownerID := prompt(reader, "Owner user id for notices (optional)", "")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# groupwarden configuration\n")
	cfg.WriteString("# Generated by groupwarden init\n\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("matrix:\n")
	cfg.WriteString(fmt.Sprintf("  homeserver: \"%s\"\n", homeserver))
	cfg.WriteString(fmt.Sprintf("  user_id: \"%s\"\n", userID))
	if accessToken != "" {
		cfg.WriteString(fmt.Sprintf("  access_token: \"%s\"\n", accessToken))
	} else {
		cfg.WriteString(fmt.Sprintf("  username: \"%s\"\n", username))
		cfg.WriteString(fmt.Sprintf("  password: \"%s\"\n", password))
	}
	if ownerID != "" {
		cfg.WriteString(fmt.Sprintf("  owner_id: \"%s\"\n", ownerID))
	}
	cfg.WriteString("\n")

	cfg.WriteString("moderation:\n")
	cfg.WriteString("  notice_cooldown: \"10m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("selfheal:\n")
	cfg.WriteString(fmt.Sprintf("  undecryptable_status: %d\n", config.DefaultUndecryptableStatus))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the bot:")
	fmt.Printf("  groupwarden serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
