// seedtrack - cross-server seeding incentive engine
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/sqdops/seedtrack/internal/api"
	"github.com/sqdops/seedtrack/internal/auth"
	"github.com/sqdops/seedtrack/internal/config"
	"github.com/sqdops/seedtrack/internal/domain"
	"github.com/sqdops/seedtrack/internal/presence"
	"github.com/sqdops/seedtrack/internal/seeding"
	"github.com/sqdops/seedtrack/internal/storage"
	"github.com/sqdops/seedtrack/internal/whitelist"
)

var version = "dev"

const defaultConfigPath = "/etc/seedtrack/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "sessions":
		cmdSessions(os.Args[2:])
	case "servers":
		cmdServers(os.Args[2:])
	case "user":
		cmdUser(os.Args[2:])
	case "version":
		fmt.Printf("seedtrack %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: seedtrack <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                        Start the seeding engine and API server")
	fmt.Println("  sessions [--status S]        Show seeding sessions")
	fmt.Println("  servers                      Show registered game servers")
	fmt.Println("  user add [--admin] <username>")
	fmt.Println("                               Add an operator (prompts for password)")
	fmt.Println("  user remove <username>       Remove an operator")
	fmt.Println("  user list                    List all operators")
	fmt.Println("  user reset <username>        Reset an operator's password")
	fmt.Println("  user admin <username>        Toggle admin status for an operator")
	fmt.Println("  version                      Show version")
	fmt.Println("  help                         Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/seedtrack/config.yml)")
	fmt.Println("  --url <url>        Base URL of the seedtrack server (default: derived from config)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  seedtrack serve --config /etc/seedtrack/config.yml")
	fmt.Println("  seedtrack sessions --status active")
	fmt.Println("  seedtrack user add --admin myuser")
}

// cmdServe starts the seeding engine and HTTP API
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Parse(args)

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			log.Fatalf("no config file found at %s, use --config to specify one", defaultConfigPath)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	log.WithField("version", version).Info("seedtrack starting")

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()
	log.WithField("path", cfg.Database.Path).Info("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Register configured game servers
	for _, gs := range cfg.GameServers {
		if err := store.UpsertServer(ctx, &domain.GameServer{Name: gs.Name, Address: gs.Address}); err != nil {
			log.WithError(err).WithField("server", gs.Name).Fatal("failed to register game server")
		}
	}

	// Whitelist backend: real HTTP service when configured, in-memory
	// otherwise so the engine still runs in development setups.
	var wl whitelist.Client
	if cfg.Whitelist.URL != "" {
		client := whitelist.NewHTTPClient(cfg.Whitelist.URL, cfg.Whitelist.Token)
		if err := client.Ping(ctx); err != nil {
			log.WithError(err).Fatal("whitelist service unreachable")
		}
		wl = client
		log.WithField("url", cfg.Whitelist.URL).Info("whitelist service connected")
	} else {
		wl = whitelist.NewFake()
		log.Warn("no whitelist service configured, grants are held in memory only")
	}

	engine := seeding.New(store, wl, seeding.Policy{
		SeederPlaytimeEligible: cfg.Seeding.SeederPlaytimeEligible,
	}, cfg.Seeding.TickInterval)
	engine.Start(ctx)

	// Presence feed over NATS, optionally on an embedded server
	if cfg.Nats.Embedded {
		ns, err := presence.StartEmbeddedServer(cfg.Nats.EmbeddedHost, cfg.Nats.EmbeddedPort)
		if err != nil {
			log.WithError(err).Fatal("failed to start embedded NATS server")
		}
		defer ns.Shutdown()
		log.WithField("url", ns.ClientURL()).Info("embedded NATS server started")
	}

	sub, err := presence.Connect(ctx, cfg.Nats.URL, engine, cfg.Nats.Subject)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to presence feed")
	}
	defer sub.Close()
	log.WithFields(logrus.Fields{
		"url":     cfg.Nats.URL,
		"subject": cfg.Nats.Subject,
	}).Info("presence feed connected")

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	if cfg.Auth.JWTSecret == "" {
		log.Warn("no JWT secret configured, auth tokens will use an empty secret")
	}

	router := api.NewRouter(store, engine, authService, log, cfg.Server.StaticDir)
	router.StartWebSocketHub()

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-serverErr:
		log.WithError(err).Fatal("HTTP server error")
	}

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown error")
	}

	engine.Stop()
	cancel()
	log.Info("shutdown complete")
}

// CLI helper variables
var (
	baseURL = "http://localhost:8080"
	dbPath  string
)

// loadCLIConfigFromFlags loads config using pre-parsed flag values
func loadCLIConfigFromFlags(configPath, url string) *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", configPath, err)
		dbPath = "/var/lib/seedtrack/seedtrack.db"
		if url != "" {
			baseURL = url
		}
		return nil
	}

	dbPath = cfg.Database.Path
	if url != "" {
		baseURL = url
	} else {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	}
	return cfg
}

func cmdSessions(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	url := fs.String("url", "", "base URL of the seedtrack server")
	status := fs.String("status", "", "filter by status (active, completed, cancelled)")
	limit := fs.Int("limit", 20, "number of sessions to show")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, *url)

	path := fmt.Sprintf("/api/seeding/sessions?limit=%d", *limit)
	if *status != "" {
		path += "&status=" + *status
	}

	var response map[string]interface{}
	if err := getJSON(path, &response); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sessions, ok := response["sessions"].([]interface{})
	if !ok || len(sessions) == 0 {
		fmt.Println("No sessions found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTARGET\tSTATUS\tTHRESHOLD\tPARTICIPANTS\tREWARDED\tCREATED")
	fmt.Fprintln(w, "--\t------\t------\t---------\t------------\t--------\t-------")

	for _, entry := range sessions {
		s := entry.(map[string]interface{})
		id := int64(s["id"].(float64))
		target := int64(s["target_server_id"].(float64))
		st := s["status"].(string)
		threshold := int(s["player_threshold"].(float64))
		participants := int(s["participant_count"].(float64))
		rewarded := int(s["rewards_granted"].(float64))

		created := "-"
		if c, ok := s["created_at"].(string); ok {
			created = formatTime(c)
		}

		fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%d\t%d\t%s\n", id, target, st, threshold, participants, rewarded, created)
	}

	w.Flush()
}

func cmdServers(args []string) {
	fs := flag.NewFlagSet("servers", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	url := fs.String("url", "", "base URL of the seedtrack server")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, *url)

	var servers []map[string]interface{}
	if err := getJSON("/api/servers", &servers); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(servers) == 0 {
		fmt.Println("No servers registered")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESS")
	fmt.Fprintln(w, "--\t----\t-------")

	for _, srv := range servers {
		id := int64(srv["id"].(float64))
		name := srv["name"].(string)
		address := srv["address"].(string)
		fmt.Fprintf(w, "%d\t%s\t%s\n", id, name, address)
	}

	w.Flush()
}

// cmdUser handles operator account subcommands
func cmdUser(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: user subcommand required: add, remove, list, reset, admin\n")
		os.Exit(1)
	}

	subCmd := args[0]

	fs := flag.NewFlagSet("user", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	url := fs.String("url", "", "base URL of the seedtrack server")
	isAdmin := fs.Bool("admin", false, "create as admin user")
	fs.Parse(args[1:])
	remaining := fs.Args()

	loadCLIConfigFromFlags(*configPath, *url)

	store, err := storage.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	switch subCmd {
	case "add":
		err = cmdUserAdd(ctx, store, *isAdmin, remaining)
	case "remove":
		err = cmdUserRemove(ctx, store, remaining)
	case "list":
		err = cmdUserList(ctx, store)
	case "reset":
		err = cmdUserReset(ctx, store, remaining)
	case "admin":
		err = cmdUserAdmin(ctx, store, remaining)
	default:
		err = fmt.Errorf("unknown user command: %s (use: add, remove, list, reset, admin)", subCmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdUserAdd(ctx context.Context, store *storage.Store, isAdmin bool, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: seedtrack user add [--admin] <username>")
	}
	username := args[0]

	if _, err := store.GetUserByUsername(ctx, username); err == nil {
		return fmt.Errorf("user '%s' already exists", username)
	}

	password, err := promptPassword("Enter password: ")
	if err != nil {
		return err
	}

	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}

	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := store.CreateUser(ctx, username, hash, isAdmin); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	roleStr := "user"
	if isAdmin {
		roleStr = "admin"
	}
	fmt.Printf("User '%s' created successfully (role: %s)\n", username, roleStr)
	return nil
}

func cmdUserRemove(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: seedtrack user remove <username>")
	}
	username := args[0]

	if err := store.DeleteUser(ctx, username); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}

	fmt.Printf("User '%s' removed\n", username)
	return nil
}

func cmdUserList(ctx context.Context, store *storage.Store) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tROLE\tPWD_CHANGE\tLAST_LOGIN")
	fmt.Fprintln(w, "--------\t----\t----------\t----------")

	for _, user := range users {
		role := "user"
		if user.IsAdmin {
			role = "admin"
		}
		pwdChange := "no"
		if user.PasswordChangeRequired {
			pwdChange = "yes"
		}
		lastLogin := "never"
		if user.LastLogin != nil {
			lastLogin = user.LastLogin.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", user.Username, role, pwdChange, lastLogin)
	}
	return w.Flush()
}

func cmdUserReset(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: seedtrack user reset <username>")
	}
	username := args[0]

	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user not found: %s", username)
	}

	password, err := promptPassword("Enter new password: ")
	if err != nil {
		return err
	}

	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}

	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := store.ResetUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	fmt.Printf("Password reset for '%s' (user will be required to change it on next login)\n", username)
	return nil
}

func cmdUserAdmin(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: seedtrack user admin <username>")
	}
	username := args[0]

	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user not found: %s", username)
	}

	newAdminStatus := !user.IsAdmin
	if err := store.UpdateUserAdmin(ctx, user.ID, newAdminStatus); err != nil {
		return fmt.Errorf("failed to update admin status: %w", err)
	}

	if newAdminStatus {
		fmt.Printf("User '%s' is now an admin\n", username)
	} else {
		fmt.Printf("User '%s' is no longer an admin\n", username)
	}
	return nil
}

// promptPassword reads a password from the terminal without echo
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}
	return string(password), nil
}

func getJSON(path string, target interface{}) error {
	url := baseURL + path
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(target)
}

func formatTime(isoTime string) string {
	// Simple formatting - just show time portion
	if idx := strings.Index(isoTime, "T"); idx != -1 {
		t := isoTime[idx+1:]
		if dotIdx := strings.Index(t, "."); dotIdx != -1 {
			t = t[:dotIdx]
		}
		if zIdx := strings.Index(t, "Z"); zIdx != -1 {
			t = t[:zIdx]
		}
		return t
	}
	return isoTime
}
