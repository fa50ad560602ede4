package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AaronLay10/watermon/internal/access"
	"github.com/AaronLay10/watermon/internal/alerts"
	"github.com/AaronLay10/watermon/internal/api"
	"github.com/AaronLay10/watermon/internal/assign"
	"github.com/AaronLay10/watermon/internal/config"
	"github.com/AaronLay10/watermon/internal/events"
	"github.com/AaronLay10/watermon/internal/metrics"
	"github.com/AaronLay10/watermon/internal/mqtt"
	"github.com/AaronLay10/watermon/internal/network"
	"github.com/AaronLay10/watermon/internal/storage/postgres"
	"github.com/AaronLay10/watermon/internal/store"
	"github.com/AaronLay10/watermon/internal/version"
)

// linkCheckInterval is how often broker and database links are probed.
const linkCheckInterval = 5 * time.Second

type LogLine struct {
	Timestamp string         `json:"ts"`
	Level     string         `json:"level"`
	Event     string         `json:"event"`
	Message   string         `json:"msg,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func logEvent(level, event, msg string, fields map[string]any) {
	line := LogLine{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Event:     event,
		Message:   msg,
		Fields:    fields,
	}
	b, _ := json.Marshal(line)
	fmt.Println(string(b))
}

func fatal(event string, err error) {
	logEvent("error", event, err.Error(), nil)
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", "", "path to site.yaml (built-in defaults when empty)")
	flag.Parse()

	hostname, _ := os.Hostname()
	logEvent("info", "system.startup", "dashboard starting", map[string]any{
		"service":  "dashboard",
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadSiteConfig(*configPath); err != nil {
			fatal("config.invalid", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secrets, err := config.LoadSecrets()
	if err != nil {
		fatal("config.secrets", err)
	}

	reg := metrics.NewRegistry(version.Version)
	alerter := api.NewLinkAlerter(api.WebhookFromEnv(cfg.Site.ID))
	probes := map[string]api.Probe{}

	st, closeStore, err := openStore(cfg, secrets, reg, probes)
	if err != nil {
		fatal("store.failed", err)
	}
	defer closeStore()

	hub := events.NewHub(cfg.QueueSize(), reg)

	roster := cfg.Roster()
	ids := make([]string, len(roster))
	for i, m := range roster {
		ids[i] = m.ID
	}

	opts := alerts.Options{
		Threshold: cfg.Threshold(),
		Notifier:  hub,
		Metrics:   reg,
	}
	history := openHistory(ctx, cfg, secrets)
	if history != nil {
		defer history.Close()
		opts.Sink = history
		probes[api.LinkHistory] = func(ctx context.Context) bool {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return history.Ping(pingCtx) == nil
		}
	}
	mgr := alerts.NewManager(roster, assign.NewBalancer(ids), opts)
	if history != nil {
		n, err := mgr.RestoreHistory(ctx, history, alerts.DefaultRestoreLimit)
		if err != nil {
			log.Printf("dashboard: history restore failed: %v", err)
		} else {
			logEvent("info", "history.restored", "alert history restored", map[string]any{"entries": n})
		}
	}

	mon := alerts.NewMonitor(st, mgr, hub, cfg.PollInterval(), reg)
	mon.Start()
	defer mon.Stop()

	auth, err := newAuthenticator(cfg, secrets, roster)
	if err != nil {
		fatal("auth.invalid", err)
	}

	go alerter.Watch(ctx, linkCheckInterval, probes)

	tlsCfg := api.TLSFromEnv()
	srv := api.NewServer(api.Options{
		Manager:       mgr,
		Hub:           hub,
		Auth:          auth,
		Metrics:       reg,
		Ready:         mon,
		Keepalive:     cfg.Keepalive(),
		DevMode:       cfg.DevMode,
		SecureCookies: tlsCfg.Enabled(),
	})

	logEvent("info", "system.ready", "dashboard ready", map[string]any{
		"site":      cfg.Site.ID,
		"port":      cfg.HTTPPort(),
		"store":     cfg.StoreDriver(),
		"auth":      auth.Enabled(),
		"tls":       tlsCfg.Enabled(),
		"history":   history != nil,
		"dev_mode":  cfg.DevMode,
		"mechanics": len(roster),
	})

	if err := srv.ListenAndServe(ctx, cfg.HTTPPort(), tlsCfg); err != nil {
		fatal("api.failed", err)
	}
	alerter.Wait()
	logEvent("info", "system.shutdown", "dashboard stopped", nil)
}

// openStore connects the configured shared store. The memory store is
// seeded with a fresh network so the dashboard has state to show offline.
func openStore(cfg *config.SiteConfig, secrets config.Secrets, reg *metrics.Registry, probes map[string]api.Probe) (store.Store, func(), error) {
	if cfg.StoreDriver() == config.DriverMemory {
		mem := store.NewMemory()
		e := network.NewEngine(network.DefaultTopology())
		e.SetPublisher(network.NewStorePublisher(mem))
		e.Recompute()
		reg.SetStoreConnected(true)
		log.Printf("dashboard: using in-memory store (offline mode)")
		return mem, func() {}, nil
	}

	st, client := mqtt.Dial(mqtt.Options{
		Broker:   cfg.Store.Broker,
		ClientID: cfg.ClientID("dashboard"),
		Username: cfg.Store.Username,
		Password: secrets.MQTTPassword,
	}, cfg.StoreRoot())

	link := mqtt.NewMonitor(client, reg.SetStoreConnected)
	link.Start(linkCheckInterval)
	probes[api.LinkStore] = func(context.Context) bool { return client.IsConnected() }

	return st, func() {
		link.Stop()
		client.Disconnect()
	}, nil
}

// openHistory connects the alert history database when PGHOST is set.
// Failures leave history in memory only.
func openHistory(ctx context.Context, cfg *config.SiteConfig, secrets config.Secrets) *postgres.Client {
	if os.Getenv("PGHOST") == "" {
		return nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := postgres.New(connectCtx, postgres.OptionsFromEnv(cfg.Site.ID, secrets.DBPassword))
	if err != nil {
		log.Printf("dashboard: history database unavailable, keeping history in memory: %v", err)
		return nil
	}
	return c
}

// newAuthenticator builds the login accounts: the admin (hash from the site
// file or WATERMON_ADMIN_PASS) and every mechanic with a password hash.
func newAuthenticator(cfg *config.SiteConfig, secrets config.Secrets, roster []alerts.Mechanic) (*api.Authenticator, error) {
	var accounts []api.Account

	adminHash := cfg.Auth.AdminHash
	if adminHash == "" && secrets.AdminPassword != "" {
		var err error
		if adminHash, err = api.HashPassword(secrets.AdminPassword); err != nil {
			return nil, err
		}
	}
	if adminHash != "" {
		accounts = append(accounts, api.Account{
			Username:     cfg.AdminUser(),
			PasswordHash: adminHash,
			Principal:    access.Admin("Administrator"),
		})
	}
	for _, m := range cfg.Auth.Mechanics {
		accounts = append(accounts, api.Account{
			Username:     m.ID,
			PasswordHash: m.PasswordHash,
			Principal:    access.Mechanic(m.ID, m.Name),
		})
	}

	secret := secrets.JWTSecret
	if secret == "" && len(accounts) > 0 {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, err
		}
		secret = hex.EncodeToString(b)
		log.Printf("dashboard: WATERMON_JWT_SECRET not set, sessions will not survive a restart")
	}

	a, err := api.NewAuthenticator(accounts, secret, cfg.TokenTTL())
	if err != nil {
		return nil, err
	}
	if !a.Enabled() {
		log.Printf("dashboard: no credentials configured, authentication disabled (%d mechanics on roster)", len(roster))
	}
	return a, nil
}
