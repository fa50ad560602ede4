package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AaronLay10/watermon/internal/config"
	"github.com/AaronLay10/watermon/internal/mqtt"
	"github.com/AaronLay10/watermon/internal/network"
	"github.com/AaronLay10/watermon/internal/panel"
	"github.com/AaronLay10/watermon/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to site.yaml (built-in defaults when empty)")
	logPath := flag.String("log", "watermon-panel.log", "log file (the terminal is owned by the panel)")
	flag.Parse()

	f, err := tea.LogToFile(*logPath, "panel")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.LoadSiteConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to load site.yaml: %v\n", err)
			os.Exit(1)
		}
	}

	engine := network.NewEngine(network.DefaultTopology())

	var st store.Store
	var mst *mqtt.Store
	status := func() string { return "offline (memory)" }
	if cfg.StoreDriver() == config.DriverMQTT {
		password, err := config.ResolveSecret(config.SecretMQTTPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		var client *mqtt.Client
		mst, client = mqtt.Dial(mqtt.Options{
			Broker:   cfg.Store.Broker,
			ClientID: cfg.ClientID("panel"),
			Username: cfg.Store.Username,
			Password: password,
		}, cfg.StoreRoot())
		defer client.Disconnect()

		link := mqtt.NewMonitor(client, nil)
		link.Start(2 * time.Second)
		defer link.Stop()

		status = func() string {
			if link.State().Connected {
				return "connected (" + client.Broker() + ")"
			}
			return "disconnected, changes pushed on reconnect"
		}
		st = mst
		restore(engine, mst)
	} else {
		st = store.NewMemory()
	}

	pub := network.NewStorePublisher(st)
	engine.SetPublisher(pub)
	if mst != nil {
		mst.OnReconnect(func() {
			if pub.Pending() && pub.Flush() {
				log.Printf("panel: offline changes pushed to the store")
			}
		})
	}
	engine.Recompute()
	log.Printf("panel: started for site %s", cfg.Site.ID)

	p := tea.NewProgram(panel.New(engine, status), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Printf("panel: %v", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// restore picks up the state left in the store by a previous panel run.
// Retained sections arrive shortly after subscribing.
func restore(engine *network.Engine, st store.Store) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		snap, err := st.Get(ctx)
		cancel()
		if err == nil && snap.Timestamp != "" {
			engine.Restore(snap)
			log.Printf("panel: restored state from %s", snap.Timestamp)
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	log.Printf("panel: no previous state in the store, starting fresh")
}
