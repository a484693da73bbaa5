// Command keyence-sim runs a simulated vision sensor.
//
// The simulator speaks the sensor's ASCII command protocol on TCP and reports
// the objects from its configuration file, or a changing synthetic detection
// when simulation is enabled.
//
// Usage:
//
//	keyence-sim [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-addr string        Listen address (overrides the config file)
//	-simulate           Change the detected objects periodically
//	-log-level string   Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Serve two fixed objects from a config file
//	keyence-sim -config sensor.yaml
//
//	# Synthetic detections on a local port
//	keyence-sim -addr 127.0.0.1:8500 -simulate
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kswx/keyence-go/internal/sim"
	"github.com/kswx/keyence-go/pkg/wire"
)

var (
	configFile string
	addr       string
	simulate   bool
	logLevel   string
)

func init() {
	flag.StringVar(&configFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides the config file)")
	flag.BoolVar(&simulate, "simulate", false, "Change the detected objects periodically")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()
	setupLogging(logLevel)

	cfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if addr != "" {
		cfg.Address = addr
	}
	if simulate {
		cfg.Simulate.Enabled = true
	}

	vocab, err := cfg.Protocol.Vocabulary()
	if err != nil {
		log.Fatalf("Invalid protocol settings: %v", err)
	}
	objects, err := cfg.poses()
	if err != nil {
		log.Fatalf("Invalid objects: %v", err)
	}

	device := sim.NewDevice()
	device.SetObjects(objects...)
	device.SetDelay(cfg.Delay)

	srv, err := sim.NewServer(sim.ServerConfig{
		Address:    cfg.Address,
		Vocabulary: &vocab,
		Device:     device,
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slogLevel(logLevel),
		})),
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Println("Simulated Vision Sensor")
	log.Println("=======================")
	log.Printf("Listening on %s", srv.Addr())
	log.Printf("Tokens: trigger=%s trigger_obj=%s pose=%s",
		vocab.Commands[wire.VerbTrigger], vocab.Commands[wire.VerbTriggerObj], vocab.Commands[wire.VerbPose])
	log.Printf("Objects: %d", device.ObjectCount())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Simulate.Enabled {
		go runSimulation(ctx, device, cfg.Simulate)
		log.Printf("[SIM] Simulation started (interval %s, up to %d objects)",
			cfg.Simulate.Interval, cfg.Simulate.MaxObjects)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal: %v", sig)

	log.Println("Shutting down...")
	cancel()
	if err := srv.Stop(); err != nil {
		log.Printf("Error stopping server: %v", err)
	}
	log.Printf("Served %d connection(s)", srv.AcceptCount())
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn", "error":
		log.SetFlags(log.Ltime)
	}
}
