// Command keyence-ctl drives a vision sensor from the command line.
//
// The controller runs the same device lifecycle as the robot host: it mounts
// a session with a parameter tree, activates it and signals hardware
// readiness, then runs sensor commands either from the arguments or from an
// interactive prompt.
//
// Usage:
//
//	keyence-ctl [flags] [command ...]
//
// Flags:
//
//	-config string        Parameter file (YAML)
//	-manifest string      Bundle manifest whose parameters section is used
//	-host string          Sensor host (overrides the parameter file)
//	-port int             Sensor port (overrides the parameter file)
//	-protocol-log string  Write a protocol log to this file
//	-ready                Signal hardware ready after activation (default true)
//	-interactive          Start the interactive prompt
//	-log-level string     Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Count objects once
//	keyence-ctl -host 192.168.0.10 count
//
//	# Trigger and read the first pose in the robot base frame
//	keyence-ctl -config sensor.yaml count "pose 1"
//
//	# Interactive session with a protocol log
//	keyence-ctl -config sensor.yaml -protocol-log sensor.klog -interactive
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kswx/keyence-go/cmd/keyence-ctl/interactive"
	"github.com/kswx/keyence-go/pkg/bundle"
	"github.com/kswx/keyence-go/pkg/session"
)

// Config holds the command-line configuration.
type Config struct {
	ConfigFile   string
	ManifestFile string
	Host         string
	Port         int
	ProtocolLog  string
	Ready        bool
	Interactive  bool
	LogLevel     string
}

var config Config

func init() {
	flag.StringVar(&config.ConfigFile, "config", "", "Parameter file (YAML)")
	flag.StringVar(&config.ManifestFile, "manifest", "", "Bundle manifest whose parameters section is used")
	flag.StringVar(&config.Host, "host", "", "Sensor host (overrides the parameter file)")
	flag.IntVar(&config.Port, "port", 0, "Sensor port (overrides the parameter file)")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Write a protocol log to this file")
	flag.BoolVar(&config.Ready, "ready", true, "Signal hardware ready after activation")
	flag.BoolVar(&config.Interactive, "interactive", false, "Start the interactive prompt")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()
	setupLogging(config.LogLevel)

	var manifest *bundle.Manifest
	if config.ManifestFile != "" {
		m, err := bundle.Load(config.ManifestFile)
		if err != nil {
			log.Fatalf("Failed to load manifest: %v", err)
		}
		manifest = m
	}

	params, err := loadParams(manifest, config.ConfigFile,
		flagOverrides(config.Host, config.Port, config.ProtocolLog))
	if err != nil {
		log.Fatalf("Failed to load parameters: %v", err)
	}

	dev := bundle.NewDevice(manifest, session.Options{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slogLevel(config.LogLevel),
		})),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := start(ctx, dev, params); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer stop(dev)

	st := dev.Session().Status()
	log.Printf("Connected to %s (epoch %s)", st.Address, st.Epoch)

	if !config.Interactive {
		failed := false
		for _, line := range flag.Args() {
			if err := runOnce(ctx, dev, line); err != nil {
				log.Printf("%s: %v", line, err)
				failed = true
				break
			}
		}
		if failed {
			stop(dev)
			os.Exit(1)
		}
		return
	}

	ic, err := interactive.New(dev)
	if err != nil {
		log.Fatalf("Failed to create interactive controller: %v", err)
	}
	log.SetOutput(ic.Stdout())
	go ic.Run(ctx, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}
	log.Println("Shutting down...")
}

// start runs the host lifecycle up to an active session.
func start(ctx context.Context, dev *bundle.Device, params map[string]any) error {
	if err := dev.OnCreate(); err != nil {
		return err
	}
	if err := dev.OnBind(); err != nil {
		return err
	}
	if err := dev.OnMount(ctx, params); err != nil {
		return err
	}
	if err := dev.OnActivate(ctx); err != nil {
		return err
	}
	if config.Ready {
		dev.OnHWReady(true)
	}
	return nil
}

func stop(dev *bundle.Device) {
	if err := dev.OnDeactivate(); err != nil {
		log.Printf("Deactivate: %v", err)
	}
	if err := dev.OnUnbind(); err != nil {
		log.Printf("Unbind: %v", err)
	}
	if err := dev.OnDestroy(); err != nil {
		log.Printf("Destroy: %v", err)
	}
}

// runOnce runs one command line in batch mode.
func runOnce(ctx context.Context, dev *bundle.Device, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch strings.ToLower(fields[0]) {
	case "trigger":
		return dev.TriggerImage(ctx)
	case "count":
		n, err := dev.TriggerImageObj(ctx)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	case "pose":
		frame := 0
		if len(fields) > 1 {
			if _, err := fmt.Sscanf(fields[1], "%d", &frame); err != nil {
				return fmt.Errorf("invalid frame %q", fields[1])
			}
		}
		p, err := dev.GetObjectPose(ctx, frame)
		if err != nil {
			return err
		}
		fmt.Println(p.String())
		return nil
	default:
		return fmt.Errorf("unknown command (use trigger, count or pose [frame])")
	}
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

func slogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
