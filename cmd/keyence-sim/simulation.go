package main

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/kswx/keyence-go/internal/sim"
)

// simulatedObjects returns the detection for tick n: between 0 and max
// objects spread on a circle that turns a little every tick.
func simulatedObjects(n, max int) [][6]float64 {
	if max <= 0 {
		return nil
	}
	count := n % (max + 1)
	poses := make([][6]float64, count)
	for i := range poses {
		angle := float64(n*15+i*360/count) * math.Pi / 180
		yaw := math.Mod(float64(n*15+i*360/count), 360)
		if yaw > 180 {
			yaw -= 360
		}
		poses[i] = [6]float64{
			math.Round(200*math.Cos(angle)*1000) / 1000,
			math.Round(200*math.Sin(angle)*1000) / 1000,
			350,
			0,
			0,
			yaw,
		}
	}
	return poses
}

func runSimulation(ctx context.Context, device *sim.Device, cfg SimulationConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			objects := simulatedObjects(n, cfg.MaxObjects)
			device.SetObjects(objects...)
			log.Printf("[SIM] %d object(s) in view", len(objects))
		}
	}
}
