// bus-sim publishes simulated position fixes for one or more buses to the
// relay's MQTT telemetry topics. Each bus performs a small random walk around
// a configurable starting point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Alanbenny123/bustrackingnew/pkg/log"
	"github.com/Alanbenny123/bustrackingnew/pkg/mqtt"
	"github.com/Alanbenny123/bustrackingnew/pkg/mqtt/topic"
)

type fixPayload struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	CapturedAt time.Time `json:"capturedAt"`
}

func main() {
	broker := pflag.String("broker", "tcp://localhost:1883", "MQTT broker address.")
	topicRoot := pflag.String("topic-root", "fleet/v1", "Topic prefix for telemetry topics.")
	prefix := pflag.String("vehicle-prefix", "bus-", "Prefix for generated vehicle ids.")
	count := pflag.Int("count", 3, "Number of simulated buses.")
	interval := pflag.Duration("interval", 2*time.Second, "Interval between published fixes per bus.")
	baseLat := pflag.Float64("base-lat", 10.0261, "Starting latitude of the walk.")
	baseLon := pflag.Float64("base-lon", 76.3125, "Starting longitude of the walk.")
	step := pflag.Float64("step", 0.0005, "Maximum coordinate change per tick.")
	pflag.Parse()

	log.Init(log.NewOptions())

	cfg := &mqtt.ClientConfig{
		BrokerURL:      *broker,
		ClientID:       fmt.Sprintf("bus-sim-%d", time.Now().UnixNano()),
		KeepAlive:      60,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
	}
	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "failed to create mqtt client")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Start(ctx); err != nil {
		log.Error(err, "failed to start mqtt client")
		os.Exit(1)
	}
	if err := client.AwaitConnection(ctx); err != nil {
		log.Error(err, "failed to connect to broker", "broker", *broker)
		os.Exit(1)
	}
	log.Info("connected to broker", "broker", *broker, "buses", *count)

	builder := topic.NewBuilder(*topicRoot)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < *count; i++ {
		vehicleID := fmt.Sprintf("%s%d", *prefix, i+1)
		g.Go(func() error {
			return simulate(ctx, client, builder, vehicleID, *interval, *baseLat, *baseLon, *step)
		})
	}
	_ = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client.Disconnect(shutdownCtx)
	log.Info("simulator stopped")
}

// simulate walks one bus until the context is done.
func simulate(ctx context.Context, client mqtt.Client, builder *topic.Builder, vehicleID string, interval time.Duration, lat, lon, step float64) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(len(vehicleID))))
	t := builder.Telemetry(vehicleID)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	publish := func() {
		lat += (rng.Float64()*2 - 1) * step
		lon += (rng.Float64()*2 - 1) * step

		payload, err := json.Marshal(fixPayload{
			Latitude:   lat,
			Longitude:  lon,
			CapturedAt: time.Now().UTC(),
		})
		if err != nil {
			log.Error(err, "failed to encode fix", "vehicleID", vehicleID)
			return
		}
		if err := client.Publish(ctx, t, 1, false, payload); err != nil {
			log.Warn("publish failed", "vehicleID", vehicleID, "err", err)
			return
		}
		log.Debug("published fix", "vehicleID", vehicleID, "lat", lat, "lon", lon)
	}

	publish()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			publish()
		}
	}
}
