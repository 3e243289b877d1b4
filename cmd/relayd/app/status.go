package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/model"
)

type vehiclesResponse struct {
	Vehicles []model.VehicleState `json:"vehicles"`
}

// newStatusCommand queries a running relay's admin API and prints the vehicle
// table.
func newStatusCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the vehicles known to a running relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8081",
		"Address of the relay admin HTTP server.")
	return cmd
}

func runStatus(cmd *cobra.Command, addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/api/v1/vehicles", addr))
	if err != nil {
		return fmt.Errorf("failed to reach relay at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay returned status %s", resp.Status)
	}

	var out vehiclesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	table := uitable.New()
	table.AddRow("VEHICLE", "STATUS", "LATITUDE", "LONGITUDE", "LAST SEEN")
	for _, v := range out.Vehicles {
		lat, lon := "-", "-"
		if v.LastFix != nil {
			lat = fmt.Sprintf("%.6f", v.LastFix.Latitude)
			lon = fmt.Sprintf("%.6f", v.LastFix.Longitude)
		}
		lastSeen := "-"
		if !v.LastSeenAt.IsZero() {
			lastSeen = fmt.Sprintf("%s ago", time.Since(v.LastSeenAt).Round(time.Second))
		}
		table.AddRow(v.VehicleID, string(v.Status), lat, lon, lastSeen)
	}

	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}
