package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/Alanbenny123/bustrackingnew/cmd/relayd/app"
)

func main() {
	cmd := app.NewRelayCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
