// Command recordtui is a terminal dashboard for a running recorder service.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"workshop-recorder/internal/config"
	"workshop-recorder/internal/observability/logging"
	"workshop-recorder/internal/tui"
)

func main() {
	cfg := config.Load()

	server := flag.String("server", "http://localhost:"+cfg.Service.HTTPPort, "Recorder control API base URL")
	poll := flag.Duration("poll", 500*time.Millisecond, "Status poll interval")
	logFile := flag.String("log", os.DevNull, "Log file")
	flag.Parse()

	out, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()
	logging.InitWriter(logging.Config{Level: cfg.Observability.LogLevel, Format: "json"}, out)

	client := tui.NewClient(*server, 5*time.Second)
	p := tea.NewProgram(tui.New(client, *poll), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "recordtui: %v\n", err)
		os.Exit(1)
	}
}
