// Command eventtail follows the recorder's Kafka topics and prints segment
// and session events as they arrive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"workshop-recorder/internal/config"
	"workshop-recorder/internal/events"
	"workshop-recorder/internal/observability/logging"
)

func main() {
	cfg := config.Load()

	brokers := flag.String("brokers", strings.Join(cfg.Kafka.Brokers, ","), "Kafka brokers (comma-separated)")
	topicSegments := flag.String("topic-segments", cfg.Kafka.TopicSegments, "Segment outcome topic")
	topicSessions := flag.String("topic-sessions", cfg.Kafka.TopicSessions, "Session completion topic")
	group := flag.String("group", "", "Consumer group, empty reads partition 0")
	since := flag.Duration("since", time.Hour, "Replay window when no group is set")
	flag.Parse()

	logging.Init(logging.Config{Level: cfg.Observability.LogLevel, Format: "console"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := events.NewConsumer(events.ConsumerConfig{
		Brokers: strings.Split(*brokers, ","),
		Topics:  []string{*topicSegments, *topicSessions},
		GroupID: *group,
		Since:   *since,
	})
	defer consumer.Close()

	if err := consumer.Run(ctx, printRecord); err != nil {
		log.Error().Err(err).Msg("Consumer stopped")
	}
}

func printRecord(rec events.Record) {
	switch {
	case rec.Segment != nil:
		ev := rec.Segment
		line := fmt.Sprintf("%s %s #%d %ds final=%t latency=%dms",
			ev.EventType, ev.SessionID, ev.Index, ev.DurationSeconds, ev.IsFinal, ev.LatencyMs)
		if ev.Error != "" {
			line += " error=" + ev.Error
		}
		fmt.Println(line)
	case rec.Session != nil:
		ev := rec.Session
		fmt.Printf("%s %s %ds completed=%v failed=%v\n",
			ev.EventType, ev.SessionID, ev.RecordingSeconds, ev.Completed, ev.Failed)
	}
}
