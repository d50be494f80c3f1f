// Command geofeed publishes positions for a zone chat user onto NATS and
// prints the zone announcements the client makes in return. Each stdin line
// is either "<lat> <lng>" or "!<code> <message>" to simulate a device error.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/config"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/messaging"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	natsConfig := cfg.NATS.Client()
	natsConfig.Name = "zonechat-geofeed"
	nc, err := messaging.NewNATSClient(natsConfig, logger)
	if err != nil {
		logger.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	user := cfg.User.ID
	err = nc.SubscribeZone(user, func(a messaging.ZoneAnnouncement) {
		switch a.Kind {
		case messaging.ZoneJoined:
			fmt.Printf("joined %s (id %s) at %.5f,%.5f, %d online\n", a.Name, a.ZoneID, a.Latitude, a.Longitude, a.OnlineUsers)
		default:
			fmt.Printf("zone %s: %d online\n", a.ZoneID, a.OnlineUsers)
		}
	})
	if err != nil {
		logger.Fatal("failed to subscribe to zone announcements", zap.Error(err))
	}

	logger.Info("geofeed running",
		zap.String("nats_url", natsConfig.URL),
		zap.String("subject", messaging.PositionSubject(user)))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", zap.String("signal", sig.String()))
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			update, err := parseLine(line)
			if err != nil {
				fmt.Println(err)
				continue
			}
			if err := nc.PublishPosition(user, update); err != nil {
				logger.Error("publish position", zap.Error(err))
			}
		}
	}
}

func parseLine(line string) (messaging.PositionUpdate, error) {
	line = strings.TrimSpace(line)
	now := time.Now()

	if rest, ok := strings.CutPrefix(line, "!"); ok {
		code, msg, _ := strings.Cut(rest, " ")
		if code == "" {
			return messaging.PositionUpdate{}, fmt.Errorf("usage: <lat> <lng> | !<code> <message>")
		}
		msg = strings.TrimSpace(msg)
		if msg == "" {
			msg = code
		}
		return messaging.PositionUpdate{Timestamp: now, Code: code, Error: msg}, nil
	}

	fields := strings.Fields(line)
	if len(fields) != 2 {
		return messaging.PositionUpdate{}, fmt.Errorf("usage: <lat> <lng> | !<code> <message>")
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return messaging.PositionUpdate{}, fmt.Errorf("bad latitude %q", fields[0])
	}
	lng, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return messaging.PositionUpdate{}, fmt.Errorf("bad longitude %q", fields[1])
	}
	return messaging.PositionUpdate{Latitude: lat, Longitude: lng, Timestamp: now}, nil
}
