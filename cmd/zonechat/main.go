package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/config"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/geo"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/history"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/messaging"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/metrics"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/observability"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/protocol"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/ratelimit"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/ws"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/zonechat"
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

	code := exitCode(run(cfg, logger), logger)
	_ = logger.Sync()
	os.Exit(code)
}

// exitCode logs a failed run and maps it to the process exit status. A
// signal-driven shutdown is a clean exit.
func exitCode(err error, logger *zap.Logger) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	logger.Error("zonechat exited", zap.Error(err))
	return 1
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("zone chat client starting",
		zap.String("user", cfg.User.ID),
		zap.String("socket_url", cfg.Socket.URL),
		zap.String("geo_source", cfg.Geo.Source),
		zap.Bool("nats", cfg.NATS.Enabled),
		zap.Bool("redis", cfg.Redis.Enabled))

	// --- Metrics ---
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	var opts []zonechat.Option

	// --- NATS ---
	var natsClient *messaging.NATSClient
	if cfg.NATS.Enabled {
		nc, err := messaging.NewNATSClient(cfg.NATS.Client(), logger)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer nc.Close()
		natsClient = nc
		opts = append(opts, zonechat.WithAnnouncer(nc))
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect to Redis: %w", err)
		}
		defer rdb.Close()
		opts = append(opts, zonechat.WithLimiter(ratelimit.NewLimiter(rdb, cfg.Redis.SendRule(), logger)))
	}

	// --- History ---
	if cfg.API.BaseURL != "" {
		opts = append(opts, zonechat.WithHistory(history.NewClient(cfg.API.History(), nil, logger), cfg.API.Timeout))
	}

	// --- Position ---
	var stdinSource *geo.ChannelSource
	var source geo.Source
	switch cfg.Geo.Source {
	case config.SourceStatic:
		source = geo.StaticSource{
			Position: geo.Position{Latitude: cfg.Geo.Latitude, Longitude: cfg.Geo.Longitude},
			Interval: cfg.Geo.Interval,
		}
	case config.SourceNATS:
		source = messaging.NewPositionSource(natsClient, cfg.User.ID, logger)
	default:
		stdinSource = geo.NewChannelSource(4)
		source = stdinSource
	}
	watcher := geo.NewWatcher(source, cfg.Geo.Options(), logger)

	socket := ws.NewSocket(cfg.Socket.Socket(), logger)
	ctrl := zonechat.New(cfg.User.Sender(), socket, watcher, logger, opts...)

	go render(ctx, ctrl)
	go readInput(ctx, ctrl, stdinSource, stop)

	return ctrl.Run(ctx)
}

// render prints notices and newly visible messages.
func render(ctx context.Context, ctrl *zonechat.Controller) {
	printed := make(map[protocol.ID]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ctrl.Done():
			return
		case n := <-ctrl.Notices():
			fmt.Printf("[%s] %s\n", n.Level, n.Text)
		case <-ctrl.ScrollSignals():
			for _, e := range ctrl.Messages() {
				if printed[e.ID] {
					continue
				}
				if e.Temp() {
					fmt.Printf("  (sending) %s\n", e.Content)
					printed[e.ID] = true
					continue
				}
				name := e.Sender.DisplayName
				if name == "" {
					name = e.SenderID.String()
				}
				if e.FromUser {
					name = "you"
				}
				fmt.Printf("%s %s: %s\n", e.CreatedAt.Local().Format("15:04"), name, e.Content)
				printed[e.ID] = true
			}
		}
	}
}

func statusLine(st zonechat.Status) string {
	var b strings.Builder
	if st.InZone {
		fmt.Fprintf(&b, "%s (id %s), %d online", st.Zone.DisplayName, st.Zone.ID, st.Zone.Occupancy)
	} else {
		fmt.Fprintf(&b, "no zone (%s)", st.State)
	}
	if st.HasPosition {
		fmt.Fprintf(&b, ", at %.5f,%.5f", st.Position.Latitude, st.Position.Longitude)
	}
	if st.Pending > 0 {
		fmt.Fprintf(&b, ", %d sending", st.Pending)
	}
	if st.SendsLeft >= 0 {
		fmt.Fprintf(&b, ", %d sends left", st.SendsLeft)
	}
	return b.String()
}

// readInput turns stdin lines into messages and commands:
//
//	/pos <lat> <lng>   feed a position (geo.source=stdin)
//	/zone              show the active zone
//	/reconnect         retry after the connection gave up
//	/quit              leave
func readInput(ctx context.Context, ctrl *zonechat.Controller, positions *geo.ChannelSource, quit func()) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "/quit":
			quit()
			return

		case "/reconnect":
			if !ctrl.Reconnect() {
				fmt.Println("not disconnected")
			}

		case "/zone":
			fmt.Println(statusLine(ctrl.Status(ctx)))

		case "/pos":
			if positions == nil {
				fmt.Println("positions come from the configured source")
				continue
			}
			if len(fields) != 3 {
				fmt.Println("usage: /pos <lat> <lng>")
				continue
			}
			lat, err1 := strconv.ParseFloat(fields[1], 64)
			lng, err2 := strconv.ParseFloat(fields[2], 64)
			if err1 != nil || err2 != nil {
				fmt.Println("usage: /pos <lat> <lng>")
				continue
			}
			positions.Push(ctx, geo.Sample{Position: geo.Position{Latitude: lat, Longitude: lng}, Timestamp: time.Now()})

		default:
			if _, err := ctrl.Send(ctx, line); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
		}
	}
	quit()
}
