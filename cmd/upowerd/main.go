package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/upowerd/upowerd/internal/aggregator"
	"github.com/upowerd/upowerd/internal/backend"
	"github.com/upowerd/upowerd/internal/busif"
	"github.com/upowerd/upowerd/internal/config"
	"github.com/upowerd/upowerd/internal/history"
	"github.com/upowerd/upowerd/internal/resume"
	"github.com/upowerd/upowerd/internal/source"
	"github.com/upowerd/upowerd/internal/warning"
)

// topicHandler filters log records by a "topic" attribute, letting
// --verbose/--log enable only the subsystems under inspection. Records
// without a topic (warnings, errors, startup messages) always pass.
type topicHandler struct {
	inner  slog.Handler
	topics map[string]bool
	topic  string
}

func (h *topicHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.inner.Enabled(context.Background(), level)
}

func (h *topicHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.topics["all"] {
		return h.inner.Handle(ctx, r)
	}
	topic := h.topic
	if topic == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "topic" {
				topic = a.Value.String()
				return false
			}
			return true
		})
	}
	if topic != "" && !h.topics[topic] && r.Level < slog.LevelWarn {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *topicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	topic := h.topic
	for _, a := range attrs {
		if a.Key == "topic" {
			topic = a.Value.String()
		}
	}
	return &topicHandler{inner: h.inner.WithAttrs(attrs), topics: h.topics, topic: topic}
}

func (h *topicHandler) WithGroup(name string) slog.Handler {
	return &topicHandler{inner: h.inner.WithGroup(name), topics: h.topics, topic: h.topic}
}

func main() {
	verbose := flag.Bool("verbose", false, "enable all verbose logging (equivalent to -log=all)")
	logFlag := flag.String("log", "", "comma-separated log topics: source,backend,aggregator,history,busif,resume (or 'all')")
	timedExit := flag.Int("timed-exit", 0, "exit after N seconds, for testing startup under a supervisor")
	immediateExit := flag.Bool("immediate-exit", false, "export the bus and exit immediately, without serving")
	replace := flag.Bool("replace", false, "replace an already-running instance on the bus")
	flag.Parse()

	topics := make(map[string]bool)
	if *verbose {
		topics["all"] = true
	}
	if *logFlag != "" {
		for _, t := range strings.Split(*logFlag, ",") {
			topics[strings.TrimSpace(t)] = true
		}
	}
	handler := &topicHandler{
		inner:  slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		topics: topics,
	}
	logger := slog.New(handler)

	sourceLog := logger.With("topic", "source")
	backendLog := logger.With("topic", "backend")
	aggLog := logger.With("topic", "aggregator")
	histLog := logger.With("topic", "history")
	busLog := logger.With("topic", "busif")
	resumeLog := logger.With("topic", "resume")

	confPath := envOr("UPOWER_CONF_FILE_NAME", "/etc/upowerd.conf")
	cfg, err := config.Load(confPath)
	if err != nil {
		logger.Error("load config", "path", confPath, "err", err)
		os.Exit(1)
	}

	profiles, err := config.LoadProfiles(envOr("UPOWER_DEVICE_PROFILES", config.DefaultProfilesPath))
	if err != nil {
		logger.Error("load device profiles", "err", err)
		os.Exit(1)
	}

	histDir := envOr("UPOWER_HISTORY_DIR", "/var/lib/upowerd/history")
	if err := os.MkdirAll(histDir, 0755); err != nil {
		logger.Error("create history dir", "path", histDir, "err", err)
		os.Exit(1)
	}
	hist, err := history.Open(histDir, histLog)
	if err != nil {
		logger.Error("open history store", "err", err)
		os.Exit(1)
	}

	warn := warning.NewEngine(warning.FromConfig(cfg))
	agg := aggregator.New(aggLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go agg.Run(ctx, warn)

	resumeDetector, err := resume.NewDetector(resumeLog)
	var wake <-chan struct{}
	if err != nil {
		logger.Warn("resume detection unavailable", "err", err)
	} else {
		wake = resumeDetector.Wake()
		defer resumeDetector.Close()
	}

	sysfsRoot := envOr("UPOWER_MOCK_TREE", "/sys")
	sysfsAdapter := source.NewSysfsAdapter(sysfsRoot, profiles, sourceLog)
	sysfsBackend := backend.New("sysfs", sysfsAdapter, agg, hist, backendLog)

	hidupsInterval := time.Duration(cfg.HIDUPSPollSeconds) * time.Second
	upsAdapter := source.NewPlatformUPSAdapter("/dev", profiles, hidupsInterval, sourceLog)
	upsBackend := backend.New("ups", upsAdapter, agg, hist, backendLog)

	backends := []*backend.Backend{sysfsBackend, upsBackend}
	for _, b := range backends {
		b := b
		go func() {
			if err := b.Run(ctx, wake); err != nil {
				backendLog.Warn("backend stopped", "err", err)
			}
		}()
	}

	srv := busif.NewServer(agg, hist, cfg, busLog)
	if err := srv.Export(ctx, *replace); err != nil {
		logger.Error("export bus service", "err", err)
		os.Exit(2)
	}
	defer srv.Close()
	logger.Info("upowerd bus service registered", "name", "org.freedesktop.UPower")

	if *immediateExit {
		return
	}

	flushTicker := time.NewTicker(2 * time.Minute)
	defer flushTicker.Stop()
	sweepTicker := time.NewTicker(24 * time.Hour)
	defer sweepTicker.Stop()

	var exitTimer <-chan time.Time
	if *timedExit > 0 {
		t := time.NewTimer(time.Duration(*timedExit) * time.Second)
		defer t.Stop()
		exitTimer = t.C
	}

	logger.Info("upowerd started")
	for {
		select {
		case <-ctx.Done():
			shutdown(hist, histLog)
			return
		case <-exitTimer:
			logger.Info("timed exit reached")
			shutdown(hist, histLog)
			return
		case <-flushTicker.C:
			if err := hist.Flush(); err != nil {
				histLog.Warn("flush failed", "err", err)
			}
		case <-sweepTicker.C:
			if err := hist.Sweep(time.Now()); err != nil {
				histLog.Warn("sweep failed", "err", err)
			}
		}
	}
}

func shutdown(hist *history.Store, log *slog.Logger) {
	done := make(chan struct{})
	go func() {
		if err := hist.Flush(); err != nil {
			log.Warn("final flush failed", "err", err)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		log.Warn("final flush timed out, exiting anyway")
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
