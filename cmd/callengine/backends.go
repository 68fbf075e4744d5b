package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/archive"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/config"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/events"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/metrics"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/settings"
)

// backends are the optional external sinks. Each falls back to an in-process
// implementation when not configured.
type backends struct {
	archive  archive.Archive
	events   events.Publisher
	observer metrics.Observer
	closers  []func() error
}

func openBackends(cfg config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{
		archive:  archive.Discard{},
		events:   events.Noop{},
		observer: metrics.NoopObserver{},
	}

	switch strings.ToLower(cfg.Archive.Backend) {
	case config.ArchiveMemory:
		b.archive = archive.NewMemory()
	case config.ArchivePostgres:
		pg, err := archive.OpenPostgres(cfg.Archive.PostgresDSN)
		if err != nil {
			return nil, err
		}
		b.archive = pg
		b.closers = append(b.closers, pg.Close)
	case config.ArchiveRedis:
		rdb := archive.OpenRedis(cfg.Archive.RedisURL, cfg.Archive.RedisPrefix, cfg.Archive.Retention)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(ctx); err != nil {
			logger.Warn("archive_redis_unreachable", slog.String("error", err.Error()))
		}
		cancel()
		b.archive = rdb
		b.closers = append(b.closers, rdb.Close)
	}

	if url := strings.TrimSpace(cfg.Events.NATSURL); url != "" {
		pub, err := events.NewNATS(url, cfg.Events.Stream, cfg.Events.SubjectPrefix)
		if err != nil {
			logger.Warn("events_nats_unavailable", slog.String("error", err.Error()))
		} else {
			b.events = pub
			b.closers = append(b.closers, func() error { pub.Close(); return nil })
		}
	}

	if cfg.Metrics.Enabled {
		async := metrics.NewAsyncObserver(metrics.NewJSONLObserver(metricsWriter()), cfg.Metrics.Buffer)
		b.observer = async
		b.closers = append(b.closers, func() error {
			async.Close()
			if n := async.Dropped(); n > 0 {
				logger.Warn("metrics_dropped", slog.Int64("count", n))
			}
			return nil
		})
	}
	return b, nil
}

func (b *backends) close(logger *slog.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Warn("backend_close_failed", slog.String("error", err.Error()))
		}
	}
}

func metricsWriter() io.Writer { return os.Stdout }

func llmTag(snap settings.Snapshot) string {
	if snap.DefaultLLM == nil {
		return llm.ProviderNone
	}
	return snap.DefaultLLM.Tag()
}
