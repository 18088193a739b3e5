package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/thread-harvester/internal/clock/system"
	"github.com/JakeFAU/thread-harvester/internal/crawl"
	"github.com/JakeFAU/thread-harvester/internal/enricher"
	collyfetcher "github.com/JakeFAU/thread-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/thread-harvester/internal/harvest"
	"github.com/JakeFAU/thread-harvester/internal/id/uuid"
	"github.com/JakeFAU/thread-harvester/internal/publisher"
	"github.com/JakeFAU/thread-harvester/internal/source/pushshift"
	"github.com/JakeFAU/thread-harvester/internal/source/reddit"
)

// Report summarizes one Harvest call.
type Report struct {
	crawl.Result
	// ExportURI is set once a completed run has been exported.
	ExportURI string
	// MessageID is the broker id of the completion notification.
	MessageID string
}

// Harvest runs one crawl of subject. A completed run is exported and, when a
// publisher is configured, announced. The detail client lives for the
// duration of the call.
func (a *App) Harvest(ctx context.Context, subject string) (Report, error) {
	details, err := reddit.New(ctx, reddit.Config{
		ClientID:     a.cfg.Reddit.ClientID,
		ClientSecret: a.cfg.Reddit.ClientSecret,
		UserAgent:    a.cfg.Reddit.UserAgent,
		TokenURL:     a.cfg.Reddit.TokenURL,
		APIBaseURL:   a.cfg.Reddit.APIBaseURL,
		Timeout:      a.cfg.Reddit.Timeout,
		CommentLimit: a.cfg.Reddit.CommentLimit,
	})
	if err != nil {
		return Report{}, fmt.Errorf("init detail client: %w", err)
	}
	defer details.Close()

	engine, err := a.newEngine(details)
	if err != nil {
		return Report{}, err
	}
	result, err := engine.Run(ctx, subject)
	report := Report{Result: result}
	if err != nil {
		return report, fmt.Errorf("harvest %s: %w", subject, err)
	}
	a.logSummary(subject, result)
	if !result.Completed {
		return report, nil
	}

	// The export and notification go out even if a signal arrives now.
	outCtx := context.WithoutCancel(ctx)
	uri, err := a.exporter.Write(outCtx, subject, result.Collection)
	if err != nil {
		return report, fmt.Errorf("export %s: %w", subject, err)
	}
	report.ExportURI = uri
	a.logger.Info("export written", zap.String("subject", subject), zap.String("uri", uri))

	if a.publisher == nil {
		return report, nil
	}
	id, err := a.publisher.Publish(outCtx, publisher.Notification{
		RunID:     result.RunID,
		Subject:   subject,
		State:     string(result.State),
		Total:     result.Collection.Len(),
		ExportURI: uri,
	})
	if err != nil {
		a.logger.Warn("completion notification failed", zap.String("subject", subject), zap.Error(err))
		return report, nil
	}
	report.MessageID = id
	return report, nil
}

func (a *App) newEngine(details harvest.DetailSource) (*crawl.Engine, error) {
	pages, err := pushshift.New(
		collyfetcher.New(collyfetcher.Config{
			UserAgent:   a.cfg.Source.UserAgent,
			Timeout:     a.cfg.Source.Timeout,
			MaxBodySize: a.cfg.Source.MaxBodyBytes,
		}),
		pushshift.Config{SearchURL: a.cfg.Source.SearchURL, BatchSize: a.cfg.Source.BatchSize},
	)
	if err != nil {
		return nil, fmt.Errorf("init paginator: %w", err)
	}
	enr, err := enricher.New(details, enricher.Config{
		Pace:           a.cfg.Enrich.Pace,
		RequestTimeout: a.cfg.Enrich.RequestTimeout,
	}, a.logger.Named("enricher"))
	if err != nil {
		return nil, fmt.Errorf("init enricher: %w", err)
	}
	pause := a.cfg.Crawl.PagePause
	if pause == 0 {
		pause = -1
	}
	engine, err := crawl.New(crawl.Deps{
		Pages:       pages,
		Enricher:    enr,
		Checkpoints: a.checkpoints,
		Clock:       system.New(),
		IDs:         uuid.New(),
		Emitter:     a.hub,
		Logger:      a.logger,
	}, crawl.Config{
		MaxRecords:  a.cfg.Crawl.Limit(),
		PagePause:   pause,
		PageTimeout: a.cfg.Crawl.PageTimeout,
		RetryBase:   a.cfg.Crawl.RetryBase,
		RetryMax:    a.cfg.Crawl.RetryMax,
	})
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	return engine, nil
}

// logSummary reports the collection's bounds so an operator can eyeball the
// harvested range.
func (a *App) logSummary(subject string, result crawl.Result) {
	fields := []zap.Field{
		zap.String("subject", subject),
		zap.String("state", string(result.State)),
		zap.Int("total", result.Collection.Len()),
		zap.Int("added", result.Added),
	}
	records := result.Collection.Records()
	if len(records) > 0 {
		first, last := records[0], records[len(records)-1]
		fields = append(fields,
			zap.String("first_id", first.ID),
			zap.String("first_title", first.Title),
			zap.Int64("first_created_utc", first.CreatedUTC),
			zap.String("last_id", last.ID),
			zap.String("last_title", last.Title),
			zap.Int64("last_created_utc", last.CreatedUTC),
		)
	}
	a.logger.Info("harvest summary", fields...)
}
