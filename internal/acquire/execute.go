package acquire

import (
	"context"
	"errors"
	"math"
	"os"

	"tankobon/internal/archive"
	"tankobon/internal/logging"
	"tankobon/internal/services"
	"tankobon/internal/source"
)

// progressLogBucket controls how often fetch progress reaches the log.
const progressLogBucket = 25

func (o *Orchestrator) execute(ctx context.Context, j *job) (Outcome, error) {
	ctx = services.WithJobLabel(services.WithSourceID(ctx, j.sourceID), j.label)
	ctx = services.WithRequestID(ctx, j.requestID)
	logger := logging.WithContext(ctx, o.logger)
	failed := Outcome{State: StateFailed, Label: j.label}

	if created, err := o.stage(ctx, j); err != nil {
		// A staged file this run did not create belongs to another job.
		if created {
			o.removeStaged(ctx, j.stagedPath)
		}
		o.registry.Fail(j.label, services.FailureMessage(err))
		logger.Warn("fetch failed", logging.Error(err))
		return failed, err
	}

	o.registry.SetState(j.label, string(StateCommitting))
	// Catalog writes are not interrupted by shutdown once the artifact is staged.
	commitCtx := services.WithStage(context.WithoutCancel(ctx), string(StateCommitting))
	res, err := o.committer.Commit(commitCtx, j.stagedPath, archive.Metadata{
		Title:            j.record.Title,
		Authors:          j.record.Authors(o.anonymous),
		Tags:             j.tags,
		SourceSystemID:   o.systemID,
		SourceDocumentID: j.sourceID,
	})
	if err != nil {
		// Registration failures already removed the staged file. Manual cases
		// keep it for inspection.
		o.registry.Fail(j.label, services.FailureMessage(err))
		if res != nil {
			failed.DocumentID = res.DocumentID
			failed.Hash = res.Hash
		}
		return failed, err
	}

	o.registry.SetPercent(j.label, 100)
	o.registry.SetState(j.label, string(StateDone))
	logger.Info("acquisition complete",
		logging.Int64("document_id", res.DocumentID),
		logging.String("hash", res.Hash),
	)
	return Outcome{
		State:      StateDone,
		Label:      j.label,
		DocumentID: res.DocumentID,
		Redirect:   DocumentPath(res.DocumentID),
		Hash:       res.Hash,
	}, nil
}

// stage fetches every fragment into the staged container. created reports
// whether this call created the staged file.
func (o *Orchestrator) stage(ctx context.Context, j *job) (created bool, err error) {
	stageCtx := services.WithStage(ctx, string(StateFetching))
	logger := logging.WithContext(stageCtx, o.logger)

	file, err := os.OpenFile(j.stagedPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, services.Wrap(services.ErrPreexistingState, string(StateFetching), "create staged artifact", j.stagedPath, err)
		}
		return false, services.Wrap(services.ErrFetch, string(StateFetching), "create staged artifact", j.stagedPath, err)
	}

	total := len(j.record.Fragments)
	done := 0
	sampler := logging.NewProgressSampler(progressLogBucket)
	onFragment := func(source.Fragment) {
		done++
		percent := math.Round(float64(done)/float64(total)*10000) / 100
		o.registry.SetPercent(j.label, percent)
		if sampler.ShouldLog(percent, string(StateFetching)) {
			logger.Info("fetch progress",
				logging.Float64("percent", percent),
				logging.Int("fragments_done", done),
				logging.Int("fragments_total", total),
			)
		}
	}

	fetchErr := o.fetcher.Fetch(stageCtx, j.record.Fragments, j.urls, file, onFragment)
	closeErr := file.Close()
	if fetchErr != nil {
		return true, fetchErr
	}
	if closeErr != nil {
		return true, services.Wrap(services.ErrFetch, string(StateFetching), "close staged artifact", j.stagedPath, closeErr)
	}
	return true, nil
}

func (o *Orchestrator) removeStaged(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WithContext(ctx, o.logger).Warn("remove staged artifact failed",
			logging.String("path", path),
			logging.Error(err),
		)
	}
}
