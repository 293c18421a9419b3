package journal

import (
	"context"
	"fmt"
	"sync"

	"journal-sync/internal/logger"
	"journal-sync/internal/model"
	"journal-sync/pkg/errors"

	"github.com/rs/zerolog"
)

type AttestationLoader interface {
	LoadAttestation(ctx context.Context, groupID int64, period model.Period) ([]model.AttestationResult, error)
}

// Archiver keeps a copy of every attestation snapshot that was shown and
// returns the id it was stored under.
type Archiver interface {
	Archive(ctx context.Context, groupID int64, period model.Period, results []model.AttestationResult) (string, error)
}

// AttestationOverlay holds the read-only attestation results of one period,
// indexed by student. Unlike the stores it is cleared when a load fails.
type AttestationOverlay struct {
	gateway  AttestationLoader
	archiver Archiver
	reporter Reporter
	log      zerolog.Logger

	mu      sync.RWMutex
	period  model.Period
	results map[int64]model.AttestationResult
	loadSeq uint64
	// archiveID identifies the archived copy of the current results, if any.
	archiveID string
}

func NewAttestationOverlay(gateway AttestationLoader, archiver Archiver, reporter Reporter) *AttestationOverlay {
	return &AttestationOverlay{
		gateway:  gateway,
		archiver: archiver,
		reporter: orNop(reporter),
		period:   model.PeriodAll,
		results:  map[int64]model.AttestationResult{},
		log:      logger.For("attestation"),
	}
}

func (o *AttestationOverlay) Load(ctx context.Context, groupID int64, period model.Period) error {
	switch period {
	case model.PeriodAll:
		o.reset(o.begin(), model.PeriodAll)
		return nil
	case model.PeriodFirst, model.PeriodSecond:
	default:
		return fmt.Errorf("%w: %q", errors.ErrInvalidPeriod, period)
	}

	seq := o.begin()
	results, err := o.gateway.LoadAttestation(ctx, groupID, period)
	if err != nil {
		o.reset(seq, period)
		o.log.Error().Err(err).Int64("group_id", groupID).Str("period", string(period)).Msg("Failed to load attestation, overlay cleared")
		o.reporter.Report(ctx, failure(model.OpLoadAttestation, nil, err))
		return err
	}

	indexed := make(map[int64]model.AttestationResult, len(results))
	for _, r := range results {
		indexed[r.StudentID] = r
	}

	o.mu.Lock()
	if seq != o.loadSeq {
		o.mu.Unlock()
		return nil
	}
	o.period = period
	o.results = indexed
	o.archiveID = ""
	o.mu.Unlock()

	o.log.Debug().Int64("group_id", groupID).Str("period", string(period)).Int("students", len(indexed)).Msg("Attestation loaded")

	if o.archiver != nil {
		id, err := o.archiver.Archive(ctx, groupID, period, results)
		if err != nil {
			o.log.Warn().Err(err).Int64("group_id", groupID).Msg("Failed to archive attestation snapshot")
			return nil
		}
		o.mu.Lock()
		if seq == o.loadSeq {
			o.archiveID = id
		}
		o.mu.Unlock()
	}
	return nil
}

func (o *AttestationOverlay) begin() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loadSeq++
	return o.loadSeq
}

func (o *AttestationOverlay) reset(seq uint64, period model.Period) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if seq != o.loadSeq {
		return
	}
	o.period = period
	o.results = map[int64]model.AttestationResult{}
	o.archiveID = ""
}

// Lookup returns the student's result. ok is false when the result is
// unavailable, which callers must not treat as a zero score.
func (o *AttestationOverlay) Lookup(studentID int64) (model.AttestationResult, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.results[studentID]
	return r, ok
}

func (o *AttestationOverlay) Period() model.Period {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.period
}

func (o *AttestationOverlay) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.results)
}

// ArchiveID returns the archive id of the displayed results; ok is false when
// nothing is loaded or the snapshot was not archived.
func (o *AttestationOverlay) ArchiveID() (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.archiveID, o.archiveID != ""
}
