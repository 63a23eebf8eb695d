package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/fillscope/internal/domain"
	"github.com/alanyoungcy/fillscope/internal/registry"
)

// AttributionJob sweeps fills that have not been through attribution
// resolution and links them to the entities in the catalog.
type AttributionJob struct {
	fills    domain.FillStore
	resolver *registry.Resolver
	batch    int
	logger   *slog.Logger
}

// NewAttributionJob creates the attribution sweep job.
func NewAttributionJob(fills domain.FillStore, resolver *registry.Resolver, batch int, logger *slog.Logger) *AttributionJob {
	return &AttributionJob{
		fills:    fills,
		resolver: resolver,
		batch:    batch,
		logger:   logger.With(slog.String("job", JobResolveAttributions)),
	}
}

// Name implements Job.
func (j *AttributionJob) Name() string { return JobResolveAttributions }

// Run processes one batch. A duplicate attribution is a catalog defect for
// that fill alone; it is logged loudly and the fill is left unattributed so
// it surfaces again once the catalog is fixed.
func (j *AttributionJob) Run(ctx context.Context) error {
	fills, err := j.fills.ListUnattributed(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("attribute: list unattributed: %w", err)
	}

	resolved := 0
	for i := range fills {
		fill := &fills[i]
		md := registry.Metadata{
			AffiliateAddress:    fill.AffiliateAddress,
			FeeRecipientAddress: fill.FeeRecipient,
			SenderAddress:       fill.SenderAddress,
			TakerAddress:        fill.TakerAddress,
		}

		attrs, err := j.resolver.Resolve(md)
		if err != nil {
			var dup *domain.DuplicateAttributionError
			if errors.As(err, &dup) {
				j.logger.Error("duplicate attribution",
					slog.String("fill_id", fill.ID),
					slog.String("error", dup.Error()),
				)
				continue
			}
			j.logger.Error("attribution failed",
				slog.String("fill_id", fill.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		var relayerID *string
		if id, ok, err := j.resolver.ResolveRelayer(md); err != nil {
			j.logger.Error("relayer resolution failed",
				slog.String("fill_id", fill.ID),
				slog.String("error", err.Error()),
			)
			continue
		} else if ok {
			relayerID = &id
		}

		if err := j.fills.SaveAttributions(ctx, fill.ID, attrs, relayerID); err != nil {
			j.logger.Error("save attributions failed",
				slog.String("fill_id", fill.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		resolved++
	}

	if resolved > 0 {
		j.logger.Info("attributions resolved", slog.Int("count", resolved), slog.Int("scanned", len(fills)))
	}
	return nil
}
