package orchestrator

import (
	"context"
	"fmt"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/remote"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/store"
)

// syncLocations drains pending GPS samples in fixed-size batches.
//
// Samples whose parent shift has no remote identifier yet are skipped and
// left pending: that is an ordering dependency, not a failure, and the next
// pass picks them up once the shift has synced. Per-item validation
// rejections inside an accepted batch quarantine only the rejected items.
func (o *Orchestrator) syncLocations(ctx context.Context, batchSize int, ps *passState) error {
	samples, err := o.store.PendingLocations(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to load pending locations: %w", err)
	}
	if len(samples) == 0 {
		return nil
	}

	shiftIDs := make([]string, 0, len(samples))
	seen := make(map[string]bool, len(samples))
	for _, l := range samples {
		if !seen[l.ShiftID] {
			seen[l.ShiftID] = true
			shiftIDs = append(shiftIDs, l.ShiftID)
		}
	}
	remoteIDs, err := o.store.ShiftRemoteIDs(ctx, shiftIDs)
	if err != nil {
		return fmt.Errorf("failed to map shift remote ids: %w", err)
	}

	eligible := make([]*record.LocationSample, 0, len(samples))
	for _, l := range samples {
		if remoteIDs[l.ShiftID] == "" {
			ps.progress.Skipped++
			continue
		}
		eligible = append(eligible, l)
	}
	if ps.progress.Skipped > 0 {
		o.logger.Debug("location samples deferred until parent shift syncs",
			"skipped", ps.progress.Skipped)
	}

	for start := 0; start < len(eligible); start += batchSize {
		end := start + batchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		batch := eligible[start:end]

		ps.progress.Kind = record.KindLocation
		ps.progress.Operation = fmt.Sprintf("syncing locations (%d-%d/%d)", start+1, end, len(eligible))

		if err := o.submitLocationBatch(ctx, batch, remoteIDs, ps); err != nil {
			o.emit(ps)
			return err
		}
		o.emit(ps)
	}
	return nil
}

func (o *Orchestrator) submitLocationBatch(ctx context.Context, batch []*record.LocationSample, remoteIDs map[string]string, ps *passState) error {
	ids := make([]string, len(batch))
	uploads := make([]remote.LocationUpload, len(batch))
	byID := make(map[string]*record.LocationSample, len(batch))
	for i, l := range batch {
		ids[i] = l.ID
		byID[l.ID] = l
		uploads[i] = remote.LocationUpload{
			ID:            l.ID,
			RequestID:     l.RequestID,
			ShiftRemoteID: remoteIDs[l.ShiftID],
			Lat:           l.Lat,
			Lon:           l.Lon,
			AccuracyM:     l.AccuracyM,
			SpeedMPS:      l.SpeedMPS,
			RecordedAt:    l.RecordedAt,
		}
	}

	if err := o.store.UpdateStatusBatch(ctx, record.KindLocation, ids, record.StatusSyncing, store.StatusUpdate{}); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	res, err := o.api.SubmitLocations(callCtx, uploads)
	cancel()

	if err != nil {
		// The batch never produced a usable response. Back to pending
		// without charging an attempt, and stop the batch loop early.
		o.logger.Warn("location batch transport failure", "batch", len(batch), "error", err)
		if uerr := o.store.UpdateStatusBatch(ctx, record.KindLocation, ids, record.StatusPending, store.StatusUpdate{}); uerr != nil {
			return uerr
		}
		return errTransport
	}

	rejected := make(map[string]remote.BatchItemError, len(res.Rejected))
	for _, item := range res.Rejected {
		rejected[item.ID] = item
	}

	acceptedIDs := make([]string, 0, len(batch))
	for _, id := range ids {
		if item, bad := rejected[id]; bad {
			o.quar.Quarantine(ctx, record.KindLocation, id, byID[id], item.Code, item.Message)
			ps.progress.Quarantined++
			continue
		}
		acceptedIDs = append(acceptedIDs, id)
	}

	// Inserted and duplicate items are both success: the server has them.
	if err := o.store.UpdateStatusBatch(ctx, record.KindLocation, acceptedIDs, record.StatusSynced, store.StatusUpdate{}); err != nil {
		return err
	}
	ps.progress.Synced += len(acceptedIDs)

	o.logger.Info("location batch synced",
		"accepted", len(acceptedIDs), "inserted", res.Inserted,
		"duplicates", res.Duplicates, "rejected", len(res.Rejected))
	return nil
}
