package manifest

import (
	"context"
	"fmt"

	"github.com/zulandar/modelyard/internal/tracking"
)

const rebuildPageSize = 200

// RunLister pages through the run store, newest first.
type RunLister interface {
	ListRuns(ctx context.Context, opts tracking.ListOpts) ([]tracking.RunSummary, error)
}

// Report summarizes a Rebuild.
type Report struct {
	Scanned int    `json:"scanned"`
	Written int    `json:"written"`
	Latest  string `json:"latest,omitempty"`
}

// Rebuild writes a manifest and pointer for every stored run that has no
// readable pointer, then points _latest.json at the newest stored run.
// Existing pointers are left alone.
func (x *Index) Rebuild(ctx context.Context, runs RunLister, storeLocation string) (Report, error) {
	var rep Report
	var newest *tracking.RunSummary

	for offset := 0; ; offset += rebuildPageSize {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		page, err := runs.ListRuns(ctx, tracking.ListOpts{
			Limit:          rebuildPageSize,
			Offset:         offset,
			IncludeMetrics: true,
		})
		if err != nil {
			return rep, fmt.Errorf("manifest: rebuild: %w", err)
		}
		for i := range page {
			r := page[i]
			rep.Scanned++
			if newest == nil {
				newest = &r
			}
			if _, ok := x.ReadPointer(r.RunID); ok {
				continue
			}
			kind := r.Kind
			if kind == "" {
				kind = "run"
			}
			_, err := x.Write(WriteOpts{
				RunID:         r.RunID,
				Kind:          kind,
				Status:        StatusReconciled,
				Metrics:       r.Metrics,
				StoreLocation: storeLocation,
				CreatedAt:     r.CreatedAt,
				SkipLatest:    true,
			})
			if err != nil {
				return rep, fmt.Errorf("manifest: rebuild %s: %w", r.RunID, err)
			}
			rep.Written++
		}
		if len(page) < rebuildPageSize {
			break
		}
	}

	if newest == nil {
		return rep, nil
	}
	rep.Latest = newest.RunID
	if cur, ok := x.ReadLatestPointer(); ok && cur.RunID == newest.RunID {
		return rep, nil
	}
	ptr, ok := x.ReadPointer(newest.RunID)
	if !ok {
		return rep, fmt.Errorf("manifest: rebuild: pointer for %s missing after write", newest.RunID)
	}
	if err := x.writeLatest(*ptr); err != nil {
		return rep, err
	}
	return rep, nil
}
