package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"taxi-ct/internal/common"
	"taxi-ct/internal/ml"
	"taxi-ct/internal/tracking"
)

func listVersions(ctx context.Context, store tracking.Store, model string, w io.Writer) error {
	versions, err := store.ListVersions(ctx, model)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tRUN ID\tACCURACY\tDATA COMMIT\tCREATED")
	for _, mv := range versions {
		accuracy, commit := "-", "-"
		if run, err := store.GetRun(ctx, mv.RunID); err == nil {
			if v, ok := run.Metrics[common.MetricTestAccuracy]; ok {
				accuracy = fmt.Sprintf("%.4f", v)
			}
			if v, ok := run.Tags[common.TagDataCommitHash]; ok {
				commit = v
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", mv.Version, mv.RunID, accuracy, commit, mv.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// exportVersion installs the artifact of a model version at out. Version 0
// means the latest one. The artifact is decoded first so a broken model never
// reaches the serving path.
func exportVersion(ctx context.Context, store tracking.Store, model string, version int, out string) (tracking.ModelVersion, error) {
	var (
		mv  tracking.ModelVersion
		err error
	)
	if version == 0 {
		mv, err = store.LatestVersion(ctx, model)
	} else {
		mv, err = store.GetVersion(ctx, model, version)
	}
	if err != nil {
		return tracking.ModelVersion{}, err
	}

	runID, path, err := tracking.ParseRunsURI(mv.Source)
	if err != nil {
		return tracking.ModelVersion{}, fmt.Errorf("version %d of %s: %w", mv.Version, model, err)
	}
	data, err := store.Artifact(ctx, runID, path)
	if err != nil {
		return tracking.ModelVersion{}, err
	}
	if _, err := ml.UnmarshalModel(data); err != nil {
		return tracking.ModelVersion{}, fmt.Errorf("version %d of %s: %w", mv.Version, model, err)
	}
	if err := ml.WriteArtifact(out, data); err != nil {
		return tracking.ModelVersion{}, err
	}
	return mv, nil
}

func showRun(ctx context.Context, store tracking.Store, runID string, w io.Writer) error {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}
