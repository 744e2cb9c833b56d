// Package controller runs sync passes: it mirrors the remote manifest into the bucket, removes stale
// keys and registers the table definitions, all under a wall-clock deadline.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"canvasdatasync/dispatch"
	"canvasdatasync/source"
	"canvasdatasync/target"
	"canvasdatasync/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// log a convenience wrapper to shorten code lines
var log = &utils.Logger

// ReinvokeThreshold when less time than this remains after a file, the pass hands over to a new one.
const ReinvokeThreshold = 30 * time.Second

var (
	ErrDispatch = errors.New("dispatch failed")
	ErrListing  = errors.New("mirror listing failed")
	ErrManifest = errors.New("manifest fetch failed")
	ErrSchema   = errors.New("schema fetch failed")
	ErrDelete   = errors.New("stale key deletion failed")
	ErrCatalog  = errors.New("catalog reconciliation failed")
	ErrNotify   = errors.New("notification failed")
	ErrReinvoke = errors.New("reinvocation failed")
)

// Mirror is the object store view of the pass: list every key under the prefix, delete one key.
type Mirror interface {
	ListKeys(ctx context.Context) ([]string, error)
	DeleteKey(ctx context.Context, key string) error
}

// Catalog creates or overwrites one table definition.
type Catalog interface {
	Reconcile(ctx context.Context, schema source.TableSchema) (target.Outcome, error)
}

// Settings the per-deployment values a pass needs besides its collaborators.
type Settings struct {
	Bucket string
	Prefix string
	DryRun bool
}

// Summary is the result of one pass, published as JSON.
type Summary struct {
	TotalFiles    int  `json:"total_files"`
	FetchedFiles  int  `json:"fetched_files"`
	SkippedFiles  int  `json:"skipped_files"`
	RemovedFiles  int  `json:"removed_files"`
	Reinvoke      bool `json:"reinvoke"`
	TablesCreated int  `json:"tables_created"`
	TablesUpdated int  `json:"tables_updated"`
}

// Controller holds the collaborators of a pass. It keeps no state between passes.
type Controller struct {
	Settings   Settings
	Manifest   source.ManifestClient
	Mirror     Mirror
	Dispatcher dispatch.Dispatcher
	Reinvoker  dispatch.Reinvoker
	Catalog    Catalog
	Notifier   Notifier
}

// Run executes one pass. event is the payload of the current invocation; it is only handed to the
// Reinvoker when the deadline gets close. Any error aborts the pass without a notification.
func (c *Controller) Run(ctx context.Context, event json.RawMessage, deadline Deadline) (Summary, error) {
	passLog := log.With(zap.String("pass", uuid.NewString()), zap.Bool("dry_run", c.Settings.DryRun))
	passLog.Debug("Starting Canvas Data sync", zap.String("bucket", c.Settings.Bucket),
		zap.String("prefix", c.Settings.Prefix))
	startTime := time.Now()

	// the snapshot comes first so keys written by workers during this pass are never collected
	stale, err := c.snapshot(ctx)
	if err != nil {
		return Summary{}, err
	}

	manifest, err := c.Manifest.GetSyncFileURLs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrManifest, err)
	}

	summary := Summary{TotalFiles: len(manifest)}
	for _, file := range manifest {
		key := file.Key(c.Settings.Prefix)
		if _, exists := stale[key]; exists {
			delete(stale, key)
			passLog.Trace("Skipping existing key", zap.String("key", key))
			summary.SkippedFiles++
		} else if c.Settings.DryRun {
			passLog.Info("Would have fetched", zap.String("key", key))
		} else {
			req := target.FetchRequest{FileURL: file.URL, Bucket: c.Settings.Bucket, Key: key}
			if err := c.Dispatcher.Submit(ctx, req); err != nil {
				return Summary{}, fmt.Errorf("%w for key %s: %w", ErrDispatch, key, err)
			}
			passLog.Info("Fetching", zap.String("key", key))
			summary.FetchedFiles++
		}

		if remaining := deadline.RemainingTime(); remaining < ReinvokeThreshold {
			passLog.Info("Running out of time, invoking another instance and exiting this one",
				zap.Duration("remaining", remaining))
			summary.Reinvoke = true
			if err := c.Reinvoker.Reinvoke(ctx, event); err != nil {
				return Summary{}, fmt.Errorf("%w: %w", ErrReinvoke, err)
			}
			break
		}
	}

	if !summary.Reinvoke {
		if err := c.removeStale(ctx, passLog, stale, &summary); err != nil {
			return Summary{}, err
		}
		if err := c.reconcileCatalog(ctx, passLog, &summary); err != nil {
			return Summary{}, err
		}
	}

	passLog.Info("Canvas Data sync pass finished",
		zap.Int("total", summary.TotalFiles),
		zap.Int("fetched", summary.FetchedFiles),
		zap.Int("skipped", summary.SkippedFiles),
		zap.Int("removed", summary.RemovedFiles),
		zap.Int("tables_created", summary.TablesCreated),
		zap.Int("tables_updated", summary.TablesUpdated),
		zap.Bool("reinvoke", summary.Reinvoke),
		zap.Duration("time", time.Since(startTime)))

	if err := c.Notifier.Notify(ctx, summary); err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrNotify, err)
	}
	return summary, nil
}

// snapshot lists the mirror into the working set of possibly stale keys.
func (c *Controller) snapshot(ctx context.Context) (map[string]struct{}, error) {
	keys, err := c.Mirror.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListing, err)
	}
	ret := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		ret[key] = struct{}{}
	}
	return ret, nil
}

// removeStale deletes the keys no manifest entry claimed, in key order.
func (c *Controller) removeStale(ctx context.Context, passLog *utils.CustomLogger, stale map[string]struct{},
	summary *Summary) error {
	keys := make([]string, 0, len(stale))
	for key := range stale {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if c.Settings.DryRun {
			passLog.Info("Would have removed old file", zap.String("key", key))
			continue
		}
		passLog.Info("Removing old file", zap.String("key", key))
		if err := c.Mirror.DeleteKey(ctx, key); err != nil {
			return fmt.Errorf("%w for key %s: %w", ErrDelete, key, err)
		}
		summary.RemovedFiles++
	}
	return nil
}

// reconcileCatalog registers every table of the current schema, in schema key order.
func (c *Controller) reconcileCatalog(ctx context.Context, passLog *utils.CustomLogger, summary *Summary) error {
	schema, err := c.Manifest.GetSchema(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	keys := make([]string, 0, len(schema))
	for key := range schema {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		table := schema[key]
		if c.Settings.DryRun {
			passLog.Info("Would have reconciled table", zap.String("table", table.TableName),
				zap.Int("columns", len(table.Columns)))
			continue
		}
		outcome, err := c.Catalog.Reconcile(ctx, table)
		if err != nil {
			return fmt.Errorf("%w for table %s: %w", ErrCatalog, table.TableName, err)
		}
		switch outcome {
		case target.Created:
			summary.TablesCreated++
		case target.Updated:
			summary.TablesUpdated++
		}
	}
	return nil
}
