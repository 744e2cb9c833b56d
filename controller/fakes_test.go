package controller

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"canvasdatasync/source"
	"canvasdatasync/target"
)

type fakeManifest struct {
	files     source.Manifest
	schema    source.SchemaDocument
	filesErr  error
	schemaErr error
}

func (f *fakeManifest) GetSyncFileURLs(_ context.Context) (source.Manifest, error) {
	return f.files, f.filesErr
}

func (f *fakeManifest) GetSchema(_ context.Context) (source.SchemaDocument, error) {
	return f.schema, f.schemaErr
}

// fakeMirror an in-memory bucket; dispatched keys appear in it the way completed workers would add them.
type fakeMirror struct {
	mu        sync.Mutex
	keys      map[string]struct{}
	deleted   []string
	listErr   error
	deleteErr error
}

func newFakeMirror(keys ...string) *fakeMirror {
	m := &fakeMirror{keys: make(map[string]struct{})}
	for _, k := range keys {
		m.keys[k] = struct{}{}
	}
	return m
}

func (m *fakeMirror) ListKeys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	ret := make([]string, 0, len(m.keys))
	for k := range m.keys {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret, nil
}

func (m *fakeMirror) DeleteKey(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.keys, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *fakeMirror) add(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = struct{}{}
}

// fakeDispatcher records requests; with a mirror attached it completes them immediately.
type fakeDispatcher struct {
	requests []target.FetchRequest
	mirror   *fakeMirror
	err      error
}

func (d *fakeDispatcher) Submit(_ context.Context, req target.FetchRequest) error {
	if d.err != nil {
		return d.err
	}
	d.requests = append(d.requests, req)
	if d.mirror != nil {
		d.mirror.add(req.Key)
	}
	return nil
}

type fakeReinvoker struct {
	events []json.RawMessage
	err    error
}

func (r *fakeReinvoker) Reinvoke(_ context.Context, event json.RawMessage) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

// fakeCatalog remembers the tables it has seen, so the second reconcile of a table is an update.
type fakeCatalog struct {
	tables     map[string]source.TableSchema
	reconciled []string
	err        error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{tables: make(map[string]source.TableSchema)}
}

func (c *fakeCatalog) Reconcile(_ context.Context, schema source.TableSchema) (target.Outcome, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.reconciled = append(c.reconciled, schema.TableName)
	_, exists := c.tables[schema.TableName]
	c.tables[schema.TableName] = schema
	if exists {
		return target.Updated, nil
	}
	return target.Created, nil
}

type fakeNotifier struct {
	summaries []Summary
	err       error
}

func (n *fakeNotifier) Notify(_ context.Context, summary Summary) error {
	if n.err != nil {
		return n.err
	}
	n.summaries = append(n.summaries, summary)
	return nil
}

// plenty a deadline that never gets close
var plenty = DeadlineFunc(func() time.Duration { return 15 * time.Minute })

// testEnv wires a controller to fakes.
type testEnv struct {
	manifest   *fakeManifest
	mirror     *fakeMirror
	dispatcher *fakeDispatcher
	reinvoker  *fakeReinvoker
	catalog    *fakeCatalog
	notifier   *fakeNotifier
	controller *Controller
}

func newTestEnv(manifest *fakeManifest, mirror *fakeMirror) *testEnv {
	env := &testEnv{
		manifest:   manifest,
		mirror:     mirror,
		dispatcher: &fakeDispatcher{},
		reinvoker:  &fakeReinvoker{},
		catalog:    newFakeCatalog(),
		notifier:   &fakeNotifier{},
	}
	env.controller = &Controller{
		Settings:   Settings{Bucket: "canvas-bucket", Prefix: "raw_files/"},
		Manifest:   env.manifest,
		Mirror:     env.mirror,
		Dispatcher: env.dispatcher,
		Reinvoker:  env.reinvoker,
		Catalog:    env.catalog,
		Notifier:   env.notifier,
	}
	return env
}
