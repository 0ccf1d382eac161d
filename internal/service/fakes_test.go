package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/conductor-io/conductor/internal/dataset"
)

// fakeStore is an in-memory Store with the same conflict semantics as the
// PostgreSQL implementation: id uniqueness on create, version-key and status
// compare-and-swap on update, conditional retire.
type fakeStore struct {
	drafts              map[string]*dataset.Dataset
	live                map[string]*dataset.Dataset
	transformations     map[string][]dataset.TransformationConfig
	liveTransformations map[string][]dataset.TransformationConfig
	sourceConfigs       map[string][]dataset.SourceConfig
	liveSourceConfigs   map[string][]dataset.SourceConfig
	draftSources        map[string]*dataset.Datasource
	liveSources         map[string]*dataset.Datasource
	nextPartition       int
	txErr               error
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		drafts:              make(map[string]*dataset.Dataset),
		live:                make(map[string]*dataset.Dataset),
		transformations:     make(map[string][]dataset.TransformationConfig),
		liveTransformations: make(map[string][]dataset.TransformationConfig),
		sourceConfigs:       make(map[string][]dataset.SourceConfig),
		liveSourceConfigs:   make(map[string][]dataset.SourceConfig),
		draftSources:        make(map[string]*dataset.Datasource),
		liveSources:         make(map[string]*dataset.Datasource),
	}
}

func cloneDataset(d *dataset.Dataset) *dataset.Dataset {
	raw, err := json.Marshal(d)
	if err != nil {
		panic(err)
	}

	out := &dataset.Dataset{}
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}

	return out
}

func (f *fakeStore) CreateDraft(_ context.Context, d *dataset.Dataset) error {
	if _, ok := f.drafts[d.ID]; ok {
		return dataset.Conflict(dataset.CodeDatasetExists, "dataset %s already exists", d.ID)
	}

	f.drafts[d.ID] = cloneDataset(d)

	return nil
}

func (f *fakeStore) GetDraft(_ context.Context, id string) (*dataset.Dataset, error) {
	d, ok := f.drafts[id]
	if !ok {
		return nil, dataset.NotFound(dataset.CodeDatasetNotFound, "dataset %s not found", id)
	}

	return cloneDataset(d), nil
}

func (f *fakeStore) GetLive(_ context.Context, id string) (*dataset.Dataset, error) {
	d, ok := f.live[id]
	if !ok {
		return nil, dataset.NotFound(dataset.CodeDatasetNotFound, "dataset %s not found", id)
	}

	return cloneDataset(d), nil
}

func statusMatches(s dataset.Status, statuses []dataset.Status) bool {
	if len(statuses) == 0 {
		return true
	}

	for _, want := range statuses {
		if s == want {
			return true
		}
	}

	return false
}

func (f *fakeStore) ListDrafts(_ context.Context, statuses []dataset.Status) ([]*dataset.Dataset, error) {
	var out []*dataset.Dataset

	for _, d := range f.drafts {
		if statusMatches(d.Status, statuses) {
			out = append(out, cloneDataset(d))
		}
	}

	return out, nil
}

func (f *fakeStore) ListLive(_ context.Context, statuses []dataset.Status) ([]*dataset.Dataset, error) {
	var out []*dataset.Dataset

	for _, d := range f.live {
		if statusMatches(d.Status, statuses) {
			out = append(out, cloneDataset(d))
		}
	}

	return out, nil
}

func (f *fakeStore) UpdateDraft(_ context.Context, d *dataset.Dataset, expectedVersionKey string) error {
	stored, ok := f.drafts[d.ID]
	if !ok {
		return dataset.NotFound(dataset.CodeDatasetNotFound, "dataset %s not found", d.ID)
	}

	if stored.VersionKey != expectedVersionKey {
		return dataset.Conflict(dataset.CodeDatasetOutdated,
			"dataset %s was modified concurrently", d.ID)
	}

	d.VersionKey = dataset.NewVersionKey()
	d.UpdatedAt = time.Now().UTC()
	f.drafts[d.ID] = cloneDataset(d)

	return nil
}

func (f *fakeStore) SaveDraft(_ context.Context, d *dataset.Dataset) error {
	if _, ok := f.drafts[d.ID]; !ok {
		return dataset.NotFound(dataset.CodeDatasetNotFound, "dataset %s not found", d.ID)
	}

	f.drafts[d.ID] = cloneDataset(d)

	return nil
}

func (f *fakeStore) SetDraftStatus(_ context.Context, id string, from, to dataset.Status) error {
	stored, ok := f.drafts[id]
	if !ok {
		return dataset.NotFound(dataset.CodeDatasetNotFound, "dataset %s not found", id)
	}

	if stored.Status != from {
		return dataset.Conflict(dataset.CodeInvalidTransition,
			"dataset %s is %s, expected %s", id, stored.Status, from)
	}

	stored.Status = to

	return nil
}

func (f *fakeStore) DeleteDraftCascade(_ context.Context, id string) error {
	if _, ok := f.drafts[id]; !ok {
		return dataset.NotFound(dataset.CodeDatasetNotFound, "dataset %s not found", id)
	}

	delete(f.drafts, id)
	delete(f.transformations, id)
	delete(f.sourceConfigs, id)
	delete(f.draftSources, id)

	return nil
}

func (f *fakeStore) PromoteDraftToLive(_ context.Context, id string) error {
	draft, ok := f.drafts[id]
	if !ok {
		return dataset.NotFound(dataset.CodeDatasetNotFound, "dataset %s not found", id)
	}

	promoted := cloneDataset(draft)
	promoted.Status = dataset.StatusLive
	promoted.PublishedAt = time.Now().UTC()

	if existing, ok := f.live[id]; ok {
		promoted.DataVersion = existing.DataVersion + 1
	} else {
		promoted.DataVersion = 1
	}

	f.live[id] = promoted
	f.liveTransformations[id] = append([]dataset.TransformationConfig(nil), f.transformations[id]...)
	f.liveSourceConfigs[id] = append([]dataset.SourceConfig(nil), f.sourceConfigs[id]...)

	if ds, ok := f.draftSources[id]; ok {
		promotedDS := *ds
		promotedDS.Status = dataset.StatusLive
		f.liveSources[id] = &promotedDS
	}

	return nil
}

func (f *fakeStore) SetRetired(_ context.Context, id string) error {
	stored, ok := f.live[id]
	if !ok {
		return dataset.NotFound(dataset.CodeDatasetNotFound, "dataset %s not found", id)
	}

	if stored.Status != dataset.StatusLive {
		return dataset.Conflict(dataset.CodeInvalidTransition,
			"dataset %s is no longer Live", id)
	}

	stored.Status = dataset.StatusRetired

	if ds, ok := f.liveSources[id]; ok {
		ds.Status = dataset.StatusRetired
	}

	return nil
}

func (f *fakeStore) NextCachePartition(_ context.Context) (int, error) {
	f.nextPartition++

	return f.nextPartition, nil
}

func (f *fakeStore) DenormReferencers(_ context.Context, masterID string) ([]string, error) {
	seen := make(map[string]struct{})

	var out []string

	collect := func(d *dataset.Dataset) {
		for _, field := range d.DenormFields() {
			if field.DatasetID != masterID {
				continue
			}

			if _, ok := seen[d.ID]; !ok {
				seen[d.ID] = struct{}{}
				out = append(out, d.ID)
			}
		}
	}

	for _, d := range f.drafts {
		collect(d)
	}

	for _, d := range f.live {
		collect(d)
	}

	return out, nil
}

func (f *fakeStore) ListDraftTransformations(_ context.Context, datasetID string) ([]dataset.TransformationConfig, error) {
	return append([]dataset.TransformationConfig(nil), f.transformations[datasetID]...), nil
}

func (f *fakeStore) ListLiveTransformations(_ context.Context, datasetID string) ([]dataset.TransformationConfig, error) {
	return append([]dataset.TransformationConfig(nil), f.liveTransformations[datasetID]...), nil
}

func (f *fakeStore) ReplaceDraftTransformations(_ context.Context, datasetID string, tfs []dataset.TransformationConfig) error {
	f.transformations[datasetID] = append([]dataset.TransformationConfig(nil), tfs...)

	return nil
}

func (f *fakeStore) ListDraftSourceConfigs(_ context.Context, datasetID string) ([]dataset.SourceConfig, error) {
	return append([]dataset.SourceConfig(nil), f.sourceConfigs[datasetID]...), nil
}

func (f *fakeStore) ListLiveSourceConfigs(_ context.Context, datasetID string) ([]dataset.SourceConfig, error) {
	return append([]dataset.SourceConfig(nil), f.liveSourceConfigs[datasetID]...), nil
}

func (f *fakeStore) ReplaceDraftSourceConfigs(_ context.Context, datasetID string, configs []dataset.SourceConfig) error {
	f.sourceConfigs[datasetID] = append([]dataset.SourceConfig(nil), configs...)

	return nil
}

func (f *fakeStore) GetDraftDatasource(_ context.Context, datasetID string) (*dataset.Datasource, error) {
	ds, ok := f.draftSources[datasetID]
	if !ok {
		return nil, nil
	}

	out := *ds

	return &out, nil
}

func (f *fakeStore) GetLiveDatasource(_ context.Context, datasetID string) (*dataset.Datasource, error) {
	ds, ok := f.liveSources[datasetID]
	if !ok {
		return nil, nil
	}

	out := *ds

	return &out, nil
}

func (f *fakeStore) UpsertDraftDatasource(_ context.Context, ds *dataset.Datasource) error {
	stored := *ds
	f.draftSources[ds.DatasetID] = &stored

	return nil
}

func (f *fakeStore) InTx(_ context.Context, fn func(Store) error) error {
	if f.txErr != nil {
		return f.txErr
	}

	return fn(f)
}

// fakeOrchestrator records command-service calls.
type fakeOrchestrator struct {
	published  []string
	restarted  []string
	publishErr error
	restartErr error
}

var _ Orchestrator = (*fakeOrchestrator)(nil)

func (o *fakeOrchestrator) PublishDataset(_ context.Context, datasetID string) error {
	if o.publishErr != nil {
		return o.publishErr
	}

	o.published = append(o.published, datasetID)

	return nil
}

func (o *fakeOrchestrator) RestartPipeline(_ context.Context, datasetID string) error {
	if o.restartErr != nil {
		return o.restartErr
	}

	o.restarted = append(o.restarted, datasetID)

	return nil
}

// fakeSupervisors records supervisor terminations.
type fakeSupervisors struct {
	terminated []string
	err        error
}

var _ SupervisorAdmin = (*fakeSupervisors)(nil)

func (s *fakeSupervisors) TerminateSupervisor(_ context.Context, datasourceRef string) error {
	if s.err != nil {
		return s.err
	}

	s.terminated = append(s.terminated, datasourceRef)

	return nil
}

// fakePublisher records event batches by topic.
type fakePublisher struct {
	topics []string
	keys   []string
	events [][]json.RawMessage
	err    error
}

var _ EventPublisher = (*fakePublisher)(nil)

func (p *fakePublisher) Publish(_ context.Context, topic, key string, events []json.RawMessage) error {
	if p.err != nil {
		return p.err
	}

	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.events = append(p.events, events)

	return nil
}
