package service

import (
	"context"
	"log/slog"

	"github.com/conductor-io/conductor/internal/dataset"
)

// transitionState carries the record a transition plan operates on. Commands
// that enrich the draft (denorm partition indices, cache partition) mutate it
// in place so later commands in the same plan see the enriched copy.
type transitionState struct {
	record *dataset.Dataset
}

// Transition executes a lifecycle transition: validate the source status, run
// the transition's local commands in one transaction guarded by a conditional
// status update, then run the external commands after commit. External calls
// are not transactional; a failure between them leaves the local state
// committed and the same transition can be retried.
func (s *Service) Transition(ctx context.Context, id string, t dataset.Transition) error {
	if !t.IsValid() {
		return dataset.InvalidInput(dataset.CodeInvalidInput, "unknown transition %q", t)
	}

	record, err := s.transitionRecord(ctx, id, t)
	if err != nil {
		return err
	}

	if err := dataset.ValidateTransition(t, record.Status); err != nil {
		return err
	}

	st := &transitionState{record: record}

	var local, external []dataset.Step

	for _, step := range dataset.Plan(t) {
		if isExternal(step.Command) {
			external = append(external, step)
		} else {
			local = append(local, step)
		}
	}

	if len(local) > 0 {
		err = s.store.InTx(ctx, func(tx Store) error {
			if err := s.lockRecord(ctx, tx, t, record); err != nil {
				return err
			}

			return s.runSteps(ctx, tx, local, st)
		})
		if err != nil {
			return err
		}
	}

	if err := s.runSteps(ctx, s.store, external, st); err != nil {
		return err
	}

	if t == dataset.TransitionLive {
		return s.promote(ctx, record.ID)
	}

	s.logger.Info("Dataset transitioned",
		slog.String("dataset_id", id),
		slog.String("transition", string(t)),
	)

	return nil
}

// transitionRecord loads the record the transition operates on: the live copy
// for Retire, the draft for everything else.
func (s *Service) transitionRecord(ctx context.Context, id string, t dataset.Transition) (*dataset.Dataset, error) {
	if t.UsesLiveRecord() {
		return s.store.GetLive(ctx, id)
	}

	return s.store.GetDraft(ctx, id)
}

// lockRecord takes the per-row transition lock: a conditional update on the
// draft status that holds the row until the transaction ends and fails when a
// concurrent transition already moved it. Retire locks through its own
// conditional SetRetired instead.
func (s *Service) lockRecord(ctx context.Context, tx Store, t dataset.Transition, record *dataset.Dataset) error {
	if t.UsesLiveRecord() {
		return nil
	}

	return tx.SetDraftStatus(ctx, record.ID, record.Status, record.Status)
}

func (s *Service) runSteps(ctx context.Context, store Store, steps []dataset.Step, st *transitionState) error {
	for _, step := range steps {
		if err := s.runCommand(ctx, store, step.Command, st); err != nil {
			if step.BestEffort {
				s.logger.Warn("Best-effort transition step failed",
					slog.String("dataset_id", st.record.ID),
					slog.Int("command", int(step.Command)),
					slog.String("error", err.Error()),
				)

				continue
			}

			return err
		}
	}

	return nil
}

// runCommand executes one transition command. The switch is exhaustive over
// all commands; an unknown command is a programming error.
//
//nolint:cyclop // one arm per command, each a short delegation
func (s *Service) runCommand(ctx context.Context, store Store, cmd dataset.Command, st *transitionState) error {
	id := st.record.ID

	switch cmd {
	case dataset.CommandDeleteDraft:
		return store.DeleteDraftCascade(ctx, id)

	case dataset.CommandValidateConfigs:
		tfs, err := store.ListDraftTransformations(ctx, id)
		if err != nil {
			return err
		}

		return dataset.ValidateReady(st.record, tfs)

	case dataset.CommandSetReadyToPublish:
		return store.SetDraftStatus(ctx, id, dataset.StatusDraft, dataset.StatusReadyToPublish)

	case dataset.CommandValidateDenorms:
		return s.validateDenorms(ctx, store, st)

	case dataset.CommandAllocateCachePartition:
		return s.allocateCachePartition(ctx, store, st)

	case dataset.CommandCompileDatasource:
		return s.compileDatasource(ctx, store, st)

	case dataset.CommandPublishDataset:
		return s.orch.PublishDataset(ctx, id)

	case dataset.CommandCheckDenormUsage:
		return s.checkDenormUsage(ctx, store, st)

	case dataset.CommandSetRetired:
		return store.SetRetired(ctx, id)

	case dataset.CommandTerminateSupervisors:
		return s.terminateSupervisors(ctx, store, st)

	case dataset.CommandRestartPipeline:
		return s.orch.RestartPipeline(ctx, id)

	default:
		return dataset.Internal(nil, "unhandled transition command %d", cmd)
	}
}

// validateDenorms checks that every denorm master is Live and stamps the
// masters' cache partition indices onto the draft's denorm fields.
func (s *Service) validateDenorms(ctx context.Context, store Store, st *transitionState) error {
	fields := st.record.DenormFields()
	if len(fields) == 0 {
		return nil
	}

	for i, field := range fields {
		master, err := store.GetLive(ctx, field.DatasetID)
		if err != nil {
			if dataset.KindOf(err) == dataset.KindNotFound {
				return dataset.Conflict(dataset.CodeMasterNotLive,
					"dependent master dataset %s is not live", field.DatasetID)
			}

			return err
		}

		if master.Status != dataset.StatusLive {
			return dataset.Conflict(dataset.CodeMasterNotLive,
				"dependent master dataset %s is %s, not Live", master.ID, master.Status)
		}

		if master.CacheConfig != nil {
			fields[i].PartitionIndex = master.CacheConfig.PartitionIndex
		}
	}

	return store.SaveDraft(ctx, st.record)
}

// allocateCachePartition assigns a cache partition index to a master dataset
// that does not have one yet. Partition indices come from a database sequence
// starting at 1, so zero means unallocated.
func (s *Service) allocateCachePartition(ctx context.Context, store Store, st *transitionState) error {
	if st.record.Type != dataset.TypeMaster {
		return nil
	}

	if st.record.CacheConfig != nil && st.record.CacheConfig.PartitionIndex > 0 {
		return nil
	}

	index, err := store.NextCachePartition(ctx)
	if err != nil {
		return err
	}

	if st.record.CacheConfig == nil {
		st.record.CacheConfig = &dataset.CacheConfig{}
	}

	st.record.CacheConfig.PartitionIndex = index

	s.logger.Info("Cache partition allocated",
		slog.String("dataset_id", st.record.ID),
		slog.Int("partition_index", index),
	)

	return store.SaveDraft(ctx, st.record)
}

// compileDatasource compiles the ingestion and table specs and upserts the
// draft datasource. The table spec evolves against the previously persisted
// one (draft first, else live) so column indices stay stable across
// republishes.
func (s *Service) compileDatasource(ctx context.Context, store Store, st *transitionState) error {
	d := st.record

	tfs, err := store.ListDraftTransformations(ctx, d.ID)
	if err != nil {
		return err
	}

	existing, err := store.GetDraftDatasource(ctx, d.ID)
	if err != nil {
		return err
	}

	if existing == nil {
		existing, err = store.GetLiveDatasource(ctx, d.ID)
		if err != nil {
			return err
		}
	}

	var existingTableSpec []byte
	if existing != nil {
		existingTableSpec = existing.TableSpec
	}

	ref := dataset.DatasourceRef(d.ID)

	ingestionSpec, err := s.compiler.MarshalIngestionSpec(ctx, d, ref, tfs)
	if err != nil {
		return err
	}

	tableSpec, err := s.compiler.MarshalTableSpec(ctx, d, ref, tfs, existingTableSpec)
	if err != nil {
		return err
	}

	return store.UpsertDraftDatasource(ctx, &dataset.Datasource{
		ID:            d.ID + "_" + ref,
		DatasetID:     d.ID,
		DatasourceRef: ref,
		Type:          "druid",
		IngestionSpec: ingestionSpec,
		TableSpec:     tableSpec,
		Status:        dataset.StatusDraft,
	})
}

// checkDenormUsage fails the retire of a master dataset when any other
// dataset still references it as a denorm master. Only masters can be
// referenced, so the scan is skipped for event datasets.
func (s *Service) checkDenormUsage(ctx context.Context, store Store, st *transitionState) error {
	if st.record.Type != dataset.TypeMaster {
		return nil
	}

	id := st.record.ID

	referencers, err := store.DenormReferencers(ctx, id)
	if err != nil {
		return err
	}

	others := referencers[:0]

	for _, ref := range referencers {
		if ref != id {
			others = append(others, ref)
		}
	}

	if len(others) > 0 {
		return dataset.Conflict(dataset.CodeDatasetInUse,
			"dataset %s is referenced by denorm configs of %v", id, others)
	}

	return nil
}

// terminateSupervisors requests termination of the dataset's running
// ingestion supervisor. Master datasets have no supervisor.
func (s *Service) terminateSupervisors(ctx context.Context, store Store, st *transitionState) error {
	if st.record.Type == dataset.TypeMaster {
		return nil
	}

	ds, err := store.GetLiveDatasource(ctx, st.record.ID)
	if err != nil {
		return err
	}

	if ds == nil {
		return nil
	}

	return s.supervisors.TerminateSupervisor(ctx, ds.DatasourceRef)
}

// promote copies the draft into the live tables and clears the draft rows,
// both in one transaction. It runs after the publish call succeeded. With the
// draft gone, the next edit derives a fresh draft from the live record.
func (s *Service) promote(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(tx Store) error {
		if err := tx.PromoteDraftToLive(ctx, id); err != nil {
			return err
		}

		return tx.DeleteDraftCascade(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Dataset published", slog.String("dataset_id", id))

	return nil
}

// isExternal reports whether the command calls out of the database. External
// commands run after the local transaction committed.
func isExternal(cmd dataset.Command) bool {
	switch cmd {
	case dataset.CommandPublishDataset,
		dataset.CommandTerminateSupervisors,
		dataset.CommandRestartPipeline:
		return true
	default:
		return false
	}
}
