package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/storage"
)

// SaveChanges persists every pending entry through store and returns the
// number of entries written. Entries are only updated after the store
// committed the whole batch; on failure every entry keeps its state and values.
func (sm *StateManager) SaveChanges(ctx context.Context, store storage.Store) (int, error) {
	release, err := sm.BeginOperation()
	if err != nil {
		return 0, err
	}
	defer release()

	if sm.autoDetect {
		if err := sm.detector.DetectChanges(); err != nil {
			return 0, err
		}
	}

	var pending []*InternalEntityEntry
	for _, e := range sm.entries {
		if e.state.HasPendingChanges() {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := sm.observer.SavingChanges(ctx, pending); err != nil {
		return 0, err
	}

	ordered := sm.orderForSave(pending)
	commands := make([]storage.Command, len(ordered))
	for i, e := range ordered {
		commands[i] = sm.command(e)
	}

	results, err := store.Save(ctx, commands)
	if err != nil {
		err = sm.saveError(err)
		sm.logger.Warn("saving changes failed", zap.Int("entries", len(ordered)), zap.Error(err))
		sm.observer.SaveChangesFailed(ctx, err)
		return 0, err
	}

	for i, e := range ordered {
		if i < len(results) {
			sm.mergeGenerated(e, results[i].Values)
		}
	}
	for _, e := range ordered {
		sm.acceptChanges(e)
	}

	sm.logger.Info("changes saved", zap.Int("entries", len(ordered)))
	sm.observer.SavedChanges(ctx, len(ordered))
	return len(ordered), nil
}

func (sm *StateManager) command(e *InternalEntityEntry) storage.Command {
	cmd := storage.Command{
		EntityType: e.entityType,
		Values:     e.valueMap(false),
	}
	switch e.state {
	case Added:
		cmd.Operation = storage.OpInsert
		cmd.TemporaryProperties = e.temporaryProperties()
	case Modified:
		cmd.Operation = storage.OpUpdate
		cmd.OriginalValues = e.valueMap(true)
		cmd.TemporaryProperties = e.temporaryProperties()
		for _, p := range e.ModifiedProperties() {
			cmd.ModifiedProperties = append(cmd.ModifiedProperties, p.Name())
		}
	case Deleted:
		cmd.Operation = storage.OpDelete
		cmd.OriginalValues = e.valueMap(true)
	}
	return cmd
}

// mergeGenerated writes store generated values back into e, moving it in
// the identity map when its primary key changed
func (sm *StateManager) mergeGenerated(e *InternalEntityEntry, values map[string]interface{}) {
	if len(values) == 0 || e.state == Deleted {
		return
	}
	rekey := false
	for name := range values {
		if p := e.entityType.FindProperty(name); p != nil && p.IsPrimaryKey() {
			rekey = true
		}
	}
	im := sm.identityFor(e.entityType)
	if rekey {
		im.remove(e)
	}
	for name, value := range values {
		if p := e.entityType.FindProperty(name); p != nil {
			e.setCurrentValue(p, value)
		}
	}
	if !rekey {
		return
	}
	if conflict := im.add(e); conflict != nil {
		fields := []zap.Field{zap.String("entity_type", e.entityType.Name())}
		if sm.sensitive {
			fields = append(fields, zap.Any("key", e.Key()))
		}
		sm.logger.Error("store generated key is already tracked by another entity", fields...)
	}
}

// orderForSave returns deletes first, dependents before principals, and then
// inserts and updates with principals before dependents
func (sm *StateManager) orderForSave(pending []*InternalEntityEntry) []*InternalEntityEntry {
	rank := sm.typeRanks()
	position := make(map[*InternalEntityEntry]int, len(pending))
	for i, e := range pending {
		position[e] = i
	}

	var deletes, writes []*InternalEntityEntry
	for _, e := range pending {
		if e.state == Deleted {
			deletes = append(deletes, e)
		} else {
			writes = append(writes, e)
		}
	}
	byRank := func(list []*InternalEntityEntry, descending bool) {
		sort.SliceStable(list, func(i, j int) bool {
			ri, rj := rank[list[i].entityType.Name()], rank[list[j].entityType.Name()]
			if ri != rj {
				if descending {
					return ri > rj
				}
				return ri < rj
			}
			return position[list[i]] < position[list[j]]
		})
	}
	byRank(deletes, true)
	byRank(writes, false)

	dependents := make(map[*InternalEntityEntry][]*InternalEntityEntry)
	for _, e := range deletes {
		for _, principal := range e.principals {
			dependents[principal] = append(dependents[principal], e)
		}
	}

	ordered := make([]*InternalEntityEntry, 0, len(pending))
	visited := make(map[*InternalEntityEntry]bool, len(pending))
	var visit func(e *InternalEntityEntry, before func(*InternalEntityEntry) []*InternalEntityEntry)
	visit = func(e *InternalEntityEntry, before func(*InternalEntityEntry) []*InternalEntityEntry) {
		if visited[e] {
			return
		}
		visited[e] = true
		for _, other := range before(e) {
			if _, ok := position[other]; ok && (other.state == Deleted) == (e.state == Deleted) {
				visit(other, before)
			}
		}
		ordered = append(ordered, e)
	}

	for _, e := range deletes {
		visit(e, func(e *InternalEntityEntry) []*InternalEntityEntry { return dependents[e] })
	}
	for _, e := range writes {
		visit(e, principalsOf)
	}
	return ordered
}

// principalsOf returns the principals of e in a stable order
func principalsOf(e *InternalEntityEntry) []*InternalEntityEntry {
	fks := make([]*schema.ForeignKey, 0, len(e.principals))
	for fk := range e.principals {
		fks = append(fks, fk)
	}
	sort.Slice(fks, func(i, j int) bool {
		return schema.FormatProperties(fks[i].Properties()) < schema.FormatProperties(fks[j].Properties())
	})
	result := make([]*InternalEntityEntry, len(fks))
	for i, fk := range fks {
		result[i] = e.principals[fk]
	}
	return result
}

// typeRanks orders entity types principals first. Cycles through optional
// foreign keys are broken by ranking with required foreign keys only.
func (sm *StateManager) typeRanks() map[string]int {
	order, err := schema.NewDependencyGraph(sm.model, nil).TopologicalSort()
	if err != nil {
		order, err = schema.NewDependencyGraph(sm.model, func(fk *schema.ForeignKey) bool {
			return fk.IsRequired()
		}).TopologicalSort()
	}
	rank := make(map[string]int)
	if err != nil {
		for i, et := range sm.model.GetEntityTypes() {
			rank[et.Name()] = i
		}
		return rank
	}
	for i, name := range order {
		rank[name] = i
	}
	return rank
}

// saveError renders store failures for the caller
func (sm *StateManager) saveError(err error) error {
	var cmdErr *storage.CommandError
	if errors.As(err, &cmdErr) && storage.IsConcurrencyConflict(cmdErr.Err) {
		cmd := cmdErr.Command
		key := cmd.OriginalValues
		if key == nil {
			key = cmd.Values
		}
		et := cmd.EntityType
		values := make([]interface{}, 0)
		if pk := et.FindPrimaryKey(); pk != nil {
			for _, p := range pk.Properties() {
				values = append(values, key[p.Name()])
			}
		}
		return newError(ErrConcurrencyFailure,
			"The %s of entity type '%s' with key %s was expected to affect 1 row(s), but actually affected 0 row(s); "+
				"data may have been modified or deleted since entities were loaded.",
			cmd.Operation, et.DisplayName(), sm.describeKey(et, values))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("saving changes: %w", err)
}
