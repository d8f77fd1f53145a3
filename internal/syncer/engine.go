// Package syncer reconciles the local project store with the global store
// shared across working environments. Reconciliation is per-entity and
// last-writer-wins: each entity write is its own optimistic transaction, so
// two syncs racing on disjoint entities proceed independently and a failure
// mid-sync leaves a clearly reportable partial result.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/scoutproject/scout/internal/storage"
)

// Direction selects which way a sync moves data.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
	DirectionBoth Direction = "both"
)

// Side names for conflict reporting.
const (
	SideLocal  = "local"
	SideGlobal = "global"
)

// Conflict records one entity both sides had modified and which side's copy
// survived.
type Conflict struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Winner string `json:"winner"`
}

// Failure records one entity whose transfer failed. Entities after the
// first failure are left untouched on both sides.
type Failure struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Report enumerates what a sync did.
type Report struct {
	Pushed    []storage.EntityRef `json:"pushed"`
	Pulled    []storage.EntityRef `json:"pulled"`
	Unchanged []storage.EntityRef `json:"unchanged"`
	Conflicts []Conflict          `json:"conflicts"`
	Failures  []Failure           `json:"failures"`
	Partial   bool                `json:"partial"`
}

// Engine reconciles two entity stores.
type Engine struct {
	local  storage.EntityStore
	global storage.EntityStore
	log    *zap.Logger
}

// New creates a sync engine over the local and global stores.
func New(local, global storage.EntityStore, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{local: local, global: global, log: log}
}

// Sync reconciles the two stores in the given direction and reports every
// entity's fate. Conflicts resolve last-writer-wins by timestamp; an exact
// timestamp tie goes to the initiating direction (for "both", the push leg
// runs first and takes the tie). Sync never deletes on either side. On a
// mid-sync failure the report carries what committed, Partial is set, and
// the error is returned alongside the report.
func (e *Engine) Sync(ctx context.Context, dir Direction) (*Report, error) {
	rep := &Report{
		Pushed:    []storage.EntityRef{},
		Pulled:    []storage.EntityRef{},
		Unchanged: []storage.EntityRef{},
		Conflicts: []Conflict{},
		Failures:  []Failure{},
	}

	switch dir {
	case DirectionPush:
		if err := e.transfer(ctx, e.local, e.global, SideLocal, true, rep, &rep.Pushed); err != nil {
			return rep, err
		}
	case DirectionPull:
		if err := e.transfer(ctx, e.global, e.local, SideGlobal, true, rep, &rep.Pulled); err != nil {
			return rep, err
		}
	case DirectionBoth:
		if err := e.transfer(ctx, e.local, e.global, SideLocal, true, rep, &rep.Pushed); err != nil {
			return rep, err
		}
		if err := e.transfer(ctx, e.global, e.local, SideGlobal, false, rep, &rep.Pulled); err != nil {
			return rep, err
		}
	default:
		return nil, fmt.Errorf("unknown sync direction %q: %w", dir, storage.ErrValidation)
	}

	e.log.Info("sync complete",
		zap.String("direction", string(dir)),
		zap.Int("pushed", len(rep.Pushed)),
		zap.Int("pulled", len(rep.Pulled)),
		zap.Int("unchanged", len(rep.Unchanged)),
		zap.Int("conflicts", len(rep.Conflicts)),
		zap.Int("failures", len(rep.Failures)),
	)

	return rep, nil
}

// transfer moves fresher entities from src to dst, entity by entity in a
// deterministic order. srcSide labels the source for conflict reporting;
// tiesWin controls whether an exact timestamp tie is overwritten (the
// initiating direction's privilege).
func (e *Engine) transfer(ctx context.Context, src, dst storage.EntityStore,
	srcSide string, tiesWin bool, rep *Report, moved *[]storage.EntityRef) error {

	srcRefs, err := src.ListEntities(ctx)
	if err != nil {
		rep.Partial = true
		return fmt.Errorf("list %s entities: %w", srcSide, err)
	}
	sortRefs(srcRefs)

	dstRefs, err := dst.ListEntities(ctx)
	if err != nil {
		rep.Partial = true
		return fmt.Errorf("list destination entities: %w", err)
	}
	dstByKey := make(map[string]storage.EntityRef, len(dstRefs))
	for _, ref := range dstRefs {
		dstByKey[ref.Kind+"/"+ref.ID] = ref
	}

	dstSide := SideGlobal
	if srcSide == SideGlobal {
		dstSide = SideLocal
	}

	for _, ref := range srcRefs {
		existing, exists := dstByKey[ref.Kind+"/"+ref.ID]
		tied := exists && existing.UpdatedAt.Equal(ref.UpdatedAt)

		if exists {
			switch {
			case existing.UpdatedAt.After(ref.UpdatedAt):
				// Destination already has the later write.
				rep.Conflicts = append(rep.Conflicts, Conflict{ref.Kind, ref.ID, dstSide})
				rep.Unchanged = append(rep.Unchanged, ref)
				continue
			case tied && !tiesWin:
				rep.Unchanged = append(rep.Unchanged, ref)
				continue
			}
		}

		entity, err := src.GetEntity(ctx, ref.Kind, ref.ID)
		if err != nil {
			rep.Failures = append(rep.Failures, Failure{ref.Kind, ref.ID, err.Error()})
			rep.Partial = true
			return fmt.Errorf("read %s entity %s/%s: %w", srcSide, ref.Kind, ref.ID, err)
		}

		if tied {
			// Same stamp on both sides is almost always the same write.
			// Only a genuine concurrent divergence invokes the tie-break.
			dstEntity, derr := dst.GetEntity(ctx, ref.Kind, ref.ID)
			if derr == nil && bytes.Equal(dstEntity.Payload, entity.Payload) {
				rep.Unchanged = append(rep.Unchanged, ref)
				continue
			}
		}

		written, err := dst.PutEntity(ctx, entity, tiesWin)
		if err != nil {
			if errors.Is(err, storage.ErrConflict) {
				// Destination invariant keeps its own copy (e.g. a pulled
				// active session beside a different local active one).
				// Not destructive, not fatal: record and move on.
				rep.Conflicts = append(rep.Conflicts, Conflict{ref.Kind, ref.ID, dstSide})
				rep.Unchanged = append(rep.Unchanged, ref)
				continue
			}
			rep.Failures = append(rep.Failures, Failure{ref.Kind, ref.ID, err.Error()})
			rep.Partial = true
			return fmt.Errorf("write entity %s/%s: %w", ref.Kind, ref.ID, err)
		}

		if !written {
			// The optimistic check inside PutEntity saw a newer write land
			// after we listed: the destination won the race.
			rep.Conflicts = append(rep.Conflicts, Conflict{ref.Kind, ref.ID, dstSide})
			rep.Unchanged = append(rep.Unchanged, ref)
			continue
		}

		*moved = append(*moved, ref)
		if exists {
			rep.Conflicts = append(rep.Conflicts, Conflict{ref.Kind, ref.ID, srcSide})
		}
	}

	return nil
}

func sortRefs(refs []storage.EntityRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].ID < refs[j].ID
	})
}
