// Package importer reads boat and slot snapshots from external sources.
package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"harborplan/internal/model"
	"harborplan/internal/store"
)

var ErrFormat = errors.New("malformed input")

// Source is an external provider of a harbor snapshot.
type Source interface {
	Name() string
	Boats(ctx context.Context) ([]model.Boat, error)
	Slots(ctx context.Context) ([]model.Slot, error)
}

// Sink receives imported records. store.Store satisfies it. Lookups of
// missing ids must return store.ErrNotFound.
type Sink interface {
	GetBoat(ctx context.Context, id int64) (model.Boat, error)
	GetSlot(ctx context.Context, id int64) (model.Slot, error)
	CreateBoat(ctx context.Context, b model.Boat) (model.Boat, error)
	CreateSlot(ctx context.Context, s model.Slot) (model.Slot, error)
}

// FileSource reads boats and slots from CSV or JSON files, chosen by
// extension. Either path may be empty.
type FileSource struct {
	BoatsPath string
	SlotsPath string
}

func (f FileSource) Name() string { return "file" }

func (f FileSource) Boats(ctx context.Context) ([]model.Boat, error) {
	if f.BoatsPath == "" {
		return []model.Boat{}, nil
	}
	switch ext(f.BoatsPath) {
	case ".csv":
		return readBoatsCSV(f.BoatsPath)
	case ".json":
		return readJSON[model.Boat](f.BoatsPath)
	}
	return nil, fmt.Errorf("%w: unsupported boats file %s", ErrFormat, f.BoatsPath)
}

func (f FileSource) Slots(ctx context.Context) ([]model.Slot, error) {
	if f.SlotsPath == "" {
		return []model.Slot{}, nil
	}
	switch ext(f.SlotsPath) {
	case ".csv":
		return readSlotsCSV(f.SlotsPath)
	case ".json":
		return readJSON[model.Slot](f.SlotsPath)
	}
	return nil, fmt.Errorf("%w: unsupported slots file %s", ErrFormat, f.SlotsPath)
}

// ListBoats and ListSlots let a FileSource feed the planner directly.
func (f FileSource) ListBoats(ctx context.Context) ([]model.Boat, error) { return f.Boats(ctx) }
func (f FileSource) ListSlots(ctx context.Context) ([]model.Slot, error) { return f.Slots(ctx) }

func ext(path string) string { return strings.ToLower(filepath.Ext(path)) }

type Stats struct {
	Source string `json:"source"`
	Boats  int    `json:"boats"`
	Slots  int    `json:"slots"`
}

// Import validates the whole snapshot and checks that none of its ids is
// already stored before writing anything, then creates every slot and boat in
// dst. Readers number records without an id by their position in the file.
// A record written concurrently by another client between the check and the
// write still fails the import part way.
func Import(ctx context.Context, src Source, dst Sink) (Stats, error) {
	st := Stats{Source: src.Name()}
	boats, err := src.Boats(ctx)
	if err != nil {
		return st, fmt.Errorf("read boats: %w", err)
	}
	slots, err := src.Slots(ctx)
	if err != nil {
		return st, fmt.Errorf("read slots: %w", err)
	}
	if err := model.ValidateSnapshot(boats, slots); err != nil {
		return st, err
	}
	if err := preflight(ctx, dst, boats, slots); err != nil {
		return st, err
	}
	for _, s := range slots {
		if _, err := dst.CreateSlot(ctx, s); err != nil {
			return st, fmt.Errorf("slot %d: %w", s.ID, err)
		}
		st.Slots++
	}
	for _, b := range boats {
		if _, err := dst.CreateBoat(ctx, b); err != nil {
			return st, fmt.Errorf("boat %d: %w", b.ID, err)
		}
		st.Boats++
	}
	return st, nil
}

// preflight fails with store.ErrConflict when any id is already stored.
func preflight(ctx context.Context, dst Sink, boats []model.Boat, slots []model.Slot) error {
	for _, s := range slots {
		if err := absent(dst.GetSlot(ctx, s.ID)); err != nil {
			return fmt.Errorf("slot %d: %w", s.ID, err)
		}
	}
	for _, b := range boats {
		if err := absent(dst.GetBoat(ctx, b.ID)); err != nil {
			return fmt.Errorf("boat %d: %w", b.ID, err)
		}
	}
	return nil
}

func absent[T any](_ T, err error) error {
	switch {
	case err == nil:
		return store.ErrConflict
	case errors.Is(err, store.ErrNotFound):
		return nil
	}
	return err
}
