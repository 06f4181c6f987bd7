package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"harborplan/internal/model"
	"harborplan/internal/store"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

const boatsCSV = `id,name,width,arrival,departure
1,Aurora,3.5,2024-06-01T00:00:00Z,2024-06-05T00:00:00Z
2,Beluga,4.2,2024-06-03T12:00:00Z,2024-06-10T00:00:00Z
`

const slotsCSV = `ID,Name,Max_Width,Reserved,Available_From,Available_Until,Type
10,A1,4,false,,,guest
11,B1,5,true,2024-06-01T00:00:00Z,2024-07-01T00:00:00Z,FLEX
`

func TestFileSourceCSV(t *testing.T) {
	dir := t.TempDir()
	src := FileSource{BoatsPath: writeFile(t, dir, "boats.csv", boatsCSV), SlotsPath: writeFile(t, dir, "slots.csv", slotsCSV)}
	boats, err := src.Boats(context.Background())
	if err != nil {
		t.Fatalf("boats: %v", err)
	}
	if len(boats) != 2 || boats[1].Name != "Beluga" || boats[1].Width != 4.2 || boats[1].Arrival.Hour() != 12 {
		t.Fatalf("unexpected boats: %+v", boats)
	}
	slots, err := src.Slots(context.Background())
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 2 || slots[0].HasWindow() || slots[0].Reserved {
		t.Fatalf("slot 10 should be free without window: %+v", slots[0])
	}
	if !slots[1].Temporary() || slots[1].Type != model.SlotFlex || slots[1].ID != 11 {
		t.Fatalf("slot 11 should be a temporary flex slot: %+v", slots[1])
	}
}

func TestFileSourceJSONNumbersMissingIDs(t *testing.T) {
	dir := t.TempDir()
	src := FileSource{
		BoatsPath: writeFile(t, dir, "boats.json", `[{"width":3,"arrival":"2024-06-01T00:00:00Z","departure":"2024-06-02T00:00:00Z"},{"id":7,"width":2,"arrival":"2024-06-01T00:00:00Z","departure":"2024-06-03T00:00:00Z"}]`),
		SlotsPath: writeFile(t, dir, "slots.json", `[{"maxWidth":4}]`),
	}
	boats, err := src.Boats(context.Background())
	if err != nil || len(boats) != 2 || boats[0].ID != 1 || boats[1].ID != 7 {
		t.Fatalf("boats: %+v %v", boats, err)
	}
	slots, err := src.Slots(context.Background())
	if err != nil || len(slots) != 1 || slots[0].ID != 1 || slots[0].MaxWidth != 4 {
		t.Fatalf("slots: %+v %v", slots, err)
	}
}

func TestFileSourceErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]FileSource{
		"bad width":      {BoatsPath: writeFile(t, dir, "w.csv", "id,width,arrival,departure\n1,wide,2024-06-01T00:00:00Z,2024-06-02T00:00:00Z\n")},
		"bad time":       {BoatsPath: writeFile(t, dir, "t.csv", "id,width,arrival,departure\n1,3,June 1st,2024-06-02T00:00:00Z\n")},
		"missing column": {BoatsPath: writeFile(t, dir, "c.csv", "id,width,arrival\n1,3,2024-06-01T00:00:00Z\n")},
		"empty":          {BoatsPath: writeFile(t, dir, "e.csv", "")},
		"bad json":       {BoatsPath: writeFile(t, dir, "b.json", "{")},
		"extension":      {BoatsPath: writeFile(t, dir, "b.xml", "<boats/>")},
	}
	for name, src := range cases {
		if _, err := src.Boats(context.Background()); !errors.Is(err, ErrFormat) {
			t.Fatalf("%s: expected ErrFormat, got %v", name, err)
		}
	}
	_, err := FileSource{SlotsPath: writeFile(t, dir, "r.csv", "id,max_width,reserved\n1,4,maybe\n")}.Slots(context.Background())
	if !errors.Is(err, ErrFormat) || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line number in error, got %v", err)
	}
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	src := FileSource{BoatsPath: writeFile(t, dir, "boats.csv", boatsCSV), SlotsPath: writeFile(t, dir, "slots.csv", slotsCSV)}
	mem := store.NewMemory()
	ctx := context.Background()
	st, err := Import(ctx, src, mem)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if st.Boats != 2 || st.Slots != 2 || st.Source != "file" {
		t.Fatalf("stats: %+v", st)
	}
	if b, err := mem.GetBoat(ctx, 2); err != nil || b.Name != "Beluga" {
		t.Fatalf("boat 2: %+v %v", b, err)
	}
	if _, err := Import(ctx, src, mem); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("re-import should conflict, got %v", err)
	}
}

func TestImportRejectsInvalidSnapshot(t *testing.T) {
	dir := t.TempDir()
	src := FileSource{BoatsPath: writeFile(t, dir, "boats.csv", "id,width,arrival,departure\n1,3,2024-06-05T00:00:00Z,2024-06-01T00:00:00Z\n")}
	mem := store.NewMemory()
	if _, err := Import(context.Background(), src, mem); !errors.Is(err, model.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if boats, _ := mem.ListBoats(context.Background()); len(boats) != 0 {
		t.Fatalf("nothing should be written: %+v", boats)
	}
}

func TestImportConflictWritesNothing(t *testing.T) {
	dir := t.TempDir()
	src := FileSource{BoatsPath: writeFile(t, dir, "boats.csv", boatsCSV), SlotsPath: writeFile(t, dir, "slots.csv", slotsCSV)}
	mem := store.NewMemory()
	ctx := context.Background()
	if _, err := mem.CreateBoat(ctx, model.Boat{ID: 2, Width: 1, Arrival: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), Departure: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	st, err := Import(ctx, src, mem)
	if !errors.Is(err, store.ErrConflict) || !strings.Contains(err.Error(), "boat 2") {
		t.Fatalf("expected conflict on boat 2, got %v", err)
	}
	if st.Slots != 0 || st.Boats != 0 {
		t.Fatalf("stats: %+v", st)
	}
	slots, _ := mem.ListSlots(ctx)
	boats, _ := mem.ListBoats(ctx)
	if len(slots) != 0 || len(boats) != 1 {
		t.Fatalf("conflicting import wrote records: %+v %+v", slots, boats)
	}
}
