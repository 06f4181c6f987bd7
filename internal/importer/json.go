package importer

import (
	"encoding/json"
	"fmt"
	"os"

	"harborplan/internal/model"
)

type record interface {
	model.Boat | model.Slot
}

// readJSON decodes a JSON array of boats or slots. Zero ids are numbered by
// position.
func readJSON[T record](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}
	if out == nil {
		out = []T{}
	}
	for i := range out {
		switch r := any(&out[i]).(type) {
		case *model.Boat:
			if r.ID == 0 {
				r.ID = int64(i + 1)
			}
		case *model.Slot:
			if r.ID == 0 {
				r.ID = int64(i + 1)
			}
		}
	}
	return out, nil
}
