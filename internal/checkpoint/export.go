package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// Export formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Export writes the latest checkpoint of runID to w in the given format. With
// withHistory set the full checkpoint history is written instead.
func Export(ctx context.Context, store Store, runID, format string, withHistory bool, w io.Writer) error {
	var doc any
	if withHistory {
		h, err := store.History(ctx, runID)
		if err != nil {
			return err
		}
		if len(h) == 0 {
			return fmt.Errorf("%w: run %s", ErrNotFound, runID)
		}
		doc = h
	} else {
		cp, err := store.Load(ctx, runID)
		if err != nil {
			return err
		}
		doc = cp
	}

	switch format {
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
