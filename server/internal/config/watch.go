package config

import (
	"context"

	"github.com/vitalstream/vitalstream/pkg/confwatch"
)

// Watch calls onChange with the newly loaded Config each time the file at
// path changes. It runs until ctx is cancelled. An invalid file is logged
// and skipped; onChange only ever sees configs that passed validation.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return confwatch.Watch(ctx, path, 0, func() error {
		cfg, err := Load(path)
		if err != nil {
			return err
		}
		onChange(cfg)
		return nil
	})
}
