package config

import (
	"context"

	"github.com/vitalstream/vitalstream/pkg/confwatch"
)

// Watch calls onChange with the newly loaded Config each time the file at
// path changes, until ctx is cancelled. Invalid files are logged and skipped.
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
