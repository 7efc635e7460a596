package property

import (
	"context"
	"os"
)

// envSource resolves keys against the process-wide environment mapping.
// Lookup is synchronous at the boundary but exposed through the async
// Source contract for uniformity with remote-backed sources.
type envSource struct{}

func (envSource) Lookup(_ context.Context, key string) (*string, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// NewAppSettingsPropertyManager returns a PropertyManager backed by the
// process environment.
func NewAppSettingsPropertyManager() *Manager {
	return NewManager(envSource{})
}
