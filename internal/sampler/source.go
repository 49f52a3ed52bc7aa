package sampler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/stone-age-io/sysmetrics/internal/hostfs"
)

// openSource opens the resolved path for resource. Each call gets its own
// descriptor, so samplers never share file handles
func openSource(r *hostfs.Resolver, resource string) (*os.File, error) {
	path, found := r.Resolve(resource)
	if !found {
		return nil, fmt.Errorf("%s: %w", resource, ErrSourceUnavailable)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, classify(resource, err)
	}
	return f, nil
}

// readSource reads the whole resolved source for resource
func readSource(r *hostfs.Resolver, resource string) ([]byte, error) {
	path, found := r.Resolve(resource)
	if !found {
		return nil, fmt.Errorf("%s: %w", resource, ErrSourceUnavailable)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, classify(resource, err)
	}
	return data, nil
}

func classify(what string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%s: %w: %v", what, ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w: %v", what, ErrSourceUnavailable, err)
}
