//go:build !linux && !darwin && !freebsd

package sampler

import "errors"

func statfs(string) (fsUsage, error) {
	return fsUsage{}, errors.ErrUnsupported
}
