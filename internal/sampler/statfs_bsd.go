//go:build darwin || freebsd

package sampler

import "golang.org/x/sys/unix"

// statfs reports block totals for the filesystem containing path
func statfs(path string) (fsUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return fsUsage{}, err
	}

	bsize := uint64(st.Bsize)
	return fsUsage{
		Total: uint64(st.Blocks) * bsize,
		Free:  uint64(st.Bfree) * bsize,
	}, nil
}
