package sampler

import "golang.org/x/sys/unix"

// statfs reports block totals for the filesystem containing path, sized by
// the fragment size the kernel reports alongside the block counts
func statfs(path string) (fsUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return fsUsage{}, err
	}

	frsize := uint64(st.Frsize)
	if frsize == 0 {
		frsize = uint64(st.Bsize)
	}
	return fsUsage{
		Total: st.Blocks * frsize,
		Free:  st.Bfree * frsize,
	}, nil
}
