//go:build darwin

package hostfs

import "golang.org/x/sys/unix"

func timestamps(st *unix.Stat_t) (atime, mtime, ctime int64) {
	return st.Atim.Sec, st.Mtim.Sec, st.Ctim.Sec
}
