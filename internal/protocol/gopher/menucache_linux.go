package gopher

import (
	"io/fs"
	"syscall"
)

type fileIdentity struct {
	dev   uint64
	ino   uint64
	ctime int64
}

func identityOf(info fs.FileInfo) fileIdentity {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fileIdentity{}
	}
	return fileIdentity{
		dev:   uint64(st.Dev),
		ino:   st.Ino,
		ctime: st.Ctim.Nano(),
	}
}
