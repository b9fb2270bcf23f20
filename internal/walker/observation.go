package walker

import (
	"os"
	"syscall"
	"time"

	"github.com/photodedupe/photodedupe/internal/types"
)

// newObservation builds a FileObservation from a resolved path, its media
// classification, and the os.FileInfo already paid for during the directory
// read.
func newObservation(path string, media types.MediaType, info os.FileInfo) FileObservation {
	return FileObservation{
		Path:      path,
		MediaType: media,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		CTime:     ctime(info),
	}
}

// ctime reads the inode change time from the platform-specific stat
// structure, falling back to ModTime if unavailable.
func ctime(info os.FileInfo) time.Time {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
}
