package capture

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultDeviceDir is where V4L2 device nodes live.
const DefaultDeviceDir = "/dev"

// Discover lists video* device nodes under dir ordered by index, so
// /dev/video2 comes before /dev/video10.
func Discover(dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "video*"))
	if err != nil {
		return nil
	}

	devices := matches[:0]
	for _, m := range matches {
		if _, ok := deviceIndex(m); ok {
			devices = append(devices, m)
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		a, _ := deviceIndex(devices[i])
		b, _ := deviceIndex(devices[j])
		return a < b
	})
	return devices
}

func deviceIndex(path string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(path), "video"))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
