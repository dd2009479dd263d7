package gb

import (
	"path/filepath"
	"strings"
)

// MapPath converts an absolute source path into the relative path it occupies
// inside every generation folder.
//
// A drive volume such as "C:" becomes the leading segment "C" and a UNC volume
// "\\host\share" becomes "UNC\host\share". Leading separators are stripped and
// the remaining structure is kept, so "/data/a.txt" maps to "data/a.txt".
func MapPath(absPath string) string {
	p := filepath.Clean(absPath)
	vol := filepath.VolumeName(p)
	rest := strings.TrimLeft(p[len(vol):], string(filepath.Separator))
	return filepath.Join(volumeSegment(vol), rest)
}

func volumeSegment(vol string) string {
	switch {
	case vol == "":
		return ""
	case len(vol) == 2 && vol[1] == ':':
		return vol[:1]
	default:
		// Drive letters are a single character, so "UNC" never collides.
		return filepath.Join("UNC", strings.TrimLeft(vol, `\/`))
	}
}
