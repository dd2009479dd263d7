package gb_test

import (
	"os"
	"path/filepath"
	"testing"

	"gb-go/internal/gb"
	"gb-go/internal/testutil"
)

// newDevice returns a device rooted in a fresh temp dir with one source
// directory.
func newDevice(t *testing.T) (gb.Device, string) {
	t.Helper()
	src := filepath.Join(t.TempDir(), "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	return gb.Device{
		Name:              "usb",
		Root:              t.TempDir(),
		WorkingFolderName: "laptop",
		Kind:              gb.DeviceLocal,
		Sources:           []gb.Source{{Path: src}},
	}, src
}

// seedGeneration writes content for the absolute source path into an
// existing generation of the device.
func seedGeneration(t *testing.T, device gb.Device, generation, srcPath, content string) {
	t.Helper()
	testutil.WriteFile(t, filepath.Join(device.WorkingFolder(), generation, gb.MapPath(srcPath)), content)
}

// generationTree returns the files of a generation keyed relative to the
// mapped source directory.
func generationTree(t *testing.T, device gb.Device, generation, src string) map[string]string {
	t.Helper()
	root := filepath.Join(device.WorkingFolder(), generation, gb.MapPath(src))
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return map[string]string{}
	}
	return testutil.ReadTree(t, root)
}
