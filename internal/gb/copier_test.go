package gb_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"gb-go/internal/fs"
	"gb-go/internal/gb"
	"gb-go/internal/testutil"
)

// newCopier prepares generation gen of device and returns a copier for it.
func newCopier(t *testing.T, device gb.Device, gen string, matcher gb.Matcher, opts gb.CopyOptions) (*gb.TreeCopier, string) {
	t.Helper()
	chain, err := gb.NewChain(device)
	if err != nil {
		t.Fatalf("NewChain() error = %v", err)
	}
	target := chain.Path(gen)
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	return gb.NewTreeCopier(chain, target, fs.NewOSFilesystem(), matcher, opts, gb.NewNopLogger()), target
}

func TestTreeCopier_FirstBackup(t *testing.T) {
	device, src := newDevice(t)
	testutil.WriteFile(t, filepath.Join(src, "a.txt"), "alpha")
	testutil.WriteFile(t, filepath.Join(src, "dir", "b.txt"), "beta")
	testutil.WriteFile(t, filepath.Join(src, "dir", "deep", "c.txt"), "gamma")
	if err := os.MkdirAll(filepath.Join(src, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	c, target := newCopier(t, device, "20240101", nil, gb.DefaultCopyOptions())
	if err := c.CopyTree(context.Background(), src); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	got := generationTree(t, device, "20240101", src)
	want := map[string]string{"a.txt": "alpha", "dir/b.txt": "beta", "dir/deep/c.txt": "gamma"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("generation = %v, want %v", got, want)
	}

	info, err := os.Stat(filepath.Join(target, gb.MapPath(src), "empty"))
	if err != nil || !info.IsDir() {
		t.Errorf("empty directory not mirrored: %v", err)
	}

	sum := c.Summary()
	if sum.Copied != 3 || sum.Skipped != 0 {
		t.Errorf("Summary = %+v, want 3 copied 0 skipped", sum)
	}
	if sum.BytesCopied != int64(len("alpha")+len("beta")+len("gamma")) {
		t.Errorf("BytesCopied = %d", sum.BytesCopied)
	}
	if sum.Generation != "20240101" || sum.Device != "usb" {
		t.Errorf("Summary identity = %q/%q", sum.Device, sum.Generation)
	}
}

func TestTreeCopier_Incremental(t *testing.T) {
	device, src := newDevice(t)
	same := filepath.Join(src, "same.txt")
	changed := filepath.Join(src, "changed.txt")
	added := filepath.Join(src, "sub", "added.txt")
	testutil.WriteFile(t, same, "hello")
	testutil.WriteFile(t, changed, "hello!")
	testutil.WriteFile(t, added, "new")

	seedGeneration(t, device, "20240101", same, "hello")
	seedGeneration(t, device, "20240101", changed, "hello")

	c, _ := newCopier(t, device, "20240102", nil, gb.DefaultCopyOptions())
	if err := c.CopyTree(context.Background(), src); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	got := generationTree(t, device, "20240102", src)
	want := map[string]string{"changed.txt": "hello!", "sub/added.txt": "new"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("generation = %v, want %v", got, want)
	}

	sum := c.Summary()
	if sum.Copied != 2 || sum.Skipped != 1 {
		t.Errorf("Summary = %+v, want 2 copied 1 skipped", sum)
	}

	// The prior generation is never modified.
	prior := generationTree(t, device, "20240101", src)
	if prior["changed.txt"] != "hello" {
		t.Errorf("prior generation changed: %v", prior)
	}
}

func TestTreeCopier_ComparesWithMostRecentOnly(t *testing.T) {
	device, src := newDevice(t)
	file := filepath.Join(src, "f.txt")
	testutil.WriteFile(t, file, "v1")

	// v1 lives in the oldest generation but the newest entry is v2.
	seedGeneration(t, device, "20240101", file, "v1")
	seedGeneration(t, device, "20240102", file, "v2")

	c, _ := newCopier(t, device, "20240103", nil, gb.DefaultCopyOptions())
	if err := c.CopyTree(context.Background(), src); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}
	got := generationTree(t, device, "20240103", src)
	if got["f.txt"] != "v1" {
		t.Errorf("generation = %v, want f.txt copied", got)
	}
}

func TestTreeCopier_Ignore(t *testing.T) {
	device, src := newDevice(t)
	testutil.WriteFile(t, filepath.Join(src, "keep.txt"), "k")
	testutil.WriteFile(t, filepath.Join(src, "scratch.tmp"), "t")
	testutil.WriteFile(t, filepath.Join(src, ".git", "HEAD"), "ref")
	testutil.WriteFile(t, filepath.Join(src, ".git", "objects", "ab"), "obj")
	testutil.WriteFile(t, filepath.Join(src, "sub", "x.tmp"), "t")

	matcher := fs.NewIgnoreMatcher([]string{".git"}, []string{"*.tmp"})
	c, target := newCopier(t, device, "20240101", matcher, gb.DefaultCopyOptions())
	if err := c.CopyTree(context.Background(), src); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	got := generationTree(t, device, "20240101", src)
	want := map[string]string{"keep.txt": "k"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("generation = %v, want %v", got, want)
	}
	if _, err := os.Stat(filepath.Join(target, gb.MapPath(src), ".git")); !os.IsNotExist(err) {
		t.Errorf("ignored directory was created: %v", err)
	}
	if n := c.Summary().Ignored; n != 3 {
		t.Errorf("Ignored = %d, want 3", n)
	}
}

func TestTreeCopier_SingleFileSource(t *testing.T) {
	device, src := newDevice(t)
	file := filepath.Join(src, "notes.txt")
	testutil.WriteFile(t, file, "single")

	c, target := newCopier(t, device, "20240101", nil, gb.DefaultCopyOptions())
	if err := c.CopyTree(context.Background(), file); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(target, gb.MapPath(file)))
	if err != nil {
		t.Fatalf("reading copied file: %v", err)
	}
	if string(data) != "single" {
		t.Errorf("content = %q, want %q", data, "single")
	}
}

func TestTreeCopier_MissingSource(t *testing.T) {
	device, src := newDevice(t)
	c, _ := newCopier(t, device, "20240101", nil, gb.DefaultCopyOptions())

	err := c.CopyTree(context.Background(), filepath.Join(src, "gone"))
	var copyErr *gb.CopyError
	if !errors.As(err, &copyErr) {
		t.Fatalf("CopyTree() error = %v, want *CopyError", err)
	}
}

func TestTreeCopier_Canceled(t *testing.T) {
	device, src := newDevice(t)
	testutil.WriteFile(t, filepath.Join(src, "a.txt"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, _ := newCopier(t, device, "20240101", nil, gb.DefaultCopyOptions())
	if err := c.CopyTree(ctx, src); !errors.Is(err, context.Canceled) {
		t.Errorf("CopyTree() error = %v, want context.Canceled", err)
	}
}

func TestTreeCopier_Symlinks(t *testing.T) {
	setup := func(t *testing.T) (gb.Device, string) {
		t.Helper()
		device, src := newDevice(t)
		testutil.WriteFile(t, filepath.Join(src, "real", "file.txt"), "data")
		if err := os.Symlink("real", filepath.Join(src, "linkdir")); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
		if err := os.Symlink(filepath.Join("real", "file.txt"), filepath.Join(src, "linkfile")); err != nil {
			t.Fatal(err)
		}
		return device, src
	}

	t.Run("follow copies link targets", func(t *testing.T) {
		device, src := setup(t)
		c, _ := newCopier(t, device, "20240101", nil, gb.CopyOptions{Workers: 1, Symlinks: gb.SymlinkFollow})
		if err := c.CopyTree(context.Background(), src); err != nil {
			t.Fatalf("CopyTree() error = %v", err)
		}
		got := generationTree(t, device, "20240101", src)
		want := map[string]string{"real/file.txt": "data", "linkdir/file.txt": "data", "linkfile": "data"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("generation = %v, want %v", got, want)
		}
	})

	t.Run("preserve recreates links", func(t *testing.T) {
		device, src := setup(t)
		c, target := newCopier(t, device, "20240101", nil, gb.CopyOptions{Workers: 1, Symlinks: gb.SymlinkPreserve})
		if err := c.CopyTree(context.Background(), src); err != nil {
			t.Fatalf("CopyTree() error = %v", err)
		}
		dst := filepath.Join(target, gb.MapPath(src), "linkdir")
		link, err := os.Readlink(dst)
		if err != nil {
			t.Fatalf("Readlink() error = %v", err)
		}
		if link != "real" {
			t.Errorf("link target = %q, want %q", link, "real")
		}
		if c.Summary().Copied != 3 {
			t.Errorf("Copied = %d, want 3", c.Summary().Copied)
		}
	})

	t.Run("preserve skips unchanged links", func(t *testing.T) {
		device, src := setup(t)
		prior := filepath.Join(device.WorkingFolder(), "20240101", gb.MapPath(src), "linkdir")
		if err := os.MkdirAll(filepath.Dir(prior), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink("real", prior); err != nil {
			t.Fatal(err)
		}
		c, target := newCopier(t, device, "20240102", nil, gb.CopyOptions{Workers: 1, Symlinks: gb.SymlinkPreserve})
		if err := c.CopyTree(context.Background(), src); err != nil {
			t.Fatalf("CopyTree() error = %v", err)
		}
		if _, err := os.Lstat(filepath.Join(target, gb.MapPath(src), "linkdir")); !os.IsNotExist(err) {
			t.Errorf("unchanged link was copied: %v", err)
		}
		if c.Summary().Skipped != 1 {
			t.Errorf("Skipped = %d, want 1", c.Summary().Skipped)
		}
	})

	t.Run("skip leaves links out", func(t *testing.T) {
		device, src := setup(t)
		c, _ := newCopier(t, device, "20240101", nil, gb.CopyOptions{Workers: 1, Symlinks: gb.SymlinkSkip})
		if err := c.CopyTree(context.Background(), src); err != nil {
			t.Fatalf("CopyTree() error = %v", err)
		}
		got := generationTree(t, device, "20240101", src)
		want := map[string]string{"real/file.txt": "data"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("generation = %v, want %v", got, want)
		}
	})

	t.Run("follow stops at loops", func(t *testing.T) {
		device, src := newDevice(t)
		testutil.WriteFile(t, filepath.Join(src, "a", "f.txt"), "f")
		if err := os.Symlink("..", filepath.Join(src, "a", "up")); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
		c, _ := newCopier(t, device, "20240101", nil, gb.DefaultCopyOptions())
		if err := c.CopyTree(context.Background(), src); err != nil {
			t.Fatalf("CopyTree() error = %v", err)
		}
		got := generationTree(t, device, "20240101", src)
		want := map[string]string{"a/f.txt": "f"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("generation = %v, want %v", got, want)
		}
	})
}

func TestTreeCopier_WorkersMatchSequential(t *testing.T) {
	build := func(t *testing.T) (gb.Device, string) {
		device, src := newDevice(t)
		for i := 0; i < 40; i++ {
			dir := filepath.Join(src, fmt.Sprintf("d%d", i%5))
			testutil.WriteFile(t, filepath.Join(dir, fmt.Sprintf("f%02d.txt", i)), fmt.Sprintf("content %d", i))
		}
		seedGeneration(t, device, "20240101", filepath.Join(src, "d0", "f00.txt"), "content 0")
		return device, src
	}

	run := func(t *testing.T, workers int) (map[string]string, gb.Summary) {
		device, src := build(t)
		c, _ := newCopier(t, device, "20240102", nil, gb.CopyOptions{Workers: workers, Symlinks: gb.SymlinkFollow})
		if err := c.CopyTree(context.Background(), src); err != nil {
			t.Fatalf("CopyTree(workers=%d) error = %v", workers, err)
		}
		return generationTree(t, device, "20240102", src), c.Summary()
	}

	seqTree, seqSum := run(t, 1)
	parTree, parSum := run(t, 8)

	if !reflect.DeepEqual(seqTree, parTree) {
		t.Errorf("trees differ:\nsequential %v\nparallel   %v", testutil.Keys(seqTree), testutil.Keys(parTree))
	}
	if seqSum.Copied != parSum.Copied || seqSum.Skipped != parSum.Skipped || seqSum.BytesCopied != parSum.BytesCopied {
		t.Errorf("summaries differ: %+v vs %+v", seqSum, parSum)
	}
	if seqSum.Skipped != 1 || seqSum.Copied != 39 {
		t.Errorf("sequential summary = %+v, want 39 copied 1 skipped", seqSum)
	}
}

func TestTreeCopier_LogsDecisions(t *testing.T) {
	device, src := newDevice(t)
	same := filepath.Join(src, "same.txt")
	changed := filepath.Join(src, "changed.txt")
	testutil.WriteFile(t, same, "hello")
	testutil.WriteFile(t, changed, "hello!")
	seedGeneration(t, device, "20240101", same, "hello")

	chain, err := gb.NewChain(device)
	if err != nil {
		t.Fatal(err)
	}
	target := chain.Path("20240102")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	logger := testutil.NewRecordingLogger()
	c := gb.NewTreeCopier(chain, target, fs.NewOSFilesystem(), nil, gb.DefaultCopyOptions(), logger)
	if err := c.CopyTree(context.Background(), src); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	if got := logger.Paths("skip"); !reflect.DeepEqual(got, []string{same}) {
		t.Errorf("skip logged for %v, want %v", got, []string{same})
	}
	if got := logger.Paths("copy"); !reflect.DeepEqual(got, []string{changed}) {
		t.Errorf("copy logged for %v, want %v", got, []string{changed})
	}
}

func TestTreeCopier_NegatedClassIgnore(t *testing.T) {
	device, src := newDevice(t)
	testutil.WriteFile(t, filepath.Join(src, "keep.txt"), "k")
	testutil.WriteFile(t, filepath.Join(src, "data.txt"), "d")

	c, _ := newCopier(t, device, "20240101", fs.NewIgnoreMatcher([]string{"[!k]*"}), gb.DefaultCopyOptions())
	if err := c.CopyTree(context.Background(), src); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	got := generationTree(t, device, "20240101", src)
	want := map[string]string{"keep.txt": "k"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("generation = %v, want %v", got, want)
	}
}

var errInjected = errors.New("injected failure")

// failingFilesystem fails CopyFile or SameContent for a single source path.
type failingFilesystem struct {
	gb.Filesystem
	failCopy    string
	failCompare string
}

func (f *failingFilesystem) SameContent(a, b string) (bool, error) {
	if a == f.failCompare {
		return false, errInjected
	}
	return f.Filesystem.SameContent(a, b)
}

func (f *failingFilesystem) CopyFile(src, dst string) (int64, error) {
	if src == f.failCopy {
		return 0, errInjected
	}
	return f.Filesystem.CopyFile(src, dst)
}

func TestTreeCopier_FileErrorStopsTree(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		compare bool
	}{
		{name: "copy fails sequential", workers: 1},
		{name: "copy fails parallel", workers: 8},
		{name: "compare fails sequential", workers: 1, compare: true},
		{name: "compare fails parallel", workers: 8, compare: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, src := newDevice(t)
			var names []string
			for i := range 20 {
				name := fmt.Sprintf("f%02d.txt", i)
				names = append(names, name)
				testutil.WriteFile(t, filepath.Join(src, name), name)
				if tt.compare {
					seedGeneration(t, device, "20240101", filepath.Join(src, name), name)
				}
			}
			failing := filepath.Join(src, "f07.txt")

			fsys := &failingFilesystem{Filesystem: fs.NewOSFilesystem()}
			if tt.compare {
				fsys.failCompare = failing
			} else {
				fsys.failCopy = failing
			}

			chain, err := gb.NewChain(device)
			if err != nil {
				t.Fatal(err)
			}
			target := chain.Path("20240102")
			if err := os.MkdirAll(target, 0o755); err != nil {
				t.Fatal(err)
			}
			logger := testutil.NewRecordingLogger()
			opts := gb.DefaultCopyOptions()
			opts.Workers = tt.workers
			c := gb.NewTreeCopier(chain, target, fsys, nil, opts, logger)

			err = c.CopyTree(context.Background(), src)
			var copyErr *gb.CopyError
			if !errors.As(err, &copyErr) {
				t.Fatalf("CopyTree() error = %v, want *CopyError", err)
			}
			if copyErr.Path != failing || !errors.Is(err, errInjected) {
				t.Errorf("CopyError = %v, want injected failure at %s", copyErr, failing)
			}

			for _, p := range logger.Paths("skip") {
				if p == failing {
					t.Errorf("skip logged for %s after its comparison failed", p)
				}
			}

			if tt.workers != 1 {
				return
			}
			for _, msg := range []string{"copy", "skip"} {
				for _, p := range logger.Paths(msg) {
					if p > failing {
						t.Errorf("%s logged for %s, which sorts after the failure", msg, p)
					}
				}
			}
			got := generationTree(t, device, "20240102", src)
			for _, name := range names[8:] {
				if _, ok := got[name]; ok {
					t.Errorf("%s copied after the failure", name)
				}
			}
		})
	}
}

func TestTreeCopier_UnreadableDirectoryStopsTree(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	device, src := newDevice(t)
	testutil.WriteFile(t, filepath.Join(src, "a", "one.txt"), "1")
	testutil.WriteFile(t, filepath.Join(src, "b", "two.txt"), "2")
	testutil.WriteFile(t, filepath.Join(src, "c", "three.txt"), "3")
	locked := filepath.Join(src, "b")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	opts := gb.DefaultCopyOptions()
	opts.Workers = 1
	c, _ := newCopier(t, device, "20240101", nil, opts)

	err := c.CopyTree(context.Background(), src)
	var copyErr *gb.CopyError
	if !errors.As(err, &copyErr) {
		t.Fatalf("CopyTree() error = %v, want *CopyError", err)
	}
	if copyErr.Path != locked {
		t.Errorf("CopyError.Path = %s, want %s", copyErr.Path, locked)
	}
	got := generationTree(t, device, "20240101", src)
	if _, ok := got["c/three.txt"]; ok {
		t.Error("c/three.txt copied after the traversal failed")
	}
}
