package gb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// SymlinkPolicy selects how symbolic links inside a source tree are handled.
type SymlinkPolicy string

const (
	// SymlinkFollow copies what a link points to and descends into linked
	// directories.
	SymlinkFollow SymlinkPolicy = "follow"
	// SymlinkPreserve recreates links as links in the generation.
	SymlinkPreserve SymlinkPolicy = "preserve"
	// SymlinkSkip leaves links out of the generation.
	SymlinkSkip SymlinkPolicy = "skip"
)

// ParseSymlinkPolicy converts a config value into a SymlinkPolicy.
// An empty value means SymlinkFollow.
func ParseSymlinkPolicy(s string) (SymlinkPolicy, error) {
	switch SymlinkPolicy(s) {
	case "", SymlinkFollow:
		return SymlinkFollow, nil
	case SymlinkPreserve:
		return SymlinkPreserve, nil
	case SymlinkSkip:
		return SymlinkSkip, nil
	default:
		return "", fmt.Errorf("unknown symlink policy: %s", s)
	}
}

// CopyOptions tunes the Tree Copier.
type CopyOptions struct {
	// Workers bounds concurrent per-file work. 1 keeps the copy sequential.
	Workers  int
	Symlinks SymlinkPolicy
}

// DefaultCopyOptions returns sequential copying that follows symlinks.
func DefaultCopyOptions() CopyOptions {
	return CopyOptions{Workers: 1, Symlinks: SymlinkFollow}
}

// TreeCopier mirrors source trees into one new generation, copying only the
// files that differ from the generation chain.
type TreeCopier struct {
	chain   *Chain
	target  string
	fsys    Filesystem
	matcher Matcher
	opts    CopyOptions
	logger  Logger

	copied  atomic.Int64
	skipped atomic.Int64
	ignored atomic.Int64
	bytes   atomic.Int64

	mu   sync.Mutex
	dirs map[string]struct{}
}

// NewTreeCopier creates a TreeCopier writing into the generation folder target.
// chain must not include the generation being written. A nil matcher ignores
// nothing.
func NewTreeCopier(chain *Chain, target string, fsys Filesystem, matcher Matcher, opts CopyOptions, logger Logger) *TreeCopier {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Symlinks == "" {
		opts.Symlinks = SymlinkFollow
	}
	return &TreeCopier{
		chain:   chain,
		target:  target,
		fsys:    fsys,
		matcher: matcher,
		opts:    opts,
		logger:  logger,
		dirs:    make(map[string]struct{}),
	}
}

// Summary returns the counters accumulated so far.
func (c *TreeCopier) Summary() Summary {
	return Summary{
		Device:      c.chain.Device,
		Generation:  filepath.Base(c.target),
		Copied:      c.copied.Load(),
		Skipped:     c.skipped.Load(),
		Ignored:     c.ignored.Load(),
		BytesCopied: c.bytes.Load(),
	}
}

// CopyTree backs up sourceRoot, which may be a directory or a single file.
// The first error stops the traversal and cancels queued work.
func (c *TreeCopier) CopyTree(ctx context.Context, sourceRoot string) error {
	info, err := os.Stat(sourceRoot)
	if err != nil {
		return &CopyError{Path: sourceRoot, Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)

	if !info.IsDir() {
		g.Go(func() error { return c.copyFile(gctx, sourceRoot) })
		return g.Wait()
	}

	walkErr := c.walk(gctx, g, sourceRoot, info, make(map[string]struct{}))
	if walkErr != nil {
		// Queued files must not run once the traversal itself has failed.
		cancel()
	}
	waitErr := g.Wait()
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	if walkErr != nil {
		return walkErr
	}
	return waitErr
}

// walk mirrors dir and schedules its files. ancestors holds the resolved
// directories on the current path so that following links cannot loop.
func (c *TreeCopier) walk(ctx context.Context, g *errgroup.Group, dir string, info fs.FileInfo, ancestors map[string]struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.opts.Symlinks == SymlinkFollow {
		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return &CopyError{Path: dir, Err: err}
		}
		if _, loop := ancestors[resolved]; loop {
			c.logger.Warn("symlink loop skipped", "path", dir)
			return nil
		}
		ancestors[resolved] = struct{}{}
		defer delete(ancestors, resolved)
	}

	if err := c.ensureDir(c.destination(dir), info.Mode().Perm()); err != nil {
		return &CopyError{Path: dir, Err: err}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return &CopyError{Path: dir, Err: err}
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(dir, e.Name())
		if c.matcher != nil && c.matcher.Match(e.Name()) {
			c.ignored.Add(1)
			c.logger.Debug("ignore", "path", p)
			continue
		}
		if err := c.visit(ctx, g, p, e, ancestors); err != nil {
			return err
		}
	}
	return nil
}

func (c *TreeCopier) visit(ctx context.Context, g *errgroup.Group, p string, e fs.DirEntry, ancestors map[string]struct{}) error {
	var info fs.FileInfo
	var err error

	if e.Type()&fs.ModeSymlink != 0 {
		switch c.opts.Symlinks {
		case SymlinkSkip:
			c.logger.Debug("symlink skipped", "path", p)
			return nil
		case SymlinkPreserve:
			g.Go(func() error { return c.copyLink(ctx, p) })
			return nil
		}
		info, err = os.Stat(p)
	} else {
		info, err = e.Info()
	}
	if err != nil {
		return &CopyError{Path: p, Err: err}
	}

	switch {
	case info.IsDir():
		return c.walk(ctx, g, p, info, ancestors)
	case info.Mode().IsRegular():
		g.Go(func() error { return c.copyFile(ctx, p) })
	default:
		c.logger.Warn("unsupported entry skipped", "path", p, "mode", info.Mode().String())
	}
	return nil
}

func (c *TreeCopier) copyFile(ctx context.Context, src string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rel := MapPath(src)
	prior, ok, err := c.chain.ResolvePrior(rel)
	if err != nil {
		return &CopyError{Path: src, Err: err}
	}

	d, err := Decide(c.fsys, src, prior, ok)
	if err != nil {
		return &CopyError{Path: src, Err: err}
	}
	if d == Skip {
		c.skipped.Add(1)
		c.logger.Info("skip", "path", src)
		return nil
	}

	c.logger.Info("copy", "path", src)
	dst := filepath.Join(c.target, rel)
	if err := c.ensureDir(filepath.Dir(dst), 0o755); err != nil {
		return &CopyError{Path: src, Err: err}
	}
	n, err := c.fsys.CopyFile(src, dst)
	if err != nil {
		return &CopyError{Path: src, Err: err}
	}
	c.copied.Add(1)
	c.bytes.Add(n)
	return nil
}

func (c *TreeCopier) copyLink(ctx context.Context, src string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rel := MapPath(src)
	prior, ok, err := c.chain.ResolvePrior(rel)
	if err != nil {
		return &CopyError{Path: src, Err: err}
	}

	d, err := DecideLink(c.fsys, src, prior, ok)
	if err != nil {
		return &CopyError{Path: src, Err: err}
	}
	if d == Skip {
		c.skipped.Add(1)
		c.logger.Info("skip", "path", src, "type", "symlink")
		return nil
	}

	c.logger.Info("copy", "path", src, "type", "symlink")
	dst := filepath.Join(c.target, rel)
	if err := c.ensureDir(filepath.Dir(dst), 0o755); err != nil {
		return &CopyError{Path: src, Err: err}
	}
	if err := c.fsys.CopyLink(src, dst); err != nil {
		return &CopyError{Path: src, Err: err}
	}
	c.copied.Add(1)
	return nil
}

func (c *TreeCopier) destination(src string) string {
	return filepath.Join(c.target, MapPath(src))
}

// ensureDir creates dir once per copier. The owner write bit is always set so
// read-only source directories can still receive files.
func (c *TreeCopier) ensureDir(dir string, perm fs.FileMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.dirs[dir]; ok {
		return nil
	}
	if err := os.MkdirAll(dir, perm|0o700); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	c.dirs[dir] = struct{}{}
	return nil
}
