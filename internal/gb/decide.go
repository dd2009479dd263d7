package gb

import "fmt"

// Decision is the outcome of comparing a source entry with its prior version.
type Decision int

const (
	// Copy duplicates the entry into the new generation.
	Copy Decision = iota
	// Skip leaves the entry absent; an older generation supplies it.
	Skip
)

func (d Decision) String() string {
	switch d {
	case Copy:
		return "copy"
	case Skip:
		return "skip"
	default:
		return fmt.Sprintf("unknown_decision(%d)", int(d))
	}
}

// Decide compares src with its prior version. A missing prior means the file is
// new. Comparison is a full content check; read errors are returned rather than
// treated as a match.
func Decide(fsys Filesystem, src, prior string, hasPrior bool) (Decision, error) {
	if !hasPrior {
		return Copy, nil
	}
	same, err := fsys.SameContent(src, prior)
	if err != nil {
		return Copy, fmt.Errorf("comparing with %s: %w", prior, err)
	}
	if same {
		return Skip, nil
	}
	return Copy, nil
}

// DecideLink is Decide for symbolic links kept as links.
func DecideLink(fsys Filesystem, src, prior string, hasPrior bool) (Decision, error) {
	if !hasPrior {
		return Copy, nil
	}
	same, err := fsys.SameLink(src, prior)
	if err != nil {
		return Copy, fmt.Errorf("comparing link with %s: %w", prior, err)
	}
	if same {
		return Skip, nil
	}
	return Copy, nil
}
