package gb

import (
	"fmt"
	"os"
	"path/filepath"
)

// Chain is the generation chain of one device, newest first. It carries the
// state the lookup needs so nothing is held in package variables.
type Chain struct {
	Device        string
	WorkingFolder string
	Generations   []string
}

// NewChain lists the existing generations of a device.
func NewChain(device Device) (*Chain, error) {
	gens, err := ListGenerations(device.WorkingFolder())
	if err != nil {
		return nil, err
	}
	return &Chain{
		Device:        device.Name,
		WorkingFolder: device.WorkingFolder(),
		Generations:   gens,
	}, nil
}

// Path returns the folder of the named generation.
func (c *Chain) Path(generation string) string {
	return filepath.Join(c.WorkingFolder, generation)
}

// ResolvePrior returns the path of rel inside the most recent generation that
// has an entry there. Older generations are not consulted once a match is found.
func (c *Chain) ResolvePrior(rel string) (string, bool, error) {
	for _, g := range c.Generations {
		p := filepath.Join(c.WorkingFolder, g, rel)
		_, err := os.Lstat(p)
		if err == nil {
			return p, true, nil
		}
		if isNotExist(err) {
			continue
		}
		return "", false, fmt.Errorf("looking up %s: %w", p, err)
	}
	return "", false, nil
}
