package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// Module names accepted by Guard.
const (
	ModuleAMM     = "amm"
	ModuleLending = "lending"
	ModuleTranche = "tranche"
)

type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects mutations against a paused module. Read-only quotes are never
// guarded.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is a static PauseView built from a list of module names.
type PauseSet map[string]bool

// NewPauseSet returns a PauseSet pausing the supplied modules.
func NewPauseSet(modules ...string) PauseSet {
	set := make(PauseSet, len(modules))
	for _, m := range modules {
		if m != "" {
			set[m] = true
		}
	}
	return set
}

// IsPaused implements PauseView.
func (s PauseSet) IsPaused(module string) bool {
	return s[module]
}
