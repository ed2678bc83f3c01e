package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// Module identifiers accepted by the pause switchboard.
const (
	ModuleLending    = "lending"
	ModuleDelegation = "delegation"
	ModuleRebalance  = "rebalance"
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
