// Package common carries the pause plumbing shared by the order book and the
// escrow registry. Pausing a module rejects its mutations while leaving the
// query surface untouched.
package common

import (
	"errors"
	"fmt"
)

// Module names accepted by the pause machinery.
const (
	ModuleOrders  = "order"
	ModuleEscrows = "escrow"
)

// ErrModulePaused is returned by Guard when the named module is paused.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module's mutations are currently suspended.
type PauseView interface {
	IsPaused(module string) bool
}

// KnownModule reports whether name identifies a pausable module.
func KnownModule(name string) bool {
	return name == ModuleOrders || name == ModuleEscrows
}

// Modules lists every pausable module name.
func Modules() []string {
	return []string{ModuleEscrows, ModuleOrders}
}

// Guard rejects the mutation when the module is paused. A nil view or empty
// module name admits everything.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
