package common

// ErrModulePaused is returned when an operator has paused a module.
var ErrModulePaused = NewError(KindState, "module_paused", "module paused")

const (
	ModulePayment = "payment"
	ModuleEscrow  = "escrow"
	ModuleOrder   = "order"
)

type PauseView interface {
	IsPaused(module string) bool
}

// PausedSet is a static PauseView built from configuration.
type PausedSet map[string]struct{}

// NewPausedSet returns a PauseView that reports the listed modules as paused.
func NewPausedSet(modules []string) PausedSet {
	set := make(PausedSet, len(modules))
	for _, module := range modules {
		if module == "" {
			continue
		}
		set[module] = struct{}{}
	}
	return set
}

func (p PausedSet) IsPaused(module string) bool {
	_, ok := p[module]
	return ok
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return Wrap(module, ErrModulePaused)
	}
	return nil
}
