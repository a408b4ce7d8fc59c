package vm

// Fault describes an access to a non-present page.
type Fault struct {
	Addr  Addr
	Write bool
}

// FaultHandler reports whether it handled the fault. A handler that does not
// own the faulting address must return false without side effects so the
// next handler can be tried.
type FaultHandler func(f *Fault) bool

// AddFaultHandler appends h to the dispatch chain.
func (as *AddressSpace) AddFaultHandler(h FaultHandler) error {
	if len(as.handlers) >= as.maxHandlers {
		return ErrTooManyHandlers
	}
	as.handlers = append(as.handlers, h)
	return nil
}

func (as *AddressSpace) fault(f *Fault) bool {
	as.faults++
	for _, h := range as.handlers {
		if h(f) {
			return true
		}
	}
	return false
}
