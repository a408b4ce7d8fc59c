package vm

import (
	"fmt"
)

var (
	ErrUnaligned       = fmt.Errorf("address not page aligned")
	ErrInvalidPerm     = fmt.Errorf("invalid permissions")
	ErrNoMemory        = fmt.Errorf("out of memory")
	ErrNotMapped       = fmt.Errorf("page not mapped")
	ErrProtection      = fmt.Errorf("protection violation")
	ErrUnhandledFault  = fmt.Errorf("unhandled page fault")
	ErrTooManyHandlers = fmt.Errorf("too many fault handlers")
)

const DefaultMaxHandlers = 8

type Config struct {
	// MaxPages bounds the number of mapped pages; 0 means unlimited.
	MaxPages    int
	// MaxHandlers bounds the fault-handler chain; 0 means DefaultMaxHandlers.
	MaxHandlers int
}

type page struct {
	frame    []byte
	perm     Perm
	dirty    bool
	accessed bool
}

// AddressSpace is a sparse, page-granular address space with per-page
// present, dirty and permission state. Reads and writes of non-present pages
// go through the fault-handler chain.
//
// An AddressSpace has a single owner and is not safe for concurrent use.
type AddressSpace struct {
	pages       map[uint64]*page
	handlers    []FaultHandler
	maxPages    int
	maxHandlers int
	faults      uint64
}

func New(cfg Config) *AddressSpace {
	maxHandlers := cfg.MaxHandlers
	if maxHandlers <= 0 {
		maxHandlers = DefaultMaxHandlers
	}
	return &AddressSpace{
		pages:       make(map[uint64]*page),
		maxPages:    cfg.MaxPages,
		maxHandlers: maxHandlers,
	}
}

func checkRange(va Addr, perm Perm) error {
	if uint64(va)%PageSize != 0 {
		return fmt.Errorf("%w: %v", ErrUnaligned, va)
	}
	if perm&^PermSyscall != 0 {
		return fmt.Errorf("%w: %#x", ErrInvalidPerm, uint32(perm))
	}
	return nil
}

// AllocRegion maps fresh zeroed frames over [va, va+size) with perm,
// replacing whatever was mapped there.
func (as *AddressSpace) AllocRegion(va Addr, size uint64, perm Perm) error {
	if err := checkRange(va, perm); err != nil {
		return err
	}
	first := pageNum(va)
	last := pageNum(RoundUp(va+Addr(size), PageSize))

	if as.maxPages > 0 {
		fresh := 0
		for pn := first; pn < last; pn++ {
			if _, ok := as.pages[pn]; !ok {
				fresh++
			}
		}
		if len(as.pages)+fresh > as.maxPages {
			return fmt.Errorf("%w: %d pages mapped, limit %d", ErrNoMemory, len(as.pages), as.maxPages)
		}
	}

	for pn := first; pn < last; pn++ {
		as.pages[pn] = &page{
			frame: make([]byte, PageSize),
			perm:  perm,
		}
	}
	return nil
}

// MapRegion re-establishes the existing mappings of [va, va+size) with perm.
// The dirty and accessed indicators of every page are cleared.
func (as *AddressSpace) MapRegion(va Addr, size uint64, perm Perm) error {
	if err := checkRange(va, perm); err != nil {
		return err
	}
	first := pageNum(va)
	last := pageNum(RoundUp(va+Addr(size), PageSize))

	for pn := first; pn < last; pn++ {
		if _, ok := as.pages[pn]; !ok {
			return fmt.Errorf("%w: %v", ErrNotMapped, Addr(pn*PageSize))
		}
	}
	for pn := first; pn < last; pn++ {
		pg := as.pages[pn]
		pg.perm = perm
		pg.dirty = false
		pg.accessed = false
	}
	return nil
}

// UnmapRegion drops the mappings of [va, va+size). Absent pages are ignored.
func (as *AddressSpace) UnmapRegion(va Addr, size uint64) error {
	if uint64(va)%PageSize != 0 {
		return fmt.Errorf("%w: %v", ErrUnaligned, va)
	}
	first := pageNum(va)
	last := pageNum(RoundUp(va+Addr(size), PageSize))
	for pn := first; pn < last; pn++ {
		delete(as.pages, pn)
	}
	return nil
}

func (as *AddressSpace) lookup(va Addr) *page {
	return as.pages[pageNum(va)]
}

func (as *AddressSpace) IsPresent(va Addr) bool {
	return as.lookup(va) != nil
}

func (as *AddressSpace) IsDirty(va Addr) bool {
	pg := as.lookup(va)
	return pg != nil && pg.dirty
}

func (as *AddressSpace) IsAccessed(va Addr) bool {
	pg := as.lookup(va)
	return pg != nil && pg.accessed
}

// Perm returns the permissions of the page containing va, or 0 if absent.
func (as *AddressSpace) Perm(va Addr) Perm {
	pg := as.lookup(va)
	if pg == nil {
		return 0
	}
	return pg.perm
}

// Frame returns the physical frame backing the page containing va. Access
// through the frame bypasses dirty tracking, as a device transfer does.
func (as *AddressSpace) Frame(va Addr) ([]byte, error) {
	pg := as.lookup(va)
	if pg == nil {
		return nil, fmt.Errorf("%w: %v", ErrNotMapped, va)
	}
	return pg.frame, nil
}

// Mapped returns the number of present pages.
func (as *AddressSpace) Mapped() int {
	return len(as.pages)
}

// Faults returns the number of faults raised so far.
func (as *AddressSpace) Faults() uint64 {
	return as.faults
}

// resolve returns the page containing va, faulting it in if necessary.
func (as *AddressSpace) resolve(va Addr, write bool) (*page, error) {
	if pg := as.lookup(va); pg != nil {
		return pg, nil
	}
	if !as.fault(&Fault{Addr: va, Write: write}) {
		return nil, fmt.Errorf("%w at %v", ErrUnhandledFault, va)
	}
	pg := as.lookup(va)
	if pg == nil {
		return nil, fmt.Errorf("%w at %v: handler left page unmapped", ErrUnhandledFault, va)
	}
	return pg, nil
}

// ReadAt copies len(p) bytes starting at va into p.
func (as *AddressSpace) ReadAt(p []byte, va Addr) (int, error) {
	n := 0
	for n < len(p) {
		cur := va + Addr(n)
		pg, err := as.resolve(cur, false)
		if err != nil {
			return n, err
		}
		if !pg.perm.Readable() {
			return n, fmt.Errorf("%w: read at %v (%v)", ErrProtection, cur, pg.perm)
		}
		off := uint64(cur) % PageSize
		n += copy(p[n:], pg.frame[off:])
		pg.accessed = true
	}
	return n, nil
}

// WriteAt copies p into memory starting at va and marks every touched page
// dirty.
func (as *AddressSpace) WriteAt(p []byte, va Addr) (int, error) {
	n := 0
	for n < len(p) {
		cur := va + Addr(n)
		pg, err := as.resolve(cur, true)
		if err != nil {
			return n, err
		}
		if !pg.perm.Writable() {
			return n, fmt.Errorf("%w: write at %v (%v)", ErrProtection, cur, pg.perm)
		}
		off := uint64(cur) % PageSize
		n += copy(pg.frame[off:], p[n:])
		pg.accessed = true
		pg.dirty = true
	}
	return n, nil
}
