package vm

import (
	"fmt"
)

const PageSize = 4096

// Addr is a virtual address.
type Addr uint64

func (a Addr) String() string {
	return fmt.Sprintf("0x%08x", uint64(a))
}

// RoundDown rounds a down to a multiple of n (n must be a power of two).
func RoundDown(a Addr, n uint64) Addr {
	return a &^ Addr(n-1)
}

// RoundUp rounds a up to a multiple of n (n must be a power of two).
func RoundUp(a Addr, n uint64) Addr {
	return RoundDown(a+Addr(n-1), n)
}

func pageNum(a Addr) uint64 {
	return uint64(a) / PageSize
}

type Perm uint32

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
	PermShare

	PermRW = PermRead | PermWrite

	// Bits a caller may pass to AllocRegion and MapRegion.
	PermSyscall = PermRead | PermWrite | PermExec | PermShare
)

func (p Perm) Readable() bool {
	return p&PermRead != 0
}

func (p Perm) Writable() bool {
	return p&PermWrite != 0
}

func (p Perm) Executable() bool {
	return p&PermExec != 0
}

func (p Perm) String() string {
	s := []byte("----")
	if p.Readable() {
		s[0] = 'r'
	}
	if p.Writable() {
		s[1] = 'w'
	}
	if p.Executable() {
		s[2] = 'x'
	}
	if p&PermShare != 0 {
		s[3] = 's'
	}
	return string(s)
}
