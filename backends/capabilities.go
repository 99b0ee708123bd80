package backends

import (
	"maps"

	"github.com/gomlx/gopjrt/dtypes"
)

// Capabilities holds mappings of what is supported by a backend.
//
// The sweep orchestrator queries it before dispatching a case: cases requiring an
// unsupported kernel or dtype are skipped, not failed.
type Capabilities struct {
	// Kernels supported by a backend.
	// If not listed, it's assumed to be false, hence not supported.
	Kernels map[KernelKind]bool

	// DTypes list the data types supported by a backend.
	// If not listed, it's assumed to be false, hence not supported.
	DTypes map[dtypes.DType]bool
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	var c2 Capabilities
	c2.Kernels = make(map[KernelKind]bool, len(c.Kernels))
	maps.Copy(c2.Kernels, c.Kernels)
	c2.DTypes = make(map[dtypes.DType]bool, len(c.DTypes))
	maps.Copy(c2.DTypes, c.DTypes)
	return c2
}

// Supports reports whether the backend declares support for the given kernel and
// all the given dtypes.
func (c Capabilities) Supports(kind KernelKind, dts ...dtypes.DType) bool {
	if !c.Kernels[kind] {
		return false
	}
	for _, dt := range dts {
		if !c.DTypes[dt] {
			return false
		}
	}
	return true
}
