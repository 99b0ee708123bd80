package sweep

import (
	"fmt"
	"hash/fnv"

	"github.com/gomlx/crosscheck/kernels"
	"github.com/gomlx/crosscheck/precisions"
)

// Case is one unit of the sweep: a family configuration bound to a precision and a
// candidate backend.
type Case struct {
	Family    string
	Params    kernels.Params
	Precision precisions.Precision
	Backend   string
}

// Key is the canonical identity of the case, stable across runs. It doubles as the
// graph name, the log tag and the report key.
func (c Case) Key() string {
	return fmt.Sprintf("%s[%s]/%s@%s", c.Family, c.Params, c.Precision, c.Backend)
}

// baseKey identifies the configuration without precision or backend: every precision
// variant of a configuration shares the same base tensors.
func (c Case) baseKey() string {
	return c.Family + "[" + c.Params.String() + "]"
}

// Seed derives the PCG seed pair for the case's tensor data from the configuration
// identity alone. Precision and backend are excluded on purpose, and no global counter
// is involved: identical configurations produce identical tensors on every backend and
// across runs.
func (c Case) Seed() (uint64, uint64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(c.baseKey()))
	first := h.Sum64()
	_, _ = h.Write([]byte{0xff})
	return first, h.Sum64()
}
