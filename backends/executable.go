package backends

import (
	"context"

	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/crosscheck/types/tensors"
)

// Executable is the API for compiled computations ready to execute.
type Executable interface {
	// Finalize immediately frees resources associated to the executable.
	Finalize()

	// Inputs returns the list of parameter names and shapes, in the order created by the
	// Builder.Parameter calls.
	Inputs() (names []string, inputShapes []shapes.Shape)

	// Outputs returns the list of the shapes of the outputs of the computation, in the order
	// given to the Builder.Compile call.
	Outputs() (outputShapes []shapes.Shape)

	// Execute the executable. The number and shapes of the inputs must match those returned
	// by Inputs. It returns one tensor per compiled output.
	//
	// Execute honors ctx cancellation between units of work; a canceled or expired context
	// returns ctx.Err() wrapped.
	Execute(ctx context.Context, inputs ...*tensors.Tensor) ([]*tensors.Tensor, error)
}
