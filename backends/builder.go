package backends

import (
	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/crosscheck/types/tensors"
)

// Op represents the output of an operation, during the computation graph building time.
//
// It is opaque from the crosscheck perspective: it passes Op as input to the other Builder methods.
type Op any

// Builder builds one computation for one test case. It is the sub-interface of Backend.
//
// A Builder is single-use: after Compile it is invalidated, and a fresh one must be
// requested from the Backend for the next case. This keeps cases isolated from each other.
//
// Backends are free to not implement a kernel by returning an error -- this restricts
// which cases they can run. See Backend.Capabilities, which callers should consult first.
type Builder interface {
	// Name of the computation being built.
	Name() string

	// Parameter creates an input parameter for the computation.
	// During execution of a compiled computation (returned by Builder.Compile) values must be fed
	// in the same order the parameters were created.
	Parameter(name string, shape shapes.Shape) (Op, error)

	// Constant creates a constant in the graph with the given tensor value.
	//
	// The tensor is not copied: it must not be mutated while the computation is alive.
	// Quantized tensors carry their QuantParams along.
	Constant(t *tensors.Tensor) (Op, error)

	// Kernel adds one kernel operation to the computation.
	//
	// The inputs are Ops previously returned by this same Builder. The number of inputs
	// and their shapes are kernel-dependent, see shapeinference.KernelOutputShape.
	Kernel(kind KernelKind, attrs KernelAttrs, inputs ...Op) (Op, error)

	// Compile the computation built. This immediately invalidates the Builder and returns
	// an Executable that can now be used to run the computation.
	//
	// It is given the list of outputs.
	Compile(outputs ...Op) (Executable, error)
}

// KernelKind identifies one of the kernel families a Builder can emit.
type KernelKind int

const (
	KernelInvalid KernelKind = iota

	// KernelConv2D is a 2D convolution over NHWC inputs with an OHWC filter and a
	// per-output-channel bias. Attrs: Strides, Padding.
	KernelConv2D

	// KernelBatchedMatMul multiplies {N, A, Z} x {N, Z, B} into {N, A, B}, batch-wise.
	KernelBatchedMatMul

	// KernelFullyConnected is {A, Z} x {Z, B} plus a {B} bias, into {A, B}.
	KernelFullyConnected
)

//go:generate go tool enumer -type=KernelKind -trimprefix=Kernel -output=gen_kernelkind_enumer.go builder.go

// KernelAttrs carries the static attributes of a kernel operation.
//
// Strides and Padding only apply to KernelConv2D; they are the same on both spatial axes.
// Zero values mean stride 1 and no padding for convenience of the other kernels.
type KernelAttrs struct {
	// Strides for the spatial axes of a convolution. 0 is taken as 1.
	Strides int

	// Padding added on both ends of each spatial axis of a convolution.
	Padding int

	// OutputQuant, if set, makes the kernel requantize its accumulated result to Int8
	// with these parameters. Only meaningful when the inputs are quantized.
	OutputQuant *tensors.QuantParams
}

// EffectiveStrides returns Strides, mapping the zero value to 1.
func (a KernelAttrs) EffectiveStrides() int {
	if a.Strides <= 0 {
		return 1
	}
	return a.Strides
}
