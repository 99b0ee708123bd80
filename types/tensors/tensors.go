// Package tensors implements a `Tensor`, a representation of a multi-dimensional array.
//
// Tensors are multidimensional arrays (from scalar with 0 dimensions, to arbitrarily large
// dimensions), defined by their shape (a data type and its axes' dimensions) and their actual
// content, stored as a flat (1D) slice of the corresponding Go type.
//
// The main use of tensors here is to hold the concrete inputs, weights and outputs of kernel
// graphs: they are built on the host, handed to backends for execution, and compared after.
// Tensors are plain host memory -- the in-process backends operate directly on the flat data.
//
// There are various ways to construct a Tensor:
//
//   - FromShape(shape shapes.Shape): creates a tensor with the given shape, and zero values.
//
//   - FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int): creates a Tensor
//     with the given dimensions, filled with the scalar value given.
//
//   - FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int): creates a
//     Tensor with the given dimensions, and sets the flattened values with the given data:
//
//     t := FromFlatDataAndDimensions([]int8{1, 2, 3, 4}, 2, 2) // Tensor with [[1,2], [3,4]]
//
// A quantized (Int8) tensor additionally carries QuantParams (scale and zero-point), set by
// the precision adapter; see quant.go.
//
// Only the dtypes the harness sweeps over are supported: Float32, Float64, Float16
// (github.com/x448/float16), Int8 and Int32.
package tensors

import (
	"fmt"
	"strings"

	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

// Tensor represents a multidimensional array of one of the supported dtypes.
//
// The shape is considered immutable after creation; the flat data is mutable through
// MutableFlatData. A Tensor is not safe for concurrent mutation -- the harness never
// shares a tensor across cases, each case builds its own.
type Tensor struct {
	// shape of the tensor.
	shape shapes.Shape

	// flat is a []T slice, where T is the Go type corresponding to shape.DType.
	flat any

	// quant is only set on quantized tensors. See quant.go.
	quant *QuantParams
}

// supportedDTypes lists the dtypes a Tensor can hold, which are the dtypes the harness
// sweeps over (plus Float64 and Int32, used for reference accumulation and biases).
var supportedDTypes = []dtypes.DType{
	dtypes.Float32, dtypes.Float64, dtypes.Float16, dtypes.Int8, dtypes.Int32,
}

// DTypeSupported returns whether a Tensor can be created with the given dtype.
func DTypeSupported(dtype dtypes.DType) bool {
	for _, d := range supportedDTypes {
		if d == dtype {
			return true
		}
	}
	return false
}

// makeFlatFor returns a newly allocated zero-initialized flat slice for the dtype.
func makeFlatFor(dtype dtypes.DType, size int) any {
	switch dtype {
	case dtypes.Float32:
		return make([]float32, size)
	case dtypes.Float64:
		return make([]float64, size)
	case dtypes.Float16:
		return make([]float16.Float16, size)
	case dtypes.Int8:
		return make([]int8, size)
	case dtypes.Int32:
		return make([]int32, size)
	}
	exceptions.Panicf("tensors: dtype %s not supported -- supported dtypes are %v", dtype, supportedDTypes)
	return nil
}

// FromShape creates a Tensor with the given shape, with the data initialized with zeros.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape: invalid shape %s", shape)
	}
	return &Tensor{
		shape: shape.Clone(),
		flat:  makeFlatFor(shape.DType, shape.Size()),
	}
}

// FromScalarAndDimensions creates a tensor with the given dimensions, filled with the
// given scalar value replicated everywhere. The DType is inferred from the value.
func FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	t := FromShape(shapes.Make(dtype, dimensions...))
	MutableFlatData(t, func(flat []T) {
		for ii := range flat {
			flat[ii] = value
		}
	})
	return t
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with the
// flattened values given in data. The data is copied. The DType is inferred from data.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	shape := shapes.Make(dtype, dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("tensors.FromFlatDataAndDimensions(%s): data size is %d, but dimensions size is %d",
			shape, len(data), shape.Size())
	}
	t := FromShape(shape)
	MutableFlatData(t, func(flat []T) {
		copy(flat, data)
	})
	return t
}

// Shape of the tensor, includes the DType.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType returns the DType of the tensor's shape.
// It is a shortcut to `Tensor.Shape().DType`.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank returns the rank of the tensor's shape.
// It is a shortcut to `Tensor.Shape().Rank()`.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// IsScalar returns whether the tensor represents a scalar value.
// It is a shortcut to `Tensor.Shape().IsScalar()`.
func (t *Tensor) IsScalar() bool { return t.shape.IsScalar() }

// Size returns the number of elements in the tensor.
// It is a shortcut to `Tensor.Shape().Size()`.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory returns the number of bytes used to store the tensor. An alias to Tensor.Shape().Memory().
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// AssertValid panics if the tensor is nil, or if its shape is invalid.
func (t *Tensor) AssertValid() {
	if t == nil {
		exceptions.Panicf("tensors: Tensor is nil")
	}
	if !t.shape.Ok() {
		exceptions.Panicf("tensors: Tensor shape is invalid")
	}
	if t.flat == nil {
		exceptions.Panicf("tensors: Tensor has no data")
	}
}

// ConstFlatData calls accessFn with the flattened data as a slice of the Go type
// corresponding to the DType. Even scalar values have a flattened data representation
// of one element.
//
// This provides accessFn with the actual Tensor data (not a copy), owned by the Tensor;
// it should not be changed -- see MutableFlatData for a mutable version.
func (t *Tensor) ConstFlatData(accessFn func(flat any)) {
	t.AssertValid()
	accessFn(t.flat)
}

// MutableFlatData calls accessFn with the flattened data as a slice of the Go type
// corresponding to the DType, and the contents may be mutated in place.
func (t *Tensor) MutableFlatData(accessFn func(flat any)) {
	t.AssertValid()
	accessFn(t.flat)
}

// ConstFlatData is the "generics" version of Tensor.ConstFlatData: accessFn receives the
// flat data as []T. It panics if T is not the Go type of the tensor's dtype.
func ConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	if t.shape.DType != dtypes.FromGenericsType[T]() {
		var v T
		exceptions.Panicf("tensors.ConstFlatData[%T] is incompatible with Tensor's dtype %s -- expected dtype %s",
			v, t.shape.DType, dtypes.FromGenericsType[T]())
	}
	t.ConstFlatData(func(anyFlat any) {
		accessFn(anyFlat.([]T))
	})
}

// MutableFlatData is the "generics" version of Tensor.MutableFlatData: accessFn receives
// the flat data as []T and may mutate it in place. It panics if T is not the Go type of the
// tensor's dtype.
func MutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	if t.shape.DType != dtypes.FromGenericsType[T]() {
		var v T
		exceptions.Panicf("tensors.MutableFlatData[%T] is incompatible with Tensor's dtype %s -- expected dtype %s",
			v, t.shape.DType, dtypes.FromGenericsType[T]())
	}
	t.MutableFlatData(func(anyFlat any) {
		accessFn(anyFlat.([]T))
	})
}

// Flat returns the tensor's flat data as a []T without copying: the slice aliases the
// tensor's storage, so writes through it are writes to the tensor.
//
// Kernel implementations use it to address operands and outputs directly instead of
// nesting accessors; tensors here are always plain host memory, there is no device copy
// to synchronize with. It panics if T is not the Go type of the tensor's dtype.
func Flat[T dtypes.Supported](t *Tensor) []T {
	t.AssertValid()
	if t.shape.DType != dtypes.FromGenericsType[T]() {
		var v T
		exceptions.Panicf("tensors.Flat[%T] is incompatible with Tensor's dtype %s -- expected dtype %s",
			v, t.shape.DType, dtypes.FromGenericsType[T]())
	}
	return t.flat.([]T)
}

// CopyFlatData returns a copy of the flat data as []T.
// It panics if T is not the Go type of the tensor's dtype.
func CopyFlatData[T dtypes.Supported](t *Tensor) (data []T) {
	ConstFlatData(t, func(flat []T) {
		data = make([]T, len(flat))
		copy(data, flat)
	})
	return
}

// ToScalar returns the value of a scalar tensor.
// It panics if the tensor is not a scalar or if T is not the Go type of the tensor's dtype.
func ToScalar[T dtypes.Supported](t *Tensor) (value T) {
	t.shape.AssertScalar()
	ConstFlatData(t, func(flat []T) {
		value = flat[0]
	})
	return
}

// Clone returns a deep copy of the tensor, including quantization parameters if present.
func (t *Tensor) Clone() *Tensor {
	t.AssertValid()
	t2 := FromShape(t.shape)
	copyFlatAny(t2.flat, t.flat)
	if t.quant != nil {
		q := *t.quant
		t2.quant = &q
	}
	return t2
}

func copyFlatAny(dst, src any) {
	switch d := dst.(type) {
	case []float32:
		copy(d, src.([]float32))
	case []float64:
		copy(d, src.([]float64))
	case []float16.Float16:
		copy(d, src.([]float16.Float16))
	case []int8:
		copy(d, src.([]int8))
	case []int32:
		copy(d, src.([]int32))
	default:
		exceptions.Panicf("tensors: unsupported flat data type %T", dst)
	}
}

// Equal reports whether the two tensors have the same shape, the same quantization
// parameters (if any) and bit-identical flat data.
func (t *Tensor) Equal(t2 *Tensor) bool {
	if t == nil || t2 == nil {
		return t == t2
	}
	if !t.shape.Equal(t2.shape) {
		return false
	}
	if (t.quant == nil) != (t2.quant == nil) {
		return false
	}
	if t.quant != nil && *t.quant != *t2.quant {
		return false
	}
	return flatEqual(t.flat, t2.flat)
}

func flatEqual(a, b any) bool {
	switch av := a.(type) {
	case []float32:
		bv := b.([]float32)
		for ii, v := range av {
			if v != bv[ii] {
				return false
			}
		}
	case []float64:
		bv := b.([]float64)
		for ii, v := range av {
			if v != bv[ii] {
				return false
			}
		}
	case []float16.Float16:
		bv := b.([]float16.Float16)
		for ii, v := range av {
			if v != bv[ii] {
				return false
			}
		}
	case []int8:
		bv := b.([]int8)
		for ii, v := range av {
			if v != bv[ii] {
				return false
			}
		}
	case []int32:
		bv := b.([]int32)
		for ii, v := range av {
			if v != bv[ii] {
				return false
			}
		}
	default:
		exceptions.Panicf("tensors: unsupported flat data type %T", a)
	}
	return true
}

// MaxSizeForString is the largest tensor that is actually returned by String() is requested.
var MaxSizeForString = 500

// String converts to string, if not too large.
func (t *Tensor) String() string {
	if t == nil {
		return "Tensor(nil)"
	}
	if !t.shape.Ok() {
		return "Tensor(invalid shape)"
	}
	if t.Size() > MaxSizeForString {
		return fmt.Sprintf("Tensor(%s): (... too large, %d values ...)", t.shape, t.Size())
	}
	var parts []string
	for _, v := range t.Float64Values() {
		parts = append(parts, fmt.Sprintf("%.4g", v))
	}
	return fmt.Sprintf("Tensor(%s): [%s]", t.shape, strings.Join(parts, ", "))
}
