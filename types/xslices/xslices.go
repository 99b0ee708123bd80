/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package xslices complements the standard slices package with the generic helpers the
// harness reaches for: map-key extraction, element mapping, filling and range
// generation. Unlike their standard counterparts, Min and Max tolerate empty slices.
package xslices

import (
	"cmp"
	"slices"

	"golang.org/x/exp/constraints"
)

// Keys returns the keys of a map as a slice, in map iteration order.
func Keys[K comparable, V any](m map[K]V) []K {
	s := make([]K, 0, len(m))
	for k := range m {
		s = append(s, k)
	}
	return s
}

// SortedKeys returns the keys of a map as a sorted slice.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	s := Keys(m)
	slices.Sort(s)
	return s
}

// Map applies fn to every element of in and collects the results.
func Map[In, Out any](in []In, fn func(e In) Out) []Out {
	out := make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return out
}

// FillSlice sets every element of the slice to value, with doubling copies.
func FillSlice[T any](slice []T, value T) {
	if len(slice) == 0 {
		return
	}
	slice[0] = value
	for filled := 1; filled < len(slice); filled *= 2 {
		copy(slice[filled:], slice[:filled])
	}
}

// Iota returns a slice of n consecutive values starting at start.
// Iota(3.0, 2) is []float64{3, 4}.
func Iota[T interface {
	constraints.Integer | constraints.Float
}](start T, n int) []T {
	slice := make([]T, n)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return slice
}

// Max returns the largest value in the slice, or the zero value if the slice is empty.
func Max[T cmp.Ordered](slice []T) (largest T) {
	if len(slice) == 0 {
		return
	}
	largest = slice[0]
	for _, v := range slice[1:] {
		if largest < v {
			largest = v
		}
	}
	return
}

// Min returns the smallest value in the slice, or the zero value if the slice is empty.
func Min[T cmp.Ordered](slice []T) (smallest T) {
	if len(slice) == 0 {
		return
	}
	smallest = slice[0]
	for _, v := range slice[1:] {
		if v < smallest {
			smallest = v
		}
	}
	return
}
