// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cast

import (
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/decimal256"
	"github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/exp/constraints"
)

// intValue and uintValue intentionally exclude the architecture-sized
// int/uint; arrow buffers only ever hold the explicit widths. The ~
// forms cover the temporal types whose underlying type is int32/int64.
type intValue interface {
	~int8 | ~int16 | ~int32 | ~int64
}

type uintValue interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

type numericValue interface {
	intValue | uintValue | constraints.Float
}

// fixedWidthValue is any raw value a fixed-width arrow buffer can be
// reinterpreted as. Booleans are excluded: arrow stores them bit-packed.
type fixedWidthValue interface {
	numericValue | float16.Num | decimal128.Num | decimal256.Num |
		arrow.DayTimeInterval | arrow.MonthDayNanoInterval
}

// valuesOf reinterprets a fixed-width buffer as a typed slice,
// pre-sized and offset-adjusted. The output slice length always equals
// n; the caller fills every position before the buffer escapes.
func valuesOf[T fixedWidthValue](buf []byte, offset, n int) []T {
	if n == 0 {
		return nil
	}
	ret := unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), offset+n)
	return ret[offset : offset+n]
}

// allocValues allocates a zeroed output buffer holding exactly n
// values of T and returns the typed view over it.
func allocValues[T fixedWidthValue](mem memory.Allocator, n int) (*memory.Buffer, []T) {
	var zero T
	buf := memory.NewResizableBuffer(mem)
	buf.Resize(n * int(unsafe.Sizeof(zero)))
	return buf, valuesOf[T](buf.Bytes(), 0, n)
}

// primitiveCtx carries the state shared by every fixed-width kernel:
// the output validity bitmap is allocated eagerly, seeded from the
// source nulls, and dropped again if no position ended up null.
type primitiveCtx struct {
	mem      memory.Allocator
	validity *memory.Buffer
	nulls    int
}

func newPrimitiveCtx(mem memory.Allocator, src arrow.Array) *primitiveCtx {
	n := src.Len()
	p := &primitiveCtx{mem: mem, validity: memory.NewResizableBuffer(mem)}
	p.validity.Resize(int(bitutil.BytesForBits(int64(n))))
	if src.NullN() == 0 {
		bitutil.SetBitsTo(p.validity.Bytes(), 0, int64(n), true)
		return p
	}
	for i := 0; i < n; i++ {
		if src.IsValid(i) {
			bitutil.SetBit(p.validity.Bytes(), i)
		} else {
			p.nulls++
		}
	}
	return p
}

func (p *primitiveCtx) setNull(i int) {
	bitutil.ClearBit(p.validity.Bytes(), i)
	p.nulls++
}

func (p *primitiveCtx) finish(dt arrow.DataType, n int, values *memory.Buffer) arrow.Array {
	validity := p.validity
	if p.nulls == 0 {
		validity.Release()
		validity = nil
	}
	data := array.NewData(dt, n, []*memory.Buffer{validity, values}, nil, p.nulls, 0)
	defer data.Release()
	if validity != nil {
		validity.Release()
	}
	values.Release()
	return array.MakeFromData(data)
}

// castPrimitive drives a fallible per-value conversion from a typed
// input slice into a freshly allocated fixed-width array. A conversion
// error nullifies the slot in safe mode and aborts otherwise.
func castPrimitive[I, O fixedWidthValue](mem memory.Allocator, src arrow.Array, in []I,
	dt arrow.DataType, opts *CastOptions, conv func(I) (O, error)) (arrow.Array, error) {

	n := len(in)
	p := newPrimitiveCtx(mem, src)
	buf, out := allocValues[O](mem, n)
	for i, v := range in {
		if src.IsNull(i) {
			continue
		}
		o, err := conv(v)
		if err != nil {
			if !opts.Safe {
				p.validity.Release()
				buf.Release()
				return nil, err
			}
			p.setNull(i)
			continue
		}
		out[i] = o
	}
	return p.finish(dt, n, buf), nil
}

// castPrimitiveByIndex is castPrimitive for sources without a directly
// reinterpretable value slice (intervals, timezone-resolved extracts).
func castPrimitiveByIndex[O fixedWidthValue](mem memory.Allocator, src arrow.Array,
	dt arrow.DataType, opts *CastOptions, conv func(i int) (O, error)) (arrow.Array, error) {

	n := src.Len()
	p := newPrimitiveCtx(mem, src)
	buf, out := allocValues[O](mem, n)
	for i := 0; i < n; i++ {
		if src.IsNull(i) {
			continue
		}
		o, err := conv(i)
		if err != nil {
			if !opts.Safe {
				p.validity.Release()
				buf.Release()
				return nil, err
			}
			p.setNull(i)
			continue
		}
		out[i] = o
	}
	return p.finish(dt, n, buf), nil
}

// castPrimitiveInfallible is the cheap path for pure reinterpretations
// and widenings where no per-value failure is possible.
func castPrimitiveInfallible[I, O fixedWidthValue](mem memory.Allocator, src arrow.Array, in []I,
	dt arrow.DataType, conv func(I) O) arrow.Array {

	n := len(in)
	p := newPrimitiveCtx(mem, src)
	buf, out := allocValues[O](mem, n)
	for i, v := range in {
		out[i] = conv(v)
	}
	return p.finish(dt, n, buf)
}

// shallowClone returns a new array sharing every buffer of arr.
func shallowClone(arr arrow.Array) arrow.Array {
	return array.MakeFromData(arr.Data())
}
