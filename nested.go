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
	"context"
	"math"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// cloneValidity rebuilds the validity bitmap at offset zero, or nil
// when the array has no nulls.
func cloneValidity(mem memory.Allocator, arr arrow.Array) *memory.Buffer {
	if arr.NullN() == 0 {
		return nil
	}
	buf := memory.NewResizableBuffer(mem)
	buf.Resize(int(bitutil.BytesForBits(int64(arr.Len()))))
	for i := 0; i < arr.Len(); i++ {
		if arr.IsValid(i) {
			bitutil.SetBit(buf.Bytes(), i)
		}
	}
	return buf
}

// castFromDict materializes the dictionary to the target type: the
// values are cast once and then gathered through the indices, so the
// per-value work stays proportional to the dictionary size.
func castFromDict(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	src, ok := arr.(*array.Dictionary)
	if !ok {
		return nil, errBadKernelInput(arr, "dictionary")
	}
	values, err := CastWithOptions(ctx, src.Dictionary(), target, opts)
	if err != nil {
		return nil, err
	}
	defer values.Release()
	// Take has no kernel for 16-byte interval values, so those decode
	// through a direct index walk instead.
	if iv, ok := values.(*array.MonthDayNanoInterval); ok {
		return decodeIntervalDict(allocator(ctx), src, iv), nil
	}
	return compute.TakeArray(ctx, values, src.Indices())
}

// decodeIntervalDict expands a dictionary whose cast values are
// month-day-nano intervals. Index nulls and value nulls both surface
// as output nulls.
func decodeIntervalDict(mem memory.Allocator, src *array.Dictionary, values *array.MonthDayNanoInterval) arrow.Array {
	n := src.Len()
	p := newPrimitiveCtx(mem, src)
	buf, out := allocValues[arrow.MonthDayNanoInterval](mem, n)
	for i := 0; i < n; i++ {
		if src.IsNull(i) {
			continue
		}
		j := src.GetValueIndex(i)
		if values.IsNull(j) {
			p.setNull(i)
			continue
		}
		out[i] = values.Value(j)
	}
	return p.finish(values.DataType(), n, buf)
}

// castToDict encodes a flat source: the source is first cast to the
// dictionary's value type, then unified into the memo table.
func castToDict(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	dt, ok := target.(*arrow.DictionaryType)
	if !ok {
		return nil, errBadKernelInput(arr, "dictionary target")
	}
	flat, err := CastWithOptions(ctx, arr, dt.ValueType, opts)
	if err != nil {
		return nil, err
	}
	defer flat.Release()

	bldr := array.NewDictionaryBuilder(allocator(ctx), dt)
	defer bldr.Release()
	if err := bldr.AppendArray(flat); err != nil {
		return nil, errInvalidParam("%s", err)
	}
	out := bldr.NewDictionaryArray()
	if limit := dictIndexLimit(dt.IndexType); int64(out.Dictionary().Len()) > limit {
		n := int64(out.Dictionary().Len()) - limit
		out.Release()
		return nil, errInvalidParam("%d dictionary values could not be represented in index type %s", n, dt.IndexType)
	}
	return out, nil
}

// castDictToDict re-keys in place: values and indices are cast
// independently and reassembled without decoding. An index that does
// not fit the new index width is an error regardless of the safety
// option, since silently nulling it would detach the value it points
// at.
func castDictToDict(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	src, ok := arr.(*array.Dictionary)
	if !ok {
		return nil, errBadKernelInput(arr, "dictionary")
	}
	dt := target.(*arrow.DictionaryType)

	values, err := CastWithOptions(ctx, src.Dictionary(), dt.ValueType, opts)
	if err != nil {
		return nil, err
	}
	defer values.Release()

	indices, err := CastWithOptions(ctx, src.Indices(), dt.IndexType, SafeCastOptions())
	if err != nil {
		return nil, err
	}
	defer indices.Release()
	if lost := indices.NullN() - src.Indices().NullN(); lost > 0 {
		return nil, errInvalidParam("%d dictionary indices could not be represented in index type %s", lost, dt.IndexType)
	}

	return array.NewDictionaryArray(target, indices, values), nil
}

func dictIndexLimit(idx arrow.DataType) int64 {
	switch idx.ID() {
	case arrow.INT8:
		return math.MaxInt8 + 1
	case arrow.UINT8:
		return math.MaxUint8 + 1
	case arrow.INT16:
		return math.MaxInt16 + 1
	case arrow.UINT16:
		return math.MaxUint16 + 1
	case arrow.INT32, arrow.UINT32, arrow.INT64, arrow.UINT64:
		return math.MaxInt64
	}
	return 0
}

// castFromList handles every list-typed source: child re-cast at the
// same offset width, offset width changes over identical children, and
// formatting into strings.
func castFromList(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	from := arr.DataType()
	switch {
	case from.ID() == target.ID():
		return castListChild(ctx, arr, target, opts)
	case isListID(target.ID()):
		return castListOffsetWidth(ctx, arr, target)
	case target.ID() == arrow.STRING || target.ID() == arrow.LARGE_STRING:
		if !CanCast(listElemOf(from), target) {
			return nil, errCastNotSupported(from, target)
		}
		return castListToString(ctx, arr, target)
	}
	return nil, errCastNotSupported(from, target)
}

// castListChild casts the child array and reattaches the source's
// validity and offset buffers unchanged.
func castListChild(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	var child arrow.Array
	switch src := arr.(type) {
	case *array.List:
		child = src.ListValues()
	case *array.LargeList:
		child = src.ListValues()
	default:
		return nil, errBadKernelInput(arr, "list")
	}

	newChild, err := CastWithOptions(ctx, child, listElemOf(target), opts)
	if err != nil {
		return nil, err
	}
	defer newChild.Release()

	data := arr.Data()
	out := array.NewData(target, arr.Len(), data.Buffers(), []arrow.ArrayData{newChild.Data()}, arr.NullN(), data.Offset())
	defer out.Release()
	return array.MakeFromData(out), nil
}

// castListOffsetWidth converts between list and large_list over an
// unchanged child. Narrowing fails outright when any offset exceeds
// the 32-bit range: the value set is unrepresentable, not individual
// values.
func castListOffsetWidth(ctx context.Context, arr arrow.Array, target arrow.DataType) (arrow.Array, error) {
	if !arrow.TypeEqual(listElemOf(arr.DataType()), listElemOf(target)) {
		return nil, errCastNotSupported(arr.DataType(), target)
	}
	mem := allocator(ctx)
	switch src := arr.(type) {
	case *array.List:
		// Offsets() spans the whole buffer, so the slice window is cut
		// out here and rebased against its first entry.
		off := src.Data().Offset()
		offsets := src.Offsets()[off : off+arr.Len()+1]
		first := offsets[0]
		child := array.NewSlice(src.ListValues(), int64(first), int64(offsets[len(offsets)-1]))
		defer child.Release()
		buf, out := allocValues[int64](mem, len(offsets))
		defer buf.Release()
		for i, o := range offsets {
			out[i] = int64(o - first)
		}
		validity := cloneValidity(mem, arr)
		data := array.NewData(target, arr.Len(),
			[]*memory.Buffer{validity, buf},
			[]arrow.ArrayData{child.Data()}, arr.NullN(), 0)
		defer data.Release()
		if validity != nil {
			validity.Release()
		}
		return array.MakeFromData(data), nil
	case *array.LargeList:
		off := src.Data().Offset()
		offsets := src.Offsets()[off : off+arr.Len()+1]
		first := offsets[0]
		if span := offsets[len(offsets)-1] - first; span > math.MaxInt32 {
			return nil, errInvalidParam("list offset %d exceeds the 32-bit offset range", span)
		}
		child := array.NewSlice(src.ListValues(), first, offsets[len(offsets)-1])
		defer child.Release()
		buf, out := allocValues[int32](mem, len(offsets))
		defer buf.Release()
		for i, o := range offsets {
			out[i] = int32(o - first)
		}
		validity := cloneValidity(mem, arr)
		data := array.NewData(target, arr.Len(),
			[]*memory.Buffer{validity, buf},
			[]arrow.ArrayData{child.Data()}, arr.NullN(), 0)
		defer data.Release()
		if validity != nil {
			validity.Release()
		}
		return array.MakeFromData(data), nil
	}
	return nil, errBadKernelInput(arr, "list")
}

// castListToString renders each list as a bracketed, comma-separated
// sequence of element representations, nulls spelled out.
func castListToString(ctx context.Context, arr arrow.Array, target arrow.DataType) (arrow.Array, error) {
	var (
		child  arrow.Array
		bounds func(i int) (int64, int64)
	)
	switch src := arr.(type) {
	case *array.List:
		child = src.ListValues()
		bounds = src.ValueOffsets
	case *array.LargeList:
		child = src.ListValues()
		bounds = src.ValueOffsets
	default:
		return nil, errBadKernelInput(arr, "list")
	}

	bldr, err := newStringBuilderFor(allocator(ctx), target)
	if err != nil {
		return nil, err
	}
	defer bldr.Release()
	bldr.Reserve(arr.Len())

	var sb strings.Builder
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			bldr.AppendNull()
			continue
		}
		start, end := bounds(i)
		sb.Reset()
		sb.WriteByte('[')
		for j := start; j < end; j++ {
			if j > start {
				sb.WriteString(", ")
			}
			if child.IsNull(int(j)) {
				sb.WriteString("null")
			} else {
				sb.WriteString(child.ValueStr(int(j)))
			}
		}
		sb.WriteByte(']')
		bldr.Append(sb.String())
	}
	return bldr.NewArray(), nil
}

// castToList wraps each source row into a one-element list. Source
// nulls stay element-level nulls; no list-level validity is created.
func castToList(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	child, err := CastWithOptions(ctx, arr, listElemOf(target), opts)
	if err != nil {
		return nil, err
	}
	defer child.Release()

	mem := allocator(ctx)
	n := arr.Len()
	switch target.ID() {
	case arrow.LIST:
		buf, offsets := allocValues[int32](mem, n+1)
		defer buf.Release()
		for i := range offsets {
			offsets[i] = int32(i)
		}
		data := array.NewData(target, n, []*memory.Buffer{nil, buf}, []arrow.ArrayData{child.Data()}, 0, 0)
		defer data.Release()
		return array.MakeFromData(data), nil
	case arrow.LARGE_LIST:
		buf, offsets := allocValues[int64](mem, n+1)
		defer buf.Release()
		for i := range offsets {
			offsets[i] = int64(i)
		}
		data := array.NewData(target, n, []*memory.Buffer{nil, buf}, []arrow.ArrayData{child.Data()}, 0, 0)
		defer data.Release()
		return array.MakeFromData(data), nil
	}
	return nil, errCastNotSupported(arr.DataType(), target)
}
