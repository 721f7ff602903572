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

// Package cast converts arrow arrays between logical types.
//
// The two entry points are Cast, which nullifies values that cannot be
// represented in the target type, and CastWithOptions, which can instead
// abort on the first unrepresentable value. CanCast reports whether a
// type pair is convertible at all, independent of data.
package cast

import (
	"context"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// CastOptions controls the failure policy of a cast.
type CastOptions struct {
	// Safe converts per-value failures (overflow, unparseable string,
	// precision violation) into nulls at the failing position. When
	// false the whole cast aborts on the first such failure.
	Safe bool
}

// SafeCastOptions returns options that nullify unrepresentable values.
func SafeCastOptions() *CastOptions { return &CastOptions{Safe: true} }

// UnsafeCastOptions returns options that abort on the first
// unrepresentable value.
func UnsafeCastOptions() *CastOptions { return &CastOptions{Safe: false} }

// DefaultCastOptions returns safe or unsafe options by flag.
func DefaultCastOptions(safe bool) *CastOptions { return &CastOptions{Safe: safe} }

// castKernel converts arr into a freshly allocated array of the target
// type. Kernels never mutate their input and never retain a reference
// to it beyond the call, except where the output can share the input's
// buffers unchanged.
type castKernel func(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error)

var (
	// castTable is the two-level dispatch table: outer key is the
	// source type tag, inner key the target type tag.
	castTable map[arrow.Type]map[arrow.Type]castKernel
	castInit  sync.Once
)

func initCastTable() {
	castTable = make(map[arrow.Type]map[arrow.Type]castKernel)
	addNumericCasts()
	addDecimalCasts()
	addStringCasts()
	addTemporalCasts()
}

func addCast(from, to arrow.Type, k castKernel) {
	inner, ok := castTable[from]
	if !ok {
		inner = make(map[arrow.Type]castKernel)
		castTable[from] = inner
	}
	inner[to] = k
}

func lookupCast(from, to arrow.Type) (castKernel, bool) {
	castInit.Do(initCastTable)
	k, ok := castTable[from][to]
	return k, ok
}

// Cast converts arr to the target type under safe options.
func Cast(ctx context.Context, arr arrow.Array, to arrow.DataType) (arrow.Array, error) {
	return CastWithOptions(ctx, arr, to, SafeCastOptions())
}

// CastWithOptions converts arr to the target type. The allocator is
// taken from the context via compute.WithAllocator, defaulting to
// memory.DefaultAllocator. The returned array is always freshly
// created; the caller owns a reference and must Release it.
func CastWithOptions(ctx context.Context, arr arrow.Array, to arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	if opts == nil {
		opts = SafeCastOptions()
	}
	from := arr.DataType()

	// Tier 0: identical types share all buffers.
	if arrow.TypeEqual(from, to) {
		return shallowClone(arr), nil
	}

	// Tier 1: a null-typed source materializes as all-null output.
	if from.ID() == arrow.NULL {
		return array.MakeArrayOfNull(allocator(ctx), to, arr.Len()), nil
	}

	// Dictionaries are unwrapped (or built) around the inner cast.
	switch {
	case from.ID() == arrow.DICTIONARY && to.ID() == arrow.DICTIONARY:
		return castDictToDict(ctx, arr, to, opts)
	case from.ID() == arrow.DICTIONARY:
		return castFromDict(ctx, arr, to, opts)
	case to.ID() == arrow.DICTIONARY:
		return castToDict(ctx, arr, to, opts)
	}

	// List sources and targets are routed structurally since their
	// legality depends on the child types.
	if isListID(from.ID()) {
		return castFromList(ctx, arr, to, opts)
	}
	if isListID(to.ID()) {
		return castToList(ctx, arr, to, opts)
	}

	if k, ok := lookupCast(from.ID(), to.ID()); ok {
		return k(ctx, arr, to, opts)
	}
	return nil, errCastNotSupported(from, to)
}

// CanCast reports whether casting from one type to the other is
// supported. It is a pure predicate on the types: any pair it accepts
// dispatches to a kernel, and any pair it rejects makes Cast return an
// unsupported-cast error.
func CanCast(from, to arrow.DataType) bool {
	if arrow.TypeEqual(from, to) {
		return true
	}
	if from.ID() == arrow.NULL {
		return true
	}

	if from.ID() == arrow.DICTIONARY || to.ID() == arrow.DICTIONARY {
		if fromDict, ok := from.(*arrow.DictionaryType); ok {
			from = fromDict.ValueType
		}
		if toDict, ok := to.(*arrow.DictionaryType); ok {
			to = toDict.ValueType
		}
		return CanCast(from, to)
	}

	if isListID(from.ID()) {
		fromElem := listElemOf(from)
		switch {
		case isListID(to.ID()):
			// Same offset width recurses into the children; a width
			// change requires identical children.
			if from.ID() == to.ID() {
				return CanCast(fromElem, listElemOf(to))
			}
			return arrow.TypeEqual(fromElem, listElemOf(to))
		case to.ID() == arrow.STRING || to.ID() == arrow.LARGE_STRING:
			return CanCast(fromElem, to)
		default:
			return false
		}
	}
	if isListID(to.ID()) {
		// Wrapping a non-list source requires the source to reach the
		// declared element type.
		return CanCast(from, listElemOf(to))
	}

	_, ok := lookupCast(from.ID(), to.ID())
	return ok
}

func isListID(id arrow.Type) bool {
	return id == arrow.LIST || id == arrow.LARGE_LIST
}

func listElemOf(dt arrow.DataType) arrow.DataType {
	switch dt := dt.(type) {
	case *arrow.ListType:
		return dt.Elem()
	case *arrow.LargeListType:
		return dt.Elem()
	}
	return nil
}

func allocator(ctx context.Context) memory.Allocator {
	return compute.GetAllocator(ctx)
}
