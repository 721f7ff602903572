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
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// Error classification mirrors the arrow sentinels so callers can
// discriminate with errors.Is:
//
//   - arrow.ErrNotImplemented: the (from, to) type pair has no kernel.
//     Always fatal, independent of CastOptions.Safe.
//   - arrow.ErrInvalid: a per-value overflow or parse failure surfaced
//     in unsafe mode, or an invalid caller parameter.
//   - arrow.ErrType: a kernel received an array whose runtime
//     representation does not match its type tag. Always fatal; it
//     indicates a dispatcher/kernel mismatch.

func errCastNotSupported(from, to arrow.DataType) error {
	return fmt.Errorf("%w: casting from %s to %s not supported", arrow.ErrNotImplemented, from, to)
}

func errOutOfRange[T any](v T, to arrow.DataType) error {
	return fmt.Errorf("%w: value %v out of range for conversion to %s", arrow.ErrInvalid, v, to)
}

func errParse(s string, to arrow.DataType) error {
	return fmt.Errorf("%w: cannot parse %q as %s", arrow.ErrInvalid, s, to)
}

func errInvalidParam(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{arrow.ErrInvalid}, args...)...)
}

func errBadKernelInput(arr arrow.Array, kernel string) error {
	return fmt.Errorf("%w: %s kernel received unexpected array type %s",
		arrow.ErrType, kernel, arr.DataType())
}
