// Copyright 2025 The Rush Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rush

import "errors"

// Static errors for better error handling and testing.
// These errors should be wrapped with fmt.Errorf and %w when context is needed.
var (
	// Registration errors
	ErrInvalidPattern = errors.New("invalid route pattern")
	ErrDuplicateRoute = errors.New("duplicate route")
	ErrRouteCapacity  = errors.New("route capacity exceeded")

	// Chain errors
	ErrNextCalledTwice = errors.New("next called twice in the same middleware frame")

	// Context errors
	ErrContextResponseNil = errors.New("context response is nil")

	// Router errors
	ErrResponseWriterNotHijacker = errors.New("responseWriter does not implement http.Hijacker")

	// Configuration errors
	ErrCacheSizeInvalid = errors.New("route cache size must be positive")
	ErrPoolSizeInvalid  = errors.New("context pool size must be positive")
	ErrMaxRoutesInvalid = errors.New("max routes must be positive")
)
