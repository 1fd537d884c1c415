// Copyright 2025 Tom Barlow
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

package engine

import (
	"errors"

	"github.com/fluxwork/fluxwork/internal/dispatcher"
)

// asGoneError reports whether err is (or wraps) a dispatcher.GoneError —
// the tolerable race described in §5 where an abort loses to a process
// that already finished on the scheduler side.
func asGoneError(err error) (*dispatcher.GoneError, bool) {
	if err == nil {
		return nil, false
	}
	var gone *dispatcher.GoneError
	if errors.As(err, &gone) {
		return gone, true
	}
	return nil, false
}
