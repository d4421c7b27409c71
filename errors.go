/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package gopt

import (
    `errors`

    `github.com/cloudwego/gopt/graph`
)

// InvariantError occures when a phase breaks an invariant of the graph it
// compiles. The compilation of that graph is abandoned.
type InvariantError = graph.InvariantError

// IsInvariantError reports whether err aborted a compilation.
func IsInvariantError(err error) bool {
    var ie *InvariantError
    return errors.As(err, &ie)
}
