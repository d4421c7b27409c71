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

package debug

import (
	"sync/atomic"

	"github.com/cloudwego/gopt/internal/phases"
)

// A Stats records statistics about the optimizer.
type Stats struct {
	Phases       PhaseStats
	Compilations CompileStats
}

// A PhaseStats records how often phases ran or were skipped.
type PhaseStats struct {
	Applied int
	Skipped int
}

// A CompileStats records the outcome of compilations.
type CompileStats struct {
	Compiled int
	Failed   int
}

// GetStats returns statistics of the optimizer.
func GetStats() Stats {
	return Stats{
		Phases: PhaseStats{
			Applied: int(atomic.LoadUint64(&phases.AppliedCount)),
			Skipped: int(atomic.LoadUint64(&phases.SkippedCount)),
		},
		Compilations: CompileStats{
			Compiled: int(atomic.LoadUint64(&phases.CompiledCount)),
			Failed:   int(atomic.LoadUint64(&phases.FailedCount)),
		},
	}
}
