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

package phases

import (
    `fmt`
    `strings`

    `github.com/cloudwego/gopt/internal/state`
)

// NotApplicable explains why a phase must not run on a graph in its current
// state. A nil *NotApplicable means the phase is eligible.
type NotApplicable struct {
    Reason string
}

func (self *NotApplicable) String() string {
    if self == nil {
        return "<applicable>"
    } else {
        return self.Reason
    }
}

// When returns a reason if cond holds.
func When(cond bool, format string, args ...interface{}) *NotApplicable {
    if !cond {
        return nil
    } else {
        return &NotApplicable{Reason: fmt.Sprintf(format, args...)}
    }
}

// IfApplied is the reason of one-shot phases whose flag is already set.
func IfApplied(p Phase, flag state.StageFlag, st *state.GraphState) *NotApplicable {
    return When(st.IsAfterStage(flag), "cannot apply %s twice: %s already done", p.Name(), flag)
}

// UnlessRunBefore is the reason of phases that must run before flag is set.
func UnlessRunBefore(p Phase, flag state.StageFlag, st *state.GraphState) *NotApplicable {
    return When(st.IsAfterStage(flag), "%s must run before %s", p.Name(), flag)
}

// UnlessRunAfter is the reason of phases that must run after flag is set.
func UnlessRunAfter(p Phase, flag state.StageFlag, st *state.GraphState) *NotApplicable {
    return When(st.IsBeforeStage(flag), "%s must run after %s", p.Name(), flag)
}

// Any returns the combined reasons if at least one is present.
func Any(reasons ...*NotApplicable) *NotApplicable {
    var buf []string
    for _, r := range reasons {
        if r != nil {
            buf = append(buf, r.Reason)
        }
    }
    return join(buf)
}

// All returns the combined reasons only if every one is present.
func All(reasons ...*NotApplicable) *NotApplicable {
    buf := make([]string, 0, len(reasons))
    for _, r := range reasons {
        if r == nil {
            return nil
        }
        buf = append(buf, r.Reason)
    }
    return join(buf)
}

func join(buf []string) *NotApplicable {
    if len(buf) == 0 {
        return nil
    } else {
        return &NotApplicable{Reason: strings.Join(buf, "; ")}
    }
}
