// Copyright (c) 2020–2024 The eis developers. All rights reserved.
// Project site: https://github.com/gotmc/eis
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eis

import "fmt"

// State is the lifecycle state of a sweep run.
type State int32

// Sweep states. Completed, Aborted and Failed are terminal.
const (
	Idle State = iota
	Configuring
	Armed
	Sweeping
	Completed
	Aborted
	Failed
)

var stateNames = map[State]string{
	Idle:        "idle",
	Configuring: "configuring",
	Armed:       "armed",
	Sweeping:    "sweeping",
	Completed:   "completed",
	Aborted:     "aborted",
	Failed:      "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == Completed || s == Aborted || s == Failed
}
