/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stats

// Noop discards every metric; used by tests that don't care about
// reporting and don't want to bind a monitoring port per test.
type Noop struct{}

func (Noop) Start(int)                   {}
func (Noop) IncInsertInserted()          {}
func (Noop) IncInsertTimeouts()          {}
func (Noop) IncInsertFailed()            {}
func (Noop) IncPush()                    {}
func (Noop) IncPull()                    {}
func (Noop) IncPrune()                   {}
func (Noop) IncPing()                    {}
func (Noop) IncPong()                    {}
func (Noop) IncActiveSetRotation()       {}
func (Noop) SetQueueDepth(string, int)   {}
func (Noop) ObserveTrimDuration(float64) {}
