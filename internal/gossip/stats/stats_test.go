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

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Both implementations must satisfy Stats; a broken method set here would
// fail to compile rather than fail at runtime.
var (
	_ Stats = (*Prometheus)(nil)
	_ Stats = Noop{}
)

func TestPrometheusRegistersDistinctMetricsPerInstance(t *testing.T) {
	a := NewPrometheus()
	b := NewPrometheus()

	a.IncPush()
	a.IncPush()
	b.IncPush()

	if got := testutil.ToFloat64(a.push); got != 2 {
		t.Fatalf("a.push = %v, want 2", got)
	}
	if got := testutil.ToFloat64(b.push); got != 1 {
		t.Fatalf("b.push = %v, want 1", got)
	}
}

func TestPrometheusIncAndObserveDoNotPanic(t *testing.T) {
	p := NewPrometheus()
	p.IncInsertInserted()
	p.IncInsertTimeouts()
	p.IncInsertFailed()
	p.IncPush()
	p.IncPull()
	p.IncPrune()
	p.IncPing()
	p.IncPong()
	p.IncActiveSetRotation()
	p.SetQueueDepth("ingress", 3)
	p.ObserveTrimDuration(0.01)
}

func TestNoopSatisfiesStatsWithoutPanicking(t *testing.T) {
	var s Stats = Noop{}
	s.IncPush()
	s.SetQueueDepth("ingress", 5)
	s.ObserveTrimDuration(0.5)
}
