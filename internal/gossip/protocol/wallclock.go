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

package protocol

import "time"

// Wallclock is unsigned milliseconds since the UNIX epoch, as carried by
// every CrdsData variant. It is only loosely monotonic: it is whatever the
// issuing node's clock read when the record was stamped, and records are
// compared by it, not by local receipt order.
type Wallclock uint64

// Now returns the current wallclock, matching the resolution (milliseconds)
// records are compared at.
func Now() Wallclock {
	return Wallclock(time.Now().UnixMilli())
}

// Time converts a Wallclock back to a time.Time for duration arithmetic.
func (w Wallclock) Time() time.Time {
	return time.UnixMilli(int64(w))
}

// Sub returns the duration w-other, which may be negative.
func (w Wallclock) Sub(other Wallclock) time.Duration {
	return w.Time().Sub(other.Time())
}
