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

package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueSendTryDrainLen(t *testing.T) {
	q := New[int](4)
	require.Equal(t, 0, q.Len())
	require.Nil(t, q.TryDrain())

	q.Send(1)
	q.Send(2)
	q.Send(3)
	require.Equal(t, 3, q.Len())

	got := q.TryDrain()
	require.Equal(t, []int{1, 2, 3}, got)
	require.Equal(t, 0, q.Len())
}

func TestQueueSendBlocksWhenFull(t *testing.T) {
	q := New[int](1)
	q.Send(1)

	done := make(chan struct{})
	go func() {
		q.Send(2)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Send on a full queue must block until drained")
	case <-time.After(20 * time.Millisecond):
	}

	q.TryDrain()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked Send did not unblock after drain freed capacity")
	}
}
