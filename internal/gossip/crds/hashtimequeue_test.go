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

package crds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashTimeQueuePushContainsTrim(t *testing.T) {
	q := &HashTimeQueue{}
	now := time.Now()

	var h1, h2, h3 [32]byte
	h1[0], h2[0], h3[0] = 1, 2, 3

	q.Push(h1, now.Add(-time.Minute))
	q.Push(h2, now.Add(-time.Second))
	q.Push(h3, now)

	require.Equal(t, 3, q.Len())
	require.True(t, q.Contains(h2))

	q.Trim(now.Add(-30 * time.Second))
	require.Equal(t, 2, q.Len())
	require.False(t, q.Contains(h1))
	require.True(t, q.Contains(h2))
	require.True(t, q.Contains(h3))
}
