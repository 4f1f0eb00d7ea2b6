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

package engine

import "github.com/facebookincubator/gossip/internal/gossip/protocol"

// sanitizeSocket rejects a gossip endpoint with no usable port or an
// unspecified address, shared by Build-Prune (§4.3.5) and get_gossip_nodes
// (§4.4.5).
func sanitizeSocket(s protocol.SocketAddr) bool {
	if s.Port == 0 {
		return false
	}
	addr := s.UDPAddr()
	return addr.IP != nil && !addr.IP.IsUnspecified()
}
