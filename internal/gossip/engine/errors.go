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

import "fmt"

// ProcessErrorKind enumerates the per-request failure kinds of spec.md §7
// that are surfaced to the caller (logged at error level with context
// fields) rather than silently dropped.
type ProcessErrorKind string

// Per-request failure kinds.
const (
	ErrNoPeers               ProcessErrorKind = "no_peers"
	ErrCantFindContactInfo   ProcessErrorKind = "cant_find_contact_info"
	ErrInvalidGossipAddress  ProcessErrorKind = "invalid_gossip_address"
	ErrSignatureError        ProcessErrorKind = "signature_error"
	ErrSerializationError    ProcessErrorKind = "serialization_error"
	ErrPruneMessageTooOld    ProcessErrorKind = "prune_message_too_old"
	ErrBadDestination        ProcessErrorKind = "bad_destination"
)

// ProcessError is a typed per-request failure, carrying the context fields
// spec.md §7 says should accompany the error-level log line.
type ProcessError struct {
	Kind    ProcessErrorKind
	Context map[string]any
	Cause   error
}

func (e *ProcessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *ProcessError) Unwrap() error { return e.Cause }

func newProcessError(kind ProcessErrorKind, ctx map[string]any, cause error) *ProcessError {
	return &ProcessError{Kind: kind, Context: ctx, Cause: cause}
}
