// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package release defines the Release value type and its total order,
// grounded on the reference agent's rpm_ostree.Release and the OSTree
// image-reference unwrapping used to compare OCI-scheme payloads.
package release

import (
	"strings"
)

// Scheme identifies how a release's payload is compared against the
// booted deployment.
type Scheme string

const (
	SchemeChecksum Scheme = "checksum"
	SchemeOCI      Scheme = "oci"
)

// Release is an immutable, uniquely identified OS image.
type Release struct {
	Version  string
	Payload  string
	Scheme   Scheme
	AgeIndex *int64
}

// New builds a Release, normalising no state beyond what is given; the
// resolver is responsible for parsing AgeIndex out of node metadata.
func New(version, payload string, scheme Scheme, ageIndex *int64) Release {
	return Release{Version: version, Payload: payload, Scheme: scheme, AgeIndex: ageIndex}
}

// ReferenceID is the storage-layer reference string the OS manager uses
// to address this release's deployment.
func (r Release) ReferenceID() string {
	if r.Scheme == SchemeChecksum {
		return "revision=" + r.Payload
	}
	return "image=" + unwrapOSTreeImageReference(r.Payload)
}

// Less reports whether r orders strictly before other under the total
// order of §3: age_index ascending (absent sorts below any present
// value), then version, then payload.
func (r Release) Less(other Release) bool {
	switch {
	case r.AgeIndex == nil && other.AgeIndex == nil:
		// fall through to version/payload tie-break
	case r.AgeIndex == nil:
		return true
	case other.AgeIndex == nil:
		return false
	case *r.AgeIndex != *other.AgeIndex:
		return *r.AgeIndex < *other.AgeIndex
	}
	if r.Version != other.Version {
		return r.Version < other.Version
	}
	return r.Payload < other.Payload
}

// Equal reports whether two releases compare equal for denylist and
// booted-node matching purposes. OCI-scheme payloads are compared after
// unwrapping any OSTree container-image-reference envelope, so that
// "ostree-image-signed:registry:quay.io/x" and "registry:quay.io/x"
// denote the same underlying pullspec.
func (r Release) Equal(other Release) bool {
	if r.Scheme != other.Scheme {
		return false
	}
	if r.Scheme == SchemeOCI {
		return unwrapOSTreeImageReference(r.Payload) == unwrapOSTreeImageReference(other.Payload)
	}
	return r.Payload == other.Payload
}

// unwrapOSTreeImageReference extracts the inner container-image name
// from an OSTree image reference, or returns the input unchanged if it
// carries no recognised OSTree signature-verification prefix. Grounded
// on rpm_ostree/imageref.rs's OstreeImageReference parsing, reduced to
// the single responsibility the resolver needs: compare pullspecs.
func unwrapOSTreeImageReference(ref string) string {
	for _, prefix := range []string{"ostree-image-signed:", "ostree-unverified-image:"} {
		if rest, ok := cutPrefix(ref, prefix); ok {
			return rest
		}
	}
	if rest, ok := cutPrefix(ref, "ostree-unverified-registry:"); ok {
		return "registry:" + rest
	}
	if rest, ok := cutPrefix(ref, "ostree-remote-registry:"); ok {
		if _, after, found := strings.Cut(rest, ":"); found {
			return "registry:" + after
		}
	}
	if rest, ok := cutPrefix(ref, "ostree-remote-image:"); ok {
		if _, after, found := strings.Cut(rest, ":"); found {
			return after
		}
	}
	return ref
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

// DenyList is an ordered set of releases that must never be re-selected
// by the resolver (the OS manager's local, non-booted deployments).
type DenyList []Release

// Contains reports whether r is present in the deny list, per Equal.
func (d DenyList) Contains(r Release) bool {
	for _, entry := range d {
		if entry.Equal(r) {
			return true
		}
	}
	return false
}
