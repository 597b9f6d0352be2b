// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package identity derives the node's agent identity: basearch, stream,
// platform, a stable machine UUID, the current OS version, and the
// operator-configurable group/throttle. Grounded on the reference
// agent's identity::Identity (identity/mod.rs): read_basearch/
// read_stream/read_platform_id/read_os_version source from
// /etc/os-release and the kernel command line, and node_uuid is a
// namespace-UUID derived from the machine ID, adapted here to
// google/uuid's NewSHA1 in place of libsystemd's app-specific ID128
// derivation (the same "static namespace + machine id" construction,
// expressed with a dependency already used elsewhere in this family of
// agents).
package identity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/coreos/zincati/internal/utils"
)

// DefaultGroup is used when no group is configured.
const DefaultGroup = "default"

// appNamespace is a fixed namespace UUID scoping this application's
// derived node identifiers, analogous to the reference agent's
// hard-coded APP_ID byte string.
var appNamespace = uuid.MustParse("de35106b-6ec2-4688-b63a-fddaa156679b")

// Identity is this node's agent identity.
type Identity struct {
	Basearch        string
	Stream          string
	Platform        string
	CurrentVersion  string
	Group           string
	NodeUUID        uuid.UUID
	ThrottlePermille *uint16
}

// Config carries the operator-supplied overrides from §6's
// identity.{group, nodeUUID, throttlePermille}.
type Config struct {
	Group            string
	NodeUUID         string
	ThrottlePermille *uint16
}

// osReleaseKeys are the /etc/os-release fields consulted for basearch
// and stream; both fall back to a fixed default if the file or key is
// missing, matching the reference agent's stubbed TODO readers.
const (
	keyBasearch = "OSTREE_ARCH"
	keyStream   = "OSTREE_VERSION_STREAM"
)

const (
	defaultBasearch = "x86_64"
	defaultStream   = "stable"
	defaultPlatform = "metal"
)

// machineIDPath is where the stable per-install machine identifier
// lives on a systemd-based image-based OS.
const machineIDPath = "/etc/machine-id"

// TryDefault builds the default Identity by reading /etc/os-release
// and /etc/machine-id (for node_uuid derivation), then applies cfg on
// top. Platform is always "metal"; the kernel command line is not read.
func TryDefault(reader utils.FileReader, cfg Config) (*Identity, error) {
	osRelease, err := readOSRelease(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read os-release: %w", err)
	}

	machineID, err := readMachineID(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine-id: %w", err)
	}
	nodeUUID := uuid.NewSHA1(appNamespace, []byte(machineID))

	id := &Identity{
		Basearch:       valueOr(osRelease[keyBasearch], defaultBasearch),
		Stream:         valueOr(osRelease[keyStream], defaultStream),
		Platform:       defaultPlatform,
		CurrentVersion: valueOr(osRelease["VERSION"], "unknown"),
		Group:          DefaultGroup,
		NodeUUID:       nodeUUID,
	}

	if cfg.Group != "" {
		id.Group = cfg.Group
	}
	if cfg.NodeUUID != "" {
		parsed, err := uuid.Parse(cfg.NodeUUID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse configured node_uuid: %w", err)
		}
		id.NodeUUID = parsed
	}
	if cfg.ThrottlePermille != nil {
		id.ThrottlePermille = cfg.ThrottlePermille
	}

	return id, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func readOSRelease(reader utils.FileReader) (map[string]string, error) {
	out := map[string]string{}
	content, err := reader.ReadFile("/etc/os-release")
	if err != nil {
		return out, nil // missing os-release is tolerated; defaults apply
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		out[k] = strings.Trim(v, `"`)
	}
	return out, nil
}

func readMachineID(reader utils.FileReader) (string, error) {
	content, err := reader.ReadFile(machineIDPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(content)), nil
}

// URLVariables returns the closed set of substitution variables for
// templated configuration strings (e.g. cincinnati.baseURL), per §6.
func (id *Identity) URLVariables() map[string]string {
	return map[string]string{
		"stream":    id.Stream,
		"basearch":  id.Basearch,
		"platform":  id.Platform,
		"group":     id.Group,
		"node_uuid": id.NodeUUID.String(),
	}
}

// CincinnatiParams returns the query parameters appended to every
// update-graph fetch.
func (id *Identity) CincinnatiParams() map[string]string {
	params := map[string]string{
		"basearch": id.Basearch,
		"stream":   id.Stream,
		"os_uuid":  id.NodeUUID.String(),
		"group":    id.Group,
	}
	if id.ThrottlePermille != nil {
		params["rollout_wariness"] = fmt.Sprintf("%.3f", float64(*id.ThrottlePermille)/1000)
	}
	return params
}
