// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package osmanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreos/zincati/internal/release"
)

// fakeExecutor records the args it was called with and replays a
// scripted sequence of (output, error) results, one per call.
type fakeExecutor struct {
	calls   [][]string
	outputs [][]byte
	errs    []error
}

func (f *fakeExecutor) Execute(args []string) ([]byte, error) {
	idx := len(f.calls)
	f.calls = append(f.calls, args)
	var out []byte
	var err error
	if idx < len(f.outputs) {
		out = f.outputs[idx]
	}
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	return out, err
}

func TestQueryLocalDeployments_ParsesStatusJSON(t *testing.T) {
	exec := &fakeExecutor{
		outputs: [][]byte{[]byte(`{"deployments":[
			{"checksum":"aaa","version":"1.0.0","booted":true},
			{"checksum":"bbb","version":"1.1.0","booted":false}
		]}`)},
		errs: []error{nil},
	}
	m := New(exec)

	deployments, err := m.QueryLocalDeployments(context.Background())
	require.NoError(t, err)
	require.Len(t, deployments, 2)
	assert.True(t, deployments[0].Booted)
	assert.Equal(t, "1.1.0", deployments[1].Version)
	assert.Equal(t, []string{"rpm-ostree", "status", "--json"}, exec.calls[0])
}

func TestQueryLocalDeployments_PropagatesExecError(t *testing.T) {
	exec := &fakeExecutor{errs: []error{errors.New("boom")}}
	m := New(exec)

	_, err := m.QueryLocalDeployments(context.Background())
	require.Error(t, err)
}

func TestQueryLocalDeployments_PropagatesMalformedJSON(t *testing.T) {
	exec := &fakeExecutor{outputs: [][]byte{[]byte("not-json")}, errs: []error{nil}}
	m := New(exec)

	_, err := m.QueryLocalDeployments(context.Background())
	require.Error(t, err)
}

func TestDenyList_ExcludesBootedDeployment(t *testing.T) {
	exec := &fakeExecutor{
		outputs: [][]byte{[]byte(`{"deployments":[
			{"checksum":"aaa","version":"1.0.0","booted":true},
			{"checksum":"bbb","version":"0.9.0","booted":false}
		]}`)},
		errs: []error{nil},
	}
	m := New(exec)

	deny, err := m.DenyList(context.Background())
	require.NoError(t, err)
	require.Len(t, deny, 1)
	assert.True(t, deny.Contains(release.New("0.9.0", "bbb", release.SchemeChecksum, nil)))
	assert.False(t, deny.Contains(release.New("1.0.0", "aaa", release.SchemeChecksum, nil)))
}

func TestDenyList_PrefersOCIReferenceWhenPresent(t *testing.T) {
	exec := &fakeExecutor{
		outputs: [][]byte{[]byte(`{"deployments":[
			{"checksum":"ccc","version":"0.8.0","booted":false,"container-image-reference":"registry:quay.io/example/os:0.8.0"}
		]}`)},
		errs: []error{nil},
	}
	m := New(exec)

	deny, err := m.DenyList(context.Background())
	require.NoError(t, err)
	require.Len(t, deny, 1)
	assert.Equal(t, release.SchemeOCI, deny[0].Scheme)
	assert.Equal(t, "registry:quay.io/example/os:0.8.0", deny[0].Payload)
}

func TestBootedDeployment_ChecksumScheme(t *testing.T) {
	exec := &fakeExecutor{
		outputs: [][]byte{[]byte(`{"deployments":[
			{"checksum":"aaa","version":"1.0.0","booted":true},
			{"checksum":"bbb","version":"0.9.0","booted":false}
		]}`)},
		errs: []error{nil},
	}
	m := New(exec)

	booted, err := m.BootedDeployment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, release.SchemeChecksum, booted.Scheme)
	assert.Equal(t, "aaa", booted.Checksum)
}

func TestBootedDeployment_OCIScheme(t *testing.T) {
	exec := &fakeExecutor{
		outputs: [][]byte{[]byte(`{"deployments":[
			{"checksum":"aaa","version":"1.0.0","booted":true,"container-image-reference":"registry:quay.io/example/os:1.0.0"}
		]}`)},
		errs: []error{nil},
	}
	m := New(exec)

	booted, err := m.BootedDeployment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, release.SchemeOCI, booted.Scheme)
	assert.Equal(t, "registry:quay.io/example/os:1.0.0", booted.ImageReference)
}

func TestBootedDeployment_ErrorsWhenNoneBooted(t *testing.T) {
	exec := &fakeExecutor{
		outputs: [][]byte{[]byte(`{"deployments":[
			{"checksum":"bbb","version":"0.9.0","booted":false}
		]}`)},
		errs: []error{nil},
	}
	m := New(exec)

	_, err := m.BootedDeployment(context.Background())
	require.Error(t, err)
}

func TestStageDeployment_ChecksumScheme(t *testing.T) {
	exec := &fakeExecutor{outputs: [][]byte{nil}, errs: []error{nil}}
	m := New(exec)

	rel := release.New("1.2.0", "deadbeef", release.SchemeChecksum, nil)
	require.NoError(t, m.StageDeployment(context.Background(), rel))
	assert.Equal(t, []string{"rpm-ostree", "deploy", "--lock-finalization", "revision=deadbeef"}, exec.calls[0])
}

func TestStageDeployment_OCIScheme(t *testing.T) {
	exec := &fakeExecutor{outputs: [][]byte{nil}, errs: []error{nil}}
	m := New(exec)

	rel := release.New("1.2.0", "registry:quay.io/example/os:1.2.0", release.SchemeOCI, nil)
	require.NoError(t, m.StageDeployment(context.Background(), rel))
	assert.Equal(t, []string{
		"rpm-ostree", "deploy", "--lock-finalization",
		"--register-driver=zincati", "image=registry:quay.io/example/os:1.2.0",
	}, exec.calls[0])
}

func TestStageDeployment_PropagatesExecError(t *testing.T) {
	exec := &fakeExecutor{errs: []error{errors.New("boom")}}
	m := New(exec)

	err := m.StageDeployment(context.Background(), release.New("1.2.0", "deadbeef", release.SchemeChecksum, nil))
	require.Error(t, err)
}

func TestFinalizeDeployment_InvokesRebootCommand(t *testing.T) {
	exec := &fakeExecutor{outputs: [][]byte{nil}, errs: []error{nil}}
	m := New(exec)

	require.NoError(t, m.FinalizeDeployment(context.Background()))
	assert.Equal(t, []string{"rpm-ostree", "finalize-deployment", "--reboot"}, exec.calls[0])
}

func TestFinalizeDeployment_PropagatesExecError(t *testing.T) {
	exec := &fakeExecutor{errs: []error{errors.New("boom")}}
	m := New(exec)

	require.Error(t, m.FinalizeDeployment(context.Background()))
}

func TestRegisterAsDriver_SucceedsOnFirstResponsiveCall(t *testing.T) {
	exec := &fakeExecutor{outputs: [][]byte{[]byte(`{}`)}, errs: []error{nil}}
	m := New(exec)

	require.NoError(t, m.RegisterAsDriver(context.Background()))
}

func TestRegisterAsDriver_EventuallySucceedsAfterTransientFailures(t *testing.T) {
	exec := &fakeExecutor{
		outputs: [][]byte{nil, nil, []byte(`{}`)},
		errs:    []error{errors.New("not ready"), errors.New("not ready"), nil},
	}
	m := New(exec)
	m.pollInterval = time.Millisecond
	m.pollTimeout = time.Second

	require.NoError(t, m.RegisterAsDriver(context.Background()))
	assert.Len(t, exec.calls, 3)
}
