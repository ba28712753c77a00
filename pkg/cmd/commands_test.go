/*
Copyright 2025 David Arnold
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

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gitlab.com/davidxarnold/burst/pkg/cloud"
	"gitlab.com/davidxarnold/burst/pkg/node"
	"gitlab.com/davidxarnold/burst/pkg/store"
)

func TestRunList(t *testing.T) {
	bc, p := newTestConfig(t)
	b := provisionNode(t, bc, p, "b-agent", node.PolicyDestroy)
	a := provisionNode(t, bc, p, "a-agent", node.PolicySuspend)

	var buf bytes.Buffer
	if err := runList(bc, &buf, outputJSON); err != nil {
		t.Fatalf("runList() error = %v", err)
	}

	var got []node.Identity
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(got) != 2 || got[0].NodeID != a.NodeID || got[1].NodeID != b.NodeID {
		t.Errorf("runList() = %+v, want a-agent then b-agent", got)
	}
}

func TestRunDescribe(t *testing.T) {
	bc, p := newTestConfig(t)
	up := provisionNode(t, bc, p, "up", node.PolicyDestroy)
	gone := provisionNode(t, bc, p, "gone", node.PolicyDestroy)
	p.SetState(gone.NodeID, "")

	orphan := node.Identity{CloudProfile: "missing", NodeID: "memory/orphan", DisplayName: "orphan"}
	if err := bc.store.Put(orphan); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var buf bytes.Buffer
	if err := runDescribe(context.Background(), bc, nil, &buf, outputJSON); err != nil {
		t.Fatalf("runDescribe() error = %v", err)
	}

	var views []nodeView
	if err := json.Unmarshal(buf.Bytes(), &views); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	byID := map[string]nodeView{}
	for _, v := range views {
		byID[v.NodeID] = v
	}

	if v := byID[up.NodeID]; v.Metadata == nil || v.Metadata.State != cloud.StateRunning {
		t.Errorf("running node view = %+v", v)
	}
	if v := byID[gone.NodeID]; v.Metadata != nil || v.Error != "" {
		t.Errorf("gone node view = %+v, want no metadata and no error", v)
	}
	if v := byID[orphan.NodeID]; v.Error == "" {
		t.Errorf("orphan node view = %+v, want an error", v)
	}
}

func TestRunDescribeUnknownNode(t *testing.T) {
	bc, _ := newTestConfig(t)

	err := runDescribe(context.Background(), bc, []string{"memory/none"}, &bytes.Buffer{}, outputJSON)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("runDescribe() error = %v, want ErrNotFound", err)
	}
}

func TestRunTerminate(t *testing.T) {
	bc, p := newTestConfig(t)
	destroy := provisionNode(t, bc, p, "destroy", node.PolicyDestroy)
	suspend := provisionNode(t, bc, p, "suspend", node.PolicySuspend)
	stopped := provisionNode(t, bc, p, "stopped", node.PolicyDestroy)
	p.SetState(stopped.NodeID, cloud.StateSuspended)

	var buf bytes.Buffer
	err := runTerminate(context.Background(), bc, nil, terminateOptions{all: true}, &buf, outputTable)
	if err != nil {
		t.Fatalf("runTerminate() error = %v", err)
	}

	want := map[string]cloud.NodeState{
		destroy.NodeID: cloud.StateTerminated,
		suspend.NodeID: cloud.StateSuspended,
		stopped.NodeID: cloud.StateSuspended,
	}
	for id, state := range want {
		md, _ := p.NodeMetadata(context.Background(), id)
		if md == nil || md.State != state {
			t.Errorf("node %s state = %+v, want %s", id, md, state)
		}
	}

	if got := len(bc.store.List()); got != 3 {
		t.Errorf("store has %d nodes, want 3 without --forget", got)
	}
}

func TestRunTerminateForget(t *testing.T) {
	bc, p := newTestConfig(t)
	destroy := provisionNode(t, bc, p, "destroy", node.PolicyDestroy)
	suspend := provisionNode(t, bc, p, "suspend", node.PolicySuspend)

	var buf bytes.Buffer
	opts := terminateOptions{forget: true}
	if err := runTerminate(context.Background(), bc, []string{destroy.NodeID, suspend.NodeID}, opts, &buf, outputJSON); err != nil {
		t.Fatalf("runTerminate() error = %v", err)
	}

	if _, err := bc.store.Get(destroy.NodeID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("destroyed node still stored: %v", err)
	}
	if _, err := bc.store.Get(suspend.NodeID); err != nil {
		t.Errorf("suspended node was forgotten: %v", err)
	}

	var results []terminateResult
	if err := json.Unmarshal(buf.Bytes(), &results); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
}

func TestRunTerminateReportsFailures(t *testing.T) {
	bc, p := newTestConfig(t)
	ok := provisionNode(t, bc, p, "ok", node.PolicyDestroy)
	orphan := node.Identity{CloudProfile: "missing", NodeID: "memory/orphan", DisplayName: "orphan"}
	if err := bc.store.Put(orphan); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var buf bytes.Buffer
	err := runTerminate(context.Background(), bc, nil, terminateOptions{all: true, forget: true}, &buf, outputTable)
	if !errors.Is(err, ErrTerminateFailed) {
		t.Fatalf("runTerminate() error = %v, want ErrTerminateFailed", err)
	}
	if !errors.Is(err, cloud.ErrProfileNotFound) {
		t.Errorf("runTerminate() error = %v, want it to wrap ErrProfileNotFound", err)
	}

	if md, _ := p.NodeMetadata(context.Background(), ok.NodeID); md == nil || md.State != cloud.StateTerminated {
		t.Errorf("healthy node was not destroyed: %+v", md)
	}
	if _, err := bc.store.Get(orphan.NodeID); err != nil {
		t.Errorf("failed node was forgotten: %v", err)
	}
	if !strings.Contains(buf.String(), "orphan") {
		t.Errorf("results missing failed node:\n%s", buf.String())
	}
}

func TestRunForget(t *testing.T) {
	bc, p := newTestConfig(t)
	id := provisionNode(t, bc, p, "agent", node.PolicyDestroy)

	var buf bytes.Buffer
	if err := runForget(bc, []string{id.NodeID}, &buf); err != nil {
		t.Fatalf("runForget() error = %v", err)
	}
	if len(bc.store.List()) != 0 {
		t.Errorf("store not empty after forget")
	}

	// The backend node is untouched.
	if md, _ := p.NodeMetadata(context.Background(), id.NodeID); md == nil || md.State != cloud.StateRunning {
		t.Errorf("forget touched the backend: %+v", md)
	}

	if err := runForget(bc, []string{id.NodeID}, &buf); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second runForget() error = %v, want ErrNotFound", err)
	}
}
