// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

import (
	"testing"

	"github.com/hollowcore/hle/pkg/ipc"
)

func TestAocSrvCountAddOnContent(t *testing.T) {
	h := NewAocSrv().Handler()
	resp, err := h(ipc.Request{Payload: ipc.PayloadHeader{Value: 0}})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if resp.Result != 0 {
		t.Fatalf("result = %d, want 0", resp.Result)
	}
}

func TestServiceTableUnknownCommandNotImplemented(t *testing.T) {
	h := NewBtm().Handler()
	if _, err := h(ipc.Request{Payload: ipc.PayloadHeader{Value: 0xFFFF}}); err == nil {
		t.Fatal("expected error for unregistered command id")
	}
}

func TestFatalsrvReturnsFatalError(t *testing.T) {
	h := NewFatalsrv().Handler()
	if _, err := h(ipc.Request{Payload: ipc.PayloadHeader{Value: 1}}); err == nil {
		t.Fatal("expected fatal error from throw_fatal")
	}
}

func TestMmnvInitializeReportsSuccess(t *testing.T) {
	h := NewMmnv().Handler()
	resp, err := h(ipc.Request{Payload: ipc.PayloadHeader{Value: 4}})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if resp.Result != 0 {
		t.Fatalf("result = %d, want 0", resp.Result)
	}
}
