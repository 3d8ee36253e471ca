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

package ipc

import "testing"

func TestCommandHeaderRoundTrip(t *testing.T) {
	h := CommandHeader{
		Type:       CommandRequest,
		XNo:        3,
		ANo:        5,
		BNo:        7,
		WNo:        1,
		RawSize:    0x2A1,
		CFlag:      CFlagSingleDescriptor,
		HandleDesc: true,
	}
	buf := make([]byte, commandHeaderSize)
	h.Marshal(buf)
	got := ParseCommandHeader(buf)
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestHandleDescriptorRoundTrip(t *testing.T) {
	h := HandleDescriptor{SendPID: true, CopyCount: 9, MoveCount: 3}
	buf := make([]byte, handleDescriptorSize)
	h.Marshal(buf)
	got := ParseHandleDescriptor(buf)
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestPayloadHeaderRoundTrip(t *testing.T) {
	p := PayloadHeader{Magic: payloadMagicRequest, Version: 1, Value: 0xDEADBEEF, Token: 42}
	buf := make([]byte, payloadHeaderSize)
	p.Marshal(buf)
	got := ParsePayloadHeader(buf)
	if got != p {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestBufferDescriptorXRoundTrip(t *testing.T) {
	d := BufferDescriptorX{Address: 0x7F00123456AB, Counter: 0xA3C, Size: 0x1234}
	d.Address &= (1 << 39) - 1
	buf := make([]byte, bufferDescriptorXSize)
	d.Marshal(buf)
	got := ParseBufferDescriptorX(buf)
	if got != d {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, d)
	}
}

func TestBufferDescriptorABWRoundTrip(t *testing.T) {
	d := BufferDescriptorABW{Address: 0x7F0012345678, Size: 0xF00000001, Flags: 0x2}
	d.Address &= (1 << 39) - 1
	d.Size &= (1 << 36) - 1
	buf := make([]byte, bufferDescriptorABWSize)
	d.Marshal(buf)
	got := ParseBufferDescriptorABW(buf)
	if got != d {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, d)
	}
}

func TestBufferDescriptorCRoundTrip(t *testing.T) {
	d := BufferDescriptorC{Address: 0x1FFFF00001234, Size: 0x9ABC}
	d.Address &= (1 << 45) - 1
	buf := make([]byte, bufferDescriptorCSize)
	d.Marshal(buf)
	got := ParseBufferDescriptorC(buf)
	if got != d {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, d)
	}
}

func TestParseCommandBufferMinimalRawData(t *testing.T) {
	buf := make([]byte, 0x100)
	hdr := CommandHeader{Type: CommandRequest, RawSize: 7}
	hdr.Marshal(buf)

	payload := PayloadHeader{Magic: payloadMagicRequest, Version: 0, Value: 0, Token: 0}
	payload.Marshal(buf[alignUp16(commandHeaderSize):])

	data := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}
	copy(buf[alignUp16(commandHeaderSize)+payloadHeaderSize:], data)

	req, err := ParseCommandBuffer(buf)
	if err != nil {
		t.Fatalf("ParseCommandBuffer: %v", err)
	}
	if req.Payload.Magic != payloadMagicRequest {
		t.Fatalf("payload magic = %#x, want %#x", req.Payload.Magic, payloadMagicRequest)
	}
	if len(req.RawData) != len(data) {
		t.Fatalf("raw data len = %d, want %d", len(req.RawData), len(data))
	}
	for i := range data {
		if req.RawData[i] != data[i] {
			t.Fatalf("raw data[%d] = %#x, want %#x", i, req.RawData[i], data[i])
		}
	}
}

func TestParseCommandBufferTooShortHeader(t *testing.T) {
	if _, err := ParseCommandBuffer(make([]byte, 4)); err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestDispatcherRoutesToBoundHandler(t *testing.T) {
	buf := make([]byte, 0x100)
	hdr := CommandHeader{Type: CommandRequest, RawSize: 5}
	hdr.Marshal(buf)
	payload := PayloadHeader{Magic: payloadMagicRequest}
	payload.Marshal(buf[alignUp16(commandHeaderSize):])

	d := NewDispatcher()
	called := false
	d.Bind(0, func(req Request) (Response, error) {
		called = true
		return Response{Result: 7}, nil
	})

	out, err := d.HandleRequest(buf)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if !called {
		t.Fatal("handler was not invoked")
	}
	resp := ParsePayloadHeader(out[alignUp16(commandHeaderSize):])
	if resp.Value != 7 {
		t.Fatalf("response value = %d, want 7", resp.Value)
	}
}

func TestDispatcherUnknownObjectReturnsInvalidHandle(t *testing.T) {
	buf := make([]byte, 0x100)
	hdr := CommandHeader{Type: CommandRequest}
	hdr.Marshal(buf)

	d := NewDispatcher()
	if _, err := d.HandleRequest(buf); err == nil {
		t.Fatal("expected error for unbound object")
	}
}
