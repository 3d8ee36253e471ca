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

import (
	"github.com/hollowcore/hle/internal/errs"
)

// Request is a parsed IPC command buffer: the header plus the raw data
// payload, ready for a service handler to consume. Handle descriptors and
// buffer descriptors are parsed eagerly; their payload bytes are left in
// place for the handler to copy out through the guest memory they describe
// rather than duplicated here.
type Request struct {
	Header  CommandHeader
	Handles HandleDescriptor

	PointerDescs  []BufferDescriptorX
	SendDescs     []BufferDescriptorABW
	ReceiveDescs  []BufferDescriptorABW
	ExchangeDescs []BufferDescriptorABW
	ReceiveList   []BufferDescriptorC

	Payload PayloadHeader
	RawData []byte

	// DomainObjectID selects the Dispatcher handler the request is routed
	// to (0 meaning the session itself). ParseCommandBuffer does not
	// decode domain headers, so a parsed request always carries 0 here.
	DomainObjectID uint32
}

// Response is what a service handler hands back to be marshaled into the
// guest's TLS buffer.
type Response struct {
	Payload PayloadHeader
	RawData []byte
	Result  uint32
}

// ParseCommandBuffer decodes buf (a guest thread's TLS command buffer) into
// a Request. It follows the field order ipc.h's IpcRequest constructor
// walks: header, optional handle descriptor, X descriptors, A/B/W
// descriptors, alignment padding, payload header + raw data, then C
// descriptors at the end of the buffer.
func ParseCommandBuffer(buf []byte) (Request, error) {
	if len(buf) < commandHeaderSize {
		return Request{}, errs.NewGuestError(1, 420)
	}

	req := Request{Header: ParseCommandHeader(buf)}
	off := commandHeaderSize

	if req.Header.HandleDesc {
		if off+handleDescriptorSize > len(buf) {
			return Request{}, errs.NewGuestError(1, 420)
		}
		req.Handles = ParseHandleDescriptor(buf[off:])
		off += handleDescriptorSize
		if req.Handles.SendPID {
			off += 8
		}
		off += int(req.Handles.CopyCount+req.Handles.MoveCount) * 4
	}

	for i := uint8(0); i < req.Header.XNo; i++ {
		if off+bufferDescriptorXSize > len(buf) {
			return Request{}, errs.NewGuestError(1, 420)
		}
		req.PointerDescs = append(req.PointerDescs, ParseBufferDescriptorX(buf[off:]))
		off += bufferDescriptorXSize
	}

	readABW := func(n uint8) ([]BufferDescriptorABW, error) {
		descs := make([]BufferDescriptorABW, 0, n)
		for i := uint8(0); i < n; i++ {
			if off+bufferDescriptorABWSize > len(buf) {
				return nil, errs.NewGuestError(1, 420)
			}
			descs = append(descs, ParseBufferDescriptorABW(buf[off:]))
			off += bufferDescriptorABWSize
		}
		return descs, nil
	}
	var err error
	if req.SendDescs, err = readABW(req.Header.ANo); err != nil {
		return Request{}, err
	}
	if req.ReceiveDescs, err = readABW(req.Header.BNo); err != nil {
		return Request{}, err
	}
	if req.ExchangeDescs, err = readABW(req.Header.WNo); err != nil {
		return Request{}, err
	}

	off = alignUp16(off)

	payloadWords := int(req.Header.RawSize) * 4
	if payloadWords > 0 {
		if off+payloadHeaderSize > len(buf) {
			return Request{}, errs.NewGuestError(1, 420)
		}
		req.Payload = ParsePayloadHeader(buf[off:])
		dataStart := off + payloadHeaderSize
		dataEnd := off + payloadWords - 4 // trailing Token word, per ipc.h layout
		if dataEnd < dataStart || dataEnd > len(buf) {
			return Request{}, errs.NewGuestError(1, 420)
		}
		req.RawData = buf[dataStart:dataEnd]
		off += payloadWords
	}

	// CFlagSingleDescriptor's count is carried implicitly by the service
	// table rather than derived from c_flag here; a deliberate
	// simplification documented in DESIGN.md.
	if req.Header.CFlag == CFlagSingleDescriptor && off+bufferDescriptorCSize <= len(buf) {
		req.ReceiveList = append(req.ReceiveList, ParseBufferDescriptorC(buf[off:]))
	}

	return req, nil
}

// MarshalResponse encodes resp into buf following the same field ordering
// ParseCommandBuffer expects to read back, with CommandType CommandRequest
// (see the note below). buf must be large enough; callers size it from the
// session's negotiated TLS buffer (always 0x100 bytes on the source platform).
func MarshalResponse(buf []byte, resp Response) int {
	hdr := CommandHeader{
		Type:    CommandRequest,
		RawSize: uint16((payloadHeaderSize + len(resp.RawData) + 4) / 4),
	}
	hdr.Marshal(buf)
	off := commandHeaderSize
	off = alignUp16(off)

	payload := resp.Payload
	payload.Magic = payloadMagicResponse
	payload.Value = resp.Result
	payload.Marshal(buf[off:])
	off += payloadHeaderSize
	off += copy(buf[off:], resp.RawData)
	return off
}

// ipc.h reuses the same CommandRequest value for both request and
// response frames; direction is implied by which side is reading, not by
// a distinct wire value.

func alignUp16(n int) int {
	return (n + 15) &^ 15
}

// Handler dispatches a single parsed Request to a service implementation
// and produces a Response. Service tables (pkg/services) implement this
// per command.
type Handler func(req Request) (Response, error)

// Router is the collaborator pkg/kernel.Kernel holds to turn a guest
// send-sync-request trap into a dispatched service call: parse the TLS
// buffer, look up a Handler by session/domain object, invoke it, and
// marshal the result back into the same buffer. It restates
// pkg/kernel.Router's HandleRequest signature so pkg/kernel never needs to
// import pkg/ipc.
type Router interface {
	HandleRequest(tlsBuf []byte) ([]byte, error)
}

// Dispatcher is a minimal Router: a single object's Handler, addressed by
// domain object ID (0 meaning "the session itself"). spec.md §6/§7 scope
// multi-session object trees as a supplemented, non-core feature, so a
// flat map is enough to exercise pkg/services without building full
// session/domain object-tree bookkeeping.
type Dispatcher struct {
	handlers map[uint32]Handler
}

// NewDispatcher constructs an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[uint32]Handler)}
}

// Bind registers h to serve requests targeting domain object id.
func (d *Dispatcher) Bind(id uint32, h Handler) {
	d.handlers[id] = h
}

// HandleRequest implements Router.
func (d *Dispatcher) HandleRequest(tlsBuf []byte) ([]byte, error) {
	req, err := ParseCommandBuffer(tlsBuf)
	if err != nil {
		return nil, err
	}

	h, ok := d.handlers[req.DomainObjectID]
	if !ok {
		return nil, errs.ErrInvalidHandle
	}

	resp, err := h(req)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(tlsBuf))
	n := MarshalResponse(out, resp)
	return out[:n], nil
}
