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

// Package ipc implements the guest IPC command-buffer wire format (spec.md
// §6): the bit-packed TLS layout a guest thread's send-sync-request trap
// hands to the kernel, and the Router collaborator that dispatches a
// parsed request to a service handler and marshals its response back into
// the same buffer.
//
// Ported from (and cross-checked bit-for-bit against)
// original_source/app/src/main/cpp/switch/kernel/ipc.h, which documents
// the layout precisely enough (down to bit-field widths) that no guessing
// was needed — spec.md §6 only describes the framing at a high level.
package ipc

import "encoding/binary"

// CommandType is the IPC command header's type field.
type CommandType uint16

const (
	Invalid             CommandType = 0
	LegacyRequest       CommandType = 1
	Close               CommandType = 2
	LegacyControl       CommandType = 3
	CommandRequest      CommandType = 4
	Control             CommandType = 5
	RequestWithContext  CommandType = 6
	ControlWithContext  CommandType = 7
)

// BufferCFlag is the header's c_flag nibble, selecting how (or whether) C
// ("ReceiveList") buffer descriptors are encoded.
type BufferCFlag uint8

const (
	CFlagNone             BufferCFlag = 0
	CFlagInlineDescriptor BufferCFlag = 1
	CFlagSingleDescriptor BufferCFlag = 2
)

// payloadMagicRequest and payloadMagicResponse are the well-known 'SFCI'/
// 'SFCO' data-payload magic values (ipc.h's PayloadHeader.magic).
const (
	payloadMagicRequest  uint32 = 0x49434653 // "SFCI" little-endian
	payloadMagicResponse uint32 = 0x4f434653 // "SFCO" little-endian
)

// CommandHeader is the 8-byte IPC command header (ipc.h's CommandHeader
// bitfield, static_assert size == 8).
type CommandHeader struct {
	Type       CommandType
	XNo        uint8 // pointer ("X") buffer descriptor count, 4 bits
	ANo        uint8 // send ("A") buffer descriptor count, 4 bits
	BNo        uint8 // receive ("B") buffer descriptor count, 4 bits
	WNo        uint8 // exchange ("W") buffer descriptor count, 4 bits
	RawSize    uint16 // raw data payload size in words, 10 bits
	CFlag      BufferCFlag // 4 bits
	HandleDesc bool
}

const commandHeaderSize = 8

// ParseCommandHeader decodes an 8-byte CommandHeader from the front of buf.
func ParseCommandHeader(buf []byte) CommandHeader {
	w0 := binary.LittleEndian.Uint32(buf[0:4])
	w1 := binary.LittleEndian.Uint32(buf[4:8])
	return CommandHeader{
		Type:       CommandType(w0 & 0xFFFF),
		XNo:        uint8((w0 >> 16) & 0xF),
		ANo:        uint8((w0 >> 20) & 0xF),
		BNo:        uint8((w0 >> 24) & 0xF),
		WNo:        uint8((w0 >> 28) & 0xF),
		RawSize:    uint16(w1 & 0x3FF),
		CFlag:      BufferCFlag((w1 >> 10) & 0xF),
		HandleDesc: (w1>>31)&0x1 != 0,
	}
}

// Marshal encodes h into the front of buf, which must be at least
// commandHeaderSize bytes.
func (h CommandHeader) Marshal(buf []byte) {
	w0 := uint32(h.Type) | uint32(h.XNo&0xF)<<16 | uint32(h.ANo&0xF)<<20 |
		uint32(h.BNo&0xF)<<24 | uint32(h.WNo&0xF)<<28
	w1 := uint32(h.RawSize&0x3FF) | uint32(h.CFlag&0xF)<<10
	if h.HandleDesc {
		w1 |= 1 << 31
	}
	binary.LittleEndian.PutUint32(buf[0:4], w0)
	binary.LittleEndian.PutUint32(buf[4:8], w1)
}

// HandleDescriptor is the 4-byte handle descriptor (ipc.h's
// HandleDescriptor, static_assert size == 4), present only when
// CommandHeader.HandleDesc is set.
type HandleDescriptor struct {
	SendPID    bool
	CopyCount  uint8 // 4 bits
	MoveCount  uint8 // 4 bits
}

const handleDescriptorSize = 4

func ParseHandleDescriptor(buf []byte) HandleDescriptor {
	w := binary.LittleEndian.Uint32(buf[0:4])
	return HandleDescriptor{
		SendPID:   w&0x1 != 0,
		CopyCount: uint8((w >> 1) & 0xF),
		MoveCount: uint8((w >> 5) & 0xF),
	}
}

func (h HandleDescriptor) Marshal(buf []byte) {
	w := uint32(h.CopyCount&0xF)<<1 | uint32(h.MoveCount&0xF)<<5
	if h.SendPID {
		w |= 1
	}
	binary.LittleEndian.PutUint32(buf[0:4], w)
}

// PayloadHeader is the 16-byte data-payload header (ipc.h's PayloadHeader,
// static_assert size == 16).
type PayloadHeader struct {
	Magic   uint32
	Version uint32
	Value   uint32
	Token   uint32
}

const payloadHeaderSize = 16

func ParsePayloadHeader(buf []byte) PayloadHeader {
	return PayloadHeader{
		Magic:   binary.LittleEndian.Uint32(buf[0:4]),
		Version: binary.LittleEndian.Uint32(buf[4:8]),
		Value:   binary.LittleEndian.Uint32(buf[8:12]),
		Token:   binary.LittleEndian.Uint32(buf[12:16]),
	}
}

func (p PayloadHeader) Marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], p.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], p.Version)
	binary.LittleEndian.PutUint32(buf[8:12], p.Value)
	binary.LittleEndian.PutUint32(buf[12:16], p.Token)
}

// BufferDescriptorX is an 8-byte "Pointer" buffer descriptor (ipc.h's
// BufferDescriptorX, static_assert size == 8): a 39-bit guest address
// split across two words plus a counter and a 16-bit size, exactly as the
// source platform's IPC marshalling documents it.
type BufferDescriptorX struct {
	Address uint64
	Counter uint16
	Size    uint16
}

const bufferDescriptorXSize = 8

func ParseBufferDescriptorX(buf []byte) BufferDescriptorX {
	w0 := binary.LittleEndian.Uint32(buf[0:4])
	addrLow := binary.LittleEndian.Uint32(buf[4:8])
	counter01_5 := uint64(w0 & 0x3F)
	addr36_38 := uint64((w0 >> 6) & 0x7)
	counter9_11 := uint64((w0 >> 9) & 0x7)
	addr32_35 := uint64((w0 >> 12) & 0xF)
	size := uint16((w0 >> 16) & 0xFFFF)
	return BufferDescriptorX{
		Address: uint64(addrLow) | addr32_35<<32 | addr36_38<<36,
		Counter: uint16(counter01_5 | counter9_11<<9),
		Size:    size,
	}
}

func (d BufferDescriptorX) Marshal(buf []byte) {
	counter0_5 := uint32(d.Counter & 0x3F)
	counter9_11 := uint32((d.Counter >> 9) & 0x7)
	addr32_35 := uint32((d.Address >> 32) & 0xF)
	addr36_38 := uint32((d.Address >> 36) & 0x7)
	w0 := counter0_5 | addr36_38<<6 | counter9_11<<9 | addr32_35<<12 | uint32(d.Size)<<16
	binary.LittleEndian.PutUint32(buf[0:4], w0)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(d.Address&0xFFFFFFFF))
}

// BufferDescriptorABW is a 12-byte "Send"/"Receive"/"Exchange" buffer
// descriptor (ipc.h's BufferDescriptorABW, static_assert size == 12).
type BufferDescriptorABW struct {
	Address uint64
	Size    uint64
	Flags   uint8 // 2 bits
}

const bufferDescriptorABWSize = 12

func ParseBufferDescriptorABW(buf []byte) BufferDescriptorABW {
	size0_31 := binary.LittleEndian.Uint32(buf[0:4])
	addr0_31 := binary.LittleEndian.Uint32(buf[4:8])
	w2 := binary.LittleEndian.Uint32(buf[8:12])
	flags := uint8(w2 & 0x3)
	addr36_38 := uint64((w2 >> 2) & 0x7)
	size32_35 := uint64((w2 >> 24) & 0xF)
	addr32_35 := uint64((w2 >> 28) & 0xF)
	return BufferDescriptorABW{
		Address: uint64(addr0_31) | addr32_35<<32 | addr36_38<<36,
		Size:    uint64(size0_31) | size32_35<<32,
		Flags:   flags,
	}
}

func (d BufferDescriptorABW) Marshal(buf []byte) {
	addr32_35 := uint32((d.Address >> 32) & 0xF)
	addr36_38 := uint32((d.Address >> 36) & 0x7)
	size32_35 := uint32((d.Size >> 32) & 0xF)
	w2 := uint32(d.Flags&0x3) | addr36_38<<2 | size32_35<<24 | addr32_35<<28
	binary.LittleEndian.PutUint32(buf[0:4], uint32(d.Size&0xFFFFFFFF))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(d.Address&0xFFFFFFFF))
	binary.LittleEndian.PutUint32(buf[8:12], w2)
}

// BufferDescriptorC is an 8-byte "ReceiveList" buffer descriptor (ipc.h's
// BufferDescriptorC, static_assert size == 8).
type BufferDescriptorC struct {
	Address uint64
	Size    uint16
}

const bufferDescriptorCSize = 8

func ParseBufferDescriptorC(buf []byte) BufferDescriptorC {
	addr0_31 := binary.LittleEndian.Uint32(buf[0:4])
	w1 := binary.LittleEndian.Uint32(buf[4:8])
	addr32_48 := uint64(w1 & 0xFFFF)
	size := uint16((w1 >> 16) & 0xFFFF)
	return BufferDescriptorC{
		Address: uint64(addr0_31) | addr32_48<<32,
		Size:    size,
	}
}

func (d BufferDescriptorC) Marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(d.Address&0xFFFFFFFF))
	w1 := uint32((d.Address>>32)&0xFFFF) | uint32(d.Size)<<16
	binary.LittleEndian.PutUint32(buf[4:8], w1)
}
