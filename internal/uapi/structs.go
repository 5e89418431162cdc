package uapi

import "unsafe"

// KvCmd is the KV submission queue entry as the decoder consumes it.
// Field placement within the 64-byte entry (all little-endian on the wire):
//
//	byte 0       opcode
//	byte 1       flags (fuse/PSDT; opaque here)
//	bytes 2-3    command identifier
//	bytes 4-7    namespace id
//	bytes 8-11   cdw2: read offset (RETRIEVE, RETRIEVE_SELECT)
//	bytes 12-15  cdw3: select id (RETRIEVE_SELECT)
//	bytes 24-39  dptr (mapped by the surrounding controller; opaque here)
//	bytes 40-43  cdw10: host buffer size
//	bytes 44-47  cdw11: option/length word (low 8 bits key length,
//	             bits 15:8 opcode-specific options)
//	bytes 48-63  cdw12-cdw15: key words 1..4
//
// The key is packed into the four words in reverse word order with bytes
// taken most-significant-first, so word4 ‖ word3 ‖ word2 ‖ word1 read
// big-endian recovers the key.
type KvCmd struct {
	Opcode              uint8
	Flags               uint8
	CID                 uint16
	Nsid                uint32
	ReadOffset          uint32
	SelectID            uint32
	Rsvd16              [8]byte
	Dptr                [16]byte
	HostBufferSize      uint32
	KeyLengthAndOptions uint32
	KeyWord1            uint32
	KeyWord2            uint32
	KeyWord3            uint32
	KeyWord4            uint32
}

// Compile-time size check - must be exactly one SQE.
var _ [CommandSize]byte = [unsafe.Sizeof(KvCmd{})]byte{}

// KeyLength extracts the key length from the option/length word.
func (c *KvCmd) KeyLength() int {
	return int(c.KeyLengthAndOptions & 0xff)
}

// Options extracts the opcode-specific option byte.
func (c *KvCmd) Options() uint8 {
	return uint8(c.KeyLengthAndOptions >> 8)
}

// MustExist reports the STORE must-exist option.
func (c *KvCmd) MustExist() bool {
	return c.Options()&StoreOptMustExist != 0
}

// MustNotExist reports the STORE must-not-exist option.
func (c *KvCmd) MustNotExist() bool {
	return c.Options()&StoreOptMustNotExist != 0
}

// Append reports the STORE append option.
func (c *KvCmd) Append() bool {
	return c.Options()&StoreOptAppend != 0
}

// SelectInputType extracts the SEND_SELECT input format field.
func (c *KvCmd) SelectInputType() uint8 {
	return c.Options() & SelectOptInputTypeMask
}

// SelectOutputType extracts the SEND_SELECT output format field.
func (c *KvCmd) SelectOutputType() uint8 {
	return (c.Options() & SelectOptOutputTypeMask) >> 2
}

// SelectInputHeader reports whether CSV input carries a header row.
func (c *KvCmd) SelectInputHeader() bool {
	return c.Options()&SelectOptInputHeader != 0
}

// SelectOutputHeader reports whether CSV output should emit a header row.
func (c *KvCmd) SelectOutputHeader() bool {
	return c.Options()&SelectOptOutputHeader != 0
}

// DoNotFree reports the RETRIEVE_SELECT pin option.
func (c *KvCmd) DoNotFree() bool {
	return c.Options()&RetrieveSelectOptDoNotFree != 0
}

// DoNotFreeIfNotAllDataFetched reports the conditional pin option.
func (c *KvCmd) DoNotFreeIfNotAllDataFetched() bool {
	return c.Options()&RetrieveSelectOptDoNotFreeIfNotFetched != 0
}

// SetKeyLength stores the key length without disturbing the option bits.
func (c *KvCmd) SetKeyLength(n int) {
	c.KeyLengthAndOptions = (c.KeyLengthAndOptions &^ 0xff) | uint32(n&0xff)
}

// SetOptions stores the option byte without disturbing the key length.
func (c *KvCmd) SetOptions(opts uint8) {
	c.KeyLengthAndOptions = (c.KeyLengthAndOptions &^ 0xff00) | uint32(opts)<<8
}
