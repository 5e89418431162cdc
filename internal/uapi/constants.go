package uapi

// KV command-set opcodes. The numeric values for the base set follow the
// NVMe KV command set; the select pair sits in vendor-specific space.
const (
	OpKvStore          uint8 = 0x01
	OpKvRetrieve       uint8 = 0x02
	OpKvList           uint8 = 0x06
	OpKvDelete         uint8 = 0x10
	OpKvExist          uint8 = 0x14
	OpKvSendSelect     uint8 = 0x81
	OpKvRetrieveSelect uint8 = 0x85
)

// Completion status codes.
const (
	StatusSuccess        uint16 = 0x0000
	StatusInvalidField   uint16 = 0x0002 // invalid parameter in command
	StatusCmdSizeLimit   uint16 = 0x0083 // command size limit exceeded
	StatusInvalidKeySize uint16 = 0x0086
	StatusKvNotFound     uint16 = 0x0087 // KV key does not exist
	StatusKvError        uint16 = 0x0088 // KV unrecovered error
	StatusKvExists       uint16 = 0x0089 // KV key exists
	StatusDNR            uint16 = 0x4000 // do not retry
	StatusNoComplete     uint16 = 0xffff // sentinel: completion posted later
)

// Select data formats carried in the SEND_SELECT option bits.
const (
	SelectTypeCSV     uint8 = 0
	SelectTypeJSON    uint8 = 1
	SelectTypeParquet uint8 = 2
)

// Option byte layout (bits 15:8 of the option/length word).
//
// STORE:
//
//	bit 0  must_exist
//	bit 1  must_not_exist
//	bit 2  append
//
// SEND_SELECT:
//
//	bits 1:0  input type
//	bits 3:2  output type
//	bit 4     input CSV carries a header row
//	bit 5     emit a header row on CSV output
//
// RETRIEVE_SELECT:
//
//	bit 0  do_not_free (pin the cache slot)
//	bit 1  do_not_free_if_not_all_data_fetched
const (
	StoreOptMustExist    uint8 = 1 << 0
	StoreOptMustNotExist uint8 = 1 << 1
	StoreOptAppend       uint8 = 1 << 2

	SelectOptInputTypeMask  uint8 = 0x03
	SelectOptOutputTypeMask uint8 = 0x0c
	SelectOptInputHeader    uint8 = 1 << 4
	SelectOptOutputHeader   uint8 = 1 << 5

	RetrieveSelectOptDoNotFree             uint8 = 1 << 0
	RetrieveSelectOptDoNotFreeIfNotFetched uint8 = 1 << 1
)

// MaxKeyBytes is the longest key the four command words can carry.
const MaxKeyBytes = 16

// CommandSize is the size of one submission queue entry.
const CommandSize = 64
