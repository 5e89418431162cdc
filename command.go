package nvmekv

import "github.com/airmettle/go-nvme-kv/internal/uapi"

// Wire-level types and constants re-exported for hosts building or decoding
// submissions; the implementation lives in internal/uapi.

// KvCmd is the KV submission queue entry.
type KvCmd = uapi.KvCmd

// KV command-set opcodes.
const (
	OpKvStore          = uapi.OpKvStore
	OpKvRetrieve       = uapi.OpKvRetrieve
	OpKvList           = uapi.OpKvList
	OpKvDelete         = uapi.OpKvDelete
	OpKvExist          = uapi.OpKvExist
	OpKvSendSelect     = uapi.OpKvSendSelect
	OpKvRetrieveSelect = uapi.OpKvRetrieveSelect
)

// Completion status codes.
const (
	StatusSuccess        = uapi.StatusSuccess
	StatusInvalidField   = uapi.StatusInvalidField
	StatusCmdSizeLimit   = uapi.StatusCmdSizeLimit
	StatusInvalidKeySize = uapi.StatusInvalidKeySize
	StatusKvNotFound     = uapi.StatusKvNotFound
	StatusKvError        = uapi.StatusKvError
	StatusKvExists       = uapi.StatusKvExists
	StatusDNR            = uapi.StatusDNR
	StatusNoComplete     = uapi.StatusNoComplete
)

// Select data formats.
const (
	SelectTypeCSV     = uapi.SelectTypeCSV
	SelectTypeJSON    = uapi.SelectTypeJSON
	SelectTypeParquet = uapi.SelectTypeParquet
)

// Option bits for the option/length word's option byte.
const (
	StoreOptMustExist    = uapi.StoreOptMustExist
	StoreOptMustNotExist = uapi.StoreOptMustNotExist
	StoreOptAppend       = uapi.StoreOptAppend

	SelectOptInputHeader  = uapi.SelectOptInputHeader
	SelectOptOutputHeader = uapi.SelectOptOutputHeader

	RetrieveSelectOptDoNotFree             = uapi.RetrieveSelectOptDoNotFree
	RetrieveSelectOptDoNotFreeIfNotFetched = uapi.RetrieveSelectOptDoNotFreeIfNotFetched
)

// UnmarshalCommand decodes one submission queue entry.
func UnmarshalCommand(data []byte, cmd *KvCmd) error {
	return uapi.UnmarshalCommand(data, cmd)
}

// MarshalCommand encodes one submission queue entry.
func MarshalCommand(cmd *KvCmd) []byte {
	return uapi.MarshalCommand(cmd)
}

// PackKey stores a key into the command's key words and length field.
func PackKey(cmd *KvCmd, key []byte) error {
	return uapi.PackKey(cmd, key)
}
