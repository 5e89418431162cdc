package uapi

import "encoding/binary"

// MarshalError reports a wire-format problem.
type MarshalError string

func (e MarshalError) Error() string {
	return string(e)
}

const (
	ErrInsufficientData MarshalError = "insufficient data for unmarshaling"
	ErrKeyTooLong       MarshalError = "key exceeds 16 bytes"
)

// UnmarshalCommand decodes one submission queue entry.
func UnmarshalCommand(data []byte, cmd *KvCmd) error {
	if len(data) < CommandSize {
		return ErrInsufficientData
	}

	cmd.Opcode = data[0]
	cmd.Flags = data[1]
	cmd.CID = binary.LittleEndian.Uint16(data[2:4])
	cmd.Nsid = binary.LittleEndian.Uint32(data[4:8])
	cmd.ReadOffset = binary.LittleEndian.Uint32(data[8:12])
	cmd.SelectID = binary.LittleEndian.Uint32(data[12:16])
	copy(cmd.Rsvd16[:], data[16:24])
	copy(cmd.Dptr[:], data[24:40])
	cmd.HostBufferSize = binary.LittleEndian.Uint32(data[40:44])
	cmd.KeyLengthAndOptions = binary.LittleEndian.Uint32(data[44:48])
	cmd.KeyWord1 = binary.LittleEndian.Uint32(data[48:52])
	cmd.KeyWord2 = binary.LittleEndian.Uint32(data[52:56])
	cmd.KeyWord3 = binary.LittleEndian.Uint32(data[56:60])
	cmd.KeyWord4 = binary.LittleEndian.Uint32(data[60:64])

	return nil
}

// MarshalCommand encodes one submission queue entry.
func MarshalCommand(cmd *KvCmd) []byte {
	buf := make([]byte, CommandSize)

	buf[0] = cmd.Opcode
	buf[1] = cmd.Flags
	binary.LittleEndian.PutUint16(buf[2:4], cmd.CID)
	binary.LittleEndian.PutUint32(buf[4:8], cmd.Nsid)
	binary.LittleEndian.PutUint32(buf[8:12], cmd.ReadOffset)
	binary.LittleEndian.PutUint32(buf[12:16], cmd.SelectID)
	copy(buf[16:24], cmd.Rsvd16[:])
	copy(buf[24:40], cmd.Dptr[:])
	binary.LittleEndian.PutUint32(buf[40:44], cmd.HostBufferSize)
	binary.LittleEndian.PutUint32(buf[44:48], cmd.KeyLengthAndOptions)
	binary.LittleEndian.PutUint32(buf[48:52], cmd.KeyWord1)
	binary.LittleEndian.PutUint32(buf[52:56], cmd.KeyWord2)
	binary.LittleEndian.PutUint32(buf[56:60], cmd.KeyWord3)
	binary.LittleEndian.PutUint32(buf[60:64], cmd.KeyWord4)

	return buf
}

// ExtractKey recovers the key bytes from the four command words.
// Words are consumed in reverse order (word4 first) and bytes within each
// word most-significant-first. emptyAllowed admits a zero-length key (LIST
// treats it as an empty prefix). A nil return with ok=false means the
// declared length is out of range.
func ExtractKey(cmd *KvCmd, emptyAllowed bool) (key []byte, ok bool) {
	length := cmd.KeyLength()
	if (!emptyAllowed && length == 0) || length > MaxKeyBytes {
		return nil, false
	}
	if length == 0 {
		return nil, true
	}

	words := [4]uint32{cmd.KeyWord4, cmd.KeyWord3, cmd.KeyWord2, cmd.KeyWord1}
	key = make([]byte, 0, length)
	for i := 0; i < 4 && len(key) < length; i++ {
		for j := 3; j >= 0 && len(key) < length; j-- {
			key = append(key, byte(words[i]>>(8*j)))
		}
	}
	return key, true
}

// PackKey stores a key into the command words and sets the key length.
// Inverse of ExtractKey; used by hosts building submissions and by tests.
func PackKey(cmd *KvCmd, key []byte) error {
	if len(key) > MaxKeyBytes {
		return ErrKeyTooLong
	}

	var words [4]uint32
	for k, b := range key {
		words[k/4] |= uint32(b) << (8 * (3 - k%4))
	}
	cmd.KeyWord4 = words[0]
	cmd.KeyWord3 = words[1]
	cmd.KeyWord2 = words[2]
	cmd.KeyWord1 = words[3]
	cmd.SetKeyLength(len(key))
	return nil
}

// BuildListResponse serializes a LIST result block:
//
//	u32 LE   number of keys serialized
//	per key  u16 LE key length, raw key bytes, zero pad so the record (length
//	         field included) ends on a 4-byte boundary
//
// Keys that do not fit in maxLen are dropped and the leading count reflects
// only what was written; truncation is not an error. A buffer smaller than
// the count field itself is a size-limit failure.
func BuildListResponse(keys [][]byte, maxLen int) (buf []byte, numWritten uint32, status uint16) {
	if maxLen < 4 {
		return nil, 0, StatusCmdSizeLimit
	}

	buf = make([]byte, 4, maxLen)
	remaining := maxLen - 4
	for _, key := range keys {
		pad := (4 - (2+len(key))%4) % 4
		need := 2 + len(key) + pad
		if remaining < need {
			break
		}
		var lenField [2]byte
		binary.LittleEndian.PutUint16(lenField[:], uint16(len(key)))
		buf = append(buf, lenField[:]...)
		buf = append(buf, key...)
		for i := 0; i < pad; i++ {
			buf = append(buf, 0)
		}
		remaining -= need
		numWritten++
	}
	binary.LittleEndian.PutUint32(buf[0:4], numWritten)
	return buf, numWritten, StatusSuccess
}
