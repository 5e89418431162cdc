package nvmekv

import (
	"github.com/airmettle/go-nvme-kv/internal/query"
	"github.com/airmettle/go-nvme-kv/internal/tasks"
	"github.com/airmettle/go-nvme-kv/internal/uapi"
)

// Process decodes and admits one KV command. The return values mirror the
// completion queue entry: when status is uapi.StatusNoComplete the request
// has been handed to the dispatcher and the completion arrives later via
// the Complete callback; any other status (already DNR-marked on failure)
// is final and result carries the completion's result word.
//
// RETRIEVE_SELECT is the one synchronous opcode: it touches only the
// in-memory select cache, so it is serviced on the command thread.
func (r *Runtime) Process(req *Request) (status uint16, result uint32) {
	switch req.Cmd.Opcode {
	case uapi.OpKvList:
		return r.kvList(req), 0
	case uapi.OpKvExist:
		return r.kvExist(req), 0
	case uapi.OpKvStore:
		return r.kvStore(req), 0
	case uapi.OpKvRetrieve:
		return r.kvRetrieve(req), 0
	case uapi.OpKvSendSelect:
		return r.kvSendSelect(req), 0
	case uapi.OpKvRetrieveSelect:
		return r.kvRetrieveSelect(req)
	case uapi.OpKvDelete:
		return r.kvDelete(req), 0
	default:
		return uapi.StatusInvalidField | uapi.StatusDNR, 0
	}
}

// mapDptr attaches the host payload handle for length bytes.
func (r *Runtime) mapDptr(req *Request, length uint32) uint16 {
	payload, status := r.mapPayload(req, length)
	if status != uapi.StatusSuccess {
		return status
	}
	req.Payload = payload
	return uapi.StatusSuccess
}

func (r *Runtime) kvList(req *Request) uint16 {
	key, ok := uapi.ExtractKey(&req.Cmd, true)
	if !ok {
		return uapi.StatusInvalidKeySize | uapi.StatusDNR
	}
	if status := r.mapDptr(req, req.Cmd.HostBufferSize); status != uapi.StatusSuccess {
		return status | uapi.StatusDNR
	}

	r.dispatcher.Submit(&tasks.Request{
		Kind:      tasks.KindList,
		Bus:       req.Bus,
		Namespace: req.Cmd.Nsid,
		CmdHandle: req,
		Key:       key,
		Offset:    uint64(req.Cmd.ReadOffset),
	})
	return uapi.StatusNoComplete
}

func (r *Runtime) kvExist(req *Request) uint16 {
	key, ok := uapi.ExtractKey(&req.Cmd, false)
	if !ok {
		return uapi.StatusInvalidKeySize | uapi.StatusDNR
	}

	r.dispatcher.Submit(&tasks.Request{
		Kind:      tasks.KindExists,
		Bus:       req.Bus,
		Namespace: req.Cmd.Nsid,
		CmdHandle: req,
		Key:       key,
	})
	return uapi.StatusNoComplete
}

func (r *Runtime) kvDelete(req *Request) uint16 {
	key, ok := uapi.ExtractKey(&req.Cmd, false)
	if !ok {
		return uapi.StatusInvalidKeySize | uapi.StatusDNR
	}

	r.dispatcher.Submit(&tasks.Request{
		Kind:      tasks.KindDelete,
		Bus:       req.Bus,
		Namespace: req.Cmd.Nsid,
		CmdHandle: req,
		Key:       key,
	})
	return uapi.StatusNoComplete
}

func (r *Runtime) kvStore(req *Request) uint16 {
	key, ok := uapi.ExtractKey(&req.Cmd, false)
	if !ok {
		return uapi.StatusInvalidKeySize | uapi.StatusDNR
	}

	valueSize := req.Cmd.HostBufferSize
	if status := r.mapDptr(req, valueSize); status != uapi.StatusSuccess {
		return status | uapi.StatusDNR
	}

	// The value buffer is the declared host buffer size; a short host read
	// leaves the tail zeroed and is not an error.
	buffer := make([]byte, valueSize)
	if valueSize > 0 {
		_, _ = req.Payload.ReadFromHost(buffer)
	}

	r.dispatcher.Submit(&tasks.Request{
		Kind:         tasks.KindStore,
		Bus:          req.Bus,
		Namespace:    req.Cmd.Nsid,
		CmdHandle:    req,
		Key:          key,
		Data:         buffer,
		MustExist:    req.Cmd.MustExist(),
		MustNotExist: req.Cmd.MustNotExist(),
		Append:       req.Cmd.Append(),
	})
	return uapi.StatusNoComplete
}

func (r *Runtime) kvRetrieve(req *Request) uint16 {
	key, ok := uapi.ExtractKey(&req.Cmd, false)
	if !ok {
		return uapi.StatusInvalidKeySize | uapi.StatusDNR
	}
	if status := r.mapDptr(req, req.Cmd.HostBufferSize); status != uapi.StatusSuccess {
		return status | uapi.StatusDNR
	}

	r.dispatcher.Submit(&tasks.Request{
		Kind:      tasks.KindRetrieve,
		Bus:       req.Bus,
		Namespace: req.Cmd.Nsid,
		CmdHandle: req,
		Key:       key,
		MaxLength: uint64(req.Cmd.HostBufferSize),
		Offset:    uint64(req.Cmd.ReadOffset),
	})
	return uapi.StatusNoComplete
}

// selectDataType validates a 2-bit select format field.
func selectDataType(t uint8) (query.DataType, bool) {
	switch t {
	case uapi.SelectTypeCSV:
		return query.TypeCSV, true
	case uapi.SelectTypeJSON:
		return query.TypeJSON, true
	case uapi.SelectTypeParquet:
		return query.TypeParquet, true
	default:
		return query.TypeCSV, false
	}
}

func (r *Runtime) kvSendSelect(req *Request) uint16 {
	key, ok := uapi.ExtractKey(&req.Cmd, false)
	if !ok {
		return uapi.StatusInvalidKeySize | uapi.StatusDNR
	}

	inFmt, ok := selectDataType(req.Cmd.SelectInputType())
	if !ok {
		return uapi.StatusInvalidField | uapi.StatusDNR
	}
	outFmt, ok := selectDataType(req.Cmd.SelectOutputType())
	if !ok {
		return uapi.StatusInvalidField | uapi.StatusDNR
	}

	length := req.Cmd.HostBufferSize
	if status := r.mapDptr(req, length); status != uapi.StatusSuccess {
		return status | uapi.StatusDNR
	}

	// The SQL text is whatever the host actually transferred.
	buffer := make([]byte, length)
	n := 0
	if length > 0 {
		n, _ = req.Payload.ReadFromHost(buffer)
	}

	r.dispatcher.Submit(&tasks.Request{
		Kind:      tasks.KindSendSelect,
		Bus:       req.Bus,
		Namespace: req.Cmd.Nsid,
		CmdHandle: req,
		Key:       key,
		Data:      buffer[:n],
		SelectIn:  inFmt,
		SelectOut: outFmt,
		InHeader:  req.Cmd.SelectInputHeader(),
		OutHeader: req.Cmd.SelectOutputHeader(),
	})
	return uapi.StatusNoComplete
}

func (r *Runtime) kvRetrieveSelect(req *Request) (uint16, uint32) {
	maxLen := uint64(req.Cmd.HostBufferSize)
	offset := uint64(req.Cmd.ReadOffset)

	data, found := r.cache.Retrieve(req.Cmd.SelectID,
		req.Cmd.DoNotFree(),
		req.Cmd.DoNotFreeIfNotAllDataFetched(),
		maxLen+offset)
	if !found {
		return uapi.StatusKvNotFound | uapi.StatusDNR, 0
	}

	if status := r.mapDptr(req, req.Cmd.HostBufferSize); status != uapi.StatusSuccess {
		return status | uapi.StatusDNR, 0
	}

	totalLen := uint64(len(data))
	if totalLen > offset {
		window := data[offset:]
		if uint64(len(window)) > maxLen {
			window = window[:maxLen]
		}
		// Short host buffers truncate silently.
		_, _ = req.Payload.WriteToHost(window)
	}

	// Completion result word carries the total cached length so the host
	// can size its paging.
	return uapi.StatusSuccess, uint32(totalLen)
}
