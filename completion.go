package nvmekv

import (
	"github.com/airmettle/go-nvme-kv/internal/kverr"
	"github.com/airmettle/go-nvme-kv/internal/tasks"
	"github.com/airmettle/go-nvme-kv/internal/uapi"
)

// shapeCompletion translates a task result into the NVMe status and result
// word for its completion queue entry, performing any deferred host writes
// (RETRIEVE payload, LIST response block) on the way.
func (r *Runtime) shapeCompletion(req *Request, result *tasks.Result) (uint16, uint32) {
	switch result.Kind {
	case tasks.KindStore:
		if result.Status < 0 {
			switch kverr.Code(result.Status) {
			case kverr.ErrFileNotFound:
				return uapi.StatusKvNotFound, 0
			case kverr.ErrFileExists:
				return uapi.StatusKvExists, 0
			default:
				return uapi.StatusKvError, 0
			}
		}
		return uapi.StatusSuccess, 0

	case tasks.KindDelete:
		if result.Status < 0 {
			if kverr.Code(result.Status) == kverr.ErrFileNotFound {
				return uapi.StatusKvNotFound, 0
			}
			return uapi.StatusKvError, 0
		}
		return uapi.StatusSuccess, 0

	case tasks.KindExists:
		if result.Status != 1 {
			return uapi.StatusKvNotFound, 0
		}
		return uapi.StatusSuccess, 0

	case tasks.KindRetrieve:
		if result.Status < 0 {
			if kverr.Code(result.Status) == kverr.ErrCannotOpen {
				return uapi.StatusKvNotFound, 0
			}
			return uapi.StatusKvError, 0
		}
		hostLen := uint64(req.Cmd.HostBufferSize)
		window := result.Data
		if uint64(len(window)) > hostLen {
			window = window[:hostLen]
		}
		if len(window) > 0 {
			// A host buffer smaller than the payload truncates silently.
			_, _ = req.Payload.WriteToHost(window)
		}
		// Result word is the total object size, regardless of how much fit.
		return uapi.StatusSuccess, uint32(result.MaxLength)

	case tasks.KindList:
		if result.Status < 0 {
			return uapi.StatusKvError, 0
		}
		buf, numWritten, status := uapi.BuildListResponse(result.Keys, int(req.Cmd.HostBufferSize))
		if status != uapi.StatusSuccess {
			return status, 0
		}
		_, _ = req.Payload.WriteToHost(buf)
		return uapi.StatusSuccess, numWritten

	case tasks.KindSendSelect:
		if result.Status != 0 {
			return uapi.StatusKvError, 0
		}
		// The cache takes ownership of the result buffer; the handle goes
		// back to the host in the result word.
		id := r.cache.Store(result.Data)
		return uapi.StatusSuccess, id

	default:
		return uapi.StatusKvError, 0
	}
}
