package shm

// TaskCode identifies the operation a worker should run against the
// mailbox's current input frame, per §3's control-plane protocol.
type TaskCode uint32

const (
	TaskNone TaskCode = iota
	TaskLinearInt
	TaskLinearFloat
	TaskMoEInt
	TaskAppendKVCache
	TaskDoAttention
	TaskGetServerInfo
	TaskFindData
	TaskStartLongData
	TaskFinishLongData
)

func (t TaskCode) String() string {
	switch t {
	case TaskNone:
		return "none"
	case TaskLinearInt:
		return "linearInt"
	case TaskLinearFloat:
		return "linearFloat"
	case TaskMoEInt:
		return "moeInt"
	case TaskAppendKVCache:
		return "appendKVCache"
	case TaskDoAttention:
		return "doAttention"
	case TaskGetServerInfo:
		return "getServerInfo"
	case TaskFindData:
		return "findData"
	case TaskStartLongData:
		return "startLongData"
	case TaskFinishLongData:
		return "finishLongData"
	default:
		return "unknown"
	}
}
