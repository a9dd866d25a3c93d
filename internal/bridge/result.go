package bridge

import "golang.org/x/sys/unix"

// Result is the envelope every exported call returns. ErrorCode is 0 on
// success and a positive errno otherwise.
type Result struct {
	Success   bool
	ErrorCode int32
}

// OK is the success envelope.
func OK() Result {
	return Result{Success: true}
}

// Fail builds a failure envelope for errno.
func Fail(errno int32) Result {
	return Result{Success: false, ErrorCode: errno}
}

// Errors produced directly by the bridge.
var (
	ResultInvalidArgument = Fail(int32(unix.EINVAL))
	ResultNotFound        = Fail(int32(unix.ENOENT))
	ResultIOError         = Fail(int32(unix.EIO))
)
