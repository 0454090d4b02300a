package httpclient

import "errors"

// ErrPaused is wrapped inside an *errs.Error with Kind errs.IllegalState
// whenever Download stops because the caller's PauseFunc reported true.
var ErrPaused = errors.New("download paused")
