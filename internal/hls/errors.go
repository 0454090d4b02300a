package hls

import "errors"

// ErrPaused is wrapped inside an *errs.Error with Kind errs.IllegalState
// whenever DownloadVariant stops because the caller's PauseFunc reported
// true between segments.
var ErrPaused = errors.New("hls download paused")

var errMasterNotMedia = errors.New("manifest is a master playlist; call ResolveVariant first")
