package blockweave

import "errors"

var (
	// Configuration errors.
	ErrConfigurationMissing = errors.New("blockweave: no target repository/site configured")

	// Page agent errors.
	ErrNoTargetPage    = errors.New("blockweave: no ordinary content page available for injection")
	ErrInjectionFailed = errors.New("blockweave: page agent injection rejected by host")
	ErrCaptureFailed   = errors.New("blockweave: screenshot or crop step failed")

	// Remote service errors.
	ErrRemoteCallFailed = errors.New("blockweave: remote call failed")
)
