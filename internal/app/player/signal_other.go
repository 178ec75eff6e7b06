//go:build !unix

package player

import (
	"os"

	"github.com/cockroachdb/errors"
)

var errSuspendUnsupported = errors.New("suspending playback is not supported on this platform")

func suspendProcess(*os.Process) error {
	return errSuspendUnsupported
}

func continueProcess(*os.Process) error {
	return errSuspendUnsupported
}
