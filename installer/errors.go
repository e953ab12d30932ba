package installer

import (
	"errors"
	"fmt"

	"github.com/joncooperworks/pluginstall/artifact"
	"github.com/joncooperworks/pluginstall/bridge"
	"github.com/joncooperworks/pluginstall/install"
)

// Stage is a state of the install pipeline.
type Stage string

const (
	StageFetching           Stage = "fetching"
	StageExtractingManifest Stage = "extracting-manifest"
	StageCompletingManifest Stage = "completing-manifest"
	StagePreparingDirectory Stage = "preparing-directory"
	StageExtractingArchive  Stage = "extracting-archive"
	StageFinalizing         Stage = "finalizing"
	StageDone               Stage = "done"
)

// Kind classifies why a stage failed.
type Kind string

const (
	// KindTransport is an HTTP failure or non-success status. Retryable.
	KindTransport Kind = "transport"
	// KindArchive is a corrupt archive or a missing manifest entry.
	KindArchive Kind = "archive"
	// KindMarshaling is invalid text encoding in a cross-runtime string.
	KindMarshaling Kind = "marshaling"
	// KindNullResult is a null output from a dual-result runtime call.
	KindNullResult Kind = "null-result"
	// KindFilesystem is a failure preparing, extracting into or finalizing the install directory.
	KindFilesystem Kind = "filesystem"
	// KindContract is a mismatch between host and guest calling contracts.
	KindContract Kind = "contract"
	// KindValidation is a request or runtime-supplied value that cannot be used safely.
	KindValidation Kind = "validation"
	// KindRuntime is any other failure inside the secondary runtime, including cancellation
	// while waiting for it.
	KindRuntime Kind = "runtime"
)

// InstallError reports the stage an install failed in and the underlying cause.
type InstallError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install failed at %s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// ContractViolation reports whether the failure signals a broken host/guest contract.
func (e *InstallError) ContractViolation() bool {
	return e.Kind == KindMarshaling || e.Kind == KindContract
}

// classify maps a stage failure to its kind.
func classify(stage Stage, err error) Kind {
	var te *artifact.TransportError
	switch {
	case errors.As(err, &te):
		return KindTransport
	case errors.Is(err, install.ErrInvalidName):
		return KindValidation
	case errors.Is(err, artifact.ErrArchive), errors.Is(err, artifact.ErrManifestNotFound),
		errors.Is(err, artifact.ErrUnsafePath):
		return KindArchive
	case errors.Is(err, bridge.ErrNullResult):
		return KindNullResult
	case errors.Is(err, bridge.ErrInvalidEncoding):
		return KindMarshaling
	case errors.Is(err, bridge.ErrContract):
		return KindContract
	}

	switch stage {
	case StagePreparingDirectory, StageExtractingArchive, StageFinalizing:
		return KindFilesystem
	case StageFetching:
		return KindTransport
	default:
		return KindRuntime
	}
}
