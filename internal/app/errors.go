package app

import "errors"

var (
	// ErrValidation is returned when request input fails validation. The
	// wrapped message is safe to show to clients.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateCredentials is returned when the requested username or
	// email is already registered.
	ErrDuplicateCredentials = errors.New("username or email already registered")

	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// This message is intended to be shown to end users and should not enable account enumeration.
	ErrInvalidCredentials = errors.New("incorrect username or password")

	// ErrNotFound is returned when the requested project, researcher, or
	// file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrFileUploadFailed is returned when the records were written but the
	// attached file could not be stored. The registration itself stands and
	// the file can be attached later through an update.
	ErrFileUploadFailed = errors.New("file upload failed")

	// ErrFileDeletionFailed is returned when replacing an attachment and the
	// previous blob could not be removed.
	ErrFileDeletionFailed = errors.New("file deletion failed")

	// ErrPartialWriteInconsistency is returned when the uploaded blob could
	// not be linked to its record, leaving an orphaned object.
	ErrPartialWriteInconsistency = errors.New("stored file could not be linked to record")

	// ErrDuplicateApplicationNumber is returned when an IPR filing reuses an
	// existing application number.
	ErrDuplicateApplicationNumber = errors.New("application number already registered")
)
