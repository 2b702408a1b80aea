package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateTag      = errors.New("rfid tag already claimed by another correlation")
	ErrDuplicatePOSItem  = errors.New("pos item number already claimed by another correlation")
	ErrMissingIdentifier = errors.New("correlation requires an rfid tag or a pos item number")
	ErrInvalidResolution = errors.New("unknown resolution policy")
	ErrMergeRequiresTwo  = errors.New("merge requires at least two correlation ids")
	ErrMasterNotInSet    = errors.New("master id is not part of the merge set")
	ErrBatchEmpty        = errors.New("no staged rows for batch")
	ErrLockHeld          = errors.New("another correlation mutation is in progress")
)
