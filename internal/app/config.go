package app

import "errors"

// Constants
const (
	DefaultStorageKey    = "schoolTimetable"
	DefaultTimetableFile = "school_timetable.json"
	DefaultDataFile      = "timetable_data.json"
	ExportBaseName       = "school_timetable"
	BackupSuffix         = ".backup"
	TmpSuffix            = ".tmp.json"
	FilePermissions      = 0644

	// User-facing messages
	MsgSaved          = "Timetable saved!"
	MsgLoadedFromFile = "Timetable loaded from file!"
	MsgInvalidFile    = "Invalid JSON file."
	MsgRemoteSaved    = "Timetable saved to remote spreadsheet!"
	MsgRemoteFailed   = "Error saving to remote spreadsheet: "
	MsgStorageCorrupt = "Stored timetable could not be read."
	MsgMissingField   = "Timetable form is incomplete."
	MsgUnknownDay     = "Unknown day."
	MsgRemoteBusy     = "Remote sync already in progress."
	MsgNoFileSelected = "No file selected."
	MsgReadOnlyMode   = "Editing is disabled"
	MsgInvalidFormat  = "Invalid format"
	ErrInternalServer = "Internal server error"

	// Mode strings
	ModeReadOnly = "read-only"
	ModeEdit     = "edit"
)

var (
	ErrDeserialization     = errors.New("invalid timetable data")
	ErrResourceUnavailable = errors.New("default timetable unavailable")
	ErrRemoteSync          = errors.New("remote sync failed")
	ErrRemoteNotConfigured = errors.New("remote sync not configured")
	ErrBusy                = errors.New("operation already in progress")
	ErrMissingField        = errors.New("missing timetable field")
	ErrUnknownDay          = errors.New("unknown day")
	ErrInvalidFormat       = errors.New("invalid export format")
)
