package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Session admission ─────────────────────────────────────────────
	ErrCredentialMissing        ErrCode = "CREDENTIAL_MISSING"
	ErrCredentialIncorrect      ErrCode = "CREDENTIAL_INCORRECT"
	ErrCredentialNotProvisioned ErrCode = "CREDENTIAL_NOT_PROVISIONED"
	ErrSessionDenied            ErrCode = "SESSION_DENIED"
	ErrSessionNotFound          ErrCode = "SESSION_NOT_FOUND"
	ErrSessionExpired           ErrCode = "SESSION_EXPIRED"
	ErrDeviceMismatch           ErrCode = "DEVICE_MISMATCH"
	ErrTokenRequired            ErrCode = "TOKEN_REQUIRED"
	ErrFingerprintRequired      ErrCode = "FINGERPRINT_REQUIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden          ErrCode = "FORBIDDEN"
	ErrReportingKeyNeeded ErrCode = "REPORTING_KEY_REQUIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam & attempt ────────────────────────────────────────────────
	ErrExamNotAvailable    ErrCode = "EXAM_NOT_AVAILABLE"
	ErrAttemptNotFound     ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptCompleted    ErrCode = "ATTEMPT_COMPLETED"
	ErrAttemptDisqualified ErrCode = "ATTEMPT_DISQUALIFIED"
	ErrResultNotReady      ErrCode = "RESULT_NOT_READY"

	// ─── Upload slots & media ──────────────────────────────────────────
	ErrSlotNotFound    ErrCode = "SLOT_NOT_FOUND"
	ErrSlotForbidden   ErrCode = "SLOT_FORBIDDEN"
	ErrSlotSpent       ErrCode = "SLOT_ALREADY_USED"
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Session admission ─────────────────────────────────────────────
	case ErrCredentialMissing:
		return "An exam secret is required to join this exam."
	case ErrCredentialIncorrect:
		return "The exam secret is incorrect."
	case ErrCredentialNotProvisioned:
		return "No credential has been provisioned for this exam or student."
	case ErrSessionDenied:
		return "This exam is already open on another device."
	case ErrSessionNotFound:
		return "Your session could not be found. Please join the exam again."
	case ErrSessionExpired:
		return "Your session has expired. Please join the exam again."
	case ErrDeviceMismatch:
		return "This session belongs to a different device."
	case ErrTokenRequired:
		return "A session token is required."
	case ErrFingerprintRequired:
		return "A device fingerprint is required."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrReportingKeyNeeded:
		return "A valid reporting key is required."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid identifier format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Exam & attempt ────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "This exam is not currently available."
	case ErrAttemptNotFound:
		return "No attempt exists for this exam."
	case ErrAttemptCompleted:
		return "This attempt has already been submitted."
	case ErrAttemptDisqualified:
		return "This attempt was disqualified."
	case ErrResultNotReady:
		return "The result is not available until the attempt is submitted."

	// ─── Upload slots & media ──────────────────────────────────────────
	case ErrSlotNotFound:
		return "Upload slot not found."
	case ErrSlotForbidden:
		return "This upload slot belongs to a different attempt."
	case ErrSlotSpent:
		return "This upload slot has already been used."
	case ErrFileRequired:
		return "A file upload is required."
	case ErrUnsupportedFile:
		return "Unsupported file type."
	case ErrFileTooLarge:
		return "File size exceeds the limit."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
