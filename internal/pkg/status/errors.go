package status

// ErrorCode classifies a file processing failure
type ErrorCode int

const (
	// ECFileTooLarge - file exceeds the folder size limit, never retried
	ECFileTooLarge ErrorCode = iota + 1
	// ECInvalidFormat - extension not allowed, never retried
	ECInvalidFormat
	// ECInvalidFilename - name breaks the expected convention, never retried
	ECInvalidFilename
	// ECAccessDenied value
	ECAccessDenied
	// ECCorruptedFile value
	ECCorruptedFile
	// ECDuplicateFile - same path reported twice in one scan
	ECDuplicateFile
	// ECProcessingError - transcription/scoring pipeline failure, retried
	ECProcessingError
	// ECMaxRetriesExceeded - no retry attempts left
	ECMaxRetriesExceeded
	// ECNetworkError value, retried
	ECNetworkError
	// ECStorageError - download/listing failure, retried
	ECStorageError
)

var (
	ecName = map[ErrorCode]string{
		ECFileTooLarge:       "FILE_TOO_LARGE",
		ECInvalidFormat:      "INVALID_FORMAT",
		ECInvalidFilename:    "INVALID_FILENAME",
		ECAccessDenied:       "ACCESS_DENIED",
		ECCorruptedFile:      "CORRUPTED_FILE",
		ECDuplicateFile:      "DUPLICATE_FILE",
		ECProcessingError:    "PROCESSING_ERROR",
		ECMaxRetriesExceeded: "MAX_RETRIES_EXCEEDED",
		ECNetworkError:       "NETWORK_ERROR",
		ECStorageError:       "STORAGE_ERROR",
	}
	nameEC = map[string]ErrorCode{}
)

func init() {
	for k, v := range ecName {
		nameEC[v] = k
	}
}

func (ec ErrorCode) String() string {
	return ecName[ec]
}

// ErrorCodeFrom returns code obj from string
func ErrorCodeFrom(s string) ErrorCode {
	return nameEC[s]
}

// IsRetryable tells if a failure with this code may be retried
func (ec ErrorCode) IsRetryable() bool {
	switch ec {
	case ECProcessingError, ECNetworkError, ECStorageError:
		return true
	}
	return false
}
