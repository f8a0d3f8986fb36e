package provisioning

import (
	"errors"
	"strings"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/provider"
)

// retryableCodes maps structured adapter error codes to the retry
// policy once, instead of pattern-matching vendor prose per call.
var retryableCodes = map[string]bool{
	constants.ADAPTER_ERROR_RATE_LIMITED: true,
	constants.ADAPTER_ERROR_CONFLICT:     true,
	constants.ADAPTER_ERROR_TIMEOUT:      true,

	constants.ADAPTER_ERROR_INVALID_INPUT: false,
	constants.ADAPTER_ERROR_AUTH:          false,
}

// IsRetryable decides whether a provisioning failure is worth another
// attempt. Structured adapter codes win; the substring list only
// covers errors whose code the adapter could not determine, because
// vendors change their wording without notice.
func IsRetryable(err error, retryableMatches []string) bool {
	if err == nil {
		return false
	}

	var adapterErr *provider.AdapterError
	if errors.As(err, &adapterErr) {
		if retryable, known := retryableCodes[adapterErr.Code]; known {
			if retryable {
				return true
			}
			// weak-password rejections report invalid_input but pass
			// with a freshly generated password
			return strings.Contains(strings.ToLower(adapterErr.Message), "password")
		}
	}

	message := strings.ToLower(err.Error())
	for _, match := range retryableMatches {
		if strings.Contains(message, match) {
			return true
		}
	}
	return false
}
