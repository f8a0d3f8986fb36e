package provider

import (
	"strings"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/logger"
)

// backend status vocabularies collapsed into the canonical
// provisioning states. Every token a backend is known to emit appears
// here; anything else is reported as unrecognized so callers leave the
// stored state untouched instead of guessing.
var statusTokens = map[string]string{
	"online":  constants.PROVISIONING_STATUS_ACTIVE,
	"running": constants.PROVISIONING_STATUS_ACTIVE,
	"active":  constants.PROVISIONING_STATUS_ACTIVE,
	"up":      constants.PROVISIONING_STATUS_ACTIVE,
	"1":       constants.PROVISIONING_STATUS_ACTIVE,
	"true":    constants.PROVISIONING_STATUS_ACTIVE,

	"offline":   constants.PROVISIONING_STATUS_SUSPENDED,
	"stopped":   constants.PROVISIONING_STATUS_SUSPENDED,
	"suspended": constants.PROVISIONING_STATUS_SUSPENDED,
	"0":         constants.PROVISIONING_STATUS_SUSPENDED,
	"false":     constants.PROVISIONING_STATUS_SUSPENDED,

	"installing":   constants.PROVISIONING_STATUS_PROVISIONING,
	"provisioning": constants.PROVISIONING_STATUS_PROVISIONING,
	"building":     constants.PROVISIONING_STATUS_PROVISIONING,
	"creating":     constants.PROVISIONING_STATUS_PROVISIONING,

	"failed": constants.PROVISIONING_STATUS_FAILED,
	"error":  constants.PROVISIONING_STATUS_FAILED,

	"terminated": constants.PROVISIONING_STATUS_TERMINATED,
	"deleted":    constants.PROVISIONING_STATUS_TERMINATED,
}

// NormalizeStatus maps a backend status token to a canonical
// provisioning state. ok is false for unrecognized tokens, which are
// logged and must not cause a state change.
func NormalizeStatus(providerName string, token string) (status string, ok bool) {
	normalized, found := statusTokens[strings.ToLower(strings.TrimSpace(token))]
	if !found {
		logger.Logger.Warn().
			Str("provider", providerName).
			Str("token", token).
			Msg("Unrecognized backend status token, leaving state unmapped")
		return "", false
	}
	return normalized, true
}
