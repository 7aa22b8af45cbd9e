package verify

import (
	"fmt"
	"strings"
)

// Hard base-image limits. These are independent of policy — no config can
// override them.
const (
	maxLayers             = 10
	maxImageSizeMB        = 10
	largeLayerThresholdMB = 5
)

// VerifyBaseImagePolicy enforces the hard layer-count, total-size, and
// media-type guardrails against manifest, returning any non-fatal
// warnings (oversized individual layers) alongside a fatal error for a
// policy violation (too many layers, image too large, or any
// foreign/non-distributable layer — the latter rejected outright with
// zero tolerance, unlike the size warnings).
func VerifyBaseImagePolicy(manifest manifestFile) ([]string, error) {
	if len(manifest.Layers) > maxLayers {
		return nil, fail(fmt.Sprintf("image has %d layers but policy allows maximum %d", len(manifest.Layers), maxLayers))
	}

	var totalSize int64
	for _, l := range manifest.Layers {
		totalSize += l.Size
	}
	maxSizeBytes := int64(maxImageSizeMB) * 1024 * 1024
	if totalSize > maxSizeBytes {
		return nil, fail(fmt.Sprintf("image size %d MB exceeds policy limit %d MB", totalSize/(1024*1024), maxImageSizeMB))
	}

	var warnings []string
	largeLayerBytes := int64(largeLayerThresholdMB) * 1024 * 1024
	for i, l := range manifest.Layers {
		if l.Size > largeLayerBytes {
			warnings = append(warnings, fmt.Sprintf("layer %d is unusually large: %d MB", i, l.Size/(1024*1024)))
		}
		if strings.Contains(l.MediaType, "foreign") || strings.Contains(l.MediaType, "non-distributable") {
			return warnings, fail(fmt.Sprintf("layer %d has disallowed media type: %s", i, l.MediaType))
		}
	}

	return warnings, nil
}
