package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG for DecodeConfig
	_ "image/png"  // register PNG for DecodeConfig
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"

	"cinegen-server/modules/common/model"
)

// Reference image MIME types Gemini accepts for inline data
var supportedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

// DecodeBase64Image - accept raw base64 or a data URL ("data:image/png;base64,...").
// The MIME type is taken from the data URL header when there is one.
func DecodeBase64Image(encoded string) ([]byte, string, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, "", fmt.Errorf("empty image payload")
	}

	mimeType := ""
	if idx := findBase64Start(encoded); idx > 0 {
		header := encoded[:idx]
		if strings.HasPrefix(header, "data:") {
			mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64,")
		}
		encoded = encoded[idx:]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64 image: %w", err)
	}
	return data, mimeType, nil
}

// ResolveImageMIME - normalise the declared type, sniffing the bytes when it is missing or generic
func ResolveImageMIME(data []byte, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared == "image/jpg" {
		declared = "image/jpeg"
	}
	if supportedImageTypes[declared] {
		return declared
	}
	detected := mimetype.Detect(data)
	for candidate := range supportedImageTypes {
		if detected.Is(candidate) {
			return candidate
		}
	}
	return detected.String()
}

// ValidateReferenceImage - the image intake rejects missing, oversized, unsupported or undecodable images
func ValidateReferenceImage(data []byte, mimeType string, maxBytes int64) error {
	if len(data) == 0 {
		return model.NewValidationError("image", "Reference image is required.")
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return model.NewValidationError("image", fmt.Sprintf("Reference image is larger than %d bytes.", maxBytes))
	}
	if !supportedImageTypes[mimeType] {
		return model.NewValidationError("image", "Unsupported image type. JPG, PNG and WebP are supported.")
	}

	switch mimeType {
	case "image/webp":
		if _, err := webp.Decode(bytes.NewReader(data), &decoder.Options{}); err != nil {
			return model.NewValidationError("image", "Reference image could not be read.")
		}
	case "image/png", "image/jpeg":
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return model.NewValidationError("image", "Reference image could not be read.")
		}
	}
	return nil
}

func findBase64Start(s string) int {
	const marker = ";base64,"
	if idx := strings.Index(s, marker); idx >= 0 {
		return idx + len(marker)
	}
	return 0
}
