// Package validation checks container names, object keys and metadata before
// anything is sent to a backend.
//
// Container names follow the strictest common denominator of S3, MinIO,
// Storj and Azure Blob: 3-63 characters of lowercase letters, digits, dots
// and hyphens, DNS-compatible.
package validation

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
)

const (
	minContainerNameLen = 3
	maxContainerNameLen = 63
	maxObjectKeyLen     = 1024
	maxMetadataKeyLen   = 128
	maxMetadataValueLen = 2048
)

var reservedContainerNames = map[string]bool{
	"localhost": true,
}

// ValidateContainerName validates that a container name is DNS-compliant.
// Returns ErrInvalidContainerName if the name is invalid.
func ValidateContainerName(name string) error {
	fail := func(msg string) error {
		return objerrors.NewError("validateContainerName", objerrors.ErrInvalidContainerName).
			WithContainer(name).
			WithMessage(msg)
	}

	switch {
	case name == "":
		return fail("container name cannot be empty")
	case len(name) < minContainerNameLen || len(name) > maxContainerNameLen:
		return fail(fmt.Sprintf("container name must be between %d and %d characters long",
			minContainerNameLen, maxContainerNameLen))
	}

	for _, r := range name {
		if !isContainerNameRune(r) {
			return fail("container name can only contain lowercase letters, numbers, dots, and hyphens")
		}
	}

	first, last := name[0], name[len(name)-1]
	switch {
	case first == '-' || first == '.' || last == '-' || last == '.':
		return fail("container name cannot start or end with a hyphen or dot")
	case looksLikeIPv4(name):
		return fail("container name cannot be formatted as an IP address")
	case first >= '0' && first <= '9':
		return fail("container name cannot start with a number")
	case strings.Contains(name, "..") || strings.Contains(name, "--"):
		return fail("container name cannot contain two adjacent periods or hyphens")
	case reservedContainerNames[name]:
		return fail("container name is reserved")
	}

	return nil
}

// ValidateObjectKey rejects empty keys, keys over 1024 bytes, invalid UTF-8,
// control characters and anything that escapes the container when treated as a path.
func ValidateObjectKey(key string) error {
	fail := func(msg string) error {
		return objerrors.NewError("validateObjectKey", objerrors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage(msg)
	}

	switch {
	case key == "":
		return fail("object key cannot be empty")
	case len(key) > maxObjectKeyLen:
		return fail(fmt.Sprintf("object key cannot exceed %d bytes", maxObjectKeyLen))
	case !utf8.ValidString(key):
		return fail("object key must be valid UTF-8")
	case escapesContainer(key):
		return fail("object key cannot contain path traversal sequences")
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return fail("object key cannot contain control characters")
		}
	}

	return nil
}

// ValidateMetadata validates user metadata keys and values.
// The digest key is reserved because objstore writes it itself.
func ValidateMetadata(metadata map[string]string) error {
	for k, v := range metadata {
		if err := validateMetadataKey(k); err != nil {
			return err
		}
		if len(v) > maxMetadataValueLen {
			return invalidMetadata(fmt.Sprintf("metadata value for %q cannot exceed %d bytes", k, maxMetadataValueLen))
		}
		for _, r := range v {
			if !unicode.IsPrint(r) && r != '\t' {
				return invalidMetadata(fmt.Sprintf("metadata value for %q can only contain printable characters", k))
			}
		}
	}
	return nil
}

// ValidateContentType checks that a non-empty content type parses as a MIME type.
func ValidateContentType(contentType string) error {
	if contentType == "" {
		return nil
	}
	if _, _, err := mime.ParseMediaType(contentType); err != nil {
		return objerrors.NewError("validateContentType", objerrors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("content type %q is not a valid MIME type", contentType))
	}
	return nil
}

func validateMetadataKey(key string) error {
	switch {
	case key == "":
		return invalidMetadata("metadata key cannot be empty")
	case len(key) > maxMetadataKeyLen:
		return invalidMetadata(fmt.Sprintf("metadata key cannot exceed %d characters", maxMetadataKeyLen))
	case strings.EqualFold(key, objtypes.DigestMetadataKey):
		return invalidMetadata(fmt.Sprintf("metadata key %q is reserved", key))
	}

	lower := strings.ToLower(key)
	for _, prefix := range []string{"aws:", "x-amz-", "x-minio-"} {
		if strings.HasPrefix(lower, prefix) {
			return invalidMetadata(fmt.Sprintf("metadata key cannot start with reserved prefix: %s", prefix))
		}
	}

	for _, r := range key {
		if r <= ' ' || r > '~' {
			return invalidMetadata("metadata key can only contain printable ASCII characters without spaces")
		}
	}
	return nil
}

func invalidMetadata(msg string) error {
	return objerrors.NewError("validateMetadata", objerrors.ErrInvalidInput).WithMessage(msg)
}

func isContainerNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '-'
}

// looksLikeIPv4 matches four dot-separated groups of digits, each at most 255.
func looksLikeIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		n := 0
		for _, c := range part {
			if c < '0' || c > '9' {
				return false
			}
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return false
		}
	}
	return true
}

func escapesContainer(key string) bool {
	if strings.Contains(key, "..") {
		return true
	}
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, `\`) {
		return true
	}
	// Windows drive letters, e.g. C:\ or C:/
	if len(key) >= 3 && key[1] == ':' && (key[2] == '\\' || key[2] == '/') {
		return true
	}
	return strings.HasPrefix(path.Clean(key), "../")
}
