package service

import (
	"bytes"
	"fmt"
	"strings"
)

// MaxSignatureBytes is the largest accepted signature upload (5 MiB)
const MaxSignatureBytes = 5 << 20

// FileErrorReason names the check a signature upload failed
type FileErrorReason string

const (
	FileTooLarge    FileErrorReason = "file_too_large"
	UnsupportedType FileErrorReason = "unsupported_type"
	MalformedImage  FileErrorReason = "malformed_image"
)

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
	jpegMagic = []byte{0xFF, 0xD8}
)

// allowed signature types and the leading bytes each must carry
var signatureMagic = map[string][]byte{
	"image/png":  pngMagic,
	"image/jpeg": jpegMagic,
	"image/jpg":  jpegMagic,
}

// FileError describes a rejected signature upload
type FileError struct {
	Reason FileErrorReason
	Detail string
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// ValidateSignature checks size, then declared type, then that the leading
// bytes match the declared type.
// The order is fixed so the same upload always fails the same way.
func ValidateSignature(data []byte, mimeType string) error {
	if len(data) > MaxSignatureBytes {
		return &FileError{
			Reason: FileTooLarge,
			Detail: fmt.Sprintf("signature file exceeds %d bytes", MaxSignatureBytes),
		}
	}

	mimeType = normalizeMimeType(mimeType)
	magic, ok := signatureMagic[mimeType]
	if !ok {
		return &FileError{
			Reason: UnsupportedType,
			Detail: fmt.Sprintf("signature file type %q is not allowed, use PNG or JPEG", mimeType),
		}
	}

	if !bytes.HasPrefix(data, magic) {
		return &FileError{
			Reason: MalformedImage,
			Detail: fmt.Sprintf("signature file content does not match %s", mimeType),
		}
	}

	return nil
}

// normalizeMimeType drops parameters such as "; charset=" and lowercases
func normalizeMimeType(mimeType string) string {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// signatureExtension picks the object key suffix for an accepted upload
func signatureExtension(data []byte) string {
	if bytes.HasPrefix(data, pngMagic) {
		return "png"
	}
	return "jpg"
}
