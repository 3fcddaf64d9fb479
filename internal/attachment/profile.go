package attachment

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/codefionn/webmessaging/internal/consts"
	"github.com/codefionn/webmessaging/internal/errcode"
)

// Profile is the file attachment policy of a deployment.
type Profile struct {
	Enabled           bool
	MaxFileSizeKB     int64
	BlockedExtensions []string
}

// Validate checks a file against the profile and returns an *errcode.Error
// describing the first violation.
func (p Profile) Validate(fileName string, data []byte) error {
	if !p.Enabled {
		return errcode.New(errcode.FeatureUnavailable, "file attachments are disabled for this deployment")
	}
	if err := validateFile(fileName, data); err != nil {
		return err
	}
	if p.MaxFileSizeKB > 0 && int64(len(data)) > p.MaxFileSizeKB*1024 {
		return errcode.New(errcode.FileSizeInvalid,
			fmt.Sprintf("file of %d bytes exceeds the limit of %d KB", len(data), p.MaxFileSizeKB))
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, blocked := range p.BlockedExtensions {
		if ext != "" && strings.EqualFold(normalizeExt(blocked), ext) {
			return errcode.New(errcode.FileTypeInvalid, fmt.Sprintf("file type %s is not allowed", ext))
		}
	}
	return nil
}

// validateFile applies the checks that hold without a profile.
func validateFile(fileName string, data []byte) error {
	if len(data) == 0 {
		return errcode.New(errcode.FileContentInvalid, "file is empty")
	}
	if strings.TrimSpace(fileName) == "" {
		return errcode.New(errcode.FileNameInvalid, "file name is empty")
	}
	if len(fileName) > consts.MaxFileNameLength {
		return errcode.New(errcode.FileNameTooLong,
			fmt.Sprintf("file name exceeds %d characters", consts.MaxFileNameLength))
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
