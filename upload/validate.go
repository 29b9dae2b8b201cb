package upload

import (
	"fmt"
	"strings"

	"github.com/reelcast/reelcast/filesystem"
	"github.com/reelcast/reelcast/video"
)

// MaxUploadSize is the largest source file the service accepts.
const MaxUploadSize int64 = 5 << 30

// ValidationError is a local rejection raised before any network activity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks that src declares video content and fits within limit bytes.
// A non-positive limit falls back to MaxUploadSize.
func Validate(src *filesystem.Upload, limit int64) error {
	if limit <= 0 {
		limit = MaxUploadSize
	}

	if !strings.HasPrefix(src.MediaType, "video/") {
		return &ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("please select a video file (got %q)", src.MediaType),
		}
	}

	if src.Size > limit {
		return &ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("file size must be less than %s", video.FormatFileSize(limit)),
		}
	}

	return nil
}
