package scheduler

import (
	"path"
	"strconv"
	"strings"
)

// Aspect ratios per image mode. The transform pipeline takes the ratio as a
// plain decimal: a separator character would be URL-encoded downstream and
// break the publishing call.
const (
	aspectPortrait  = 0.8 // 4:5
	aspectLandscape = 1.91
	aspectSquare    = 1.0
)

func aspectFor(imageMode string) float64 {
	switch imageMode {
	case "portrait":
		return aspectPortrait
	case "landscape":
		return aspectLandscape
	case "square":
		return aspectSquare
	default:
		return 0 // no transform
	}
}

// TransformURL appends the aspect-ratio transform parameter as a decimal.
// Zero means no transform.
func TransformURL(imageURL string, aspect float64) string {
	if aspect == 0 {
		return imageURL
	}
	sep := "?"
	if strings.Contains(imageURL, "?") {
		sep = "&"
	}
	return imageURL + sep + "ar=" + strconv.FormatFloat(aspect, 'f', -1, 64)
}

func isAbsoluteURL(entry string) bool {
	return strings.HasPrefix(entry, "http://") || strings.HasPrefix(entry, "https://")
}

// matchProjectImage resolves a bare selection entry (an image filename or id)
// against the project's image URLs.
func matchProjectImage(images []string, entry string) (string, bool) {
	for _, imageURL := range images {
		if imageURL == entry || path.Base(imageURL) == entry {
			return imageURL, true
		}
	}
	for _, imageURL := range images {
		if strings.Contains(imageURL, entry) {
			return imageURL, true
		}
	}
	return "", false
}
