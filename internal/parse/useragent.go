package parse

import (
	"regexp"
	"strconv"
)

var safariVersionRe = regexp.MustCompile(`Version/(\d+)(?:\.(\d+))?`)

// SafariVersion extracts major and minor from the "Version/X.Y" token of a
// Safari user-agent string.
func SafariVersion(ua string) (major, minor int, ok bool) {
	m := safariVersionRe.FindStringSubmatch(ua)
	if len(m) < 2 {
		return 0, 0, false
	}

	major, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	if m[2] != "" {
		minor, err = strconv.Atoi(m[2])
		if err != nil {
			return 0, 0, false
		}
	}
	return major, minor, true
}

// VersionAtLeast compares a parsed major.minor against a minimum.
func VersionAtLeast(major, minor, minMajor, minMinor int) bool {
	if major != minMajor {
		return major > minMajor
	}
	return minor >= minMinor
}
