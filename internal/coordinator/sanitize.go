package coordinator

import "regexp"

// maxNameLen keeps names within the DNS label limit so they remain usable
// as hostnames.
const maxNameLen = 63

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// SanitizeName turns a user-supplied name into a valid container name.
// Characters outside [a-zA-Z0-9_.-] become "_", the result starts with an
// alphanumeric character and is at least two and at most 63 characters long.
// SanitizeName is idempotent.
func SanitizeName(name string) string {
	s := invalidNameChars.ReplaceAllString(name, "_")
	if s == "" || !isAlphanumeric(s[0]) {
		s = "c" + s
	}
	if len(s) > maxNameLen {
		s = s[:maxNameLen]
	}
	if len(s) < 2 {
		s += "_"
	}
	return s
}

func isAlphanumeric(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
