package session

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// maxLabelNameLen is the truncation length for the normalised name portion
// of a participant label (§4.4 step 2).
const maxLabelNameLen = 48

// nameSource picks the display string a participant label is derived from:
// fullName, else displayName, else the literal "participant".
func nameSource(info *ParticipantInfo) string {
	if info == nil {
		return "participant"
	}
	if info.FullName != "" {
		return info.FullName
	}
	if info.DisplayName != "" {
		return info.DisplayName
	}
	return "participant"
}

// normaliseName runs s through Unicode NFKD, strips combining marks, drops
// any non-alphanumeric rune, lowercases, and truncates to maxLabelNameLen.
// Falls back to "participant" if the result is empty.
func normaliseName(s string) string {
	decomposed := norm.NFKD.String(s)

	var b strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue // combining mark
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}

	out := b.String()
	if len(out) > maxLabelNameLen {
		out = out[:maxLabelNameLen]
	}
	if out == "" {
		return "participant"
	}
	return out
}

// deviceSuffix derives the suffix portion of a label from a participant id:
// the trailing run of decimal digits, else the last 3 digits appearing
// anywhere in the id (in their original order), else the literal "id".
func deviceSuffix(participantID string) string {
	runes := []rune(participantID)

	// Trailing run of decimal digits.
	end := len(runes)
	start := end
	for start > 0 && unicode.IsDigit(runes[start-1]) {
		start--
	}
	if start < end {
		return string(runes[start:end])
	}

	// Last 3 digits appearing anywhere, in original order.
	var digits []rune
	for _, r := range runes {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) == 0 {
		return "id"
	}
	if len(digits) > 3 {
		digits = digits[len(digits)-3:]
	}
	return string(digits)
}

// randomDigits returns n random decimal digits, zero-padded.
func randomDigits(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('0' + rand.Intn(10)))
	}
	return b.String()
}

// deriveLabel builds the label for a ParticipantWriter per §4.4: the
// normalised name, the device suffix, and three random decimal digits,
// joined by underscores. If the resulting directory already exists under
// participantsDir (a random-digit collision with a different participant
// id in this session), a fresh suffix is drawn until the collision clears.
func deriveLabel(participantID string, info *ParticipantInfo, participantsDir string) string {
	base := normaliseName(nameSource(info)) + "_" + deviceSuffix(participantID)

	for {
		label := base + "_" + randomDigits(3)
		if _, err := os.Stat(filepath.Join(participantsDir, label)); os.IsNotExist(err) {
			return label
		}
	}
}
