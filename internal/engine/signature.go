package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/miradorstack/mirador-responder/internal/models"
)

// Signature hashes {service, evidence kind, location} into a stable key so
// knowledge accumulates across recurring incidents. Inputs are NFC-normalised
// and trimmed; the kind is upper-cased.
func Signature(serviceID string, kind models.EvidenceKind, location string) string {
	h := sha256.New()
	h.Write([]byte(norm.NFC.String(strings.TrimSpace(serviceID))))
	h.Write([]byte{0x1f})
	h.Write([]byte(strings.ToUpper(string(kind))))
	h.Write([]byte{0x1f})
	h.Write([]byte(norm.NFC.String(strings.TrimSpace(location))))
	return hex.EncodeToString(h.Sum(nil))
}

// changeLocation is the sorted, de-duplicated file list touched by a commit.
func changeLocation(files []string) string {
	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
