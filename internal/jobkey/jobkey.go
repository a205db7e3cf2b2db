// Package jobkey derives the content-addressed object key for a job.
//
// The key only depends on the prompt, the requested duration and the base
// name, so re-running the same job file maps every job onto the object it
// produced last time and the runner can skip it.
package jobkey

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/hochfrequenz/musicgen-worker/internal/domain"
)

// hashLen is the number of hex characters kept from the digest
const hashLen = 8

const separator = "|"

// Key returns "<stem>_<8 hex>.wav" for the given job fields
func Key(prompt string, duration int, baseName string) string {
	content := strings.Join([]string{prompt, strconv.Itoa(duration), baseName}, separator)
	sum := md5.Sum([]byte(content))
	suffix := hex.EncodeToString(sum[:])[:hashLen]

	stem := domain.Job{BaseName: baseName}.Stem()
	return stem + "_" + suffix + domain.AudioExtension
}

// ForJob returns the key for a parsed job
func ForJob(job domain.Job) string {
	return Key(job.Prompt, job.DurationSeconds, job.BaseName)
}
