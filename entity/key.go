package entity

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

type KeyStatus string

const (
	KeyAvailable KeyStatus = "available"
	KeyUsed      KeyStatus = "used"
)

// Key is one license of a product. Status and AccountId change together:
// an available key has no account, a used key always has one.
type Key struct {
	Id        int64      `json:"id"`
	License   string     `json:"license"`
	Status    KeyStatus  `json:"status"`
	ProductId int64      `json:"product_id"`
	AccountId *int64     `json:"account_id,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// KeyRef identifies an available key selected for a claim.
type KeyRef struct {
	Id      int64
	License string
}

// KeyBatch is the admin bulk-load body: licenses separated by newlines.
type KeyBatch struct {
	Licenses string `json:"licenses"`
}

func (b *KeyBatch) Bind(_ *http.Request) error {
	lines := b.Lines()
	if len(lines) == 0 {
		return ValidationError("no licenses provided")
	}
	for i, line := range lines {
		if len(line) > MaxLicenseLen {
			return ValidationError(fmt.Sprintf("license %d is longer than %d", i+1, MaxLicenseLen))
		}
	}
	return nil
}

// Lines returns trimmed, non-blank licenses in batch order. Repeats are kept
// so the store can report them as duplicates.
func (b *KeyBatch) Lines() []string {
	var lines []string
	for _, line := range strings.Split(b.Licenses, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// KeyLoadResult reports the outcome of a bulk load.
type KeyLoadResult struct {
	Added      int      `json:"added"`
	Duplicates []string `json:"duplicates,omitempty"`
}
