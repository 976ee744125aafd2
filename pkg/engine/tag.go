package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// TagMaxLen is the identifier length limit of the ledger service.
const TagMaxLen = 36

// Direction identifies a sync direction and doubles as the import-tag
// discriminator.
type Direction string

const (
	DirPersonalToCompany Direction = "p2c"
	DirCompanyToPersonal Direction = "c2p"
	DirCompanyToCompany  Direction = "c2c"
)

// mirrorTagPrefixes is the closed set of prefixes a mirror's import id can
// carry.
var mirrorTagPrefixes = []string{"p2c:", "c2p:", "c2c:"}

// ImportTag derives the deterministic idempotency tag for a mirror of the
// given source transaction. Same input always yields the same tag, so
// re-running after a partial failure cannot duplicate-create.
func ImportTag(dir Direction, sourceTxID string) string {
	return clampTag(fmt.Sprintf("%s:%s", dir, stableHash(sourceTxID)))
}

// RecreationTag derives a uniquified tag for recreating a deleted mirror.
// The original tag is considered consumed by the ledger service, so the
// recreation time is appended.
func RecreationTag(dir Direction, sourceTxID string, at time.Time) string {
	return clampTag(fmt.Sprintf("%s:%s:%d", dir, stableHash(sourceTxID), at.Unix()))
}

// OppositeDirection returns the direction whose mirrors live on the given
// direction's source side.
func OppositeDirection(dir Direction) Direction {
	switch dir {
	case DirPersonalToCompany:
		return DirCompanyToPersonal
	case DirCompanyToPersonal:
		return DirPersonalToCompany
	default:
		return DirCompanyToCompany
	}
}

// IsMirrorTag reports whether an import id marks a transaction as a mirror.
func IsMirrorTag(importID string) bool {
	for _, prefix := range mirrorTagPrefixes {
		if strings.HasPrefix(importID, prefix) {
			return true
		}
	}
	return false
}

func stableHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func clampTag(tag string) string {
	if len(tag) > TagMaxLen {
		return tag[:TagMaxLen]
	}
	return tag
}
