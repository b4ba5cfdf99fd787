// Modul: digest.go - Digest-Typ des Caches
// Enthaelt: Digest (sha256), ParseDigest, Sum
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var errWrongLength = errors.New("wrong length")

// Digest ist die sha256-Pruefsumme eines Blobs.
type Digest struct {
	sum [32]byte
}

// Sum berechnet den Digest von data.
func Sum(data []byte) Digest {
	return Digest{sum: sha256.Sum256(data)}
}

// ParseDigest parst "sha256-<hex>" oder "sha256:<hex>".
func ParseDigest(s string) (Digest, error) {
	algo, hexSum, ok := strings.Cut(s, "-")
	if !ok {
		algo, hexSum, ok = strings.Cut(s, ":")
	}
	if !ok || algo != "sha256" {
		return Digest{}, fmt.Errorf("invalid digest %q", s)
	}
	var d Digest
	if len(hexSum) != 2*len(d.sum) {
		return Digest{}, fmt.Errorf("invalid digest %q: %w", s, errWrongLength)
	}
	if _, err := hex.Decode(d.sum[:], []byte(hexSum)); err != nil {
		return Digest{}, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	return d, nil
}

func (d Digest) String() string {
	return fmt.Sprintf("sha256-%x", d.sum)
}

// IsValid meldet, ob d nicht der Nullwert ist.
func (d Digest) IsValid() bool {
	return d != Digest{}
}
