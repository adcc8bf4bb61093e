package patient

import (
	"crypto/rand"
	"encoding/base32"
	"io"
	"strings"
	"time"
)

const mrnSuffixLen = 6

// MRNGenerator produces medical record numbers of the form
// PREFIX-YYYYMMDD-XXXXXX. Uniqueness is probabilistic; the storage unique
// constraint is authoritative and the service retries on collision.
type MRNGenerator struct {
	prefix string
	now    func() time.Time
	random io.Reader
}

func NewMRNGenerator(prefix string) *MRNGenerator {
	if prefix == "" {
		prefix = "MRN"
	}
	return &MRNGenerator{prefix: prefix, now: time.Now, random: rand.Reader}
}

func (g *MRNGenerator) Next() (string, error) {
	// 4 bytes of entropy encode to 7 base32 chars; keep the first 6 (30 bits).
	var buf [4]byte
	if _, err := io.ReadFull(g.random, buf[:]); err != nil {
		return "", err
	}
	suffix := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf[:])[:mrnSuffixLen]

	var b strings.Builder
	b.WriteString(g.prefix)
	b.WriteByte('-')
	b.WriteString(g.now().UTC().Format("20060102"))
	b.WriteByte('-')
	b.WriteString(suffix)
	return b.String(), nil
}
