// Package checksum fingerprints the domain fields of a record.
//
// The fingerprint is independent of key order and ignores sync metadata
// (version, timestamps, device id). It guards against accidental
// corruption, not against an adversary.
package checksum

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/shiftsync/internal/models"
	"golang.org/x/crypto/blake2b"
)

// Compute returns the hex BLAKE2b-256 digest of fields in canonical form:
// keys sorted, each pair encoded as key=json(value) and NUL terminated.
// encoding/json sorts nested map keys, so nested objects are canonical too.
func Compute(fields models.Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h, _ := blake2b.New256(nil)
	for _, k := range keys {
		v, err := json.Marshal(fields[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%#v", fields[k]))
		}
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write(v)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Of is Compute over a record's fields.
func Of(r models.Record) string {
	return Compute(r.Fields)
}
