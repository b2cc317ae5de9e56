package audit

import (
	"crypto/ed25519"
	"encoding/hex"
)

// VerifyChain walks entries in sequence order and reports the first broken
// link. entries must be the complete chain starting at genesis.
func VerifyChain(entries []Entry, pub ed25519.PublicKey) IntegrityReport {
	prev := GenesisHash
	for i := range entries {
		e := &entries[i]
		if reason := checkEntry(e, prev, pub); reason != "" {
			return IntegrityReport{
				Valid:          false,
				EntriesChecked: i + 1,
				BrokenAt:       &Break{EventID: e.EventID, Sequence: e.Sequence, Reason: reason},
			}
		}
		prev = e.RecordHash
	}
	return IntegrityReport{Valid: true, EntriesChecked: len(entries)}
}

func checkEntry(e *Entry, prev string, pub ed25519.PublicKey) string {
	if e.PreviousHash != prev {
		return BreakPreviousHash
	}
	if e.ComputeHash() != e.RecordHash {
		return BreakRecordHash
	}
	sig, err := hex.DecodeString(e.Signature)
	if err != nil || !ed25519.Verify(pub, []byte(e.RecordHash), sig) {
		return BreakSignature
	}
	return ""
}

func sign(key ed25519.PrivateKey, recordHash string) string {
	return hex.EncodeToString(ed25519.Sign(key, []byte(recordHash)))
}
