package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content addresses. The version suffix leaves room for
// a future algorithm migration.
const (
	DomainDocument = "tempodb/document/v1"
	DomainTxOps    = "tempodb/tx-ops/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DocumentHash computes the content address of a document body.
func DocumentHash(doc Document) (string, error) {
	canonical, err := doc.MarshalCanonical()
	if err != nil {
		return "", fmt.Errorf("DocumentHash: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// OperationsHash computes a digest over an encoded operations payload.
// Stored beside each committed log record so corruption is detected on read.
func OperationsHash(payload []byte) string {
	return hashWithDomain(DomainTxOps, payload)
}

// MustDocumentHash is like DocumentHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDocumentHash(doc Document) string {
	h, err := DocumentHash(doc)
	if err != nil {
		panic(err)
	}
	return h
}
