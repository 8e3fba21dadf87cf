// Package model defines the core ledger domain types and their wire form.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Transaction is a pending transfer between two account ids. The core does
// not verify balances or signatures.
type Transaction struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

// Block is one immutable record of the chain. PreviousHash is empty only for
// the genesis block. Timestamp is milliseconds since the Unix epoch.
type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    int64         `json:"timestamp"`
	Nonce        uint64        `json:"nonce"`
	PreviousHash string        `json:"previous_hash,omitempty"`
	Hash         string        `json:"hash"`
	Transactions []Transaction `json:"transactions"`
}

// NewBlock builds a block and stamps it with its computed hash.
func NewBlock(index uint64, timestamp int64, nonce uint64, previousHash string, transactions []Transaction) Block {
	b := Block{
		Index:        index,
		Timestamp:    timestamp,
		Nonce:        nonce,
		PreviousHash: previousHash,
		Transactions: transactions,
	}
	b.Hash = b.ComputeHash()
	return b
}

// ComputeHash returns the hex SHA-256 digest of the block's wire form with
// the hash field blanked. The receiver is a copy, so the block itself is
// left untouched.
func (b Block) ComputeHash() string {
	b.Hash = ""
	payload, err := json.Marshal(b)
	if err != nil {
		// Marshaling a Block cannot fail: every field is a plain value type.
		panic("model: marshal block: " + err.Error())
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// MeetsDifficulty reports whether the block's hash carries at least
// difficulty leading zero hex characters.
func (b Block) MeetsDifficulty(difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	return strings.HasPrefix(b.Hash, strings.Repeat("0", difficulty))
}

// Clone returns a deep copy of the block, including its transaction list.
func (b Block) Clone() Block {
	if b.Transactions == nil {
		return b
	}
	txs := make([]Transaction, len(b.Transactions))
	copy(txs, b.Transactions)
	b.Transactions = txs
	return b
}
