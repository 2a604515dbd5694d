package model

// TransactionRecord is one entry of the transaction log. Operations are kept
// only for committed records; aborted records are placeholders in the id
// ordering and carry none.
type TransactionRecord struct {
	Instant    TransactionInstant
	Committed  bool
	Operations []Operation
}
