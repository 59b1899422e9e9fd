package reader

// Reader abstracts read-only data access for CLI commands.
//
// All methods are read-only and must not mutate the journal.
type Reader interface {
	// ListTransfers returns journal entries, newest first.
	ListTransfers(opts ListOptions) []TransferItem
	// InspectTransfer returns one entry by transfer ID.
	InspectTransfer(transferID string) (*InspectTransferResponse, error)
	// StatsHistory aggregates the whole journal.
	StatsHistory() *HistoryStats
}
