package ledger

const (
	operationCredit          = "credit"
	operationDebit           = "debit"
	operationChargeFranchise = "charge_franchise"
	operationReverse         = "reverse"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	refDelimiter     = ":"
	refSuffixReverse = "reverse"
	refSuffixRenter  = "renter"
	refSuffixFund    = "fund"
)
