package registry

// ApplyOutcome folds one transaction outcome into a processor's running
// metrics and returns the updated record. The caller is responsible for
// persisting the result; nothing is written here.
//
// The average is a weighted running mean over the pre-update values: it
// treats the stored average as sum/total and folds the new sample in with
// weight one, using floor division throughout.
func ApplyOutcome(p Processor, amount uint64, succeeded bool, processingTimeMS uint64, now uint64) Processor {
	updated := p
	updated.TotalTransactions = p.TotalTransactions + 1
	if succeeded {
		updated.SuccessfulTransactions = p.SuccessfulTransactions + 1
	}
	updated.TotalAmount = p.TotalAmount + amount
	updated.AvgProcessingTime = (p.AvgProcessingTime*p.TotalTransactions + processingTimeMS) / updated.TotalTransactions
	updated.MonthlyTransactions = p.MonthlyTransactions + 1
	updated.MonthlyAmount = p.MonthlyAmount + amount
	updated.LastUpdated = now
	return updated
}
