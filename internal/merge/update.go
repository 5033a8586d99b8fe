package merge

// SumUpdateCounts folds the affected-row counts of every execution unit of a
// DML statement into one total.
func SumUpdateCounts(counts []int64) int64 {
	var total int64
	for _, n := range counts {
		total += n
	}
	return total
}
