package transfer

import "fmt"

// Summary counts the results of a batch
type Summary struct {
	Uploaded int
	Skipped  int
	Failed   int
	Bytes    int64
}

// Add counts one result
func (s *Summary) Add(r Result) {
	switch r.Status {
	case StatusUploaded:
		s.Uploaded++
		if r.Outcome != nil {
			s.Bytes += r.Outcome.Size
		}
	case StatusSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
}

// Total is the number of items seen
func (s Summary) Total() int {
	return s.Uploaded + s.Skipped + s.Failed
}

func (s Summary) String() string {
	return fmt.Sprintf("%d uploaded, %d skipped, %d failed", s.Uploaded, s.Skipped, s.Failed)
}
