package coupon

import (
	"github.com/bits-and-blooms/bloom/v3"
)

const filterFPR = 0.001

// CodeFilter is a bloom filter over known coupon codes. It lets the public
// preview endpoint reject unknown codes without a database round-trip; false
// positives fall through to the repository, which remains authoritative.
type CodeFilter struct {
	f *bloom.BloomFilter
}

// NewCodeFilter builds a filter from the given codes. Codes are expected to
// be already normalized.
func NewCodeFilter(codes []string) *CodeFilter {
	n := uint(len(codes))
	if n < 1024 {
		n = 1024
	}
	f := bloom.NewWithEstimates(n, filterFPR)
	for _, code := range codes {
		f.AddString(code)
	}
	return &CodeFilter{f: f}
}

// MayContain reports whether code could be a known coupon code.
func (c *CodeFilter) MayContain(code string) bool {
	return c.f.TestString(code)
}
