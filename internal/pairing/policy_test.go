package pairing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWideningPolicy(t *testing.T) {
	p := WideningPolicy{Base: 1, Step: 2, Interval: 10 * time.Second}

	assert.Equal(t, 1, p.Tolerance(0))
	assert.Equal(t, 1, p.Tolerance(9*time.Second))
	assert.Equal(t, 3, p.Tolerance(10*time.Second))
	assert.Equal(t, 5, p.Tolerance(25*time.Second))
	assert.Equal(t, 1, p.Tolerance(-time.Second), "clock skew never narrows below base")
}

func TestWideningPolicyNoInterval(t *testing.T) {
	p := WideningPolicy{Base: 2}
	assert.Equal(t, 2, p.Tolerance(time.Hour), "zero interval means a fixed tolerance")
}
