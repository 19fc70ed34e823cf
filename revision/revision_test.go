package revision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockStartsAtOne(t *testing.T) {
	c := NewClock()
	require.Equal(t, Revision(1), c.Current())
	require.Equal(t, Revision(1), c.LastChanged(Low))
	require.Equal(t, Revision(1), c.LastChanged(Immutable))
}

func TestBumpAdvancesCurrentOnly(t *testing.T) {
	c := NewClock()
	r := c.Bump()
	assert.Equal(t, Revision(2), r)
	assert.Equal(t, Revision(2), c.Current())
	assert.Equal(t, Revision(1), c.LastChanged(Low))
}

func TestReportWriteIsNonIncreasingAcrossDurabilities(t *testing.T) {
	c := NewClock()
	c.Bump()
	c.Bump()
	c.ReportWrite(Medium)

	assert.Equal(t, Revision(3), c.LastChanged(Low))
	assert.Equal(t, Revision(3), c.LastChanged(Medium))
	assert.Equal(t, Revision(1), c.LastChanged(High))
	assert.Equal(t, Revision(1), c.LastChanged(Immutable))
}

func TestStampMergeTakesMinDurabilityMaxChangedAt(t *testing.T) {
	a := Stamp{Durability: High, ChangedAt: 5}
	b := Stamp{Durability: Low, ChangedAt: 3}

	merged := a.Merge(b)
	assert.Equal(t, Low, merged.Durability)
	assert.Equal(t, Revision(5), merged.ChangedAt)
}

func TestDurabilityString(t *testing.T) {
	cases := []struct {
		d    Durability
		want string
	}{
		{Low, "low"},
		{Medium, "medium"},
		{High, "high"},
		{Immutable, "immutable"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.d.String())
		})
	}
}
