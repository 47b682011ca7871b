package anchor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labels(anchors []Anchor) []string {
	out := make([]string, 0, len(anchors))
	for _, a := range anchors {
		out = append(out, a.Label)
	}
	return out
}

func TestTable_ForwardAndReverseOrder(t *testing.T) {
	tbl := NewTable(DefaultCorridor())
	assert.Equal(t, []string{"C4", "C9", "C14"}, labels(tbl.Remaining(Forward)))
	assert.Equal(t, []string{"C14", "C9", "C4"}, labels(tbl.Remaining(Reverse)))

	a, ok := tbl.Current(Reverse)
	require.True(t, ok)
	assert.Equal(t, "C14", a.Label)
}

func TestTable_AdvanceNeverWraps(t *testing.T) {
	tbl := NewTable(DefaultCorridor())
	for i := 0; i < tbl.Len()+5; i++ {
		tbl.Advance()
	}
	_, ok := tbl.Current(Forward)
	assert.False(t, ok)
	_, ok = tbl.Current(Reverse)
	assert.False(t, ok)
	assert.Equal(t, tbl.Len(), tbl.Cursor())
	assert.Empty(t, tbl.Remaining(Forward))

	tbl.Advance()
	assert.Equal(t, tbl.Len(), tbl.Cursor())

	tbl.Reset()
	a, ok := tbl.Current(Forward)
	require.True(t, ok)
	assert.Equal(t, "C4", a.Label)
}

func TestTable_EmptyTable(t *testing.T) {
	tbl := NewTable(nil)
	_, ok := tbl.Current(Forward)
	assert.False(t, ok)
	tbl.Advance()
	assert.Equal(t, 0, tbl.Cursor())
}

func TestTable_ExpectedHeading(t *testing.T) {
	tbl := NewTable(DefaultCorridor())
	a, _ := tbl.Current(Forward)

	h, ok := tbl.ExpectedHeading(a, Forward)
	require.True(t, ok)
	assert.Equal(t, 132.7, h)

	h, ok = tbl.ExpectedHeading(a, Reverse)
	require.True(t, ok)
	assert.Equal(t, 308.2, h)

	_, ok = Anchor{Label: "door"}.ExpectedHeading(Forward)
	assert.False(t, ok)
}

func TestTable_CopiesInput(t *testing.T) {
	in := DefaultCorridor()
	tbl := NewTable(in)
	in[0].Label = "mutated"
	a, _ := tbl.Current(Forward)
	assert.Equal(t, "C4", a.Label)
}

func TestParseAnchor(t *testing.T) {
	a, err := ParseAnchor("C9, 16.3398, 4.6369, 132.7, 56.8")
	require.NoError(t, err)
	assert.Equal(t, "C9", a.Label)
	assert.Equal(t, 16.3398, a.X)
	require.NotNil(t, a.ForwardHeading)
	require.NotNil(t, a.ReverseHeading)
	assert.Equal(t, 56.8, *a.ReverseHeading)

	a, err = ParseAnchor("elevator,3.3,3.9,,270")
	require.NoError(t, err)
	assert.Nil(t, a.ForwardHeading)
	require.NotNil(t, a.ReverseHeading)
	assert.Equal(t, 270.0, *a.ReverseHeading)

	a, err = ParseAnchor("big doors,2.0,4.6")
	require.NoError(t, err)
	assert.Equal(t, "big doors", a.Label)
	assert.Nil(t, a.ForwardHeading)

	for _, bad := range []string{"", "C4", "C4,1", ",1,2", "C4,x,2", "C4,1,y", "C4,1,2,n", "C4,1,2,3,r", "C4,1,2,3,4,5"} {
		_, err := ParseAnchor(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestDirectionJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		D Direction `json:"d"`
	}{Reverse})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"reverse"}`, string(b))

	var d Direction
	require.NoError(t, json.Unmarshal([]byte(`"FORWARD"`), &d))
	assert.Equal(t, Forward, d)
	assert.Error(t, json.Unmarshal([]byte(`"sideways"`), &d))
	assert.Equal(t, Reverse, Forward.Flip())
	assert.Equal(t, Forward, Reverse.Flip())
}
