package bbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    BBL
		wantErr error
	}{
		{name: "clean brooklyn", raw: "3012340056", want: "3012340056"},
		{name: "hyphenated", raw: "3-01234-0056", want: "3012340056"},
		{name: "inner spaces", raw: "1 00123 0001", want: "1001230001"},
		{name: "surrounding whitespace", raw: "  4004560078\t", want: "4004560078"},
		{name: "too short", raw: "301234005", wantErr: ErrInvalidFormat},
		{name: "too long", raw: "30123400567", wantErr: ErrInvalidFormat},
		{name: "letters", raw: "3O12340056", wantErr: ErrInvalidFormat},
		{name: "borough zero", raw: "0012340056", wantErr: ErrInvalidBorough},
		{name: "borough nine", raw: "9012340056", wantErr: ErrInvalidBorough},
		{name: "empty", raw: "", wantErr: ErrInvalidFormat},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.raw)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParts(t *testing.T) {
	id := MustParse("3012340056")
	assert.Equal(t, 3, id.Borough())
	assert.Equal(t, "Brooklyn", id.BoroughName())
	assert.Equal(t, 1234, id.Block())
	assert.Equal(t, 56, id.Lot())
}

func TestEstimatedYearBuilt(t *testing.T) {
	assert.Equal(t, 1960, MustParse("1029990001").EstimatedYearBuilt())
	assert.Equal(t, 1975, MustParse("1030000001").EstimatedYearBuilt())
	assert.Equal(t, 1975, MustParse("3069990001").EstimatedYearBuilt())
	assert.Equal(t, 1995, MustParse("3070000001").EstimatedYearBuilt())
}
