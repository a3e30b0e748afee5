// Package bbl implements NYC's Borough-Block-Lot property identifier, the
// join key across every data source Sentinel consumes.
package bbl

import (
	"errors"
	"strconv"
	"strings"
)

// BBL is a validated 10-digit Borough-Block-Lot identifier:
// borough digit (1-5), five block digits, four lot digits.
type BBL string

var (
	ErrInvalidFormat  = errors.New("invalid_bbl_format")
	ErrInvalidBorough = errors.New("invalid_bbl_borough")
)

// Borough codes as used by the Department of City Planning.
const (
	BoroughManhattan    = 1
	BoroughBronx        = 2
	BoroughBrooklyn     = 3
	BoroughQueens       = 4
	BoroughStatenIsland = 5
)

var boroughNames = map[int]string{
	BoroughManhattan:    "Manhattan",
	BoroughBronx:        "Bronx",
	BoroughBrooklyn:     "Brooklyn",
	BoroughQueens:       "Queens",
	BoroughStatenIsland: "Staten Island",
}

// Parse cleans and validates a raw BBL string. Whitespace and hyphens are
// stripped; anything that does not reduce to exactly 10 digits with a
// borough digit in 1-5 is rejected, never coerced.
func Parse(raw string) (BBL, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if len(cleaned) != 10 {
		return "", ErrInvalidFormat
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", ErrInvalidFormat
		}
	}
	if cleaned[0] < '1' || cleaned[0] > '5' {
		return "", ErrInvalidBorough
	}
	return BBL(cleaned), nil
}

// MustParse panics on invalid input. Intended for constants in tests and seeds.
func MustParse(raw string) BBL {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func (b BBL) String() string { return string(b) }

// Borough returns the borough code (1-5), or 0 for a zero-value BBL.
func (b BBL) Borough() int {
	if len(b) != 10 {
		return 0
	}
	return int(b[0] - '0')
}

// BoroughName returns the display name for the borough digit.
func (b BBL) BoroughName() string {
	return boroughNames[b.Borough()]
}

// BoroughName returns the display name for a borough code, empty for
// codes outside 1-5.
func BoroughName(code int) string {
	return boroughNames[code]
}

// Block returns the 5-digit tax block number.
func (b BBL) Block() int {
	if len(b) != 10 {
		return 0
	}
	block, _ := strconv.Atoi(string(b[1:6]))
	return block
}

// Lot returns the 4-digit tax lot number.
func (b BBL) Lot() int {
	if len(b) != 10 {
		return 0
	}
	lot, _ := strconv.Atoi(string(b[6:10]))
	return lot
}

// EstimatedYearBuilt estimates the construction era from the tax block.
// Low block numbers correspond to older street grids. Used only when no
// building profile carries a recorded year.
func (b BBL) EstimatedYearBuilt() int {
	block := b.Block()
	switch {
	case block < 3000:
		return 1960
	case block < 7000:
		return 1975
	default:
		return 1995
	}
}
