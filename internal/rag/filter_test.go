package rag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter_Blank(t *testing.T) {
	for _, expr := range []string{"", "   ", "\n\t"} {
		f, err := ParseFilter(expr)
		require.NoError(t, err)
		assert.Nil(t, f)
		assert.True(t, f.Matches(map[string]interface{}{"any": 1}))
	}
}

func TestParseFilter_Invalid(t *testing.T) {
	_, err := ParseFilter("genre == ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFilter))
}

func TestFilter_Matches(t *testing.T) {
	metadata := map[string]interface{}{
		"title":  "genre nin [a]",
		"genre":  "drama",
		"year":   float64(2021),
		"rating": 4,
		"draft":  false,
		"tags":   []interface{}{"a", "b"},
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"string equality", "genre == 'drama'", true},
		{"string inequality", "genre != 'drama'", false},
		{"numeric range on double", "year >= 2020", true},
		{"numeric range on int", "rating > 3", true},
		{"and", "genre == 'drama' && year < 2020", false},
		{"or", "genre == 'comedy' || rating == 4", true},
		{"keyword and", "genre == 'drama' AND year >= 2021", true},
		{"keyword or", "genre == 'comedy' OR year > 2000", true},
		{"keyword not", "NOT (genre == 'comedy')", true},
		{"in list", "genre in ['drama', 'comedy']", true},
		{"keyword IN", "genre IN ['comedy']", false},
		{"nin list", "genre nin ['comedy', 'horror']", true},
		{"nin excludes", "genre NIN ['drama']", false},
		{"boolean key", "draft == false", true},
		{"missing key never matches", "author == 'x'", false},
		{"type mismatch never matches", "genre > 3", false},
		{"quoted keyword untouched", "genre == 'rock and roll'", false},
		{"quoted nin untouched", "title == 'genre nin [a]'", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(tt.expr)
			require.NoError(t, err)
			require.NotNil(t, f)
			assert.Equal(t, tt.want, f.Matches(metadata))
			assert.Equal(t, tt.expr, f.String())
		})
	}
}

func TestNormalizeFilter(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a == 1 AND b == 2", "a == 1 && b == 2"},
		{"a == 1 or b == 2", "a == 1 || b == 2"},
		{"NOT a", "! a"},
		{"x nin ['a','b']", "!(x in ['a','b'])"},
		{"name == 'Tom AND Jerry'", "name == 'Tom AND Jerry'"},
		{`name == "it's" AND a == 1`, `name == "it's" && a == 1`},
		{`name == 'it\'s or' OR a == 1`, `name == 'it\'s or' || a == 1`},
		{"title == 'genre nin [a]'", "title == 'genre nin [a]'"},
		{"title == 'x' AND genre NIN ['a', 'b or c']", "title == 'x' && !(genre in ['a', 'b or c'])"},
		{"name == 'open", "name == 'open"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeFilter(tt.in))
		})
	}
}

func TestFilter_Expr(t *testing.T) {
	var nilFilter *Filter
	assert.Nil(t, nilFilter.Expr())

	f, err := ParseFilter("genre == 'drama'")
	require.NoError(t, err)
	assert.NotNil(t, f.Expr())
}
