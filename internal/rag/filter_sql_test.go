package rag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_SQL(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		offset   int
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:     "string equality",
			expr:     "genre == 'drama'",
			wantSQL:  "(CASE WHEN jsonb_typeof(metadata->$1::text) = 'string' THEN metadata->>$1::text = $2 END)",
			wantArgs: []interface{}{"genre", "drama"},
		},
		{
			name:     "numeric comparison with offset",
			expr:     "year >= 2020",
			offset:   3,
			wantSQL:  "(CASE WHEN jsonb_typeof(metadata->$4::text) = 'number' THEN (metadata->>$4::text)::numeric >= $5::numeric END)",
			wantArgs: []interface{}{"year", int64(2020)},
		},
		{
			name:     "literal on the left is mirrored",
			expr:     "2020 < year",
			wantSQL:  "(CASE WHEN jsonb_typeof(metadata->$1::text) = 'number' THEN (metadata->>$1::text)::numeric > $2::numeric END)",
			wantArgs: []interface{}{"year", int64(2020)},
		},
		{
			name: "keyword operators",
			expr: "genre == 'drama' AND NOT (draft == true)",
			wantSQL: "((CASE WHEN jsonb_typeof(metadata->$1::text) = 'string' THEN metadata->>$1::text = $2 END) AND " +
				"(NOT (CASE WHEN jsonb_typeof(metadata->$3::text) = 'boolean' THEN (metadata->>$3::text)::boolean = $4::boolean END)))",
			wantArgs: []interface{}{"genre", "drama", "draft", true},
		},
		{
			name: "in list",
			expr: "author in ['john', 'jill']",
			wantSQL: "((CASE WHEN jsonb_typeof(metadata->$1::text) = 'string' THEN metadata->>$1::text = $2 END) OR " +
				"(CASE WHEN jsonb_typeof(metadata->$3::text) = 'string' THEN metadata->>$3::text = $4 END))",
			wantArgs: []interface{}{"author", "john", "author", "jill"},
		},
		{
			name:    "empty in list",
			expr:    "author in []",
			wantSQL: "FALSE",
		},
		{
			name:     "or with double",
			expr:     "score > 0.5 || pinned",
			wantSQL:  "((CASE WHEN jsonb_typeof(metadata->$1::text) = 'number' THEN (metadata->>$1::text)::numeric > $2::numeric END) OR (CASE WHEN jsonb_typeof(metadata->$3::text) = 'boolean' THEN (metadata->>$3::text)::boolean = $4::boolean END))",
			wantArgs: []interface{}{"score", 0.5, "pinned", true},
		},
		{
			name:     "null check",
			expr:     "parent != null",
			wantSQL:  "(jsonb_typeof(metadata->$1::text) <> 'null')",
			wantArgs: []interface{}{"parent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(tt.expr)
			require.NoError(t, err)

			sql, args, err := f.SQL("metadata", tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestFilter_SQL_NilFilter(t *testing.T) {
	var f *Filter
	sql, args, err := f.SQL("metadata", 0)
	require.NoError(t, err)
	assert.Equal(t, "TRUE", sql)
	assert.Empty(t, args)
}

func TestFilter_SQL_Unsupported(t *testing.T) {
	for _, expr := range []string{
		"size(tags) > 1",
		"genre == other",
		"author in tags",
		"'a' == 'a'",
		"meta.author == 'x'",
		"parent < null",
	} {
		t.Run(expr, func(t *testing.T) {
			f, err := ParseFilter(expr)
			require.NoError(t, err)

			_, _, err = f.SQL("metadata", 0)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFilter))
		})
	}
}
