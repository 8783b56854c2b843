package trellis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var helperFiles = map[string]string{
	"a.py": "def helper():\n    return 1\n",
	"b.py": "from a import helper\n\ndef run():\n    return helper()\n",
}

func TestFindDefinition_FromReference(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, helperFiles)

	got, outcome, err := q.FindDefinition(Position{File: "b.py", Line: 4, Character: 12})
	require.NoError(t, err)
	assert.Equal(t, Found, outcome)
	require.Len(t, got, 1)
	assert.Equal(t, "helper", got[0].Name)
	assert.Equal(t, "function", got[0].Kind)
	assert.Equal(t, "a.py", got[0].Location.File)
	assert.Equal(t, 1, got[0].Location.StartLine)
	assert.Equal(t, 1, got[0].Location.StartCol)
	assert.Regexp(t, `^a\.py#0-\d+$`, got[0].ID)
}

func TestFindDefinition_OnDeclaration(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, helperFiles)

	got, outcome, err := q.FindDefinition(Position{File: "a.py", Line: 1, Character: 5})
	require.NoError(t, err)
	assert.Equal(t, Found, outcome)
	require.Len(t, got, 1)
	assert.Equal(t, "a.py", got[0].Location.File)
}

func TestFindDefinition_CursorJustPastIdentifier(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, helperFiles)

	// "    return helper()" with the cursor on the opening paren.
	got, _, err := q.FindDefinition(Position{File: "b.py", Line: 4, Character: 18})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "helper", got[0].Name)
}

func TestFindDefinition_FallsBackToGlobalName(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, map[string]string{
		"lib.py": "def shared():\n    pass\n",
		"app.py": "def run():\n    shared()\n",
	})

	got, outcome, err := q.FindDefinition(Position{File: "app.py", Line: 2, Character: 5})
	require.NoError(t, err)
	assert.Equal(t, Found, outcome)
	require.Len(t, got, 1)
	assert.Equal(t, "lib.py", got[0].Location.File)
}

func TestFindDefinition_Whitespace(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, helperFiles)

	got, outcome, err := q.FindDefinition(Position{File: "b.py", Line: 2, Character: 1})
	require.NoError(t, err)
	assert.Equal(t, NotFound, outcome)
	assert.Empty(t, got)
}

func TestFindDefinition_CoveringDeclaration(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, map[string]string{
		"a.rs": "fn helper() {\n    let x = 1;\n}\n",
		"b.py": "class Greeter:\n    def greet(self):\n        return 1\n",
	})

	tests := []struct {
		name string
		pos  Position
		want string
	}{
		{"whitespace in body", Position{File: "a.rs", Line: 2, Character: 2}, "helper"},
		{"fn keyword", Position{File: "a.rs", Line: 1, Character: 1}, "helper"},
		{"class keyword", Position{File: "b.py", Line: 1, Character: 2}, "Greeter"},
		{"innermost wins", Position{File: "b.py", Line: 3, Character: 3}, "greet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, outcome, err := q.FindDefinition(tt.pos)
			require.NoError(t, err)
			assert.Equal(t, Found, outcome)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Name)
			assert.Equal(t, tt.pos.File, got[0].Location.File)
		})
	}
}

func TestFindDefinition_UnknownIdentifierInsideDeclaration(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, map[string]string{
		"a.py": "def run():\n    return missing_name\n",
	})

	got, outcome, err := q.FindDefinition(Position{File: "a.py", Line: 2, Character: 13})
	require.NoError(t, err)
	assert.Equal(t, NotFound, outcome)
	assert.Empty(t, got)
}

func TestFindDefinition_InvalidPosition(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, helperFiles)

	_, _, err := q.FindDefinition(Position{File: "b.py", Line: 99, Character: 1})
	require.ErrorIs(t, err, ErrInvalidPosition)

	_, _, err = q.FindDefinition(Position{File: "b.py", Line: 0, Character: 1})
	require.ErrorIs(t, err, ErrInvalidPosition)
}

func TestFindUsages(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, helperFiles)

	got, outcome, err := q.FindUsages(Position{File: "a.py", Line: 1, Character: 5}, 0)
	require.NoError(t, err)
	assert.Equal(t, Found, outcome)
	require.Len(t, got, 2)
	for _, u := range got {
		assert.Equal(t, "helper", u.Name)
		assert.Equal(t, "b.py", u.Location.File)
	}
	assert.Equal(t, 1, got[0].Location.StartLine)
	assert.Equal(t, 4, got[1].Location.StartLine)
	assert.Equal(t, 12, got[1].Location.StartCol)

	limited, _, err := q.FindUsages(Position{File: "a.py", Line: 1, Character: 5}, 1)
	require.NoError(t, err)
	assert.Equal(t, got[:1], limited)
}

func TestFindUsages_FromReferenceSite(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, helperFiles)

	got, _, err := q.FindUsages(Position{File: "b.py", Line: 4, Character: 12}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFindUsages_ExcludesDefinitionSpan(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, map[string]string{
		"r.py": "def fact(n):\n    return fact(n - 1)\n\nfact(3)\n",
	})

	got, _, err := q.FindUsages(Position{File: "r.py", Line: 1, Character: 5}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].Location.StartLine)
}

func TestFindUsages_NoReferences(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, map[string]string{"lone.py": "def lone():\n    pass\n"})

	got, outcome, err := q.FindUsages(Position{File: "lone.py", Line: 1, Character: 5}, 0)
	require.NoError(t, err)
	assert.Equal(t, NotFound, outcome)
	assert.Empty(t, got)
}

var shapeFiles = map[string]string{
	"base.py":   "class Shape:\n    def area(self):\n        pass\n",
	"circle.py": "from base import Shape\n\nclass Circle(Shape):\n    def area(self):\n        return 3\n",
	"other.py":  "def area():\n    pass\n",
}

func TestFindImplementation(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, shapeFiles)

	got, outcome, err := q.FindImplementation(Position{File: "base.py", Line: 2, Character: 9}, "", 0)
	require.NoError(t, err)
	assert.Equal(t, Found, outcome)
	require.Len(t, got, 1, "only dependents of base.py are searched")
	assert.Equal(t, "circle.py", got[0].Location.File)
	assert.Equal(t, "method", got[0].Kind)
	assert.Equal(t, "Circle", got[0].Container)
}

func TestFindImplementation_KindFilter(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, shapeFiles)

	got, outcome, err := q.FindImplementation(Position{File: "base.py", Line: 2, Character: 9}, "class", 0)
	require.NoError(t, err)
	assert.Equal(t, NotFound, outcome)
	assert.Empty(t, got)
}

func TestFindImplementation_GlobalWithoutDependents(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, map[string]string{
		"x.py": "def handle():\n    pass\n",
		"y.py": "def handle():\n    pass\n",
		"z.py": "def handle():\n    pass\n",
	})

	got, _, err := q.FindImplementation(Position{File: "x.py", Line: 1, Character: 5}, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "y.py", got[0].Location.File)
	assert.Equal(t, "z.py", got[1].Location.File)

	got, _, err = q.FindImplementation(Position{File: "x.py", Line: 1, Character: 5}, "", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestIdentifierAt(t *testing.T) {
	t.Parallel()
	src := []byte("foo(bar_1) $x")
	tests := []struct {
		offset int
		want   string
	}{
		{0, "foo"},
		{2, "foo"},
		{3, "foo"},
		{4, "bar_1"},
		{9, "bar_1"},
		{10, ""},
		{11, "$x"},
		{13, "$x"},
		{14, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, identifierAt(src, tt.offset), "offset %d", tt.offset)
	}
}
