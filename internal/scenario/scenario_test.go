package scenario

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_StepKinds(t *testing.T) {
	sc, err := Parse(strings.NewReader(`
name: all kinds
steps:
  - begin:
  - end: 2
  - op: {ref: x, fail: true, label: save}
  - settle: x
  - push: {ref: p, category: info, text: hi, sticky: false, expiry: 3s}
  - dismiss: p
  - clear:
  - advance: 1500ms
  - expect: {count: 0, busy: false, present: [p]}
`))
	require.NoError(t, err)
	require.Len(t, sc.Steps, 9)

	assert.Equal(t, "all kinds", sc.Name)

	assert.Equal(t, KindBegin, sc.Steps[0].Kind)
	assert.Equal(t, 1, sc.Steps[0].Times)
	assert.Equal(t, 2, sc.Steps[1].Times)

	require.NotNil(t, sc.Steps[2].Op)
	assert.Equal(t, OpStep{Ref: "x", Fail: true, Label: "save"}, *sc.Steps[2].Op)
	assert.Equal(t, "x", sc.Steps[3].Ref)

	push := sc.Steps[4].Push
	require.NotNil(t, push)
	require.NotNil(t, push.Sticky)
	assert.False(t, *push.Sticky)
	assert.Equal(t, 3*time.Second, push.Expiry)

	assert.Equal(t, KindClear, sc.Steps[6].Kind)
	assert.Equal(t, 1500*time.Millisecond, sc.Steps[7].By)

	exp := sc.Steps[8].Expect
	require.NotNil(t, exp)
	assert.Equal(t, 0, *exp.Count)
	assert.False(t, *exp.Busy)
	assert.Nil(t, exp.Items)
	assert.Equal(t, []string{"p"}, exp.Present)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty document", "", "no steps"},
		{"no steps", "name: x\nsteps: []\n", "no steps"},
		{"unknown step", "steps:\n  - jump: 1\n", `unknown step "jump"`},
		{"two keys", "steps:\n  - begin: 1\n    end: 1\n", "exactly one key"},
		{"dismiss without ref", "steps:\n  - dismiss: \"\"\n", "requires a ref"},
		{"push without category", "steps:\n  - push: {text: hi}\n", "requires a category"},
		{"bad duration", "steps:\n  - advance: soon\n", "advance"},
		{"zero advance", "steps:\n  - advance: 0s\n", "positive duration"},
		{"zero begin", "steps:\n  - begin: 0\n", "at least once"},
		{"unknown top-level field", "steps:\n  - clear:\nextra: 1\n", "extra"},
		{"misspelled expect field", "steps:\n  - begin: 2\n  - expect: {cuont: 0, bussy: false}\n", "field cuont not found"},
		{"misspelled push field", "steps:\n  - push: {category: info, text: hi, sticky_: false}\n", "field sticky_ not found"},
		{"misspelled op field", "steps:\n  - op: {lable: save}\n", "field lable not found"},
		{"empty expect", "steps:\n  - expect: {}\n", "no assertions"},
		{"null expect", "steps:\n  - expect:\n", "no assertions"},
		{"category without count", "steps:\n  - expect: {category: error}\n", "requires category_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_NamesDefaultToPath(t *testing.T) {
	sc, err := Load("testdata/failing.yml")
	require.NoError(t, err)
	assert.Equal(t, "wrong expectations", sc.Name)
	assert.Equal(t, "testdata/failing.yml", sc.Path)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load("testdata/does-not-exist.yaml")
	require.Error(t, err)
}

func TestDiscover(t *testing.T) {
	files, err := Discover("testdata/**/*.yaml", "testdata/save_failed.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"testdata/concurrent_failures.yaml",
		"testdata/nested/expiry.yaml",
		"testdata/nested/ops.yaml",
		"testdata/save_failed.yaml",
	}, files)
}

func TestDiscover_StdinPassthrough(t *testing.T) {
	files, err := Discover("-")
	require.NoError(t, err)
	assert.Equal(t, []string{"-"}, files)
}

func TestDiscover_NoMatches(t *testing.T) {
	files, err := Discover("testdata/*.json")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiscover_BadPattern(t *testing.T) {
	_, err := Discover("testdata/[")
	require.Error(t, err)
}
