package configspace

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# random forest
min_samples_leaf integer [1, 20] [1]
max_features real [0.1, 0.9] [0.5] log
criterion categorical {gini, entropy} [gini]

strategy ordinal {mean, median, most_frequent} [mean]
degree | kernel in {poly}
{criterion=gini, strategy=mean}
`

func TestRead(t *testing.T) {
	s, err := Read(strings.NewReader(sample))
	require.NoError(t, err)

	want := []Hyperparameter{
		{Name: "min_samples_leaf", Kind: Integer, Lower: 1, Upper: 20, Default: "1"},
		{Name: "max_features", Kind: Real, Lower: 0.1, Upper: 0.9, Default: "0.5", Log: true},
		{Name: "criterion", Kind: Categorical, Choices: []string{"gini", "entropy"}, Default: "gini"},
		{Name: "strategy", Kind: Ordinal, Choices: []string{"mean", "median", "most_frequent"}, Default: "mean"},
	}
	if diff := cmp.Diff(want, s.Hyperparameters()); diff != "" {
		t.Errorf("Hyperparameters() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"min_samples_leaf", "max_features", "criterion", "strategy"}, s.Names())
	assert.Equal(t, []string{"degree | kernel in {poly}"}, s.Conditions)
	assert.Equal(t, []string{"{criterion=gini, strategy=mean}"}, s.Forbidden)

	h, ok := s.Get("criterion")
	require.True(t, ok)
	assert.Equal(t, Categorical, h.Kind)
}

func TestRead_Errors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"unknown type", "a float [0, 1] [0]", "line 1"},
		{"missing default", "a integer [0, 1]", "default"},
		{"single bound", "a real [0] [0]", "two bounds"},
		{"second line", "a integer [0, 1] [0]\nb", "line 2"},
		{"bad bound", "a real [zero, 1] [0]", "lower bound"},
		{"inverted bounds", "a real [2, 1] [1]", "above upper"},
		{"unterminated choices", "a categorical {x, y [x]", "choices"},
		{"log on categorical", "a categorical {x} [x] log", "log scale"},
		{"duplicate", "a integer [0, 1] [0]\na integer [0, 1] [0]", "duplicate"},
		{"trailing junk", "a integer [0, 1] [0] extra", "unexpected"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tc.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestWriteRead(t *testing.T) {
	s, err := Read(strings.NewReader(sample))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s))
	assert.Equal(t, `min_samples_leaf integer [1, 20] [1]
max_features real [0.1, 0.9] [0.5] log
criterion categorical {gini, entropy} [gini]
strategy ordinal {mean, median, most_frequent} [mean]
degree | kernel in {poly}
{criterion=gini, strategy=mean}
`, buf.String())

	again, err := Read(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(s.Hyperparameters(), again.Hyperparameters()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReversed(t *testing.T) {
	s := NewSpace()
	require.NoError(t, s.Add(Hyperparameter{Name: "a", Kind: Categorical, Choices: []string{"x"}, Default: "x"}))
	require.NoError(t, s.Add(Hyperparameter{Name: "b", Kind: Integer, Lower: 0, Upper: 3, Default: "0"}))

	r := s.Reversed()
	assert.Equal(t, []string{"b", "a"}, r.Names())
	assert.Equal(t, []string{"a", "b"}, s.Names())
}
