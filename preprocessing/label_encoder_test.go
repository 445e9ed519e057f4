package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricepipe/pricepipe/pkg/errors"
)

func TestLabelEncoder_FitTransform(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		classes []string
		codes   []int
	}{
		{
			name:    "lexicographic order",
			input:   []string{"suv", "sedan", "suv", "coupe"},
			classes: []string{"coupe", "sedan", "suv"},
			codes:   []int{2, 1, 2, 0},
		},
		{
			name:    "single class",
			input:   []string{"a", "a", "a"},
			classes: []string{"a"},
			codes:   []int{0, 0, 0},
		},
		{
			name:    "empty string is a category",
			input:   []string{"", "x"},
			classes: []string{"", "x"},
			codes:   []int{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := NewLabelEncoder()
			codes, err := enc.FitTransform(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.classes, enc.Classes)
			assert.Equal(t, tt.codes, codes)
			assert.Equal(t, len(tt.classes), enc.NClasses())
		})
	}
}

func TestLabelEncoder_Bijection(t *testing.T) {
	input := []string{"van", "suv", "truck", "suv", "sedan", "van", "coupe"}
	enc := NewLabelEncoder()
	codes, err := enc.FitTransform(input)
	require.NoError(t, err)

	k := enc.NClasses()
	require.Equal(t, 5, k)

	// 同じカテゴリは同じコード、異なるカテゴリは異なるコード
	byValue := map[string]int{}
	byCode := map[int]string{}
	for i, v := range input {
		c := codes[i]
		assert.GreaterOrEqual(t, c, 0)
		assert.Less(t, c, k)
		if prev, ok := byValue[v]; ok {
			assert.Equal(t, prev, c, "value %q", v)
		}
		if prev, ok := byCode[c]; ok {
			assert.Equal(t, prev, v, "code %d", c)
		}
		byValue[v] = c
		byCode[c] = v
	}
	assert.Len(t, byCode, k)

	back, err := enc.InverseTransform(codes)
	require.NoError(t, err)
	assert.Equal(t, input, back)
}

func TestLabelEncoder_Deterministic(t *testing.T) {
	a := NewLabelEncoder()
	b := NewLabelEncoder()
	ca, err := a.FitTransform([]string{"b", "c", "a"})
	require.NoError(t, err)
	cb, err := b.FitTransform([]string{"a", "c", "b"})
	require.NoError(t, err)

	assert.Equal(t, a.Classes, b.Classes)
	assert.Equal(t, []int{1, 2, 0}, ca)
	assert.Equal(t, []int{0, 2, 1}, cb)
}

func TestLabelEncoder_Errors(t *testing.T) {
	enc := NewLabelEncoder()

	_, err := enc.Transform([]string{"a"})
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	assert.Error(t, enc.Fit(nil))

	require.NoError(t, enc.Fit([]string{"a", "b"}))
	_, err = enc.Transform([]string{"c"})
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))

	_, err = enc.InverseTransform([]int{2})
	assert.Error(t, err)
}
