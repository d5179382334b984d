package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonical(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "江西", expected: "江西"},
		{name: "surrounding spaces", input: "  南昌 ", expected: "南昌"},
		{name: "full width digits", input: "１２３", expected: "123"},
		{name: "inner space and bom", input: "\ufeff北 京", expected: "北京"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Canonical(tc.input))
		})
	}
}

func TestRomanize(t *testing.T) {
	assert.Equal(t, "jiangxi", Romanize("江西"))
	assert.Equal(t, "jiangxi", Romanize("Jiangxi"))
	assert.Equal(t, "jiangxi", Romanize("Jiāng Xī"))
	assert.Equal(t, Romanize("北京"), Romanize("Bei Jing"))
}
