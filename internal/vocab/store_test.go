package vocab

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const provinceTable = `110000=北京
360000=江西
140000=山西
`

const fullTable = `110000=北京
360000=江西
360100=南昌
140000=山西
140100=太原
330100=杭州
`

func strPtr(s string) *string { return &s }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := LoadReaders(strings.NewReader(provinceTable), strings.NewReader(fullTable))
	require.NoError(t, err)
	return s
}

func TestLoadReaders_Vocabularies(t *testing.T) {
	s := newTestStore(t)

	assert.Equal(t, []string{"北京", "江西", "山西"}, s.Provinces())
	assert.Equal(t, []string{"北京", "江西", "南昌", "山西", "太原", "杭州"}, s.All())
	assert.Equal(t, 6, s.Size())

	e, ok := s.Entry("江西")
	require.True(t, ok)
	assert.Equal(t, LevelProvince, e.Level)
	assert.Equal(t, "360000", e.Code)

	e, ok = s.Entry("南昌")
	require.True(t, ok)
	assert.Equal(t, LevelCity, e.Level)
}

func TestLoadReaders_ProvinceOverridesOnCollision(t *testing.T) {
	s, err := LoadReaders(
		strings.NewReader("999999=江西\n"),
		strings.NewReader("360000=江西\n360100=南昌\n"),
	)
	require.NoError(t, err)

	code := s.CodeFor(nil, strPtr("江西"))
	require.NotNil(t, code)
	assert.Equal(t, "999999", *code)
}

func TestLoadReaders_Malformed(t *testing.T) {
	_, err := LoadReaders(strings.NewReader("110000=北京\nbroken line\n"), strings.NewReader(fullTable))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = LoadReaders(strings.NewReader(""), strings.NewReader(fullTable))
	require.Error(t, err)
}

func TestLoadReaders_SkipsBlankLinesAndTrims(t *testing.T) {
	s, err := LoadReaders(strings.NewReader("\n 110000 = 北京 \n\n"), strings.NewReader("110000=北京\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"北京"}, s.Provinces())
}

func TestCodeFor(t *testing.T) {
	s := newTestStore(t)

	testCases := []struct {
		name     string
		city     *string
		province *string
		expected *string
	}{
		{name: "city wins", city: strPtr("南昌"), province: strPtr("江西"), expected: strPtr("360100")},
		{name: "province fallback when city nil", city: nil, province: strPtr("江西"), expected: strPtr("360000")},
		{name: "province fallback when city unmapped", city: strPtr("南京"), province: strPtr("江西"), expected: strPtr("360000")},
		{name: "municipality", city: strPtr("北京"), province: strPtr("北京"), expected: strPtr("110000")},
		{name: "nothing resolves", city: strPtr("火星"), province: nil, expected: nil},
		{name: "both nil", expected: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, s.CodeFor(tc.city, tc.province))
		})
	}
}

func TestLoad_FromFiles(t *testing.T) {
	dir := t.TempDir()
	provincePath := filepath.Join(dir, "province.txt")
	fullPath := filepath.Join(dir, "all.txt")
	require.NoError(t, os.WriteFile(provincePath, []byte(provinceTable), 0o644))
	require.NoError(t, os.WriteFile(fullPath, []byte(fullTable), 0o644))

	s, err := Load(provincePath, fullPath)
	require.NoError(t, err)
	assert.Len(t, s.Provinces(), 3)

	_, err = Load(filepath.Join(dir, "missing.txt"), fullPath)
	assert.Error(t, err)
}
