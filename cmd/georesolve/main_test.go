package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/geo-recog/app/models"
	"github.com/geo-recog/app/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLines(t *testing.T) {
	texts, err := readLines(strings.NewReader("南昌市发布通知\n\n  \r\n北京市海淀区  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"南昌市发布通知", "北京市海淀区"}, texts)
}

func TestWriteItems(t *testing.T) {
	city := "南昌"
	items := []services.BatchItem{
		{Index: 0, Content: "a", Result: &models.GeoResolution{City: &city}},
		{Index: 1, Content: "b", Error: "no endpoint", Kind: "endpoint_unavailable"},
	}

	var buf bytes.Buffer
	failed, err := writeItems(&buf, items)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"city":"南昌"`)

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "endpoint_unavailable", second["kind"])
	assert.Nil(t, second["result"])
}
