package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name                string
		page, size          int
		wantPage, wantLimit int
		wantOffset          int
	}{
		{name: "defaults", page: 0, size: 0, wantPage: 1, wantLimit: DefaultPageSize, wantOffset: 0},
		{name: "third page", page: 3, size: 10, wantPage: 3, wantLimit: 10, wantOffset: 20},
		{name: "capped", page: 1, size: 1000, wantPage: 1, wantLimit: MaxPageSize, wantOffset: 0},
	}
	for _, tt := range tests {
		p, l, o := Calculate(tt.page, tt.size)
		assert.Equal(t, tt.wantPage, p, tt.name)
		assert.Equal(t, tt.wantLimit, l, tt.name)
		assert.Equal(t, tt.wantOffset, o, tt.name)
	}
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 5, ParseIntDefault("", 5))
	assert.Equal(t, 5, ParseIntDefault("x", 5))
	assert.Equal(t, 7, ParseIntDefault("7", 5))
}

func TestNewPage(t *testing.T) {
	p := NewPage[int](nil, 2, 20, 41)
	assert.Equal(t, []int{}, p.Items)
	assert.EqualValues(t, 3, p.Pages)

	empty := NewPage([]string{}, 1, 20, 0)
	assert.Zero(t, empty.Pages)
}
