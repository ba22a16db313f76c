package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	ee := Newf("boom").Build()
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuilderMetadata(t *testing.T) {
	ee := Newf("read failed").
		Component("frame-source").
		Category(CategoryCamera).
		Context("device", "/dev/video0").
		Build()

	assert.Equal(t, "frame-source", ee.Component)
	assert.Equal(t, CategoryCamera, ee.Category)
	assert.Equal(t, "/dev/video0", ee.Context["device"])
	assert.Equal(t, "read failed", ee.Error())
}

func TestUnwrapPreservesSentinels(t *testing.T) {
	sentinel := NewStd("device gone")
	wrapped := New(fmt.Errorf("reading frame: %w", sentinel)).
		Category(CategoryCamera).
		Build()

	assert.True(t, Is(wrapped, sentinel))
}

func TestIsMatchesByCategory(t *testing.T) {
	a := Newf("a").Category(CategoryDatabase).Build()
	b := Newf("b").Category(CategoryDatabase).Build()
	c := Newf("c").Category(CategoryCamera).Build()

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}

func TestCategoryOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Newf("inner").Category(CategoryTimeout).Build())
	require.Equal(t, CategoryTimeout, CategoryOf(wrapped))
	assert.Equal(t, CategoryGeneric, CategoryOf(NewStd("plain")))
}
