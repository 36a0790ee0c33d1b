package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	base := NewStd("login failed")
	err := New(base).
		Component("session").
		Category(CategoryAuth).
		Context("identifier", "jane").
		Build()

	require.NotNil(t, err, "expected built error")
	assert.Equal(t, "login failed", err.Error(), "expected wrapped message")
	assert.Equal(t, "session", err.GetComponent(), "expected component")
	assert.Equal(t, string(CategoryAuth), err.GetCategory(), "expected category")
	assert.Equal(t, "jane", err.GetContext()["identifier"], "expected context value")
	assert.False(t, err.Timestamp.IsZero(), "expected timestamp set")
}

func TestErrorBuilderDefaults(t *testing.T) {
	err := Newf("poll cycle %d failed", 3).Build()

	assert.Equal(t, CategoryGeneric, err.Category, "expected generic category default")
	assert.Equal(t, ComponentUnknown, err.GetComponent(), "expected unknown component default")
	assert.Equal(t, "poll cycle 3 failed", err.Error(), "expected formatted message")
}

func TestUnwrap(t *testing.T) {
	base := NewStd("connection refused")
	wrapped := New(fmt.Errorf("fetching devices: %w", base)).
		Category(CategoryNetwork).
		Build()

	assert.ErrorIs(t, wrapped, base, "expected wrapped error to match base")
}

func TestIsMatchesCategory(t *testing.T) {
	a := Newf("token expired").Category(CategoryAuth).Build()
	b := Newf("bad credentials").Category(CategoryAuth).Build()
	c := Newf("disk full").Category(CategoryStorage).Build()

	assert.ErrorIs(t, a, b, "expected same-category errors to match")
	assert.NotErrorIs(t, a, c, "expected different categories not to match")
}

func TestIsCategoryHelpers(t *testing.T) {
	authErr := Newf("session expired").Category(CategoryAuth).Build()
	notFoundErr := Newf("no such device").Category(CategoryNotFound).Build()

	assert.True(t, IsAuth(authErr), "expected IsAuth true")
	assert.False(t, IsAuth(notFoundErr), "expected IsAuth false")
	assert.True(t, IsNotFound(notFoundErr), "expected IsNotFound true")
	assert.True(t, IsCategory(fmt.Errorf("wrapped: %w", authErr), CategoryAuth),
		"expected category check through wrapping")
	assert.False(t, IsCategory(NewStd("plain"), CategoryAuth), "expected plain error no category")
}

func TestMessage(t *testing.T) {
	assert.Empty(t, Message(nil), "expected empty message for nil")
	assert.Equal(t, "plain", Message(NewStd("plain")), "expected plain message")

	enhanced := Newf("refresh rejected").Category(CategoryAuth).Build()
	assert.Equal(t, "refresh rejected", Message(enhanced), "expected enhanced message")
}

func TestGetContextIsCopy(t *testing.T) {
	err := Newf("boom").Context("k", "v").Build()

	ctx := err.GetContext()
	ctx["k"] = "mutated"

	assert.Equal(t, "v", err.GetContext()["k"], "expected original context untouched")
}
