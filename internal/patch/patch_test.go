package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modifyDiff = `--- a/hello.txt
+++ b/hello.txt
@@ -1,3 +1,3 @@
 line one
-line two
+line TWO
 line three
`

func TestApplyStrictModify(t *testing.T) {
	original := "line one\nline two\nline three\n"
	res := Apply("hello.txt", original, modifyDiff)
	require.Nil(t, res.Failure)
	assert.True(t, res.Applied)
	assert.False(t, res.Fuzzy)
	assert.Equal(t, "line one\nline TWO\nline three\n", res.Content)
}

func TestApplyEmptyDiffFails(t *testing.T) {
	res := Apply("hello.txt", "content\n", "")
	require.NotNil(t, res.Failure)
	assert.False(t, res.Applied)
	assert.Equal(t, "empty diff", res.Failure.Error)
}

func TestApplyNoHunksFails(t *testing.T) {
	diff := "--- a/x.txt\n+++ b/x.txt\n"
	res := Apply("x.txt", "content\n", diff)
	require.NotNil(t, res.Failure)
	assert.False(t, res.Applied)
}

func TestApplyCreateFromDevNull(t *testing.T) {
	diff := `--- /dev/null
+++ b/new.txt
@@ -0,0 +1,2 @@
+hello
+world
`
	res := Apply("new.txt", "", diff)
	require.Nil(t, res.Failure)
	assert.True(t, res.Applied)
	assert.True(t, res.IsCreate)
	assert.Equal(t, "hello\nworld\n", res.Content)
}

func TestApplyDeleteToDevNull(t *testing.T) {
	diff := `--- a/gone.txt
+++ /dev/null
@@ -1,1 +0,0 @@
-only line
`
	res := Apply("gone.txt", "only line\n", diff)
	require.Nil(t, res.Failure)
	assert.True(t, res.Applied)
	assert.True(t, res.IsDelete)
}

func TestApplyStrictFailsThenFuzzySucceeds(t *testing.T) {
	original := "  hello  \n"
	diff := `--- a/a.txt
+++ b/a.txt
@@ -1,1 +1,1 @@
-hello
+hi
`
	res := Apply("a.txt", original, diff)
	require.Nil(t, res.Failure)
	assert.True(t, res.Applied)
	assert.True(t, res.Fuzzy)
	assert.Equal(t, "hi\n", res.Content)
}

func TestApplyRefusesToBlankModifiedFile(t *testing.T) {
	original := "only line\n"
	diff := `--- a/a.txt
+++ b/a.txt
@@ -1,1 +0,0 @@
-only line
`
	res := Apply("a.txt", original, diff)
	require.NotNil(t, res.Failure)
	assert.False(t, res.Applied)
}

func TestApplyStripsFencedDiffBlock(t *testing.T) {
	fenced := "```diff\n" + modifyDiff + "```\n"
	original := "line one\nline two\nline three\n"
	res := Apply("hello.txt", original, fenced)
	require.Nil(t, res.Failure)
	assert.True(t, res.Applied)
}

func TestApplyMismatchedContextFails(t *testing.T) {
	original := "totally different content\n"
	res := Apply("hello.txt", original, modifyDiff)
	require.NotNil(t, res.Failure)
	assert.False(t, res.Applied)
}

func TestParseRejectsMalformedHunkHeader(t *testing.T) {
	diff := "--- a/x.txt\n+++ b/x.txt\n@@ bogus @@\n-x\n+y\n"
	_, err := Parse(diff)
	assert.Error(t, err)
}

func TestComputeDiffBasic(t *testing.T) {
	fd := ComputeDiff("a.txt", "a.txt", "one\ntwo\n", "one\nthree\n")
	assert.NotEmpty(t, fd.Hunks)
}

func TestRenderRoundTripsThroughApply(t *testing.T) {
	original := "one\ntwo\nthree\n"
	updated := "one\nTWO\nthree\n"

	fd := ComputeDiff("a.txt", "a.txt", original, updated)
	diffText := Render(fd)

	res := Apply("a.txt", original, diffText)
	require.Nil(t, res.Failure)
	assert.True(t, res.Applied)
	assert.Equal(t, updated, res.Content)
}

func TestRenderRoundTripsCreateFromEmpty(t *testing.T) {
	updated := "hello\nworld\n"

	fd := ComputeDiff("new.txt", "new.txt", "", updated)
	diffText := Render(fd)

	res := Apply("new.txt", "", diffText)
	require.Nil(t, res.Failure)
	assert.True(t, res.Applied)
	assert.True(t, res.IsCreate)
	assert.Equal(t, updated, res.Content)
}
