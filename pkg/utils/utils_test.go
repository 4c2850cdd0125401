package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLanguageFromPath(t *testing.T) {
	cases := map[string]string{
		"src/App.jsx":     "javascript",
		"src/main.TS":     "typescript",
		"index.html":      "html",
		"styles/app.scss": "scss",
		"README.md":       "markdown",
		"main.rs":         "rust",
		"lib.rb":          "ruby",
		"Makefile":        "text",
		"data.bin":        "text",
	}
	for in, want := range cases {
		assert.Equal(t, want, LanguageFromPath(in), in)
	}
}

func TestCleanRelPath(t *testing.T) {
	assert.Equal(t, "src/App.tsx", CleanRelPath("/src//App.tsx"))
	assert.Equal(t, "src/App.tsx", CleanRelPath(`src\App.tsx`))
	assert.Equal(t, "a/b", CleanRelPath("./a/./b"))
	assert.Equal(t, "", CleanRelPath("../etc/passwd"))
	assert.Equal(t, "", CleanRelPath("src/../../x"))
	assert.Equal(t, "", CleanRelPath("  "))
}

func TestContentChecksum(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentChecksum(""))
	assert.NotEqual(t, ContentChecksum("a"), ContentChecksum("b"))
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, "x := 1", StripCodeFence("```\nx := 1\n```\n"))
	assert.Equal(t, "plain", StripCodeFence("  plain \n"))
	assert.Equal(t, "", StripCodeFence("```"))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "my-todo-app", Slug("My Todo App!"))
	assert.Equal(t, "v2-dashboard", Slug("  v2 -- Dashboard "))
	assert.Equal(t, "", Slug("!!!"))
}
