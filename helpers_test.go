package storefront

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eringen/storefront/content"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Summer Sale":        "summer-sale",
		"  Home  ":           "home",
		"landing_page 2024!": "landing_page-2024",
		"---":                "",
		"Ünïcode Page":       "n-code-page",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestNormalizeHandleIsValid(t *testing.T) {
	for _, in := range []string{"Summer Sale", "about_us", strings.Repeat("a", 300)} {
		h := NormalizeHandle(in)
		assert.True(t, content.ValidHandle(h), h)
	}
}

func TestBuildURL(t *testing.T) {
	assert.Equal(t, "https://shop.test", BuildURL("https://shop.test"))
	assert.Equal(t, "https://shop.test/pages/home", BuildURL("https://shop.test", "pages", "home"))
	assert.Equal(t, "https://shop.test/store/pages/home", BuildURL("https://shop.test/store/", "pages", "home"))
}
