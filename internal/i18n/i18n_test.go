// internal/i18n/i18n_test.go
package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedLocalesCoverSameKeys(t *testing.T) {
	catalogue := New("en")
	require.NoError(t, catalogue.LoadTranslations(embeddedLocales, "locales"))

	en := catalogue.translations["en"]
	nl := catalogue.translations["nl"]
	require.NotEmpty(t, en)
	for key := range en {
		assert.Contains(t, nl, key)
	}
}

func TestTranslateFallsBack(t *testing.T) {
	require.NoError(t, Initialize("en"))

	assert.Equal(t, "Aanvraag niet gevonden", T("nl", KeyApplicationNotFound))
	assert.Equal(t, "Application not found", T("fr", KeyApplicationNotFound))
	assert.Equal(t, "File exceeds the maximum size of 20 MB", T("en", KeyFileTooLarge, 20))
	assert.Equal(t, "no.such.key", T("en", "no.such.key"))
	assert.True(t, Supports("nl"))
	assert.False(t, Supports("fr"))
}
