package security

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/standardbeagle/docparse/internal/errors"
)

func validPDF(body string) []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	b.WriteString(body)
	b.WriteString("\n%%EOF")
	return b.Bytes()
}

func TestValidatePassesCleanPDF(t *testing.T) {
	v := NewFileValidator(1024, 512)
	data := validPDF("Nutrition Facts Calories 250")

	info, err := v.Validate(data, "label.pdf", false)
	require.Nil(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int64(len(data)), info.Size)
	assert.Len(t, info.Hash, 64)
}

func TestValidateRejectsEmpty(t *testing.T) {
	v := NewFileValidator(1024, 512)
	_, err := v.Validate(nil, "x.pdf", false)
	require.NotNil(t, err)
	assert.Equal(t, docerrors.KindEmpty, err.Kind)
}

func TestValidateRejectsOversizeSync(t *testing.T) {
	v := NewFileValidator(1024, 10)
	data := validPDF(strings.Repeat("a", 50))
	_, err := v.Validate(data, "x.pdf", true)
	require.NotNil(t, err)
	assert.Equal(t, docerrors.KindTooLarge, err.Kind)
	assert.Contains(t, err.Message, "async")
}

func TestValidateRejectsWrongExtension(t *testing.T) {
	v := NewFileValidator(1024, 512)
	data := validPDF("x")
	_, err := v.Validate(data, "x.txt", false)
	require.NotNil(t, err)
	assert.Equal(t, docerrors.KindWrongExtension, err.Kind)
}

func TestValidateRejectsMissingMagic(t *testing.T) {
	v := NewFileValidator(1024, 512)
	_, err := v.Validate([]byte("not a pdf at all"), "x.pdf", false)
	require.NotNil(t, err)
	assert.Equal(t, docerrors.KindNotPDF, err.Kind)
}

func TestValidateToleratesMissingEOF(t *testing.T) {
	v := NewFileValidator(1024, 512)
	data := []byte("%PDF-1.4\nNutrition Facts")
	info, err := v.Validate(data, "x.pdf", false)
	require.Nil(t, err)
	require.NotNil(t, info)
}

func TestValidateRejectsJavaScript(t *testing.T) {
	v := NewFileValidator(1024, 512)
	data := validPDF("/JS (app.alert(1))")
	_, err := v.Validate(data, "x.pdf", false)
	require.NotNil(t, err)
	assert.Equal(t, docerrors.KindSuspectedMalicious, err.Kind)
}

func TestValidateRejectsLaunchAction(t *testing.T) {
	v := NewFileValidator(1024, 512)
	data := validPDF("/Launch /F (cmd.exe)")
	_, err := v.Validate(data, "x.pdf", false)
	require.NotNil(t, err)
	assert.Equal(t, docerrors.KindSuspectedMalicious, err.Kind)
}

func TestSanitizeFilename(t *testing.T) {
	name, err := SanitizeFilename("../../etc/passwd.pdf", "deadbeef")
	require.Nil(t, err)
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, "..")
}

func TestSanitizeFilenameEmptyFallsBackToHash(t *testing.T) {
	name, err := SanitizeFilename("...", "0123456789abcdef0123456789abcdef")
	require.Nil(t, err)
	assert.Equal(t, "0123456789abcdef.pdf", name)
}

func TestSanitizeIsIdempotent(t *testing.T) {
	first, err := SanitizeFilename("weird\x00name*.pdf", "hash")
	require.Nil(t, err)
	second, err := SanitizeFilename(first, "hash")
	require.Nil(t, err)
	assert.Equal(t, first, second)
}
