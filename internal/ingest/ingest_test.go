package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

const sample = "会社名,URL,お問い合わせURL\n" +
	"テスト株式会社,https://test.example.jp,https://test.example.jp/contact\n" +
	"山田商事,https://yamada.example.jp,\n"

func TestParse_UTF8WithHeader(t *testing.T) {
	b, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "utf-8", b.Encoding)
	assert.True(t, b.HasHeader)
	require.Len(t, b.Targets, 2)
	assert.Equal(t, schemas.TargetRecord{
		CompanyName: "テスト株式会社",
		URL:         "https://test.example.jp",
		ContactURL:  "https://test.example.jp/contact",
	}, b.Targets[0])
	assert.Empty(t, b.Targets[1].ContactURL)
}

func TestParse_StripsBOM(t *testing.T) {
	b, err := Parse(append([]byte("\xef\xbb\xbf"), sample...))
	require.NoError(t, err)
	assert.Equal(t, "utf-8-sig", b.Encoding)
	assert.True(t, b.HasHeader, "the BOM must not hide the header")
}

func TestParse_ShiftJIS(t *testing.T) {
	encoded, err := japanese.ShiftJIS.NewEncoder().String(sample)
	require.NoError(t, err)

	b, err := Parse([]byte(encoded))
	require.NoError(t, err)
	assert.Equal(t, "shift_jis", b.Encoding)
	require.Len(t, b.Targets, 2)
	assert.Equal(t, "テスト株式会社", b.Targets[0].CompanyName)
	assert.Equal(t, "山田商事", b.Targets[1].CompanyName)
}

func TestParse_EUCJP(t *testing.T) {
	encoded, err := japanese.EUCJP.NewEncoder().String(sample)
	require.NoError(t, err)

	b, err := Parse([]byte(encoded))
	require.NoError(t, err)
	assert.Equal(t, "euc-jp", b.Encoding)
	assert.Equal(t, "テスト株式会社", b.Targets[0].CompanyName)
}

func TestParse_HeaderlessIsPositional(t *testing.T) {
	data := "A社,https://a.example.jp,https://a.example.jp/form,個別メッセージ\n" +
		"B社, https://b.example.jp ,nan,None\n"
	b, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.False(t, b.HasHeader)
	require.Len(t, b.Targets, 2)
	assert.Equal(t, "個別メッセージ", b.Targets[0].Message)
	assert.Equal(t, schemas.TargetRecord{CompanyName: "B社", URL: "https://b.example.jp"}, b.Targets[1])
}

func TestParse_HeaderMapsColumnsByName(t *testing.T) {
	data := "url,memo,message,company_name\n" +
		"https://c.example.jp,ignored,こんにちは,C社\n"
	b, err := Parse([]byte(data))
	require.NoError(t, err)
	require.Len(t, b.Targets, 1)
	assert.Equal(t, schemas.TargetRecord{CompanyName: "C社", URL: "https://c.example.jp", Message: "こんにちは"}, b.Targets[0])
}

func TestParse_Deduplicates(t *testing.T) {
	data := "company,url\n" +
		"A社,https://a.example.jp\n" +
		"A社,https://a.example.jp\n" +
		"A社,https://a2.example.jp\n"
	b, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Len(t, b.Targets, 2)
	assert.Equal(t, 1, b.Duplicates)
}

func TestParse_SkipsBlankRows(t *testing.T) {
	b, err := Parse([]byte("company,url\n,\nA社,https://a.example.jp\nN/A,NA\n"))
	require.NoError(t, err)
	assert.Len(t, b.Targets, 1)
}

func TestParse_ValidationNamesRow(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"missing company", "company,url\nA社,https://a.example.jp\n,https://b.example.jp\n", "row 3: company is required"},
		{"missing url", "company,url\nA社,\n", "row 2: url is required"},
		{"bad scheme", "company,url\nA社,ftp://a.example.jp\n", "row 2: url"},
		{"no host", "A社,https://\n", "row 1: url"},
		{"bad contact url", "A社,https://a.example.jp,/contact\n", "row 1: contact_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse([]byte("company,url\n"))
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Parse(nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoadTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.csv")
	encoded, err := japanese.ShiftJIS.NewEncoder().String(sample)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(encoded), 0o600))

	targets, err := LoadTargets(path)
	require.NoError(t, err)
	assert.Len(t, targets, 2)

	_, err = LoadTargets(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
