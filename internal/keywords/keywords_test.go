package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

func TestMatches_ShortTokensNeedBoundaries(t *testing.T) {
	tests := []struct {
		text  string
		token string
		want  bool
	}{
		{"your-tel", "tel", true},
		{"hotel_name", "tel", false},
		{"TEL", "tel", true},
		{"sei_kana", "sei", true},
		{"seisan", "sei", false},
		{"namei", "mei", false},
		{"zip1", "zip", true},
		{"お電話番号", "電話", true},
		{"Contact Us Today", "contact us", true},
		{"email_address", "mail", true},
		{"", "mail", false},
		{"mail", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text+"/"+tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.text, tt.token))
		})
	}
}

func TestCountDistinct_IgnoresRepeatsAndCase(t *testing.T) {
	hits := CountDistinct("Contact form / CONTACT page", []string{"contact", "Contact", "form", "booking"})
	assert.Equal(t, []string{"contact", "form"}, hits)
}

func TestCleanLabel(t *testing.T) {
	assert.Equal(t, "名", CleanLabel(" 名 ※必須 "))
	assert.Equal(t, "お名前", CleanLabel("お名前：*"))
	assert.Equal(t, "姓", CleanLabel("【必須】姓"))
}

func TestDefault_IsFreshCopy(t *testing.T) {
	a := Default()
	b := Default()
	a.SuccessURL[0] = "mutated"
	assert.NotEqual(t, "mutated", b.SuccessURL[0])
}

func TestDefault_FieldRuleOrder(t *testing.T) {
	tax := Default()
	index := make(map[schemas.SemanticType]int)
	for i, r := range tax.Fields {
		index[r.Type] = i
	}
	require.Contains(t, index, schemas.TypeName)
	// Specialized name variants must be tested before the generic name rule,
	// and company/message must follow them.
	for _, st := range []schemas.SemanticType{schemas.TypeFurigana, schemas.TypeSei, schemas.TypeMei} {
		assert.Less(t, index[st], index[schemas.TypeName], st)
		assert.Less(t, index[st], index[schemas.TypeCompany], st)
		assert.Less(t, index[st], index[schemas.TypeMessage], st)
	}
	assert.Less(t, index[schemas.TypeEmailConfirm], index[schemas.TypeEmail])
	assert.Less(t, index[schemas.TypeDateThird], index[schemas.TypeDateFirst])
	assert.NotContains(t, index, schemas.TypeUnknown)
}

func TestLookupPrefecture(t *testing.T) {
	for _, in := range []string{"東京都", "東京", "tokyo", "Tokyo", "Tokyo-to", "13", "013"} {
		p, ok := LookupPrefecture(in)
		if assert.True(t, ok, in) {
			assert.Equal(t, 13, p.Code, in)
		}
	}
	p, ok := LookupPrefecture("Osaka-fu")
	assert.True(t, ok)
	assert.Equal(t, "大阪府", p.Name)

	for _, in := range []string{"", "48", "0", "Atlantis"} {
		_, ok := LookupPrefecture(in)
		assert.False(t, ok, in)
	}
	assert.Len(t, Prefectures, 47)
}

func TestLeadingPrefecture(t *testing.T) {
	p, ok := LeadingPrefecture("神奈川県横浜市西区1-2-3")
	assert.True(t, ok)
	assert.Equal(t, "神奈川県", p.Name)

	_, ok = LeadingPrefecture("横浜市西区")
	assert.False(t, ok)
}

func TestCountPrefectures(t *testing.T) {
	assert.Equal(t, 2, CountPrefectures([]string{"選択してください", "北海道", "青森県", "北海道"}))
}
