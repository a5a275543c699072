package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

var jst = time.FixedZone("JST", 9*60*60)

func fixedClock(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 10, 30, 0, 0, jst) }
}

func sender() schemas.SenderProfile {
	return schemas.SenderProfile{
		Name: "山田 太郎", Furigana: "ヤマダ タロウ", Email: "taro@example.jp", Phone: "03-1234-5678",
		PostalCode: "100-0001", Address: "東京都千代田区千代田1-1", ConsultationLabel: "サービスについて",
		PrivacyConsent: true,
	}.Normalized()
}

func TestAddBusinessDays(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		n    int
		want string
	}{
		{"friday plus one skips the weekend", time.Date(2026, 10, 16, 9, 0, 0, 0, jst), 1, "2026-10-19"},
		{"saturday start", time.Date(2026, 10, 17, 9, 0, 0, 0, jst), 1, "2026-10-19"},
		{"monday plus seven", time.Date(2026, 10, 19, 9, 0, 0, 0, jst), 7, "2026-10-28"},
		{"friday plus nine", time.Date(2026, 10, 16, 9, 0, 0, 0, jst), 9, "2026-10-29"},
		{"zero is identity", time.Date(2026, 10, 17, 9, 0, 0, 0, jst), 0, "2026-10-17"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddBusinessDays(tt.from, tt.n)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
			assert.Equal(t, tt.from.Hour(), got.Hour())
		})
	}
}

func TestResolve_FuriganaHalves(t *testing.T) {
	r := New(Options{})
	s := sender()

	assert.Equal(t, Text("ヤマダ"), r.Resolve(schemas.TypeFurigana, schemas.TargetRecord{}, s, Hint{NamePart: schemas.TypeSei}))
	assert.Equal(t, Text("タロウ"), r.Resolve(schemas.TypeFurigana, schemas.TargetRecord{}, s, Hint{NamePart: schemas.TypeMei}))

	s.LastNameKana, s.FirstNameKana = "", ""
	assert.Equal(t, Text("ヤマダ タロウ"), r.Resolve(schemas.TypeFurigana, schemas.TargetRecord{}, s, Hint{NamePart: schemas.TypeSei}),
		"without split readings the full reading is used")
}

func TestResolve_Identity(t *testing.T) {
	r := New(Options{DefaultMessage: "default body"})
	target := schemas.TargetRecord{CompanyName: "株式会社テスト", URL: "https://example.jp", Message: "line1\r\nline2"}
	s := sender()

	tests := []struct {
		typ  schemas.SemanticType
		want Value
	}{
		{schemas.TypeCompany, Text("株式会社テスト")},
		{schemas.TypeMessage, Text("line1\nline2")},
		{schemas.TypeName, Text("山田 太郎")},
		{schemas.TypeFurigana, Text("ヤマダ タロウ")},
		{schemas.TypeSei, Text("山田")},
		{schemas.TypeMei, Text("太郎")},
		{schemas.TypeEmail, Text("taro@example.jp")},
		{schemas.TypeEmailConfirm, Text("taro@example.jp")},
		{schemas.TypePhone, Text("03-1234-5678")},
		{schemas.TypeZip, Text("100-0001")},
		{schemas.TypeAddress, Text("東京都千代田区千代田1-1")},
		{schemas.TypePrefecture, Text("東京都")},
		{schemas.TypeConsultationType, Text("サービスについて")},
		{schemas.TypePrivacyPolicy, Bool(true)},
		{schemas.TypeCheckboxOther, None},
		{schemas.TypeUnknown, None},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.typ, target, s, Hint{}))
		})
	}
}

func TestResolve_MessageFallsBackToDefault(t *testing.T) {
	r := New(Options{DefaultMessage: "default body"})
	assert.Equal(t, Text("default body"), r.Resolve(schemas.TypeMessage, schemas.TargetRecord{Message: "  "}, sender(), Hint{}))
}

func TestResolve_ConsentPolicies(t *testing.T) {
	s := sender()
	s.PrivacyConsent = false
	r := New(Options{})
	assert.True(t, r.Resolve(schemas.TypePrivacyPolicy, schemas.TargetRecord{}, s, Hint{}).Skip(), "consent is never forced")

	assert.True(t, New(Options{AutoCheckOther: true}).Resolve(schemas.TypeCheckboxOther, schemas.TargetRecord{}, s, Hint{}).Bool)

	got := r.Resolve(schemas.TypeCheckboxOther, schemas.TargetRecord{}, s, Hint{Newsletter: true})
	assert.Equal(t, Bool(false), got, "newsletter boxes are explicitly unchecked without consent")
}

func TestResolve_MissingSenderFieldsAreSkipped(t *testing.T) {
	r := New(Options{})
	assert.True(t, r.Resolve(schemas.TypePhone, schemas.TargetRecord{}, schemas.SenderProfile{}, Hint{}).Skip())
	assert.True(t, r.Resolve(schemas.TypePrefecture, schemas.TargetRecord{}, schemas.SenderProfile{Address: "千代田区"}, Hint{}).Skip())
}

func TestResolve_Dates(t *testing.T) {
	r := New(Options{Now: fixedClock(2026, 10, 16)}) // Friday
	target := schemas.TargetRecord{}

	assert.Equal(t, Text("2026年10月27日（火） 13:00"), r.Resolve(schemas.TypeDateFirst, target, sender(), Hint{}))
	assert.Equal(t, Text("2026年10月28日（水） 13:00"), r.Resolve(schemas.TypeDateSecond, target, sender(), Hint{}))
	assert.Equal(t, Text("2026年10月29日（木） 13:00"), r.Resolve(schemas.TypeDateThird, target, sender(), Hint{}))

	assert.Equal(t, Text("2026-10-27"), r.Resolve(schemas.TypeDateFirst, target, sender(), Hint{InputType: "date"}))
	assert.Equal(t, Text("2026-10-28T13:00"), r.Resolve(schemas.TypeDateSecond, target, sender(), Hint{InputType: "datetime-local"}))
	assert.Equal(t, Text("13:00"), r.Resolve(schemas.TypeDateThird, target, sender(), Hint{InputType: "time"}))

	custom := New(Options{Now: fixedClock(2026, 10, 16), DateTime: "10:00"})
	assert.Equal(t, Text("2026-10-27T10:00"), custom.Resolve(schemas.TypeDateFirst, target, sender(), Hint{InputType: "datetime-local"}))
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "abc", Text("abc").String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "", None.String())
	assert.True(t, Value{}.Skip())
}
