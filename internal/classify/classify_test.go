package classify

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

func text(name, label string) schemas.FieldDescriptor {
	return schemas.FieldDescriptor{Tag: "input", InputType: "text", Name: name, Label: label}
}

func TestClassify(t *testing.T) {
	c := New(nil)
	prefOptions := []schemas.Option{{Text: "選択してください"}, {Text: "北海道"}, {Text: "青森県"}, {Text: "岩手県"}, {Text: "宮城県"}, {Text: "秋田県"}}

	tests := []struct {
		name string
		f    schemas.FieldDescriptor
		want schemas.SemanticType
	}{
		{"email type", schemas.FieldDescriptor{Tag: "input", InputType: "email", Name: "your-mail"}, schemas.TypeEmail},
		{"email typed confirmation", schemas.FieldDescriptor{Tag: "input", InputType: "email", Name: "email_confirm"}, schemas.TypeEmailConfirm},
		{"tel type", schemas.FieldDescriptor{Tag: "input", InputType: "tel", Name: "tel"}, schemas.TypePhone},
		{"tel typed postal code", schemas.FieldDescriptor{Tag: "input", InputType: "tel", Name: "zip1", Label: "郵便番号"}, schemas.TypeZip},
		{"textarea", schemas.FieldDescriptor{Tag: "textarea", Name: "anything"}, schemas.TypeMessage},
		{"prefecture select by keyword", schemas.FieldDescriptor{Tag: "select", InputType: "select-one", Label: "都道府県"}, schemas.TypePrefecture},
		{"prefecture select by options", schemas.FieldDescriptor{Tag: "select", InputType: "select-one", Name: "s1", Options: prefOptions}, schemas.TypePrefecture},
		{"other select", schemas.FieldDescriptor{Tag: "select", InputType: "select-one", Label: "お問い合わせ種別"}, schemas.TypeConsultationType},
		{"privacy checkbox", schemas.FieldDescriptor{Tag: "input", InputType: "checkbox", Label: "個人情報の取り扱いに同意する"}, schemas.TypePrivacyPolicy},
		{"other checkbox", schemas.FieldDescriptor{Tag: "input", InputType: "checkbox", Label: "資料を希望する"}, schemas.TypeCheckboxOther},
		{"radio", schemas.FieldDescriptor{Tag: "input", InputType: "radio", Name: "kind"}, schemas.TypeConsultationType},
		{"date type", schemas.FieldDescriptor{Tag: "input", InputType: "date", Name: "visit"}, schemas.TypeDateFirst},
		{"second date", schemas.FieldDescriptor{Tag: "input", InputType: "date", Label: "第2希望日"}, schemas.TypeDateSecond},

		{"furigana before name", text("name_kana", "お名前（フリガナ）"), schemas.TypeFurigana},
		{"surname by name attribute", text("last_name", "お名前"), schemas.TypeSei},
		{"surname by exact label", text("f1", "姓"), schemas.TypeSei},
		{"given name by exact label", text("f2", "名 ※必須"), schemas.TypeMei},
		{"given name token", text("first-name", ""), schemas.TypeMei},
		{"company before name", text("company_name", "会社名"), schemas.TypeCompany},
		{"generic name", text("your-name", "お名前"), schemas.TypeName},
		{"email by name", text("mail_address", ""), schemas.TypeEmail},
		{"email confirm by label", text("mail2", "メールアドレス（確認用）"), schemas.TypeEmailConfirm},
		{"phone by label", text("f3", "電話番号"), schemas.TypePhone},
		{"short token needs boundary", text("hotel", ""), schemas.TypeUnknown},
		{"zip", text("zipcode", ""), schemas.TypeZip},
		{"prefecture text", text("todofuken", ""), schemas.TypePrefecture},
		{"address", text("addr", "ご住所"), schemas.TypeAddress},
		{"subject line", text("subject", "件名"), schemas.TypeConsultationType},
		{"message on text input", text("inquiry_body", ""), schemas.TypeMessage},
		{"placeholder", schemas.FieldDescriptor{Tag: "input", InputType: "text", Placeholder: "例）山田太郎"}, schemas.TypeUnknown},
		{"class tokens", schemas.FieldDescriptor{Tag: "input", InputType: "text", Classes: []string{"form-control", "company"}}, schemas.TypeCompany},
		{"nothing to go on", text("f9", ""), schemas.TypeUnknown},
		{"contenteditable message", schemas.FieldDescriptor{Tag: "div", Editable: true, Label: "お問い合わせ内容"}, schemas.TypeMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.f))
		})
	}
}

func TestNamePart(t *testing.T) {
	c := New(nil)
	tests := []struct {
		name string
		f    schemas.FieldDescriptor
		want schemas.SemanticType
	}{
		{"surname reading by name attribute", text("sei_kana", ""), schemas.TypeSei},
		{"given name reading by name attribute", text("mei_kana", ""), schemas.TypeMei},
		{"surname reading by label", text("f1", "フリガナ（姓）"), schemas.TypeSei},
		{"given name reading by label", text("f2", "フリガナ（名）"), schemas.TypeMei},
		{"full reading", text("name_kana", "お名前（フリガナ）"), schemas.TypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, schemas.TypeFurigana, c.Classify(tt.f))
			assert.Equal(t, tt.want, c.NamePart(tt.f))
		})
	}
}

func TestIsNewsletter(t *testing.T) {
	c := New(nil)
	assert.True(t, c.IsNewsletter(schemas.FieldDescriptor{Tag: "input", InputType: "checkbox", Label: "メルマガを購読する"}))
	assert.False(t, c.IsNewsletter(schemas.FieldDescriptor{Tag: "input", InputType: "checkbox", Label: "同意する"}))
	assert.False(t, c.IsNewsletter(schemas.FieldDescriptor{Tag: "input", InputType: "text", Name: "newsletter"}))
}

func TestClassify_IsDeterministic(t *testing.T) {
	c := New(nil)
	f := text("name_sei", "お名前（姓）")
	first := c.Classify(f)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, c.Classify(f))
	}
	assert.Equal(t, first, New(nil).Classify(f))
}

// FuzzClassify checks that arbitrary descriptors always land in the closed
// enumeration and classify the same way twice.
func FuzzClassify(f *testing.F) {
	f.Add([]byte("seed"))
	c := New(nil)
	valid := make(map[schemas.SemanticType]bool)
	for _, s := range schemas.AllSemanticTypes {
		valid[s] = true
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		var desc schemas.FieldDescriptor
		if err := consumer.GenerateStruct(&desc); err != nil {
			return
		}
		got := c.Classify(desc)
		if !valid[got] {
			t.Fatalf("classification %q is outside the enumeration", got)
		}
		if again := c.Classify(desc); again != got {
			t.Fatalf("classification changed between calls: %q then %q", got, again)
		}
	})
}
