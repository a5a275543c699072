package inject

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser/humanoid"
	"github.com/xkilldash9x/formpilot/internal/browser/scripts"
	"github.com/xkilldash9x/formpilot/internal/classify"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/keywords"
	"github.com/xkilldash9x/formpilot/internal/mocks"
	"github.com/xkilldash9x/formpilot/internal/resolve"
)

func element(ref int, tag, typ, name, label string) *mocks.FakeElement {
	return &mocks.FakeElement{
		ElementInfo: schemas.ElementInfo{
			Ref: mocks.Ref(ref), Order: ref, Tag: tag, Type: typ, Name: name, Label: label, Visible: true,
			Box: schemas.Box{X: 10, Y: float64(40 * ref), Width: 200, Height: 30},
		},
		SelectedIndex: -1,
	}
}

func radio(ref int, name, label, value string) *mocks.FakeElement {
	el := element(ref, "input", "radio", name, label)
	el.Options = []schemas.Option{{Text: label, Value: value}}
	return el
}

func field(el *mocks.FakeElement) schemas.FieldDescriptor {
	return schemas.FieldFromElement(el.ElementInfo)
}

// setup returns a page holding els plus an injector with a disabled humanoid.
func setup(t *testing.T, els ...*mocks.FakeElement) (*mocks.FakePage, *Injector) {
	t.Helper()
	page := mocks.NewFakePageWithDoc(&mocks.FakeDocument{URL: "https://example.jp/contact", Elements: els})
	cfg := config.NewDefaultConfig().Browser().Humanoid
	cfg.Enabled = false
	logger := zaptest.NewLogger(t)
	h := humanoid.New(cfg, logger, page)
	return page, New(page, h, keywords.Default(), Options{}, logger)
}

func TestInject_TextDirect(t *testing.T) {
	el := element(1, "input", "text", "name", "お名前")
	page, in := setup(t, el)

	res := in.Inject(context.Background(), field(el), schemas.TypeName, resolve.Text("山田 太郎"))

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Method)
	assert.Equal(t, "山田 太郎", el.Value)
	assert.Equal(t, "山田 太郎", res.Value)
	assert.NoError(t, res.Err)
	assert.Equal(t, 0, page.CalledTimes("driverSetValue"))
}

func TestInject_FallsBackToKeystrokes(t *testing.T) {
	el := element(1, "input", "email", "email", "メール")
	el.IgnoreScriptWrites = true
	page, in := setup(t, el)
	in.opts = Options{KeyDelayMin: 50 * time.Millisecond, KeyDelayMax: 150 * time.Millisecond}

	res := in.Inject(context.Background(), field(el), schemas.TypeEmail, resolve.Text("a@b.jp"))

	require.True(t, res.Success)
	assert.Equal(t, 3, res.Method)
	assert.Equal(t, "a@b.jp", el.Value)
	assert.Equal(t, len("a@b.jp"), page.CalledTimes("sendKeys"))
	assert.GreaterOrEqual(t, page.Slept(), 6*50*time.Millisecond)
}

func TestInject_PointerOnlyTextUsesKeyboard(t *testing.T) {
	el := element(2, "input", "text", "company", "会社名")
	el.PointerOnly = true
	el.Value = "stale"
	page, in := setup(t, el)

	res := in.Inject(context.Background(), field(el), schemas.TypeCompany, resolve.Text("株式会社テスト"))

	require.True(t, res.Success, "err: %v", res.Err)
	assert.Equal(t, 5, res.Method)
	assert.Equal(t, "株式会社テスト", el.Value)
	assert.Contains(t, page.Calls(), "key:a")
	assert.Contains(t, page.Calls(), "key:Delete")
}

func TestInject_FailureIsVerifiedNotAssumed(t *testing.T) {
	el := element(1, "input", "tel", "tel", "電話番号")
	// Models a maxlength that silently truncates every write.
	el.Transform = func(s string) string {
		if len(s) > 4 {
			return s[:4]
		}
		return s
	}
	_, in := setup(t, el)

	res := in.Inject(context.Background(), field(el), schemas.TypePhone, resolve.Text("03-1234-5678"))

	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Method)
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, schemas.ErrFieldInjection))
	assert.Equal(t, schemas.ErrorFieldInjection, schemas.KindOf(res.Err))
}

func TestInject_TextareaNormalizesCRLF(t *testing.T) {
	el := element(1, "textarea", "", "message", "お問い合わせ内容")
	_, in := setup(t, el)

	res := in.Inject(context.Background(), field(el), schemas.TypeMessage, resolve.Text("一行目\r\n二行目"))

	require.True(t, res.Success)
	assert.Equal(t, "一行目\n二行目", el.Value)
}

func TestInject_FrameFieldSkipsDriverSetValue(t *testing.T) {
	el := element(1, "input", "text", "name", "お名前")
	el.Frame = "#f1"
	el.IgnoreScriptWrites = true
	el.Transform = func(s string) string { return strings.TrimSuffix(s, "郎") }
	page, in := setup(t, el)

	res := in.Inject(context.Background(), field(el), schemas.TypeName, resolve.Text("太郎"))

	assert.False(t, res.Success)
	assert.Equal(t, 0, page.CalledTimes("driverSetValue"))
}

func TestInject_Checkbox(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		el := element(1, "input", "checkbox", "agree", "プライバシーポリシーに同意する")
		_, in := setup(t, el)
		res := in.Inject(context.Background(), field(el), schemas.TypePrivacyPolicy, resolve.Bool(true))
		require.True(t, res.Success)
		assert.Equal(t, 1, res.Method)
		assert.True(t, el.Checked)
	})

	t.Run("click when direct assignment is ignored", func(t *testing.T) {
		el := element(1, "input", "checkbox", "agree", "同意する")
		el.IgnoreSetChecked = true
		_, in := setup(t, el)
		res := in.Inject(context.Background(), field(el), schemas.TypePrivacyPolicy, resolve.Bool(true))
		require.True(t, res.Success)
		assert.Equal(t, 2, res.Method)
		assert.True(t, el.Checked)
	})

	t.Run("pointer on proxied label", func(t *testing.T) {
		el := element(3, "input", "checkbox", "agree", "同意する")
		el.Box = schemas.Box{}
		el.LabelBox = &schemas.Box{X: 40, Y: 120, Width: 120, Height: 24}
		el.PointerOnly = true
		_, in := setup(t, el)
		res := in.Inject(context.Background(), field(el), schemas.TypePrivacyPolicy, resolve.Bool(true))
		require.True(t, res.Success, "err: %v", res.Err)
		assert.Equal(t, 5, res.Method)
		assert.True(t, el.Checked)
	})

	t.Run("uncheck newsletter", func(t *testing.T) {
		el := element(1, "input", "checkbox", "mailmag", "メルマガを受け取る")
		el.Checked = true
		_, in := setup(t, el)
		res := in.Inject(context.Background(), field(el), schemas.TypeCheckboxOther, resolve.Bool(false))
		require.True(t, res.Success)
		assert.False(t, el.Checked)
	})
}

func TestInject_RadioCannotBeCleared(t *testing.T) {
	el := radio(1, "kind", "製品について", "product")
	page, in := setup(t, el)

	res := in.Inject(context.Background(), field(el), schemas.TypeConsultationType, resolve.Bool(false))

	assert.False(t, res.Success)
	assert.Empty(t, page.Calls())
}

func TestInject_SelectByPrefecture(t *testing.T) {
	el := element(1, "select", "select-one", "pref", "都道府県")
	el.Options = []schemas.Option{
		{Text: "選択してください", Value: ""},
		{Text: "北海道", Value: "1"},
		{Text: "東京", Value: "13"},
		{Text: "大阪", Value: "27"},
	}
	el.SelectedIndex = 0
	_, in := setup(t, el)

	res := in.Inject(context.Background(), field(el), schemas.TypePrefecture, resolve.Text("東京都"))

	require.True(t, res.Success)
	assert.Equal(t, 2, el.SelectedIndex)
	assert.Equal(t, 1, res.Method)
}

func TestInject_SelectFallsBackToDriverSetValue(t *testing.T) {
	el := element(1, "select", "select-one", "category", "お問い合わせ種別")
	el.Options = []schemas.Option{{Text: "----", Value: ""}, {Text: "製品", Value: "p"}, {Text: "採用", Value: "r"}}
	el.IgnoreScriptWrites = true
	_, in := setup(t, el)

	res := in.Inject(context.Background(), field(el), schemas.TypeConsultationType, resolve.Text("採用"))

	require.True(t, res.Success)
	assert.Equal(t, 4, res.Method)
	assert.Equal(t, 2, el.SelectedIndex)
}

func TestInject_SelectWithoutMatch(t *testing.T) {
	el := element(1, "select", "select-one", "pref", "都道府県")
	el.Options = []schemas.Option{{Text: "選択してください"}, {Text: "北海道", Value: "1"}}
	page, in := setup(t, el)

	res := in.Inject(context.Background(), field(el), schemas.TypePrefecture, resolve.Text("沖縄県"))

	assert.False(t, res.Success)
	assert.Contains(t, res.Err.Error(), "no option matches")
	assert.Empty(t, page.Calls())
}

// panicPage panics on the first value write.
type panicPage struct {
	*mocks.FakePage
	once sync.Once
}

func (p *panicPage) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	if scripts.TagOf(script) == scripts.SetValue.Tag {
		panicked := false
		p.once.Do(func() { panicked = true })
		if panicked {
			panic("detached frame")
		}
	}
	return p.FakePage.ExecuteScript(ctx, script, args)
}

func TestInject_ContainsStrategyPanics(t *testing.T) {
	el := element(1, "input", "text", "name", "お名前")
	fake, _ := setup(t, el)
	page := &panicPage{FakePage: fake}
	in := New(page, nil, nil, Options{}, zaptest.NewLogger(t))

	var res schemas.InjectionResult
	require.NotPanics(t, func() {
		res = in.Inject(context.Background(), field(el), schemas.TypeName, resolve.Text("山田"))
	})
	require.True(t, res.Success)
	assert.Equal(t, 2, res.Method)
}

func TestInject_CancelledContext(t *testing.T) {
	el := element(1, "input", "text", "name", "お名前")
	_, in := setup(t, el)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := in.Inject(ctx, field(el), schemas.TypeName, resolve.Text("山田"))
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestFill_ContactForm(t *testing.T) {
	name := element(1, "input", "text", "your-name", "お名前")
	email := element(2, "input", "email", "your-email", "メールアドレス")
	unknown := element(3, "input", "text", "hoge", "")
	kindA := radio(4, "kind", "製品について", "product")
	kindB := radio(5, "kind", "採用について", "recruit")
	kindC := radio(6, "kind", "その他", "other")
	msg := element(7, "textarea", "", "your-message", "お問い合わせ内容")
	privacy := element(8, "input", "checkbox", "acceptance", "個人情報の取り扱いに同意する")
	mailmag := element(9, "input", "checkbox", "mailmag", "メルマガ配信を希望する")
	mailmag.Checked = true

	page, in := setup(t, name, email, unknown, kindA, kindB, kindC, msg, privacy, mailmag)
	var fields []schemas.FieldDescriptor
	for _, el := range []*mocks.FakeElement{name, email, unknown, kindA, kindB, kindC, msg, privacy, mailmag} {
		fields = append(fields, field(el))
	}
	form := schemas.DetectedForm{Root: mocks.Ref(100), Fields: fields, Method: schemas.MethodTag}

	tax := keywords.Default()
	filler := NewFiller(classify.New(tax), resolve.New(resolve.Options{DefaultMessage: "default"}), tax, 0, 0, zaptest.NewLogger(t))
	sender := schemas.SenderProfile{
		Name: "山田 太郎", Email: "taro@example.jp", ConsultationLabel: "サービスについて",
		PrivacyConsent: true, NewsletterConsent: false,
	}
	target := schemas.TargetRecord{CompanyName: "テスト株式会社", URL: "https://example.jp", Message: "はじめまして。\r\nよろしくお願いします。"}

	report := filler.Fill(context.Background(), in, form, target, sender)

	assert.Equal(t, 6, report.Filled)
	assert.Empty(t, report.Failed())
	assert.Equal(t, "山田 太郎", name.Value)
	assert.Equal(t, "taro@example.jp", email.Value)
	assert.Empty(t, unknown.Value)
	assert.Equal(t, "はじめまして。\nよろしくお願いします。", msg.Value)
	assert.True(t, privacy.Checked)
	assert.False(t, mailmag.Checked)
	assert.False(t, kindA.Checked)
	assert.False(t, kindB.Checked)
	assert.True(t, kindC.Checked, "unmatched consultation type falls back to the other option")
	assert.Equal(t, 3, page.CalledTimes("setChecked"), "two checkboxes plus one write for the whole radio group")
}

func TestFill_SplitNameReadings(t *testing.T) {
	sei := element(1, "input", "text", "sei", "姓")
	mei := element(2, "input", "text", "mei", "名")
	seiKana := element(3, "input", "text", "sei_kana", "フリガナ（姓）")
	meiKana := element(4, "input", "text", "mei_kana", "フリガナ（名）")
	_, in := setup(t, sei, mei, seiKana, meiKana)
	var fields []schemas.FieldDescriptor
	for _, el := range []*mocks.FakeElement{sei, mei, seiKana, meiKana} {
		fields = append(fields, field(el))
	}

	tax := keywords.Default()
	filler := NewFiller(classify.New(tax), resolve.New(resolve.Options{}), tax, 0, 0, zaptest.NewLogger(t))
	sender := schemas.SenderProfile{Name: "山田 太郎", Furigana: "ヤマダ タロウ"}.Normalized()

	report := filler.Fill(context.Background(), in, schemas.DetectedForm{Fields: fields}, schemas.TargetRecord{}, sender)

	assert.Equal(t, 4, report.Filled)
	assert.Equal(t, "山田", sei.Value)
	assert.Equal(t, "太郎", mei.Value)
	assert.Equal(t, "ヤマダ", seiKana.Value)
	assert.Equal(t, "タロウ", meiKana.Value)
}

func TestFill_StopsOnCancellation(t *testing.T) {
	name := element(1, "input", "text", "name", "お名前")
	_, in := setup(t, name)
	tax := keywords.Default()
	filler := NewFiller(classify.New(tax), resolve.New(resolve.Options{}), tax, 0, 0, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := filler.Fill(ctx, in, schemas.DetectedForm{Fields: []schemas.FieldDescriptor{field(name)}}, schemas.TargetRecord{}, schemas.SenderProfile{Name: "x"})
	assert.Zero(t, report.Filled)
	assert.Empty(t, report.Results)
}

func TestMatchOption(t *testing.T) {
	tax := keywords.Default()
	opts := []schemas.Option{
		{Text: "選択してください", Value: ""},
		{Text: "製品について", Value: "product"},
		{Text: "Recruit", Value: "recruit"},
		{Text: "その他", Value: "other"},
		{Text: "停止中", Value: "x", Disabled: true},
	}
	testCases := []struct {
		name  string
		value string
		typ   schemas.SemanticType
		want  int
	}{
		{"exact text", "製品について", schemas.TypeConsultationType, 1},
		{"exact value case-insensitive", "RECRUIT", schemas.TypeConsultationType, 2},
		{"containment", "製品", schemas.TypeConsultationType, 1},
		{"other fallback", "サービス", schemas.TypeConsultationType, 3},
		{"no fallback for other types", "サービス", schemas.TypeUnknown, -1},
		{"disabled never chosen", "停止中", schemas.TypeUnknown, -1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MatchOption(opts, tc.value, tc.typ, tax))
		})
	}

	t.Run("first real option without other", func(t *testing.T) {
		o := []schemas.Option{{Text: "--", Value: ""}, {Text: "A"}, {Text: "B"}}
		assert.Equal(t, 1, MatchOption(o, "zzz", schemas.TypeConsultationType, tax))
	})

	t.Run("prefecture spellings", func(t *testing.T) {
		o := []schemas.Option{{Text: "Please select"}, {Text: "Hokkaido", Value: "1"}, {Text: "Tokyo-to", Value: "13"}}
		assert.Equal(t, 2, MatchOption(o, "東京都", schemas.TypePrefecture, tax))
		o = []schemas.Option{{Text: "-"}, {Text: "北海道", Value: "01"}, {Text: "東京都", Value: "13"}}
		assert.Equal(t, 2, MatchOption(o, "東京都千代田区丸の内1-1", schemas.TypePrefecture, tax))
	})
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder(schemas.Option{Text: "選択してください", Value: ""}))
	assert.True(t, IsPlaceholder(schemas.Option{Text: "--"}))
	assert.True(t, IsPlaceholder(schemas.Option{Text: "▼お選びください"}))
	assert.True(t, IsPlaceholder(schemas.Option{Text: "Please select a topic", Value: "0"}))
	assert.False(t, IsPlaceholder(schemas.Option{Text: "選択肢A", Value: "a"}))
	assert.False(t, IsPlaceholder(schemas.Option{Text: "東京", Value: "13"}))
}
