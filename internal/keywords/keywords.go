// Package keywords holds the single vocabulary shared by every heuristic in
// the engine: page relevance, link ranking, field classification, submit
// control selection and outcome detection.
package keywords

import (
	"strings"
	"unicode"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// FieldRule maps a semantic type to the tokens that identify it.
type FieldRule struct {
	Type schemas.SemanticType
	// Tokens match anywhere in the field's combined attributes and label.
	Tokens []string
	// Exact matches the cleaned label as a whole.
	Exact []string
	// Require, when set, demands that one of these also matches.
	Require []string
}

// Taxonomy is the complete keyword vocabulary. Rules in Fields are evaluated
// in order and the first match wins, so specialized types come first.
type Taxonomy struct {
	Fields []FieldRule

	ContactText      []string
	URLDefinitive    []string
	URLLikely        []string
	LinkTokens       []string
	AnchorTokens     []string
	PrivacyTokens    []string
	NewsletterTokens []string
	PrefectureTokens []string
	OtherOptions     []string

	ConfirmPhrases  []string
	TerminalPhrases []string
	BackPhrases     []string

	SuccessURL       []string
	SuccessContent   []string
	SuccessTitle     []string
	ConfirmPageURL   []string
	ConfirmPageText  []string
	ErrorURL         []string
	ValidationErrors []string

	VerificationMarkers []string
	FormHosts           []string
	NonHTMLExtensions   []string
}

// Default returns a fresh copy of the built-in taxonomy.
func Default() *Taxonomy {
	return &Taxonomy{
		Fields: []FieldRule{
			{Type: schemas.TypeFurigana, Tokens: []string{"furigana", "kana", "フリガナ", "ふりがな", "カナ", "かな", "yomi", "ヨミ", "ruby"}},
			{Type: schemas.TypeSei,
				Tokens: []string{"sei", "last_name", "lastname", "last-name", "family_name", "familyname", "family-name", "surname", "lname", "（姓）", "(姓)", "[姓]", "苗字", "名字"},
				Exact:  []string{"姓", "お名前（姓）", "お名前(姓)", "氏名（姓）", "氏名(姓)"}},
			{Type: schemas.TypeMei,
				Tokens: []string{"mei", "first_name", "firstname", "first-name", "given_name", "givenname", "given-name", "fname", "（名）", "(名)", "[名]"},
				Exact:  []string{"名", "お名前（名）", "お名前(名)", "氏名（名）", "氏名(名)"}},
			{Type: schemas.TypeEmailConfirm,
				Tokens:  []string{"確認", "confirm", "再入力", "again", "check", "retype", "verify", "re_mail", "re_email", "remail", "reemail", "email2", "mail2"},
				Require: []string{"mail", "メール"}},
			{Type: schemas.TypeEmail, Tokens: []string{"email", "e-mail", "mail", "メール", "ﾒｰﾙ"}},
			{Type: schemas.TypePhone, Tokens: []string{"tel", "phone", "電話", "携帯", "mobile", "denwa"}},
			{Type: schemas.TypeZip, Tokens: []string{"zip", "zipcode", "postal", "postcode", "post_code", "post-code", "郵便", "〒", "yubin"}},
			{Type: schemas.TypePrefecture, Tokens: []string{"都道府県", "prefecture", "todofuken", "pref_id", "pref_name"}},
			{Type: schemas.TypeAddress, Tokens: []string{"住所", "address", "addr", "所在地", "市区町村", "番地", "street", "jusho", "city"}},
			{Type: schemas.TypeDateThird, Tokens: []string{"第三希望", "第3希望", "第３希望", "date3", "third_date", "3rd"}},
			{Type: schemas.TypeDateSecond, Tokens: []string{"第二希望", "第2希望", "第２希望", "date2", "second_date", "2nd"}},
			{Type: schemas.TypeDateFirst, Tokens: []string{"第一希望", "第1希望", "第１希望", "希望日", "date1", "first_date", "1st", "preferred_date", "希望日時"}},
			{Type: schemas.TypeCompany, Tokens: []string{"会社", "company", "企業", "法人", "御社", "貴社", "団体", "屋号", "organization", "organisation", "corp", "kaisha"}},
			{Type: schemas.TypeName, Tokens: []string{"名前", "氏名", "お名前", "担当者", "name", "fullname", "namae", "shimei"}},
			{Type: schemas.TypeConsultationType, Tokens: []string{"種別", "種類", "用件", "件名", "区分", "カテゴリ", "category", "subject", "inquiry_type", "contact_type", "topic"}},
			{Type: schemas.TypeMessage, Tokens: []string{"メッセージ", "内容", "相談", "本文", "詳細", "備考", "質問", "要望", "message", "inquiry", "enquiry", "body", "comment", "content", "detail", "naiyou", "toiawase"}},
		},

		ContactText: []string{
			"お問い合わせ", "相談", "contact us", "get in touch", "お申し込み", "申込み", "ご相談",
			"問い合わせ", "コンタクト", "連絡", "フォーム", "見積", "資料請求", "無料相談", "ご予約",
			"予約", "contact", "inquiry", "form", "consultation", "apply", "register", "booking",
			"reservation", "estimate", "quote",
		},
		URLDefinitive: []string{"contact", "inquiry", "enquiry", "form", "お問い合わせ", "問い合わせ", "問合せ", "consultation", "consult", "toiawase", "soudan"},
		URLLikely:     []string{"apply", "request", "booking", "reservation", "estimate", "申込", "申し込み", "見積", "相談", "予約", "moushikomi", "info", "mail"},
		LinkTokens: []string{
			"contact", "inquiry", "enquiry", "form", "お問い合わせ", "問合せ", "お問合せ", "consultation", "consult",
			"toiawase", "soudan", "apply", "request", "booking", "reservation", "estimate", "申込",
			"申し込み", "見積", "相談", "予約", "get in touch", "問い合わせ", "コンタクト",
			"連絡", "フォーム", "資料請求", "register", "quote",
		},
		AnchorTokens: []string{
			"お問い合わせ", "contact", "inquiry", "相談", "申し込み", "お申込み", "メッセージ", "message",
			"フォーム", "form", "連絡", "問合せ", "見積", "estimate", "資料請求",
		},
		PrivacyTokens:    []string{"プライバシー", "個人情報", "同意", "privacy", "agree", "consent", "規約", "policy", "acceptance"},
		NewsletterTokens: []string{"newsletter", "メルマガ", "メールマガジン", "購読", "subscribe", "magazine", "配信"},
		PrefectureTokens: []string{"都道府県", "prefecture", "県"},
		OtherOptions:     []string{"その他", "その他のお問い合わせ", "other", "others", "general", "一般"},

		ConfirmPhrases: []string{
			"確認画面へ", "確認する", "内容確認", "入力内容を確認", "確認", "次へ", "next", "confirm", "review", "continue",
		},
		TerminalPhrases: []string{
			"この内容で送信", "送信する", "送信", "送る", "確定", "申し込み", "お申込み", "問い合わせ",
			"submit", "send", "apply", "register", "ok", "はい",
		},
		BackPhrases: []string{"戻る", "修正", "訂正", "キャンセル", "リセット", "クリア", "back", "cancel", "reset", "clear", "edit"},

		SuccessURL: []string{"thanks", "thank", "complete", "success", "finish", "done", "thankyou", "kanryo"},
		SuccessContent: []string{
			"送信しました", "送信いたしました", "ありがとうございました", "受け付けました", "受け付けいたしました",
			"受付完了", "送信完了", "送信が完了", "正常に送信",
			"thank you for contacting", "thank you for your inquiry", "thank you for your message",
			"successfully submitted", "sent successfully", "successfully sent", "has been sent", "message was sent",
		},
		SuccessTitle:    []string{"thanks", "thank you", "complete", "success", "完了", "ありがとうございました"},
		ConfirmPageURL:  []string{"confirm", "kakunin", "preview", "check", "確認"},
		ConfirmPageText: []string{"入力内容の確認", "内容をご確認", "以下の内容で", "送信してよろしいですか", "確認画面", "please confirm", "review your", "confirm your"},
		ErrorURL:        []string{"error", "fail", "invalid"},
		ValidationErrors: []string{
			"必須項目", "入力してください", "正しく入力", "入力されていません", "選択してください",
			"is required", "required field", "please enter", "invalid", "error",
		},

		VerificationMarkers: []string{
			"iframe[src*='recaptcha']", "iframe[src*='hcaptcha']", "iframe[src*='challenges.cloudflare.com']",
			".g-recaptcha", ".h-captcha", ".cf-turnstile", "[data-sitekey]",
			"[id*='captcha' i]", "[class*='captcha' i]", "input[name*='captcha' i]", "img[src*='captcha' i]",
		},
		FormHosts: []string{
			"docs.google.com/forms", "forms.gle", "hsforms", "hubspot", "formrun", "form.run",
			"typeform", "formzu", "jotform", "tayori", "mktoweb", "pardot", "formmailer", "kintone",
		},
		NonHTMLExtensions: []string{
			".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".zip", ".rar", ".tar", ".gz",
			".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".mp4", ".mp3", ".mov", ".avi",
		},
	}
}

// Matches reports whether token occurs in text. Both are compared in lower
// case. Short ASCII tokens (three characters or fewer) must sit between
// non-letter boundaries so that "tel" does not fire inside "hotel".
func Matches(text, token string) bool {
	if token == "" || text == "" {
		return false
	}
	text = strings.ToLower(text)
	token = strings.ToLower(token)
	if !isShortASCII(token) {
		return strings.Contains(text, token)
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], token)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(token)
		if !letterAt(text, start-1) && !letterAt(text, end) {
			return true
		}
		from = start + 1
	}
	return false
}

// FirstMatch returns the first token from tokens that occurs in text.
func FirstMatch(text string, tokens []string) (string, bool) {
	for _, tok := range tokens {
		if Matches(text, tok) {
			return tok, true
		}
	}
	return "", false
}

// ContainsAny is FirstMatch without the token.
func ContainsAny(text string, tokens []string) bool {
	_, ok := FirstMatch(text, tokens)
	return ok
}

// CountDistinct returns the tokens of the list present in text, each once.
func CountDistinct(text string, tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	var hits []string
	for _, tok := range tokens {
		key := strings.ToLower(tok)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if Matches(text, tok) {
			hits = append(hits, tok)
		}
	}
	return hits
}

// CleanLabel strips required markers, colons and surrounding whitespace so a
// label can be compared exactly.
func CleanLabel(label string) string {
	label = strings.TrimSpace(label)
	for _, marker := range []string{"必須", "任意", "※", "*", "＊", ":", "：", "【", "】", "[必須]"} {
		label = strings.ReplaceAll(label, marker, "")
	}
	return strings.TrimFunc(label, func(r rune) bool {
		return unicode.IsSpace(r) || r == '　'
	})
}

func isShortASCII(token string) bool {
	if len(token) > 3 {
		return false
	}
	for _, r := range token {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func letterAt(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	c := s[i]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
