package keywords

import (
	"strconv"
	"strings"
)

// Prefecture is one entry of the national prefecture table.
type Prefecture struct {
	Code   int
	Name   string // 東京都
	Short  string // 東京
	Romaji string // tokyo
}

// Prefectures lists the 47 prefectures in JIS X 0401 order.
var Prefectures = []Prefecture{
	{1, "北海道", "北海道", "hokkaido"},
	{2, "青森県", "青森", "aomori"},
	{3, "岩手県", "岩手", "iwate"},
	{4, "宮城県", "宮城", "miyagi"},
	{5, "秋田県", "秋田", "akita"},
	{6, "山形県", "山形", "yamagata"},
	{7, "福島県", "福島", "fukushima"},
	{8, "茨城県", "茨城", "ibaraki"},
	{9, "栃木県", "栃木", "tochigi"},
	{10, "群馬県", "群馬", "gunma"},
	{11, "埼玉県", "埼玉", "saitama"},
	{12, "千葉県", "千葉", "chiba"},
	{13, "東京都", "東京", "tokyo"},
	{14, "神奈川県", "神奈川", "kanagawa"},
	{15, "新潟県", "新潟", "niigata"},
	{16, "富山県", "富山", "toyama"},
	{17, "石川県", "石川", "ishikawa"},
	{18, "福井県", "福井", "fukui"},
	{19, "山梨県", "山梨", "yamanashi"},
	{20, "長野県", "長野", "nagano"},
	{21, "岐阜県", "岐阜", "gifu"},
	{22, "静岡県", "静岡", "shizuoka"},
	{23, "愛知県", "愛知", "aichi"},
	{24, "三重県", "三重", "mie"},
	{25, "滋賀県", "滋賀", "shiga"},
	{26, "京都府", "京都", "kyoto"},
	{27, "大阪府", "大阪", "osaka"},
	{28, "兵庫県", "兵庫", "hyogo"},
	{29, "奈良県", "奈良", "nara"},
	{30, "和歌山県", "和歌山", "wakayama"},
	{31, "鳥取県", "鳥取", "tottori"},
	{32, "島根県", "島根", "shimane"},
	{33, "岡山県", "岡山", "okayama"},
	{34, "広島県", "広島", "hiroshima"},
	{35, "山口県", "山口", "yamaguchi"},
	{36, "徳島県", "徳島", "tokushima"},
	{37, "香川県", "香川", "kagawa"},
	{38, "愛媛県", "愛媛", "ehime"},
	{39, "高知県", "高知", "kochi"},
	{40, "福岡県", "福岡", "fukuoka"},
	{41, "佐賀県", "佐賀", "saga"},
	{42, "長崎県", "長崎", "nagasaki"},
	{43, "熊本県", "熊本", "kumamoto"},
	{44, "大分県", "大分", "oita"},
	{45, "宮崎県", "宮崎", "miyazaki"},
	{46, "鹿児島県", "鹿児島", "kagoshima"},
	{47, "沖縄県", "沖縄", "okinawa"},
}

// LookupPrefecture finds the prefecture named by s in any of its spellings:
// 東京都, 東京, Tokyo, Tokyo-to, tokyo-to or the JIS code 13 / 013.
func LookupPrefecture(s string) (Prefecture, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Prefecture{}, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= len(Prefectures) {
			return Prefectures[n-1], true
		}
		return Prefecture{}, false
	}
	low := strings.ToLower(s)
	for _, suffix := range []string{"-to", "-fu", "-ken", " prefecture", " pref.", " pref"} {
		low = strings.TrimSuffix(low, suffix)
	}
	for _, p := range Prefectures {
		if s == p.Name || s == p.Short || low == p.Romaji {
			return p, true
		}
	}
	return Prefecture{}, false
}

// LeadingPrefecture returns the prefecture an address starts with.
func LeadingPrefecture(address string) (Prefecture, bool) {
	address = strings.TrimSpace(address)
	for _, p := range Prefectures {
		if strings.HasPrefix(address, p.Name) {
			return p, true
		}
	}
	return Prefecture{}, false
}

// CountPrefectures reports how many distinct prefectures appear among texts.
func CountPrefectures(texts []string) int {
	seen := make(map[int]bool)
	for _, t := range texts {
		if p, ok := LookupPrefecture(t); ok {
			seen[p.Code] = true
		}
	}
	return len(seen)
}
