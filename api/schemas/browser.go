package schemas

// -- Browser Persona Schemas --

// Persona encapsulates the properties applied to every tab for a consistent
// browser fingerprint.
type Persona struct {
	UserAgent      string   `json:"userAgent" mapstructure:"user_agent"`
	Platform       string   `json:"platform" mapstructure:"platform"`
	Languages      []string `json:"languages" mapstructure:"languages"`
	Width          int64    `json:"width" mapstructure:"width"`
	Height         int64    `json:"height" mapstructure:"height"`
	Mobile         bool     `json:"mobile" mapstructure:"mobile"`
	Timezone       string   `json:"timezoneId" mapstructure:"timezone"`
	Locale         string   `json:"locale" mapstructure:"locale"`
	AcceptLanguage string   `json:"acceptLanguage" mapstructure:"accept_language"`
}

// DefaultPersona is used when the configuration does not provide one. Most
// targets are Japanese sites, so the locale and timezone follow suit.
var DefaultPersona = Persona{
	UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	Platform:       "Win32",
	Languages:      []string{"ja-JP", "ja", "en-US", "en"},
	Width:          1366,
	Height:         900,
	Mobile:         false,
	Timezone:       "Asia/Tokyo",
	Locale:         "ja-JP",
	AcceptLanguage: "ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7",
}

// -- Humanoid Low-Level Interaction Schemas --

// ElementGeometry defines the bounding box, vertices, and metadata of a DOM element.
type ElementGeometry struct {
	Vertices []float64 `json:"vertices"`
	Width    int64     `json:"width"`
	Height   int64     `json:"height"`
	// TagName (e.g., "INPUT", "BUTTON") used for behavioral biasing.
	TagName string `json:"tagName"`
	Type    string `json:"type,omitempty"`
}

// Center returns the centroid of the element's vertices.
func (g *ElementGeometry) Center() (float64, float64) {
	if g == nil || len(g.Vertices) < 8 {
		return 0, 0
	}
	var x, y float64
	for i := 0; i < 8; i += 2 {
		x += g.Vertices[i]
		y += g.Vertices[i+1]
	}
	return x / 4, y / 4
}

// MouseEventType defines the type of a mouse event.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
	MouseWheel   MouseEventType = "mouseWheel"
)

// MouseButton defines the mouse button being pressed.
type MouseButton string

const (
	ButtonNone   MouseButton = "none"
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// MouseEventData encapsulates all data for a mouse event.
type MouseEventData struct {
	Type       MouseEventType `json:"type"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Button     MouseButton    `json:"button"`
	Buttons    int64          `json:"buttons"`
	ClickCount int            `json:"clickCount"`
	DeltaX     float64        `json:"deltaX"`
	DeltaY     float64        `json:"deltaY"`
}

// KeyEventData represents a structured key event, including the main key and active modifiers.
type KeyEventData struct {
	// Key is the primary key pressed (e.g., "a", "Enter", "Backspace").
	Key       string
	Modifiers KeyModifier
}

// KeyModifier represents keyboard modifiers (Ctrl, Alt, Shift, Meta).
// These values correspond directly to the CDP input.DispatchKeyEvent modifiers bitfield.
type KeyModifier int

const (
	ModNone  KeyModifier = 0
	ModAlt   KeyModifier = 1
	ModCtrl  KeyModifier = 2
	ModMeta  KeyModifier = 4
	ModShift KeyModifier = 8
)
