package keycode

type entry struct {
	key  Key
	name string
	code uint32 // 0 when the key has no dedicated virtual-key code
}

var entries = []entry{
	{Alt, "Alt", 164},
	{AltGr, "AltGr", 165},
	{Backspace, "Backspace", 0x08},
	{CapsLock, "CapsLock", 20},
	{ControlLeft, "ControlLeft", 162},
	{ControlRight, "ControlRight", 163},
	{Delete, "Delete", 46},
	{DownArrow, "DownArrow", 40},
	{End, "End", 35},
	{Escape, "Escape", 27},
	{F1, "F1", 112},
	{F2, "F2", 113},
	{F3, "F3", 114},
	{F4, "F4", 115},
	{F5, "F5", 116},
	{F6, "F6", 117},
	{F7, "F7", 118},
	{F8, "F8", 119},
	{F9, "F9", 120},
	{F10, "F10", 121},
	{F11, "F11", 122},
	{F12, "F12", 123},
	{Home, "Home", 36},
	{LeftArrow, "LeftArrow", 37},
	{MetaLeft, "MetaLeft", 91},
	{MetaRight, "MetaRight", 92},
	{PageDown, "PageDown", 34},
	{PageUp, "PageUp", 33},
	{Return, "Return", 0x0D},
	{RightArrow, "RightArrow", 39},
	{ShiftLeft, "ShiftLeft", 160},
	{ShiftRight, "ShiftRight", 161},
	{Space, "Space", 32},
	{Tab, "Tab", 0x09},
	{UpArrow, "UpArrow", 38},
	{PrintScreen, "PrintScreen", 44},
	{ScrollLock, "ScrollLock", 145},
	{Pause, "Pause", 19},
	{NumLock, "NumLock", 144},
	{BackQuote, "BackQuote", 192},
	{Num1, "Num1", 49},
	{Num2, "Num2", 50},
	{Num3, "Num3", 51},
	{Num4, "Num4", 52},
	{Num5, "Num5", 53},
	{Num6, "Num6", 54},
	{Num7, "Num7", 55},
	{Num8, "Num8", 56},
	{Num9, "Num9", 57},
	{Num0, "Num0", 48},
	{Minus, "Minus", 189},
	{Equal, "Equal", 187},
	{KeyQ, "KeyQ", 81},
	{KeyW, "KeyW", 87},
	{KeyE, "KeyE", 69},
	{KeyR, "KeyR", 82},
	{KeyT, "KeyT", 84},
	{KeyY, "KeyY", 89},
	{KeyU, "KeyU", 85},
	{KeyI, "KeyI", 73},
	{KeyO, "KeyO", 79},
	{KeyP, "KeyP", 80},
	{LeftBracket, "LeftBracket", 219},
	{RightBracket, "RightBracket", 221},
	{KeyA, "KeyA", 65},
	{KeyS, "KeyS", 83},
	{KeyD, "KeyD", 68},
	{KeyF, "KeyF", 70},
	{KeyG, "KeyG", 71},
	{KeyH, "KeyH", 72},
	{KeyJ, "KeyJ", 74},
	{KeyK, "KeyK", 75},
	{KeyL, "KeyL", 76},
	{SemiColon, "SemiColon", 186},
	{Quote, "Quote", 222},
	{BackSlash, "BackSlash", 220},
	{IntlBackslash, "IntlBackslash", 226},
	{KeyZ, "KeyZ", 90},
	{KeyX, "KeyX", 88},
	{KeyC, "KeyC", 67},
	{KeyV, "KeyV", 86},
	{KeyB, "KeyB", 66},
	{KeyN, "KeyN", 78},
	{KeyM, "KeyM", 77},
	{Comma, "Comma", 188},
	{Dot, "Dot", 190},
	{Slash, "Slash", 191},
	{Insert, "Insert", 45},
	// Numpad Enter shares VK_RETURN; it is only distinguishable by the extended flag.
	{KpReturn, "KpReturn", 0},
	{KpMinus, "KpMinus", 109},
	{KpPlus, "KpPlus", 107},
	{KpMultiply, "KpMultiply", 106},
	{KpDivide, "KpDivide", 111},
	{Kp0, "Kp0", 96},
	{Kp1, "Kp1", 97},
	{Kp2, "Kp2", 98},
	{Kp3, "Kp3", 99},
	{Kp4, "Kp4", 100},
	{Kp5, "Kp5", 101},
	{Kp6, "Kp6", 102},
	{Kp7, "Kp7", 103},
	{Kp8, "Kp8", 104},
	{Kp9, "Kp9", 105},
	{KpDelete, "KpDelete", 110},
	{Function, "Function", 0},
}

// aliases maps normalized friendly names to keys in addition to the canonical names.
var aliases = map[string]Key{
	"ctrl":       ControlLeft,
	"control":    ControlLeft,
	"lctrl":      ControlLeft,
	"rctrl":      ControlRight,
	"shift":      ShiftLeft,
	"lshift":     ShiftLeft,
	"rshift":     ShiftRight,
	"win":        MetaLeft,
	"super":      MetaLeft,
	"meta":       MetaLeft,
	"lwin":       MetaLeft,
	"rwin":       MetaRight,
	"option":     Alt,
	"caps":       CapsLock,
	"enter":      Return,
	"esc":        Escape,
	"del":        Delete,
	"ins":        Insert,
	"left":       LeftArrow,
	"right":      RightArrow,
	"up":         UpArrow,
	"down":       DownArrow,
	"pgup":       PageUp,
	"pgdn":       PageDown,
	"grave":      BackQuote,
	"backtick":   BackQuote,
	"semicolon":  SemiColon,
	"period":     Dot,
	"backslash":  BackSlash,
	"numenter":   KpReturn,
	"prtsc":      PrintScreen,
	"apostrophe": Quote,
}

// punctuation maps single-character tokens that normalizeName would otherwise mangle.
var punctuation = map[string]Key{
	"`":  BackQuote,
	"-":  Minus,
	"=":  Equal,
	"[":  LeftBracket,
	"]":  RightBracket,
	";":  SemiColon,
	"'":  Quote,
	`\`:  BackSlash,
	",":  Comma,
	".":  Dot,
	"/":  Slash,
	" ":  Space,
	"\t": Tab,
}

var (
	entryByKey = make(map[Key]entry, len(entries))
	keyByCode  = make(map[uint32]Key, len(entries))
	keyByName  = make(map[string]Key, len(entries)+len(aliases)+36)
)

func init() {
	for _, e := range entries {
		entryByKey[e.key] = e
		if e.code != 0 {
			keyByCode[e.code] = e.key
		}
		keyByName[normalizeName(e.name)] = e.key
	}
	for name, k := range aliases {
		keyByName[name] = k
	}
	// Bare letters and digits: "u" -> KeyU, "7" -> Num7.
	for _, e := range entries {
		if len(e.name) == 4 && e.name[:3] == "Key" {
			keyByName[normalizeName(e.name[3:])] = e.key
		}
		if len(e.name) == 4 && e.name[:3] == "Num" {
			keyByName[e.name[3:]] = e.key
		}
	}
}
