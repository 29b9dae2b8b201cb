// Package icon renders UI symbols in the variant the user configured:
// emoji, nerd-font glyphs, plain ASCII, kaomoji or Unicode squares.
package icon

import (
	"github.com/reelcast/reelcast/key"
	"github.com/reelcast/reelcast/video"
	"github.com/spf13/viper"
)

const (
	emoji   = "emoji"
	nerd    = "nerd"
	plain   = "plain"
	kaomoji = "kaomoji"
	squares = "squares"
)

// AvailableVariants returns a slice of all registered icon style identifiers.
func AvailableVariants() []string {
	return []string{emoji, nerd, plain, kaomoji, squares}
}

// Icon identifies a symbol.
type Icon int

const (
	Fail Icon = iota
	Success
	Question
	Mark
	Progress
	Upload
	Play
	Buffering
	Pending
	Processing
	Ready
	Failed
)

type iconDef struct {
	emoji   string
	nerd    string
	plain   string
	kaomoji string
	squares string
}

var icons = map[Icon]*iconDef{
	Fail:       {emoji: "💀", nerd: "", plain: "X", kaomoji: "(×_×)", squares: "🟥"},
	Success:    {emoji: "🎉", nerd: "", plain: "OK", kaomoji: "(ᵔ◡ᵔ)", squares: "🟩"},
	Question:   {emoji: "🤔", nerd: "", plain: "?", kaomoji: "(・_・ヾ", squares: "🟪"},
	Mark:       {emoji: "▸", nerd: "", plain: ">", kaomoji: "☞", squares: "▪"},
	Progress:   {emoji: "⏳", nerd: "", plain: "...", kaomoji: "(￣o￣) zzZ", squares: "🟨"},
	Upload:     {emoji: "📤", nerd: "", plain: "^", kaomoji: "ヽ(°〇°)ﾉ", squares: "🟦"},
	Play:       {emoji: "▶️", nerd: "", plain: ">", kaomoji: "(☞ﾟヮﾟ)☞", squares: "🟩"},
	Buffering:  {emoji: "🌀", nerd: "", plain: "~", kaomoji: "(@_@)", squares: "🟨"},
	Pending:    {emoji: "🕒", nerd: "", plain: "-", kaomoji: "(._.)", squares: "⬜"},
	Processing: {emoji: "⚙️", nerd: "", plain: "*", kaomoji: "(•̀ᴗ•́)و", squares: "🟨"},
	Ready:      {emoji: "✅", nerd: "", plain: "+", kaomoji: "(ᵔ◡ᵔ)", squares: "🟩"},
	Failed:     {emoji: "❌", nerd: "", plain: "!", kaomoji: "(╥﹏╥)", squares: "🟥"},
}

func (d *iconDef) Get() string {
	switch viper.GetString(key.IconsVariant) {
	case emoji:
		return d.emoji
	case nerd:
		return d.nerd
	case plain:
		return d.plain
	case kaomoji:
		return d.kaomoji
	case squares:
		return d.squares
	default:
		return ""
	}
}

// Get returns the rendered string for i in the configured variant.
func Get(i Icon) string {
	if d, ok := icons[i]; ok {
		return d.Get()
	}
	return ""
}

// ForStatus returns the icon of a processing status.
func ForStatus(s video.Status) Icon {
	switch s {
	case video.StatusReady:
		return Ready
	case video.StatusFailed:
		return Failed
	case video.StatusProcessing:
		return Processing
	default:
		return Pending
	}
}
