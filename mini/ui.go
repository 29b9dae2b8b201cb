package mini

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/reelcast/reelcast/color"
	"github.com/reelcast/reelcast/icon"
	"github.com/reelcast/reelcast/style"
	"github.com/reelcast/reelcast/util"
)

// bind is a menu entry that is not one of the listed items.
type bind struct {
	name string
}

func (b *bind) String() string {
	return "» " + b.name
}

var (
	uploadFile     = &bind{"Upload a file"}
	refreshLibrary = &bind{"Refresh"}
	showHistory    = &bind{"History"}
	showLibrary    = &bind{"Library"}
	playVideo      = &bind{"Play"}
	waitProcessing = &bind{"Wait for processing"}
	deleteVideo    = &bind{"Delete"}
	back           = &bind{"Back"}
	quit           = &bind{"Quit"}
)

// menu asks for one of items or binds. The index is -1 when a bind was chosen.
func menu(message string, items []string, binds ...*bind) (*bind, int, error) {
	truncate := style.Truncate(truncateAt - 4)

	options := make([]string, 0, len(items)+len(binds))
	for _, item := range items {
		options = append(options, truncate(item))
	}
	for _, b := range binds {
		options = append(options, b.String())
	}

	var index int
	prompt := &survey.Select{
		Message:  message,
		Options:  options,
		PageSize: 15,
	}
	if err := survey.AskOne(prompt, &index); err != nil {
		return nil, -1, err
	}

	if index >= len(items) {
		return binds[index-len(items)], -1, nil
	}
	return nil, index, nil
}

func title(s string) {
	fmt.Println(style.Title(s))
}

func progress(msg string) (eraser func()) {
	return util.PrintErasable(fmt.Sprintf("%s %s", icon.Get(icon.Progress), msg))
}

func fail(msg string) {
	fmt.Printf("%s %s\n\n", icon.Get(icon.Fail), style.Fg(color.Red)(msg))
}

func success(msg string) {
	fmt.Printf("%s %s\n\n", style.Fg(color.Green)(icon.Get(icon.Success)), msg)
}
