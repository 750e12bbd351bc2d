package conversation

import "strings"

type EventKind int

const (
	// EventRestart is the /start command.
	EventRestart EventKind = iota
	// EventText is a free-text message.
	EventText
	// EventChoice is a button press; Data carries the choice.
	EventChoice
)

type Event struct {
	Kind EventKind
	Text string
	Data string
}

func Restart() Event                { return Event{Kind: EventRestart} }
func Text(text string) Event        { return Event{Kind: EventText, Text: text} }
func Choice(data string) Event      { return Event{Kind: EventChoice, Data: data} }
func ZoneChoice(zone string) string { return zonePrefix + zone }

const (
	ChoiceSubmit = "menu:submit"
	ChoiceRisk   = "menu:risk"
	ChoiceYes    = "risk:yes"
	ChoiceNo     = "risk:no"

	zonePrefix = "zone:"
)

// IsChoice reports whether data is callback data this package produced.
func IsChoice(data string) bool {
	switch data {
	case ChoiceSubmit, ChoiceRisk, ChoiceYes, ChoiceNo:
		return true
	}
	return strings.HasPrefix(data, zonePrefix)
}

// Button is one inline button; Data comes back as an EventChoice.
type Button struct {
	Text string
	Data string
}

// Reply is what the user sees after an event. Text is never empty.
type Reply struct {
	Text    string
	Buttons [][]Button
}
