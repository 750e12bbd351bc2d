// Package content holds the zones, risk quiz and user-facing texts. The embedded
// content.yaml is the default; CONTENT_FILE replaces it wholesale.
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var defaultContent []byte

type Texts struct {
	Welcome           string `yaml:"welcome"`
	AskZone           string `yaml:"ask_zone"`
	InvalidZone       string `yaml:"invalid_zone"`
	AskAge            string `yaml:"ask_age"`
	InvalidAge        string `yaml:"invalid_age"`
	Menu              string `yaml:"menu"`
	MenuSubmit        string `yaml:"menu_submit"`
	MenuRisk          string `yaml:"menu_risk"`
	AskQuestion       string `yaml:"ask_question"`
	EmptyQuestion     string `yaml:"empty_question"`
	TicketCreated     string `yaml:"ticket_created"`
	TicketAppended    string `yaml:"ticket_appended"`
	SubmitFailed      string `yaml:"submit_failed"`
	SessionExpired    string `yaml:"session_expired"`
	TicketLocked      string `yaml:"ticket_locked"`
	ReplyToUser       string `yaml:"reply_to_user"`
	RiskYes           string `yaml:"risk_yes"`
	RiskNo            string `yaml:"risk_no"`
	RiskInvalidAnswer string `yaml:"risk_invalid_answer"`
	RiskResultHigh    string `yaml:"risk_result_high"`
	RiskResultLow     string `yaml:"risk_result_low"`
	RiskFailed        string `yaml:"risk_failed"`
}

type Content struct {
	Zones             []string `yaml:"zones"`
	RiskQuestions     []string `yaml:"risk_questions"`
	RiskHighThreshold int      `yaml:"risk_high_threshold"`
	Texts             Texts    `yaml:"texts"`
}

// Default returns the embedded content.
func Default() *Content {
	c, err := Parse(defaultContent)
	if err != nil {
		panic(fmt.Sprintf("content: embedded content.yaml: %v", err))
	}
	return c
}

// Load reads path, or returns Default when path is empty.
func Load(path string) (*Content, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("content: read %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Content, error) {
	var c Content
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("content: parse: %w", err)
	}
	if c.RiskHighThreshold == 0 {
		c.RiskHighThreshold = 3
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Content) validate() error {
	if len(c.Zones) == 0 {
		return errors.New("content: at least one zone is required")
	}
	if len(c.RiskQuestions) == 0 {
		return errors.New("content: at least one risk question is required")
	}
	if c.Texts.Welcome == "" || c.Texts.Menu == "" || c.Texts.TicketCreated == "" {
		return errors.New("content: welcome, menu and ticket_created texts are required")
	}
	return nil
}

// HasZone reports whether zone is one of the fixed zones.
func (c *Content) HasZone(zone string) bool {
	return slices.Contains(c.Zones, zone)
}
