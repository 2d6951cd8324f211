package cmd

import (
	"github.com/AlecAivazis/survey/v2"
)

// prompter asks the user for input. surveyPrompter is the terminal
// implementation; tests script it.
type prompter interface {
	Input(message, help string) (string, error)
	Password(message string) (string, error)
	Confirm(message string, def bool) (bool, error)
}

type surveyPrompter struct{}

func (surveyPrompter) Input(message, help string) (string, error) {
	var answer string
	err := survey.AskOne(&survey.Input{Message: message, Help: help}, &answer)
	return answer, err
}

func (surveyPrompter) Password(message string) (string, error) {
	var answer string
	err := survey.AskOne(&survey.Password{Message: message}, &answer)
	return answer, err
}

func (surveyPrompter) Confirm(message string, def bool) (bool, error) {
	answer := def
	err := survey.AskOne(&survey.Confirm{Message: message, Default: def}, &answer)
	return answer, err
}
