package ui

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
)

// Confirmer asks the user a yes/no question
type Confirmer interface {
	Confirm(message string) (bool, error)
}

// SurveyConfirmer prompts on the terminal
type SurveyConfirmer struct{}

// Confirm implements Confirmer
func (SurveyConfirmer) Confirm(message string) (bool, error) {
	answer := false
	prompt := &survey.Confirm{Message: message, Default: false}
	if err := survey.AskOne(prompt, &answer); err != nil {
		return false, err
	}
	return answer, nil
}

// ConfirmOverwrite reports whether path may be written. Paths that do not
// exist and runs with assumeYes need no prompt.
func ConfirmOverwrite(c Confirmer, path string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return true, nil
	}
	return c.Confirm(fmt.Sprintf("%s already exists. Overwrite?", path))
}
