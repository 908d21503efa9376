package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/mailtls/mailtls/internal/securechannel"
)

// surveySelector asks the user to choose the client certificate.
type surveySelector struct {
	ask func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error
}

var _ securechannel.AliasSelector = &surveySelector{}

func newSurveySelector() *surveySelector {
	return &surveySelector{ask: survey.AskOne}
}

// SelectAlias implements securechannel.AliasSelector.
func (s *surveySelector) SelectAlias(ctx context.Context,
	request *securechannel.InteractiveSelectionRequiredError, candidates []string) (string, error) {
	message := fmt.Sprintf("%s asks for a client certificate", request.Destination)
	if len(request.Issuers) > 0 {
		message += fmt.Sprintf(" issued by %s", strings.Join(request.Issuers, " or "))
	}
	prompt := &survey.Select{
		Message: message,
		Options: candidates,
		Help:    "use `mailtls certs import` to add more certificates",
	}
	var alias string
	err := s.ask(prompt, &alias)
	if errors.Is(err, terminal.InterruptErr) {
		return "", securechannel.ErrSelectionCancelled
	}
	if err != nil {
		return "", err
	}
	return alias, nil
}
