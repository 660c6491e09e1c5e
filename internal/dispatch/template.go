package dispatch

import (
	"fmt"
	"strings"
	"text/template"
)

// RenderMessage expands a campaign template against one recipient's
// variables. The recipient name is always available as {{.name}}. A variable
// the template references but the recipient lacks is an error, not an empty
// send.
func RenderMessage(body, recipientName string, vars map[string]string) (string, error) {
	tmpl, err := template.New("message").Option("missingkey=error").Parse(body)
	if err != nil {
		return "", fmt.Errorf("dispatch: parse template: %w", err)
	}

	data := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		data[k] = v
	}
	if _, ok := data["name"]; !ok {
		data["name"] = recipientName
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("dispatch: render template: %w", err)
	}
	return sb.String(), nil
}
