package notify

import (
	"bytes"
	"text/template"
)

var messageTemplates = map[Kind]*template.Template{}

func init() {
	texts := map[Kind]string{
		KindJobCreated:    `Job #{{.JobID}} was posted by {{.Client}}.`,
		KindApplied:       `{{.Freelancer}} applied to job #{{.JobID}} and paid the application fee.`,
		KindSelected:      `{{.Freelancer}} was selected for job #{{.JobID}}.`,
		KindNotSelected:   `Another freelancer was selected for job #{{.JobID}}.`,
		KindWorkSubmitted: `{{.Freelancer}} submitted work for job #{{.JobID}}.`,
		KindWorkApproved:  `Work on job #{{.JobID}} was approved and the bounty released to {{.Freelancer}}.`,
		KindWorkRejected:  `Work on job #{{.JobID}} was rejected; {{.Freelancer}} can submit a revision.`,
		KindStoreChanged:  `Data changed in another session.`,
	}
	for k, text := range texts {
		messageTemplates[k] = template.Must(template.New(string(k)).Parse(text))
	}
}

// RenderMessage renders the user-facing text for e. Unknown kinds render empty.
func RenderMessage(e Event) (string, error) {
	tpl, ok := messageTemplates[e.Kind]
	if !ok {
		return "", nil
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, e); err != nil {
		return "", err
	}

	return buf.String(), nil
}
