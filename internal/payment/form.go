package payment

import (
	"bytes"
	"html/template"
	"net/url"
	"sort"
)

var autoSubmitForm = template.Must(template.New("form").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Redirecting to payment</title></head>
<body onload="document.forms[0].submit()">
<form method="POST" action="{{.Action}}">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<noscript><button type="submit">Continue to payment</button></noscript>
</form>
</body>
</html>
`))

// renderForm produces a self-submitting HTML form. Field order is preserved.
func renderForm(action string, fields []FormField) (string, error) {
	var buf bytes.Buffer
	err := autoSubmitForm.Execute(&buf, struct {
		Action string
		Fields []FormField
	}{Action: action, Fields: fields})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formInitiation(m Method, action string, fields []FormField, reference string) (Initiation, error) {
	html, err := renderForm(action, fields)
	if err != nil {
		return Initiation{}, err
	}
	return Initiation{
		Method:     m,
		FormHTML:   html,
		FormAction: action,
		Fields:     fields,
		Reference:  reference,
	}, nil
}

// FormOrigins returns the scheme://host of every form-post gateway among
// providers, for the Content-Security-Policy form-action list.
func FormOrigins(providers ...Provider) []string {
	seen := map[string]struct{}{}
	for _, p := range providers {
		f, ok := p.(interface{ FormAction() string })
		if !ok {
			continue
		}
		u, err := url.Parse(f.FormAction())
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		seen[u.Scheme+"://"+u.Host] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for o := range seen {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}
