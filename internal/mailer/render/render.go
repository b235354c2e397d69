// Package render produces localized invitation email copy.
package render

import (
	"html"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const defaultGroupName = "Katalyst"

func init() {
	es := language.MustParse("es")
	for _, entry := range [][2]string{
		{"Invitation to join %s", "Invitación para unirte a %s"},
		{"Hello,", "Hola,"},
		{"Hello %s,", "Hola %s,"},
		{"You have been invited to join %s on Katalyst Dashboard.", "Te han invitado a unirte a %s en Katalyst Dashboard."},
		{"Sign in with this email address and accept the invitation below.", "Inicia sesión con este correo y acepta la invitación aquí abajo."},
		{"Create your account with this email address to get started.", "Crea tu cuenta con este correo para comenzar."},
		{"Accept invitation", "Aceptar invitación"},
		{"If you were not expecting this invitation you can ignore this email.", "Si no esperabas esta invitación puedes ignorar este correo."},
	} {
		if err := message.SetString(es, entry[0], entry[1]); err != nil {
			panic(err)
		}
	}
}

// Input carries the variable copy for one invitation email.
type Input struct {
	InviteeName string
	GroupName   string
	Link        string
	// KnownInvitee selects the returning-user copy instead of the
	// create-account copy. It varies wording only, never behavior.
	KnownInvitee bool
}

// Output is the rendered subject and HTML body.
type Output struct {
	Subject string
	HTML    string
}

// Invitation renders the invitation email for a locale. Unknown locales
// fall back to English.
func Invitation(locale string, input Input) Output {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	p := message.NewPrinter(tag)

	groupName := strings.TrimSpace(input.GroupName)
	if groupName == "" {
		groupName = defaultGroupName
	}

	greeting := p.Sprintf("Hello,")
	if name := strings.TrimSpace(input.InviteeName); name != "" {
		greeting = p.Sprintf("Hello %s,", html.EscapeString(name))
	}

	nextStep := p.Sprintf("Create your account with this email address to get started.")
	if input.KnownInvitee {
		nextStep = p.Sprintf("Sign in with this email address and accept the invitation below.")
	}

	var body strings.Builder
	body.WriteString("<p>" + greeting + "</p>")
	body.WriteString("<p>" + p.Sprintf("You have been invited to join %s on Katalyst Dashboard.", html.EscapeString(groupName)) + "</p>")
	body.WriteString("<p>" + nextStep + "</p>")
	body.WriteString(`<p><a href="` + html.EscapeString(input.Link) + `">` + p.Sprintf("Accept invitation") + "</a></p>")
	body.WriteString("<p>" + p.Sprintf("If you were not expecting this invitation you can ignore this email.") + "</p>")

	return Output{
		Subject: p.Sprintf("Invitation to join %s", groupName),
		HTML:    body.String(),
	}
}
