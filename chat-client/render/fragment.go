// Package render turns chat records into the HTML fragments shown in the
// transcript: avatar chip, user name and emoji-substituted message.
package render

import (
	"bytes"
	"html/template"

	"github.com/rs/zerolog/log"
)

var fragmentTmpl = template.Must(template.New("fragment").Parse(
	`<div class="chip"><img src="{{.Avatar}}">{{.Username}}</div>{{.Message}}<br/>`))

// Renderer builds transcript fragments.
type Renderer struct {
	AvatarBase string
	Emoji      Emojifier
}

// NewRenderer returns a Renderer using Gravatar avatars and EmojiOne images
// with ASCII smiley conversion enabled.
func NewRenderer() *Renderer {
	return &Renderer{
		AvatarBase: DefaultAvatarURL,
		Emoji:      Emojifier{CDN: DefaultEmojiCDN, ASCII: true},
	}
}

// Fragment renders one inbound record. The username is inserted verbatim;
// the message goes through the emoji pass, which escapes everything else.
func (r *Renderer) Fragment(username, message string) template.HTML {
	var buf bytes.Buffer
	err := fragmentTmpl.Execute(&buf, struct {
		Avatar   string
		Username template.HTML
		Message  template.HTML
	}{
		Avatar:   AvatarURL(r.AvatarBase, username),
		Username: template.HTML(username),
		Message:  r.Emoji.ToImage(message),
	})
	if err != nil {
		log.Error().Err(err).Msg("[render] fragment template")
		return ""
	}
	return template.HTML(buf.String())
}
