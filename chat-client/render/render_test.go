package render

import (
	"strings"
	"testing"
)

func TestStripMarkup(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"hello", "hello"},
		{"<b>hi</b>", "hi"},
		{"<p>one <i>two</i></p>", "one two"},
		{"<script>alert(1)</script>ok", "ok"},
		{"&lt;b&gt;", "<b>"},
		{"fish & chips", "fish & chips"},
		{`say "hi"`, `say "hi"`},
		{"a < b", "a < b"},
	}
	for _, tc := range cases {
		if got := StripMarkup(tc.in); got != tc.want {
			t.Errorf("StripMarkup(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAvatarURL(t *testing.T) {
	if got, want := AvatarURL("", "alice"), "http://www.gravatar.com/avatar/6384e2b2184bcbf58eccf10ca7a6563c"; got != want {
		t.Fatalf("AvatarURL = %q, want %q", got, want)
	}
	if got, want := AvatarURL("https://avatars.example/", "bob"), "https://avatars.example/9f9d51bc70ef21ca5c14f307980a29d8"; got != want {
		t.Fatalf("AvatarURL = %q, want %q", got, want)
	}
}

func TestEmojifierShortcode(t *testing.T) {
	e := Emojifier{CDN: "https://cdn.test/png"}
	got := string(e.ToImage("hey :smile:!"))
	want := `hey <img class="emojione" alt="😄" title=":smile:" src="https://cdn.test/png/1f604.png"/>!`
	if got != want {
		t.Fatalf("ToImage = %q, want %q", got, want)
	}
}

func TestEmojifierUnknownShortcodeIsText(t *testing.T) {
	e := Emojifier{}
	if got := string(e.ToImage("at 10:30:00 :notanemoji:")); got != "at 10:30:00 :notanemoji:" {
		t.Fatalf("ToImage = %q", got)
	}
}

func TestEmojifierASCII(t *testing.T) {
	on := Emojifier{CDN: "https://cdn.test/", ASCII: true}
	got := string(on.ToImage("hi :)"))
	want := `hi <img class="emojione" alt="🙂" title=":slight_smile:" src="https://cdn.test/1f642.png"/>`
	if got != want {
		t.Fatalf("ToImage = %q, want %q", got, want)
	}

	// Emoticons glued to words are left alone.
	if got := string(on.ToImage("http://x a:D")); got != "http://x a:D" {
		t.Fatalf("ToImage = %q", got)
	}

	off := Emojifier{}
	if got := string(off.ToImage("hi :)")); got != "hi :)" {
		t.Fatalf("ASCII off: ToImage = %q", got)
	}
}

func TestEmojifierUnicode(t *testing.T) {
	e := Emojifier{CDN: "https://cdn.test/"}
	got := string(e.ToImage("ok 👍"))
	if !strings.Contains(got, `src="https://cdn.test/1f44d.png"`) || !strings.Contains(got, `alt="👍"`) {
		t.Fatalf("ToImage = %q", got)
	}
	if !strings.HasPrefix(got, "ok <img") {
		t.Fatalf("ToImage = %q", got)
	}

	flag := string(e.ToImage("🇰🇷"))
	if !strings.Contains(flag, `src="https://cdn.test/1f1f0-1f1f7.png"`) {
		t.Fatalf("flag: ToImage = %q", flag)
	}

	heart := string(e.ToImage("❤️"))
	if !strings.Contains(heart, `src="https://cdn.test/2764.png"`) {
		t.Fatalf("heart: ToImage = %q", heart)
	}
}

func TestEmojifierLeavesPlainSymbols(t *testing.T) {
	e := Emojifier{CDN: "https://cdn.test/"}
	for _, in := range []string{"✓ done", "⌘K", "☐ todo", "next ➔"} {
		if got := string(e.ToImage(in)); got != in {
			t.Errorf("ToImage(%q) = %q", in, got)
		}
	}

	got := string(e.ToImage("✓ vs ✔"))
	want := `✓ vs <img class="emojione" alt="✔" title=":check_mark:" src="https://cdn.test/2714.png"/>`
	if got != want {
		t.Fatalf("ToImage = %q, want %q", got, want)
	}
}

func TestEmojifierEscapesText(t *testing.T) {
	e := Emojifier{}
	if got := string(e.ToImage(`<b>&"`)); got != "&lt;b&gt;&amp;&#34;" {
		t.Fatalf("ToImage = %q", got)
	}
}

func TestRendererFragment(t *testing.T) {
	r := NewRenderer()
	r.Emoji.CDN = "https://cdn.test/"
	got := string(r.Fragment("alice", "hi :)"))
	want := `<div class="chip"><img src="http://www.gravatar.com/avatar/6384e2b2184bcbf58eccf10ca7a6563c">alice</div>` +
		`hi <img class="emojione" alt="🙂" title=":slight_smile:" src="https://cdn.test/1f642.png"/><br/>`
	if got != want {
		t.Fatalf("Fragment =\n%q\nwant\n%q", got, want)
	}
}
