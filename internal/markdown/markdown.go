// Package markdown renders AI analysis text to the HTML fragment the
// dashboard styles. It is a fixed sequence of regex passes, not a markdown
// parser: the output for a given input is a compatibility contract, nested
// constructs included.
package markdown

import (
	"regexp"

	"github.com/dlclark/regexp2"
	"github.com/rs/zerolog/log"
)

const (
	classH4     = `text-base font-semibold mt-4 mb-2 text-foreground`
	classH3     = `text-lg font-semibold mt-6 mb-3 text-foreground`
	classH2     = `text-xl font-bold mt-8 mb-4 text-foreground`
	classH1     = `text-2xl font-bold mt-8 mb-6 text-foreground`
	classStrong = `font-semibold text-foreground`
	classEm     = `italic text-foreground`
	classPre    = `bg-muted p-3 rounded-md text-sm font-mono text-foreground overflow-x-auto mb-4`
	classCode   = `bg-muted px-1 py-0.5 rounded text-sm font-mono text-foreground`
	classLiUL   = `ml-4 mb-1 text-foreground list-disc`
	classLiOL   = `ml-4 mb-1 text-foreground list-decimal`
	classList   = `mb-4 pl-4`
	classP      = `mb-4`

	openP = `<p class="` + classP + `">`
)

type pass struct {
	re   *regexp.Regexp
	repl string
}

func p(expr, repl string) pass { return pass{re: regexp.MustCompile(expr), repl: repl} }

// RE2 has no lookbehind, so the single-asterisk italic pass runs on regexp2.
var italicStar = regexp2.MustCompile(`(?<!\*)\*([^*]+)\*(?!\*)`, regexp2.None)

var (
	headerPasses = []pass{
		p(`(?m)^#### (.*)$`, `<h4 class="`+classH4+`">${1}</h4>`),
		p(`(?m)^### (.*)$`, `<h3 class="`+classH3+`">${1}</h3>`),
		p(`(?m)^## (.*)$`, `<h2 class="`+classH2+`">${1}</h2>`),
		p(`(?m)^# (.*)$`, `<h1 class="`+classH1+`">${1}</h1>`),
		p(`\*\*(.*?)\*\*`, `<strong class="`+classStrong+`">${1}</strong>`),
	}

	bodyPasses = []pass{
		p(`_([^_]+)_`, `<em class="`+classEm+`">${1}</em>`),
		p("```([^`]+)```", `<pre class="`+classPre+`">${1}</pre>`),
		p("`([^`\\n]+)`", `<code class="`+classCode+`">${1}</code>`),
		p(`(?m)^\s*[-*+]\s+(.*)$`, `<li class="`+classLiUL+`">${1}</li>`),
		p(`(?m)^\s*\d+\.\s+(.*)$`, `<li class="`+classLiOL+`">${1}</li>`),
		p(`(?s)(<li class="`+classLiUL+`">.*</li>\s*)+`, `<ul class="`+classList+`">${0}</ul>`),
		p(`(?s)(<li class="`+classLiOL+`">.*</li>\s*)+`, `<ol class="`+classList+`">${0}</ol>`),
		p(`\n\s*\n`, `</p>`+openP),
		p(`\n`, `<br>`),
	}

	cleanupPasses = []pass{
		p(regexp.QuoteMeta(openP+`</p>`), ``),
		p(regexp.QuoteMeta(openP)+`\s*<br>`, openP),
		p(`<br>\s*</p>`, `</p>`),
		p(regexp.QuoteMeta(openP)+`(<[uo]l class="`+classList+`">)`, `${1}`),
		p(`(</[uo]l>)</p>`, `${1}`),
	}
)

func apply(s string, passes []pass) string {
	for _, ps := range passes {
		s = ps.re.ReplaceAllString(s, ps.repl)
	}
	return s
}

// Render converts markdown to an HTML fragment.
func Render(md string) string {
	html := apply(md, headerPasses)

	if out, err := italicStar.ReplaceFunc(html, func(m regexp2.Match) string {
		return `<em class="` + classEm + `">` + m.GroupByNumber(1).String() + `</em>`
	}, -1, -1); err == nil {
		html = out
	} else {
		log.Warn().Err(err).Msg("italic pass skipped")
	}

	html = apply(html, bodyPasses)
	html = openP + html + `</p>`
	return apply(html, cleanupPasses)
}
