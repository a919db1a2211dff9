package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderGolden(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "plain",
			in:   "Battery is healthy.",
			want: "<p class=\"mb-4\">Battery is healthy.</p>",
		},
		{
			name: "headers",
			in:   "# Title\n## Section\n### Sub\n#### Detail\nText",
			want: "<p class=\"mb-4\"><h1 class=\"text-2xl font-bold mt-8 mb-6 text-foreground\">Title</h1><br><h2 class=\"text-xl font-bold mt-8 mb-4 text-foreground\">Section</h2><br><h3 class=\"text-lg font-semibold mt-6 mb-3 text-foreground\">Sub</h3><br><h4 class=\"text-base font-semibold mt-4 mb-2 text-foreground\">Detail</h4><br>Text</p>",
		},
		{
			name: "emphasis",
			in:   "**Bold** and *italic* and _under_ text",
			want: "<p class=\"mb-4\"><strong class=\"font-semibold text-foreground\">Bold</strong> and <em class=\"italic text-foreground\">italic</em> and <em class=\"italic text-foreground\">under</em> text</p>",
		},
		{
			name: "adjacent",
			in:   "***x*** stays",
			want: "<p class=\"mb-4\"><strong class=\"font-semibold text-foreground\"><em class=\"italic text-foreground\">x</strong></em> stays</p>",
		},
		{
			name: "codes",
			in:   "Run `make test` now.\n```\nblock code\n```",
			want: "<p class=\"mb-4\">Run <code class=\"bg-muted px-1 py-0.5 rounded text-sm font-mono text-foreground\">make test</code> now.<br><pre class=\"bg-muted p-3 rounded-md text-sm font-mono text-foreground overflow-x-auto mb-4\"><br>block code<br></pre></p>",
		},
		{
			name: "unordered",
			in:   "Findings:\n- one\n- two\n* three",
			want: "<p class=\"mb-4\">Findings:<br><ul class=\"mb-4 pl-4\"><li class=\"ml-4 mb-1 text-foreground list-disc\">one</li><br><li class=\"ml-4 mb-1 text-foreground list-disc\">two</li><br><li class=\"ml-4 mb-1 text-foreground list-disc\">three</li></ul>",
		},
		{
			name: "ordered",
			in:   "Steps:\n1. first\n2. second",
			want: "<p class=\"mb-4\">Steps:<br><ol class=\"mb-4 pl-4\"><li class=\"ml-4 mb-1 text-foreground list-decimal\">first</li><br><li class=\"ml-4 mb-1 text-foreground list-decimal\">second</li></ol>",
		},
		{
			name: "paragraphs",
			in:   "First para.\n\nSecond para\nline two.",
			want: "<p class=\"mb-4\">First para.</p><p class=\"mb-4\">Second para<br>line two.</p>",
		},
		{
			name: "report",
			in:   "## Summary\n\nSOC averaged **52.3%** over the period.\n\n### Risks\n- High *IGBT* temperature\n- Cell drift\n\n1. Inspect cooling\n2. Rebalance cells\n\n_Generated automatically_",
			want: "<p class=\"mb-4\"><h2 class=\"text-xl font-bold mt-8 mb-4 text-foreground\">Summary</h2></p><p class=\"mb-4\">SOC averaged <strong class=\"font-semibold text-foreground\">52.3%</strong> over the period.</p><p class=\"mb-4\"><h3 class=\"text-lg font-semibold mt-6 mb-3 text-foreground\">Risks</h3><br><ul class=\"mb-4 pl-4\"><li class=\"ml-4 mb-1 text-foreground list-disc\">High <em class=\"italic text-foreground\">IGBT</em> temperature</li><br><li class=\"ml-4 mb-1 text-foreground list-disc\">Cell drift</li><br><ol class=\"mb-4 pl-4\"><li class=\"ml-4 mb-1 text-foreground list-decimal\">Inspect cooling</li><br><li class=\"ml-4 mb-1 text-foreground list-decimal\">Rebalance cells</li></p><p class=\"mb-4\"></ol></ul><em class=\"italic text-foreground\">Generated automatically</em></p>",
		},
		{
			name: "fallback",
			in:   "**Note: This analysis used a safety prompt as fallback. Please restart the server to use the proper Regulations and Compliance prompt.**\n\nAll clear.",
			want: "<p class=\"mb-4\"><strong class=\"font-semibold text-foreground\">Note: This analysis used a safety prompt as fallback. Please restart the server to use the proper Regulations and Compliance prompt.</strong></p><p class=\"mb-4\">All clear.</p>",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Render(tc.in))
		})
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	in := "## A\n\n- x\n- y\n\n**b** _c_"
	assert.Equal(t, Render(in), Render(in))
}
