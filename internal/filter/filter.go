// Package filter turns a markdown document into speakable text and splits it
// into chunks, keeping the original offset of every spoken character.
package filter

import (
	"regexp"

	"github.com/loqalabs/loqa-reader/internal/tracked"
)

// Options toggles the optional stages. Link captions, media, emoji, tables and
// markdown markers are always normalized.
type Options struct {
	Frontmatter  bool
	Code         bool
	Math         bool
	EditorSyntax bool
	// KeepURLs keeps bare URLs in the text. Links always collapse to their caption.
	KeepURLs bool
	// Language selects the vocabulary used to verbalize symbols (BCP 47 tag).
	Language string
}

// DefaultOptions strips everything that is not prose.
func DefaultOptions() Options {
	return Options{
		Frontmatter:  true,
		Code:         true,
		Math:         true,
		EditorSyntax: true,
		Language:     "en",
	}
}

type stage func(tracked.Text) tracked.Text

func remove(re *regexp.Regexp) stage {
	return func(t tracked.Text) tracked.Text { return t.Remove(re) }
}

func replace(re *regexp.Regexp, repl string) stage {
	return func(t tracked.Text) tracked.Text { return t.Replace(re, repl) }
}

func keep(re *regexp.Regexp) stage {
	return func(t tracked.Text) tracked.Text { return t.KeepGroup1(re) }
}

var (
	reFrontmatter = regexp.MustCompile(`(?s)\A---[ \t]*\r?\n.*?\r?\n---[ \t]*(?:\r?\n|\z)`)

	reFenceBacktick = regexp.MustCompile("(?ms)^[ \\t]*```.*?^[ \\t]*```[^\\n]*$")
	reFenceTilde    = regexp.MustCompile(`(?ms)^[ \t]*~~~.*?^[ \t]*~~~[^\n]*$`)
	reInlineCode    = regexp.MustCompile("`[^`\\n]+`")

	reMathBlock  = regexp.MustCompile(`(?s)\$\$.*?\$\$`)
	reMathInline = regexp.MustCompile(`\$[^\s$](?:[^$\n]*[^\s$])?\$`)

	reComment     = regexp.MustCompile(`(?s)%%.*?%%`)
	reHTMLComment = regexp.MustCompile(`(?s)<!--.*?-->`)
	// Attributes must carry a value so that prose such as "a <b and c> d" survives.
	reHTMLTag     = regexp.MustCompile(`</?[A-Za-z][A-Za-z0-9-]*(?:\s+[A-Za-z_:][\w:.-]*\s*=\s*(?:"[^"\n]*"|'[^'\n]*'|[^\s"'<>]+))*\s*/?>`)
	reBlockID     = regexp.MustCompile(`(?m)[ \t]+\^[A-Za-z0-9-]+[ \t]*$`)
	reCallout     = regexp.MustCompile(`(?m)^((?:[ \t]*>)+[ \t]*)\[![A-Za-z0-9_-]+\][+-]?[ \t]*`)
	reTag         = regexp.MustCompile(`(?m)(^|[ \t])#[\p{L}_][\p{L}\p{N}_/-]*`)

	reEmbedWiki     = regexp.MustCompile(`!\[\[[^\]\n]*\]\]`)
	reEmbedMarkdown = regexp.MustCompile(`!\[[^\]\n]*\]\([^)\n]*\)`)
	reLink          = regexp.MustCompile(`\[([^\]\n]+)\]\([^)\n]*\)`)
	reWikiAlias     = regexp.MustCompile(`\[\[[^\]|\n]+\|([^\]\n]+)\]\]`)
	reWikiLink      = regexp.MustCompile(`\[\[([^\]|#\n]+)(?:#[^\]\n]*)?\]\]`)
	reWikiHeading   = regexp.MustCompile(`\[\[#([^\]\n]+)\]\]`)
	reRefLink       = regexp.MustCompile(`\[([^\]\n]+)\]\[[^\]\n]*\]`)
	reRefDef        = regexp.MustCompile(`(?m)^[ \t]*\[[^\]\n]+\]:[ \t]*\S+[^\n]*$`)
	reFootnote      = regexp.MustCompile(`\[\^[^\]\n]+\]`)
	reBareURL       = regexp.MustCompile(`https?://[^\s)>\]]+`)

	reMedia = regexp.MustCompile(`(?i)[\w./-]+\.(?:png|jpe?g|gif|svg|webp|bmp|mp3|mp4|wav|ogg|webm|mov|pdf)\b`)
	reEmoji = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{2B00}-\x{2BFF}\x{FE0F}\x{200D}\x{20E3}]`)

	reTableSeparator = regexp.MustCompile(`(?m)^[ \t]*\|?(?:[ \t]*:?-{3,}:?[ \t]*\|)+(?:[ \t]*:?-{3,}:?[ \t]*)?$\n?`)
	reTableLead      = regexp.MustCompile(`(?m)^[ \t]*\|[ \t]*`)
	reTableTrail     = regexp.MustCompile(`(?m)[ \t]*\|[ \t]*$`)
	reTableCell      = regexp.MustCompile(`[ \t]*\|[ \t]*`)

	reCommaRun   = regexp.MustCompile(`,(?:[ \t]*,)+`)
	reCommaLead  = regexp.MustCompile(`(?m)^[ \t]*,[ \t]*`)
	reCommaSpace = regexp.MustCompile(`[ \t]+,`)

	reMarkerLine = regexp.MustCompile(`(?m)^[ \t]*[-*_=+#>|:~][-*_=+#>|:~ \t]*$`)
	reHighlight  = regexp.MustCompile(`==`)
	reFormatting = regexp.MustCompile("[*_`~]+")
	reSpace      = regexp.MustCompile(`[\t\x{00A0}\x{2000}-\x{200A}\x{202F}\x{3000}]`)

	reQuote   = regexp.MustCompile(`(?m)^[ \t]*(?:>[ \t]?)+`)
	reHeading = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`)
	reList    = regexp.MustCompile(`(?m)^[ \t]*(?:[-+]|\d+[.)])[ \t]+(?:\[[ xX]\][ \t]+)?`)

	reSpaceRun   = regexp.MustCompile(`[ \t]{2,}`)
	reLineLead   = regexp.MustCompile(`(?m)^[ \t]+`)
	reLineTrail  = regexp.MustCompile(`(?m)[ \t]+$`)
	reBlankLines = regexp.MustCompile(`\n{3,}`)
	reCR         = regexp.MustCompile(`\r`)
)

// Pipeline is a compiled, fixed sequence of stages for one set of options.
type Pipeline struct {
	opts   Options
	stages []stage
}

// New builds the pipeline for opts.
func New(opts Options) *Pipeline {
	var s []stage
	s = append(s, remove(reCR))
	if opts.Frontmatter {
		s = append(s, remove(reFrontmatter))
	}
	if opts.Code {
		s = append(s, remove(reFenceBacktick), remove(reFenceTilde), remove(reInlineCode))
	}
	if opts.Math {
		s = append(s, remove(reMathBlock), remove(reMathInline))
	}
	if opts.EditorSyntax {
		s = append(s,
			remove(reComment),
			remove(reHTMLComment),
			remove(reHTMLTag),
			remove(reBlockID),
			keep(reCallout),
			keep(reTag),
		)
	}

	// Embeds go first so their alt text is not taken for a caption.
	s = append(s,
		remove(reEmbedWiki),
		remove(reEmbedMarkdown),
		keep(reLink),
		keep(reWikiAlias),
		keep(reWikiLink),
		keep(reWikiHeading),
		keep(reRefLink),
		remove(reRefDef),
		remove(reFootnote),
	)
	if !opts.KeepURLs {
		s = append(s, remove(reBareURL))
	}

	s = append(s,
		remove(reMedia),
		remove(reEmoji),
		remove(reTableSeparator),
		remove(reTableLead),
		remove(reTableTrail),
		replace(reTableCell, ", "),
		replace(reCommaRun, ","),
		remove(reCommaLead),
		replace(reCommaSpace, ","),
		remove(reMarkerLine),
		remove(reHighlight),
		remove(reFormatting),
		replace(reSpace, " "),
		remove(reQuote),
		remove(reHeading),
		remove(reList),
		replace(reSpace, " "),
		verbalize(languageBase(opts.Language)),
		replace(reSpaceRun, " "),
		remove(reLineLead),
		remove(reLineTrail),
		replace(reBlankLines, "\n\n"),
		func(t tracked.Text) tracked.Text { return t.TrimSpace() },
	)
	return &Pipeline{opts: opts, stages: s}
}

// Apply runs the pipeline over src. Map entries are rune offsets into src.
func (p *Pipeline) Apply(src string) tracked.Text {
	t := tracked.New(src, 0)
	for _, st := range p.stages {
		t = st(t)
	}
	return t
}

// Apply is a convenience for New(opts).Apply(src).
func Apply(src string, opts Options) tracked.Text {
	return New(opts).Apply(src)
}

func verbalize(lang string) stage {
	words := vocabulary[lang]
	return func(t tracked.Text) tracked.Text {
		for _, sym := range symbols {
			t = t.Replace(sym.pattern, " "+words[sym.key]+" ")
		}
		return t
	}
}
