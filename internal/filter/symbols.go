package filter

import (
	"regexp"
	"strings"
)

type symbol struct {
	pattern *regexp.Regexp
	key     string
}

// Ordered so that multi-character operators win over their prefixes.
var symbols = []symbol{
	{regexp.MustCompile(`(?:->|=>|→)`), "to"},
	{regexp.MustCompile(`(?:<=|≤)`), "le"},
	{regexp.MustCompile(`(?:>=|≥)`), "ge"},
	{regexp.MustCompile(`(?:!=|≠)`), "ne"},
	{regexp.MustCompile(`<`), "lt"},
	{regexp.MustCompile(`>`), "gt"},
	{regexp.MustCompile(`±`), "pm"},
	{regexp.MustCompile(`\+`), "plus"},
	{regexp.MustCompile(`−`), "minus"},
	{regexp.MustCompile(`×`), "times"},
	{regexp.MustCompile(`÷`), "div"},
	{regexp.MustCompile(`=`), "eq"},
	{regexp.MustCompile(`%`), "pct"},
	{regexp.MustCompile(`&`), "and"},
}

var vocabulary = map[string]map[string]string{
	"en": {
		"to": "to", "le": "less than or equal to", "ge": "greater than or equal to",
		"ne": "not equal to", "lt": "less than", "gt": "greater than", "pm": "plus or minus",
		"plus": "plus", "minus": "minus", "times": "times", "div": "divided by",
		"eq": "equals", "pct": "percent", "and": "and",
	},
	"zh": {
		"to": "到", "le": "小于等于", "ge": "大于等于", "ne": "不等于", "lt": "小于",
		"gt": "大于", "pm": "正负", "plus": "加", "minus": "减", "times": "乘以",
		"div": "除以", "eq": "等于", "pct": "百分号", "and": "和",
	},
	"ja": {
		"to": "から", "le": "以下", "ge": "以上", "ne": "ノットイコール", "lt": "小なり",
		"gt": "大なり", "pm": "プラスマイナス", "plus": "プラス", "minus": "マイナス",
		"times": "かける", "div": "わる", "eq": "イコール", "pct": "パーセント", "and": "と",
	},
	"de": {
		"to": "bis", "le": "kleiner gleich", "ge": "größer gleich", "ne": "ungleich",
		"lt": "kleiner als", "gt": "größer als", "pm": "plus minus", "plus": "plus",
		"minus": "minus", "times": "mal", "div": "geteilt durch", "eq": "gleich",
		"pct": "Prozent", "and": "und",
	},
	"fr": {
		"to": "vers", "le": "inférieur ou égal à", "ge": "supérieur ou égal à",
		"ne": "différent de", "lt": "inférieur à", "gt": "supérieur à", "pm": "plus ou moins",
		"plus": "plus", "minus": "moins", "times": "fois", "div": "divisé par",
		"eq": "égal", "pct": "pour cent", "and": "et",
	},
	"es": {
		"to": "a", "le": "menor o igual que", "ge": "mayor o igual que", "ne": "distinto de",
		"lt": "menor que", "gt": "mayor que", "pm": "más o menos", "plus": "más",
		"minus": "menos", "times": "por", "div": "dividido entre", "eq": "igual a",
		"pct": "por ciento", "and": "y",
	},
}

// languageBase reduces a BCP 47 tag such as "zh-CN" to "zh".
func languageBase(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	if _, ok := vocabulary[tag]; !ok {
		return "en"
	}
	return tag
}

