package query

import (
	"fmt"
	"strings"

	"github.com/sqlchat/sqlchat/internal/database"
)

var readOnlyPrefixes = map[string]bool{
	"select":   true,
	"with":     true,
	"show":     true,
	"describe": true,
	"desc":     true,
	"explain":  true,
}

// explainOptions may sit between EXPLAIN and the statement it plans.
var explainOptions = map[string]bool{
	"analyze": true, "analyse": true, "verbose": true, "extended": true, "partitions": true,
	"format": true, "json": true, "text": true, "tree": true, "traditional": true, "yaml": true, "xml": true,
	"costs": true, "buffers": true, "timing": true, "summary": true, "settings": true, "wal": true,
	"true": true, "false": true, "on": true, "off": true,
}

// writeKeywords are reserved words that modify data wherever they appear,
// e.g. inside a CTE.
var writeKeywords = map[string]bool{
	"insert": true,
	"update": true,
	"delete": true,
	"drop":   true,
	"create": true,
	"alter":  true,
}

// lexRules describe how a dialect quotes strings and writes comments.
type lexRules struct {
	backslashEscapes   bool
	backtickQuotes     bool
	dollarQuotes       bool
	dashNeedsSpace     bool
	executableComments bool
}

func rulesFor(dialect database.Dialect) lexRules {
	if dialect.Driver == database.DriverMySQL {
		return lexRules{backslashEscapes: true, backtickQuotes: true, dashNeedsSpace: true, executableComments: true}
	}
	return lexRules{dollarQuotes: true}
}

func checkReadOnly(sqlText string, dialect database.Dialect) error {
	scanned := scanSQL(sqlText, rulesFor(dialect))
	switch {
	case scanned.unterminated:
		return fmt.Errorf("%w: unterminated quote or comment", ErrNotAllowed)
	case !isReadOnlyStatement(scanned.words):
		return fmt.Errorf("%w: only read-only SELECT/WITH/SHOW/DESCRIBE/EXPLAIN statements are allowed", ErrNotAllowed)
	case scanned.multiple:
		return fmt.Errorf("%w: multiple statements are not allowed", ErrNotAllowed)
	}
	if word := writeKeyword(scanned.words); word != "" {
		return fmt.Errorf("%w: %s is not allowed in a read-only statement", ErrNotAllowed, strings.ToUpper(word))
	}
	return nil
}

// isReadOnlyStatement checks the leading keyword. EXPLAIN is only accepted
// when the statement it plans is itself read-only, since EXPLAIN ANALYZE
// executes it.
func isReadOnlyStatement(words []string) bool {
	if len(words) == 0 || !readOnlyPrefixes[words[0]] {
		return false
	}
	if words[0] != "explain" {
		return true
	}
	rest := words[1:]
	for len(rest) > 0 && explainOptions[rest[0]] {
		rest = rest[1:]
	}
	return isReadOnlyStatement(rest)
}

func writeKeyword(words []string) string {
	for i, word := range words {
		if !writeKeywords[word] {
			continue
		}
		// SELECT ... FOR UPDATE / FOR NO KEY UPDATE only takes row locks.
		if word == "update" && i > 0 && (words[i-1] == "for" || words[i-1] == "key") {
			continue
		}
		return word
	}
	return ""
}

type scanResult struct {
	// words are the lower-cased bare words outside quotes and comments.
	words []string
	// multiple is set when anything but whitespace or comments follows a ';'.
	multiple     bool
	unterminated bool
}

// scanSQL tokenizes just enough of a statement to find its keywords and
// statement separators. Trailing semicolons must already be stripped.
func scanSQL(sqlText string, rules lexRules) scanResult {
	var (
		res       scanResult
		separated bool
	)
	n := len(sqlText)
	token := func() {
		if separated {
			res.multiple = true
		}
	}
	for i := 0; i < n; {
		c := sqlText[i]
		switch {
		case c == '\'' || c == '"' || (c == '`' && rules.backtickQuotes):
			end, ok := closeQuote(sqlText, i, rules.backslashEscapes && c != '`')
			if !ok {
				res.unterminated = true
				return res
			}
			token()
			i = end
		case c == '$' && rules.dollarQuotes && dollarTag(sqlText[i:]) != "":
			tag := dollarTag(sqlText[i:])
			end := strings.Index(sqlText[i+len(tag):], tag)
			if end < 0 {
				res.unterminated = true
				return res
			}
			token()
			i += len(tag) + end + len(tag)
		case c == '-' && i+1 < n && sqlText[i+1] == '-' && (!rules.dashNeedsSpace || i+2 >= n || isSpace(sqlText[i+2])):
			end := strings.IndexByte(sqlText[i:], '\n')
			if end < 0 {
				return res
			}
			i += end + 1
		case c == '/' && i+1 < n && sqlText[i+1] == '*':
			if rules.executableComments && i+2 < n && sqlText[i+2] == '!' {
				// MySQL runs the body of /*! ... */ as code.
				i += 3
				continue
			}
			end := strings.Index(sqlText[i+2:], "*/")
			if end < 0 {
				res.unterminated = true
				return res
			}
			i += end + 4
		case c == ';':
			separated = true
			i++
		case isSpace(c):
			i++
		case isWordByte(c):
			start := i
			for i < n && isWordByte(sqlText[i]) {
				i++
			}
			token()
			res.words = append(res.words, strings.ToLower(sqlText[start:i]))
		default:
			token()
			i++
		}
	}
	return res
}

// closeQuote returns the index just past the quote opened at start. A doubled
// quote character is an escaped quote in every dialect.
func closeQuote(sqlText string, start int, backslashEscapes bool) (int, bool) {
	quote := sqlText[start]
	for j := start + 1; j < len(sqlText); j++ {
		switch sqlText[j] {
		case '\\':
			if backslashEscapes {
				j++
			}
		case quote:
			if j+1 < len(sqlText) && sqlText[j+1] == quote {
				j++
				continue
			}
			return j + 1, true
		}
	}
	return 0, false
}

// dollarTag returns the opening delimiter of a dollar-quoted string ($$ or
// $tag$), or "" when s does not start one. Positional parameters such as $1
// are not tags.
func dollarTag(s string) string {
	for j := 1; j < len(s); j++ {
		c := s[j]
		switch {
		case c == '$':
			return s[:j+1]
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case c >= '0' && c <= '9' && j > 1:
		default:
			return ""
		}
	}
	return ""
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c >= 0x80
}
