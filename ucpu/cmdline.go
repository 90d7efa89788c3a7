package ucpu

import "github.com/viant/parsly"
import "github.com/viant/parsly/matcher"

// codes start at 1; 0 is whitespace
const (
	wordCode = iota + 1
	quotedCode
)

var (
	wsToken     = parsly.NewToken(0, "Whitespace", matcher.NewWhiteSpace())
	wordToken   = parsly.NewToken(wordCode, "Word", &wordMatcher{})
	quotedToken = parsly.NewToken(quotedCode, "Quoted", &quotedMatcher{})
)

func isblank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// a run of bytes up to a blank or a quote
type wordMatcher struct{}

func (m *wordMatcher) Match(cursor *parsly.Cursor) int {
	n := 0
	for i := cursor.Pos; i < cursor.InputSize; i++ {
		c := cursor.Input[i]
		if isblank(c) || c == '"' {
			break
		}
		n++
	}
	return n
}

// a double-quoted string; no escapes
type quotedMatcher struct{}

func (m *quotedMatcher) Match(cursor *parsly.Cursor) int {
	pos := cursor.Pos
	if pos >= cursor.InputSize || cursor.Input[pos] != '"' {
		return 0
	}
	for i := pos + 1; i < cursor.InputSize; i++ {
		if cursor.Input[i] == '"' {
			return i - pos + 1
		}
	}
	return 0
}

// splits a shell command line into words. double quotes group blanks into
// one word.
func Cmdline(line string) ([]string, error) {
	cursor := parsly.NewCursor("", []byte(line), 0)
	var ret []string
	for {
		matched := cursor.MatchAfterOptional(wsToken, quotedToken, wordToken)
		switch matched.Code {
		case wordCode:
			ret = append(ret, matched.Text(cursor))
		case quotedCode:
			q := matched.Text(cursor)
			ret = append(ret, q[1:len(q)-1])
		case parsly.EOF:
			return ret, nil
		default:
			return nil, cursor.NewError(quotedToken, wordToken)
		}
	}
}
