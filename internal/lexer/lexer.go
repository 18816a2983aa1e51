package lexer

import (
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gnoswap-labs/metapy/internal/diag"
	"github.com/gnoswap-labs/metapy/internal/token"
)

const tabSize = 8

// operators lists every multi-character operator, longest first per
// leading byte. Single characters are looked up in singleOps.
var operators = []string{
	"**=", "//=", ">>=", "<<=", "...",
	"**", "//", "<<", ">>", "<=", ">=", "==", "!=", "->",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "@=",
}

const singleOps = "+-*/%&|^~<>()[]{},:.;@=`"

var openers = map[byte]bool{'(': true, '[': true, '{': true}
var closers = map[byte]bool{')': true, ']': true, '}': true}

// Lex splits src into tokens following Python tokenizer rules: NEWLINE ends a
// logical line, NL marks blank lines and line breaks inside brackets, and
// indentation changes produce INDENT and DEDENT. Characters outside the
// grammar, including the `$` and `?` escape markers, become ERRORTOKEN.
//
// The returned slice always ends with ENDMARKER. Input that stops inside
// brackets is not a lex error; the structural readers report it against the
// opening bracket.
func Lex(filename, src string) ([]token.Token, error) {
	l := &lexer{
		filename: filename,
		src:      src,
		lineNo:   1,
		indents:  []int{0},
	}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.toks, nil
}

// LexFile reads and tokenizes the file at path.
func LexFile(path string) ([]token.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Lex(path, string(data))
}

type lexer struct {
	filename  string
	src       string
	pos       int
	lineNo    int
	lineStart int
	depth     int
	indents   []int
	toks      []token.Token

	// pending is set once a token of the current logical line is emitted.
	pending bool
}

func (l *lexer) run() error {
	continued := false
	for l.pos < len(l.src) {
		if l.depth == 0 && !continued {
			done, err := l.beginLine()
			if err != nil {
				return err
			}
			if done {
				continue
			}
		}
		continued = false

		var err error
		continued, err = l.scanLine()
		if err != nil {
			return err
		}
	}
	l.finish()
	return nil
}

// beginLine handles the beginning of a logical line: blank and comment-only
// lines and indentation. It reports true when the whole physical line was
// consumed.
func (l *lexer) beginLine() (bool, error) {
	col, p := 0, l.pos
measure:
	for ; p < len(l.src); p++ {
		switch l.src[p] {
		case ' ':
			col++
		case '\t':
			col = (col/tabSize + 1) * tabSize
		case '\f':
			col = 0
		default:
			break measure
		}
	}
	if p >= len(l.src) {
		l.pos = p
		return true, nil
	}

	switch l.src[p] {
	case '#':
		end := l.eol(p)
		l.emit(token.COMMENT, p, end)
		l.pos = end
		if end < len(l.src) {
			l.newline(token.NL)
		}
		return true, nil
	case '\r', '\n':
		l.pos = p
		l.newline(token.NL)
		return true, nil
	}

	if col > l.indents[len(l.indents)-1] {
		l.indents = append(l.indents, col)
		l.emit(token.INDENT, l.lineStart, p)
	}
	for col < l.indents[len(l.indents)-1] {
		found := false
		for _, c := range l.indents {
			if c == col {
				found = true
				break
			}
		}
		if !found {
			return false, l.errorf(p, "unindent does not match any outer indentation level")
		}
		l.indents = l.indents[:len(l.indents)-1]
		l.emitValue(token.DEDENT, "", p, p)
	}
	l.pos = p
	return false, nil
}

// scanLine consumes tokens up to and including the end of the current
// physical line. It reports whether the line ended with a backslash
// continuation.
func (l *lexer) scanLine() (bool, error) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\f':
			l.pos++
		case c == '\r' || c == '\n':
			if l.depth > 0 || !l.pending {
				l.newline(token.NL)
			} else {
				l.newline(token.NEWLINE)
			}
			return false, nil
		case c == '#':
			end := l.eol(l.pos)
			l.emit(token.COMMENT, l.pos, end)
			l.pos = end
		case c == '\\' && l.pos+1 < len(l.src) && (l.src[l.pos+1] == '\n' || l.src[l.pos+1] == '\r'):
			l.pos++
			l.skipNewline()
			return true, nil
		case isDigit(c) || (c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
			l.scanNumber()
		case c == '"' || c == '\'':
			if err := l.scanString(l.pos); err != nil {
				return false, err
			}
		default:
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			if isIdentStart(r) {
				if q := l.stringPrefix(); q > 0 {
					if err := l.scanString(l.pos + q); err != nil {
						return false, err
					}
					continue
				}
				l.scanName()
				continue
			}
			if op := l.matchOperator(); op != "" {
				start := l.pos
				l.pos += len(op)
				switch {
				case len(op) == 1 && openers[op[0]]:
					l.depth++
				case len(op) == 1 && closers[op[0]]:
					if l.depth > 0 {
						l.depth--
					}
				}
				l.emit(token.OP, start, l.pos)
				continue
			}
			start := l.pos
			l.pos += size
			l.emit(token.ERRORTOKEN, start, l.pos)
		}
	}
	return false, nil
}

func (l *lexer) finish() {
	if l.pending {
		l.emitValue(token.NEWLINE, "", l.pos, l.pos)
	}
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.emitValue(token.DEDENT, "", l.pos, l.pos)
	}
	l.emitValue(token.ENDMARKER, "", l.pos, l.pos)
}

func (l *lexer) matchOperator() string {
	rest := l.src[l.pos:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			return op
		}
	}
	if strings.IndexByte(singleOps, rest[0]) >= 0 {
		return rest[:1]
	}
	return ""
}

// stringPrefix returns the length of a string prefix (r, b, u, f and their
// two-letter combinations) when it is directly followed by a quote.
func (l *lexer) stringPrefix() int {
	for n := 1; n <= 2 && l.pos+n < len(l.src); n++ {
		if !strings.ContainsRune("rRbBuUfF", rune(l.src[l.pos+n-1])) {
			return 0
		}
		if q := l.src[l.pos+n]; q == '"' || q == '\'' {
			return n
		}
	}
	return 0
}

func (l *lexer) scanName() {
	start := l.pos
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentPart(r) {
			break
		}
		l.pos += size
	}
	l.emit(token.NAME, start, l.pos)
}

func (l *lexer) scanNumber() {
	start := l.pos
	s := l.src
	if s[l.pos] == '0' && l.pos+1 < len(s) && strings.ContainsRune("xXoObB", rune(s[l.pos+1])) {
		l.pos += 2
		for l.pos < len(s) && (isHexDigit(s[l.pos]) || s[l.pos] == '_') {
			l.pos++
		}
	} else {
		l.digits()
		if l.pos < len(s) && s[l.pos] == '.' {
			l.pos++
			l.digits()
		}
		if l.pos < len(s) && (s[l.pos] == 'e' || s[l.pos] == 'E') {
			p := l.pos + 1
			if p < len(s) && (s[p] == '+' || s[p] == '-') {
				p++
			}
			if p < len(s) && isDigit(s[p]) {
				l.pos = p
				l.digits()
			}
		}
	}
	if l.pos < len(s) && strings.ContainsRune("jJlL", rune(s[l.pos])) {
		l.pos++
	}
	l.emit(token.NUMBER, start, l.pos)
}

func (l *lexer) digits() {
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
		l.pos++
	}
}

// scanString reads a string literal whose opening quote is at q. The token
// starts at l.pos so that any prefix is included.
func (l *lexer) scanString(q int) error {
	start, startLine, startLineStart := l.pos, l.lineNo, l.lineStart
	quote := l.src[q]
	triple := strings.HasPrefix(l.src[q:], strings.Repeat(string(quote), 3))
	p := q + 1
	if triple {
		p = q + 3
	}
scan:
	for {
		if p >= len(l.src) {
			if triple {
				return l.errorAt(startLine, startLineStart, start, "EOF in multi-line string")
			}
			return l.errorAt(startLine, startLineStart, start, "EOL while scanning string literal")
		}
		c := l.src[p]
		switch {
		case c == '\\':
			p++
			if p < len(l.src) && l.src[p] == '\r' && p+1 < len(l.src) && l.src[p+1] == '\n' {
				p++
			}
			if p < len(l.src) && l.src[p] == '\n' {
				l.lineNo++
				l.lineStart = p + 1
			}
			p++
		case c == '\n':
			if !triple {
				return l.errorAt(startLine, startLineStart, start, "EOL while scanning string literal")
			}
			l.lineNo++
			l.lineStart = p + 1
			p++
		case c == quote && !triple:
			p++
			break scan
		case c == quote && strings.HasPrefix(l.src[p:], strings.Repeat(string(quote), 3)):
			p += 3
			break scan
		default:
			p++
		}
	}
	l.pos = p
	l.toks = append(l.toks, token.Token{
		Kind:  token.STRING,
		Value: l.src[start:p],
		Begin: token.Position{Line: startLine, Column: start - startLineStart},
		End:   token.Position{Line: l.lineNo, Column: p - l.lineStart},
		Line:  l.lineAt(startLineStart),
	})
	l.pending = true
	return nil
}

func (l *lexer) emit(kind token.Kind, start, end int) {
	l.emitValue(kind, l.src[start:end], start, end)
}

func (l *lexer) emitValue(kind token.Kind, value string, start, end int) {
	l.toks = append(l.toks, token.Token{
		Kind:  kind,
		Value: value,
		Begin: token.Position{Line: l.lineNo, Column: start - l.lineStart},
		End:   token.Position{Line: l.lineNo, Column: end - l.lineStart},
		Line:  l.lineAt(l.lineStart),
	})
	switch kind {
	case token.NEWLINE:
		l.pending = false
	case token.NL, token.COMMENT, token.INDENT, token.DEDENT, token.ENDMARKER:
	default:
		l.pending = true
	}
}

// newline emits a NEWLINE or NL token for the line break at l.pos and moves
// to the next physical line.
func (l *lexer) newline(kind token.Kind) {
	start := l.pos
	l.skipNewlineNoAdvance()
	l.emit(kind, start, l.pos)
	l.lineNo++
	l.lineStart = l.pos
}

func (l *lexer) skipNewline() {
	l.skipNewlineNoAdvance()
	l.lineNo++
	l.lineStart = l.pos
}

func (l *lexer) skipNewlineNoAdvance() {
	if l.pos < len(l.src) && l.src[l.pos] == '\r' {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '\n' {
		l.pos++
	}
}

// eol returns the offset of the line break at or after p.
func (l *lexer) eol(p int) int {
	for p < len(l.src) && l.src[p] != '\n' && l.src[p] != '\r' {
		p++
	}
	return p
}

func (l *lexer) lineAt(start int) string {
	end := strings.IndexByte(l.src[start:], '\n')
	if end < 0 {
		return l.src[start:]
	}
	return l.src[start : start+end+1]
}

func (l *lexer) errorf(p int, msg string) error {
	return l.errorAt(l.lineNo, l.lineStart, p, msg)
}

func (l *lexer) errorAt(lineNo, lineStart, p int, msg string) error {
	return &diag.LexError{
		Filename: l.filename,
		Pos:      token.Position{Line: lineNo, Column: p - lineStart},
		Line:     l.lineAt(lineStart),
		Msg:      msg,
	}
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
