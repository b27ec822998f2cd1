package compiler

import (
	"errors"
	"strings"
	"unicode/utf8"

	"gobf/pkg/cpu"
)

var ErrInvalidUTF8 = errors.New("source is not valid UTF-8")

// lexer holds all mutable state for a single scanning pass over src.
type lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(strings.TrimSpace(src)), pos: 0, line: 1}
}

// advance consumes one rune and returns it.
func (l *lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
	}
	return r
}

// Lex converts source text into the raw instruction sequence, one
// instruction per command character with a count of 1.
func Lex(src string) ([]cpu.Instruction, error) {
	if !utf8.ValidString(src) {
		return nil, ErrInvalidUTF8
	}

	l := newLexer(src)
	prog := make([]cpu.Instruction, 0, len(l.src))
	for l.pos < len(l.src) {
		op, ok := commands[l.advance()]
		if !ok {
			continue
		}
		prog = append(prog, cpu.Instruction{Op: op, Count: 1})
	}

	log.Debugf("lexed %d instructions from %d lines", len(prog), l.line)
	return prog, nil
}
