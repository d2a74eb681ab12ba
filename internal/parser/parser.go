package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/ankipack/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	separator      = "---"
	fence          = "```"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingContext
)

// ParseFile reads a markdown file and extracts all cards, recording path on
// each of them.
func ParseFile(path string) ([]domain.SourceCard, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	cards, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for i := range cards {
		cards[i].Path = path
	}
	return cards, nil
}

// cardBuilder accumulates the lines of the part being read.
type cardBuilder struct {
	cards   []domain.SourceCard
	current domain.SourceCard
	block   []string
	state   state
}

// flushBlock stores the lines read so far in the part being read.
func (b *cardBuilder) flushBlock() {
	if len(b.block) == 0 {
		return
	}
	// Blank lines between cards belong to neither.
	end := len(b.block)
	for end > 0 && strings.TrimSpace(b.block[end-1]) == "" {
		end--
	}
	content := strings.Join(b.block[:end], "\n")
	switch b.state {
	case readingQuestion:
		b.current.Question = content
	case readingAnswer:
		b.current.Answer = content
	case readingContext:
		b.current.Context = content
	}
	b.block = nil
}

// finishCard ends the current card. Cards without a question are dropped.
func (b *cardBuilder) finishCard() {
	b.flushBlock()
	if b.current.Question != "" {
		b.cards = append(b.cards, b.current)
	}
	b.current = domain.SourceCard{}
	b.state = seeking
}

// start begins a new part of the current card with the text after prefix.
func (b *cardBuilder) start(s state, line, prefix string) {
	b.flushBlock()
	b.state = s
	b.block = append(b.block, strings.TrimPrefix(line[len(prefix):], " "))
}

// Parse reads Q:/A:/C: entries from r. A new Q: line or a "---" line ends
// the current card. Prefixes inside fenced code blocks are plain content.
func Parse(r io.Reader) ([]domain.SourceCard, error) {
	scanner := bufio.NewScanner(r)
	b := &cardBuilder{}
	inFence := false

	for scanner.Scan() {
		line := scanner.Text()

		if inFence {
			if strings.HasPrefix(strings.TrimSpace(line), fence) {
				inFence = false
			}
			if b.state != seeking {
				b.block = append(b.block, line)
			}
			continue
		}

		switch {
		case line == separator:
			b.finishCard()
		case strings.HasPrefix(line, questionPrefix):
			if b.state != seeking { // A new question always starts a new card
				b.finishCard()
			}
			b.start(readingQuestion, line, questionPrefix)
		case strings.HasPrefix(line, answerPrefix) && b.state != seeking:
			b.start(readingAnswer, line, answerPrefix)
		case strings.HasPrefix(line, contextPrefix) && b.state != seeking:
			b.start(readingContext, line, contextPrefix)
		case b.state != seeking:
			if strings.HasPrefix(strings.TrimSpace(line), fence) {
				inFence = true
			}
			b.block = append(b.block, line)
		}
	}

	b.finishCard() // Finish the very last card in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return b.cards, nil
}
