package query

import (
	"errors"
	"fmt"
	"strings"
)

// ParsedSearch is the outer structure of a search string: free-text
// wildcard fragments plus field=value qualifiers. Fragments are handed
// to the wildcard planner; fields become extra dictionary constraints
// merged into every subquery.
type ParsedSearch struct {
	Fragments    map[string]struct{}
	NotFragments map[string]struct{}
	Fields       map[string][]string
	NotFields    map[string][]string
}

type searchTokenType int

const (
	searchTokenString searchTokenType = iota
	searchTokenQuotedString
	searchTokenWhitespace
	searchTokenEquals
	searchTokenNotEquals
	searchTokenLparen
	searchTokenRparen
	searchTokenComma
	searchTokenKeyword

	searchTokenNone searchTokenType = -1
)

type searchToken struct {
	typ   searchTokenType
	value string
}

var searchKeywords = [...]string{
	"in",
	"not",
}

const searchSymbols = "=!(),"
const searchWhitespace = " \n\t"

var searchWordDelimiters = searchSymbols + searchWhitespace

func tokenizeSearch(input string) ([]searchToken, error) {
	tokens := make([]searchToken, 0, 1)
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case strings.IndexByte(searchWhitespace, c) >= 0:
			tokens = append(tokens, searchToken{typ: searchTokenWhitespace, value: string(c)})
		case c == '=':
			tokens = append(tokens, searchToken{typ: searchTokenEquals, value: "="})
		case c == '!' && i+1 < len(input) && input[i+1] == '=':
			tokens = append(tokens, searchToken{typ: searchTokenNotEquals, value: "!="})
			i++
		case c == '(':
			tokens = append(tokens, searchToken{typ: searchTokenLparen, value: "("})
		case c == ')':
			tokens = append(tokens, searchToken{typ: searchTokenRparen, value: ")"})
		case c == ',':
			tokens = append(tokens, searchToken{typ: searchTokenComma, value: ","})
		case c == '"':
			end := -1
			for j := i + 1; j < len(input); j++ {
				if input[j] == '"' && input[j-1] != '\\' {
					end = j
					break
				}
			}
			if end == -1 {
				return nil, fmt.Errorf("unclosed quote at offset %d", i)
			}
			value := strings.ReplaceAll(input[i+1:end], "\\\"", "\"")
			tokens = append(tokens, searchToken{typ: searchTokenQuotedString, value: value})
			i = end
		default:
			rest := input[i:]
			end := strings.IndexAny(rest, searchWordDelimiters)
			var word string
			if end == -1 {
				word = rest
			} else {
				word = rest[:end]
			}
			if word == "" {
				// A bare symbol byte ('!' not followed by '='): keep it
				// as part of the free text.
				tokens = append(tokens, searchToken{typ: searchTokenString, value: string(c)})
				continue
			}
			lowered := strings.ToLower(word)
			isKeyword := false
			for _, kw := range searchKeywords {
				if kw == lowered {
					isKeyword = true
				}
			}
			if isKeyword {
				tokens = append(tokens, searchToken{typ: searchTokenKeyword, value: lowered})
			} else {
				tokens = append(tokens, searchToken{typ: searchTokenString, value: word})
			}
			i += len(word) - 1
		}
	}
	return tokens, nil
}

type searchParser struct {
	tokens []searchToken
}

func (p *searchParser) take() *searchToken {
	if len(p.tokens) == 0 {
		return nil
	}
	tok := p.tokens[0]
	p.tokens = p.tokens[1:]
	return &tok
}

func (p *searchParser) peek() searchTokenType {
	if len(p.tokens) == 0 {
		return searchTokenNone
	}
	return p.tokens[0].typ
}

func (p *searchParser) peekValue() string {
	if len(p.tokens) == 0 {
		return ""
	}
	return p.tokens[0].value
}

func (p *searchParser) skipWhitespace() {
	for p.peek() == searchTokenWhitespace {
		p.take()
	}
}

func (p *searchParser) parseParenList() ([]string, error) {
	if p.peek() != searchTokenLparen {
		return nil, errors.New("unexpected token, expected '('")
	}
	p.take()
	values := []string{}
	for {
		p.skipWhitespace()
		switch p.peek() {
		case searchTokenString, searchTokenQuotedString:
			values = append(values, p.take().value)
		case searchTokenComma:
			p.take()
		case searchTokenRparen:
			p.take()
			return values, nil
		case searchTokenNone:
			return nil, errors.New("unclosed '(' in value list")
		default:
			return nil, fmt.Errorf("unexpected token %q in value list", p.peekValue())
		}
	}
}

// ParseSearch splits a search string into wildcard fragments and
// field=value / field!=value / field IN (...) / field NOT IN (...)
// qualifiers, plus NOT-negated fragments. Consecutive bare words form a
// single fragment, joined by single spaces.
func ParseSearch(input string) (*ParsedSearch, error) {
	tokens, err := tokenizeSearch(input)
	if err != nil {
		return nil, fmt.Errorf("error while tokenizing: %w", err)
	}

	p := searchParser{tokens: tokens}
	ret := ParsedSearch{
		Fragments:    map[string]struct{}{},
		NotFragments: map[string]struct{}{},
		Fields:       map[string][]string{},
		NotFields:    map[string][]string{},
	}
	var words []string
	flushWords := func() {
		if len(words) > 0 {
			ret.Fragments[strings.Join(words, " ")] = struct{}{}
			words = nil
		}
	}

	for len(p.tokens) > 0 {
		tok := p.take()
		if tok == nil {
			break
		}
		bare := false
		switch tok.typ {
		case searchTokenString:
			lowered := strings.ToLower(tok.value)
			switch p.peek() {
			case searchTokenEquals:
				p.take()
				if p.peek() != searchTokenString && p.peek() != searchTokenQuotedString {
					return nil, errors.New("unexpected token, expected string or quoted string after =")
				}
				ret.Fields[lowered] = []string{p.take().value}
			case searchTokenNotEquals:
				p.take()
				if p.peek() != searchTokenString && p.peek() != searchTokenQuotedString {
					return nil, errors.New("unexpected token, expected string or quoted string after !=")
				}
				ret.NotFields[lowered] = append(ret.NotFields[lowered], p.take().value)
			case searchTokenWhitespace:
				p.skipWhitespace()
				if p.peek() == searchTokenKeyword && p.peekValue() == "in" {
					p.take()
					p.skipWhitespace()
					values, err := p.parseParenList()
					if err != nil {
						return nil, fmt.Errorf("error while parsing IN expression: %w", err)
					}
					ret.Fields[lowered] = values
				} else if p.peek() == searchTokenKeyword && p.peekValue() == "not" {
					p.take()
					p.skipWhitespace()
					if p.peek() != searchTokenKeyword || p.peekValue() != "in" {
						if p.peek() != searchTokenString && p.peek() != searchTokenQuotedString {
							return nil, errors.New("unexpected token, expected 'IN', string or quoted string after 'NOT'")
						}
						words = append(words, tok.value)
						ret.NotFragments[p.take().value] = struct{}{}
						break
					}
					p.take()
					p.skipWhitespace()
					values, err := p.parseParenList()
					if err != nil {
						return nil, fmt.Errorf("error while parsing NOT IN expression: %w", err)
					}
					ret.NotFields[lowered] = append(ret.NotFields[lowered], values...)
				} else {
					words = append(words, tok.value)
					bare = true
				}
			default:
				words = append(words, tok.value)
				bare = true
			}
		case searchTokenQuotedString:
			ret.Fragments[tok.value] = struct{}{}
		case searchTokenKeyword:
			if tok.value == "not" {
				p.skipWhitespace()
				if p.peek() != searchTokenString && p.peek() != searchTokenQuotedString {
					return nil, errors.New("unexpected token, expected string or quoted string after NOT")
				}
				ret.NotFragments[p.take().value] = struct{}{}
			}
		}
		if !bare {
			flushWords()
		}
	}
	flushWords()

	return &ret, nil
}
