package domain

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	DefaultReferralCodePrefix   = "REF-"
	DefaultReferralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	DefaultReferralCodeLength   = 6
	DefaultReferralCodeAttempts = 10
)

type CodeGenerator struct {
	prefix      string
	alphabet    []rune
	length      int
	maxAttempts int
	random      io.Reader
}

type CodeGeneratorOptions struct {
	Prefix      string
	Alphabet    string
	Length      int
	MaxAttempts int
	Random      io.Reader
}

func NewCodeGenerator(opts CodeGeneratorOptions) (*CodeGenerator, error) {
	if opts.Prefix == "" {
		opts.Prefix = DefaultReferralCodePrefix
	}
	if opts.Alphabet == "" {
		opts.Alphabet = DefaultReferralCodeAlphabet
	}
	if opts.Length <= 0 {
		opts.Length = DefaultReferralCodeLength
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultReferralCodeAttempts
	}
	if opts.Random == nil {
		opts.Random = rand.Reader
	}
	alphabet := uniqueRunes(NormalizeReferralCode(opts.Alphabet))
	if len(alphabet) == 0 {
		return nil, fmt.Errorf("%w: empty referral code alphabet", ErrInvalidInput)
	}
	return &CodeGenerator{
		prefix:      NormalizeReferralCode(opts.Prefix),
		alphabet:    alphabet,
		length:      opts.Length,
		maxAttempts: opts.MaxAttempts,
		random:      opts.Random,
	}, nil
}

func (g *CodeGenerator) MaxAttempts() int { return g.maxAttempts }

// Next draws one candidate code. It does not check for collisions.
func (g *CodeGenerator) Next() (string, error) {
	var b strings.Builder
	b.Grow(len(g.prefix) + g.length)
	b.WriteString(g.prefix)
	max := big.NewInt(int64(len(g.alphabet)))
	for i := 0; i < g.length; i++ {
		n, err := rand.Int(g.random, max)
		if err != nil {
			return "", fmt.Errorf("draw referral code: %w", err)
		}
		b.WriteRune(g.alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Allocate draws codes until claim accepts one. claim returns ErrDuplicate
// (or an error wrapping it) when the code is taken; any other error aborts.
// After MaxAttempts collisions it returns *CodeSpaceExhaustedError.
func (g *CodeGenerator) Allocate(ctx context.Context, claim func(ctx context.Context, code string) error) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := g.Next()
		if err != nil {
			return "", err
		}
		err = claim(ctx, code)
		switch {
		case err == nil:
			return code, nil
		case errors.Is(err, ErrDuplicate):
			continue
		default:
			return "", err
		}
	}
	return "", &CodeSpaceExhaustedError{Attempts: g.maxAttempts}
}

func uniqueRunes(s string) []rune {
	seen := map[rune]struct{}{}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
