// Package wallet turns mnemonics into BIP32 key trees and keeps the
// encrypted wallet files that record them.
package wallet

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/cosmos/go-bip39"
	"golang.org/x/text/unicode/norm"

	"github.com/mrz1836/satchel/internal/keycrypt"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

var (
	// ErrInvalidWordCount indicates an unsupported mnemonic length.
	ErrInvalidWordCount = walleterr.WithSuggestion(walleterr.ErrInvalidMnemonic,
		"mnemonics must have 12, 15, 18, 21 or 24 words")

	// whitespaceRegex matches one or more whitespace characters.
	whitespaceRegex = regexp.MustCompile(`\s+`)

	// numberedListRegex matches numbered list prefixes like "1." "2)" "3:"
	numberedListRegex = regexp.MustCompile(`(?m)^\s*\d+[\.\)\:]\s*`)

	// bulletListRegex matches bullet prefixes like "- " "* " "• "
	bulletListRegex = regexp.MustCompile(`(?m)^\s*[-*•]\s*`)
)

// entropyBits maps a mnemonic word count to its entropy size.
//
//nolint:gochecknoglobals // lookup table
var entropyBits = map[int]int{
	12: 128,
	15: 160,
	18: 192,
	21: 224,
	24: 256,
}

// GenerateMnemonic creates a new BIP39 mnemonic phrase with wordCount words.
// Entropy is read from keycrypt.Reader.
func GenerateMnemonic(wordCount int) (string, error) {
	bits, ok := entropyBits[wordCount]
	if !ok {
		return "", ErrInvalidWordCount
	}

	entropy, err := keycrypt.Entropy(bits)
	if err != nil {
		return "", walleterr.Wrap(err, "reading entropy")
	}
	defer keycrypt.Wipe(entropy)

	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic checks word count, wordlist membership and checksum.
// Errors carry typo suggestions when a word is close to a wordlist entry.
func ValidateMnemonic(mnemonic string) error {
	normalized := NormalizeMnemonicInput(mnemonic)
	words := strings.Fields(normalized)
	if _, ok := entropyBits[len(words)]; !ok {
		return walleterr.WithDetails(ErrInvalidWordCount, map[string]string{
			"words": strconv.Itoa(len(words)),
		})
	}

	if typos := DetectTypos(normalized); len(typos) > 0 {
		return walleterr.WithSuggestion(walleterr.ErrInvalidMnemonic, FormatTypoSuggestions(typos))
	}

	if _, err := bip39.MnemonicToByteArray(normalized); err != nil {
		return walleterr.WithSuggestion(walleterr.ErrInvalidMnemonic,
			"checksum mismatch - check the word order")
	}

	return nil
}

// NormalizeMnemonicInput cleans pasted mnemonic text: lowercase, list
// prefixes and commas removed, whitespace collapsed.
func NormalizeMnemonicInput(input string) string {
	input = strings.ToLower(input)
	input = numberedListRegex.ReplaceAllString(input, " ")
	input = bulletListRegex.ReplaceAllString(input, " ")
	input = strings.ReplaceAll(input, ",", " ")
	input = whitespaceRegex.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

// MnemonicToSeed stretches a mnemonic and optional passphrase into the
// 64-byte BIP39 seed (PBKDF2-HMAC-SHA512, 2048 rounds).
// The caller must zero the returned seed.
func MnemonicToSeed(mnemonic, passphrase string) ([]byte, error) {
	if err := ValidateMnemonic(mnemonic); err != nil {
		return nil, err
	}

	return bip39.NewSeed(NormalizeMnemonicInput(mnemonic), norm.NFKD.String(passphrase)), nil
}

// IsValidWord checks if a word is in the BIP39 word list.
func IsValidWord(word string) bool {
	word = strings.ToLower(word)
	for _, w := range bip39.WordList {
		if w == word {
			return true
		}
	}
	return false
}

// MaxTypoDistance is the maximum Levenshtein distance to consider a suggestion.
const MaxTypoDistance = 2

// TypoInfo describes a word that is not in the wordlist.
type TypoInfo struct {
	Index      int    // 0-based word position
	Word       string // word as typed
	Suggestion string // closest wordlist entry, empty when none is close
	Distance   int
}

// SuggestWord finds the closest BIP39 word within MaxTypoDistance.
func SuggestWord(input string) string {
	input = strings.ToLower(input)

	minDist := math.MaxInt
	var suggestion string
	for _, word := range bip39.WordList {
		dist := levenshtein.ComputeDistance(input, word)
		if dist == 0 {
			return word
		}
		if dist < minDist {
			minDist = dist
			suggestion = word
		}
	}

	if minDist <= MaxTypoDistance {
		return suggestion
	}
	return ""
}

// DetectTypos lists every word of mnemonic that is not in the wordlist.
func DetectTypos(mnemonic string) []TypoInfo {
	var typos []TypoInfo
	for i, word := range strings.Fields(NormalizeMnemonicInput(mnemonic)) {
		if IsValidWord(word) {
			continue
		}
		info := TypoInfo{Index: i, Word: word, Suggestion: SuggestWord(word)}
		if info.Suggestion != "" {
			info.Distance = levenshtein.ComputeDistance(word, info.Suggestion)
		}
		typos = append(typos, info)
	}
	return typos
}

// FormatTypoSuggestions renders typos one per line, 1-indexed.
func FormatTypoSuggestions(typos []TypoInfo) string {
	lines := make([]string, 0, len(typos))
	for _, typo := range typos {
		line := "Word " + strconv.Itoa(typo.Index+1) + ": '" + typo.Word + "'"
		if typo.Suggestion != "" {
			line += " - did you mean '" + typo.Suggestion + "'?"
		} else {
			line += " is not a valid BIP39 word"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
