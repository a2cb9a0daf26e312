package cmudict

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

//go:embed seed.dict
var seed string

// Dict is a parsed pronouncing dictionary. It is immutable after parsing
// and safe for concurrent reads.
type Dict struct {
	entries map[string][][]string
}

// Parse reads a dictionary in CMU format: one entry per line, the word
// followed by its ARPAbet phonemes. Alternate pronunciations carry a "(n)"
// suffix on the word. Lines starting with ";;;" and text after " #" are
// comments. Words are case-insensitive.
func Parse(r io.Reader) (*Dict, error) {
	d := &Dict{entries: make(map[string][][]string)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.HasPrefix(text, ";;;") {
			continue
		}
		if i := strings.Index(text, " #"); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("cmudict: line %d: word %q has no phonemes", line, fields[0])
		}

		word := strings.ToLower(fields[0])
		if i := strings.IndexByte(word, '('); i > 0 && strings.HasSuffix(word, ")") {
			word = word[:i]
		}
		phones := make([]string, len(fields)-1)
		for i, p := range fields[1:] {
			phones[i] = strings.ToUpper(p)
		}
		if err := validate(phones); err != nil {
			return nil, fmt.Errorf("cmudict: line %d: %w", line, err)
		}
		d.entries[word] = append(d.entries[word], phones)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cmudict: read: %w", err)
	}
	if len(d.entries) == 0 {
		return nil, errors.New("cmudict: dictionary is empty")
	}
	return d, nil
}

// Load parses the dictionary file at path.
func Load(path string) (*Dict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cmudict: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Seed returns the small dictionary compiled into the binary.
var Seed = sync.OnceValue(func() *Dict {
	d, err := Parse(strings.NewReader(seed))
	if err != nil {
		panic(err)
	}
	return d
})

// Lookup returns the first pronunciation of word.
func (d *Dict) Lookup(word string) ([]string, bool) {
	prons := d.entries[strings.ToLower(word)]
	if len(prons) == 0 {
		return nil, false
	}
	return prons[0], true
}

// Pronunciations returns every pronunciation of word in dictionary order.
func (d *Dict) Pronunciations(word string) [][]string {
	return d.entries[strings.ToLower(word)]
}

// Len returns the number of distinct words.
func (d *Dict) Len() int { return len(d.entries) }
