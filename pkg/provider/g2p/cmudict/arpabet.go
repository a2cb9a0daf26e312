package cmudict

import (
	"fmt"
	"strings"
)

// arpabetIPA maps ARPAbet phonemes (without stress digits) to IPA. The vowel
// choices follow the common English IPA transcribers: every AH is a schwa and
// ER is rendered as "ər".
var arpabetIPA = map[string]string{
	"AA": "ɑ", "AE": "æ", "AH": "ə", "AO": "ɔ", "AW": "aʊ", "AY": "aɪ",
	"EH": "ɛ", "ER": "ər", "EY": "eɪ", "IH": "ɪ", "IY": "i", "OW": "oʊ",
	"OY": "ɔɪ", "UH": "ʊ", "UW": "u",

	"B": "b", "CH": "ʧ", "D": "d", "DH": "ð", "F": "f", "G": "g", "HH": "h",
	"JH": "ʤ", "K": "k", "L": "l", "M": "m", "N": "n", "NG": "ŋ", "P": "p",
	"R": "r", "S": "s", "SH": "ʃ", "T": "t", "TH": "θ", "V": "v", "W": "w",
	"Y": "j", "Z": "z", "ZH": "ʒ",
}

var vowels = map[string]bool{
	"AA": true, "AE": true, "AH": true, "AO": true, "AW": true, "AY": true,
	"EH": true, "ER": true, "EY": true, "IH": true, "IY": true, "OW": true,
	"OY": true, "UH": true, "UW": true,
}

// onsets lists the consonant clusters that may begin an English syllable.
// Single consonants other than NG are always legal onsets.
var onsets = func() map[string]bool {
	m := make(map[string]bool)
	for _, c := range []string{
		"P R", "B R", "T R", "D R", "K R", "G R", "F R", "TH R", "SH R",
		"P L", "B L", "K L", "G L", "F L", "S L",
		"T W", "D W", "K W", "G W", "S W", "TH W",
		"P Y", "B Y", "K Y", "G Y", "F Y", "V Y", "M Y", "HH Y", "N Y",
		"S P", "S T", "S K", "S M", "S N", "S F",
		"S P R", "S T R", "S K R", "S P L", "S K W", "S K Y", "S P Y",
	} {
		m[c] = true
	}
	return m
}()

// splitPhone separates an ARPAbet phoneme such as "AH1" into its base and
// stress digit. The digit is -1 when absent.
func splitPhone(p string) (string, int) {
	if n := len(p); n > 0 && p[n-1] >= '0' && p[n-1] <= '2' {
		return p[:n-1], int(p[n-1] - '0')
	}
	return p, -1
}

// validate reports the first phoneme with no IPA mapping.
func validate(phones []string) error {
	for _, p := range phones {
		base, _ := splitPhone(p)
		if _, ok := arpabetIPA[base]; !ok {
			return fmt.Errorf("unknown ARPAbet phoneme %q", p)
		}
	}
	return nil
}

// transcribe renders phones as IPA. With stress enabled, words of more than
// one syllable get "ˈ" and "ˌ" before the onset of their primary and
// secondary stressed syllables.
func transcribe(phones []string, stress bool) string {
	bases := make([]string, len(phones))
	marks := make([]string, len(phones))
	syllables := 0
	for i, p := range phones {
		base, digit := splitPhone(p)
		bases[i] = base
		if !vowels[base] {
			continue
		}
		syllables++
		switch digit {
		case 1:
			marks[i] = "ˈ"
		case 2:
			marks[i] = "ˌ"
		}
	}

	var b strings.Builder
	insertAt := make(map[int]string)
	if stress && syllables > 1 {
		for i, m := range marks {
			if m != "" {
				insertAt[onsetStart(bases, i)] += m
			}
		}
	}
	for i, base := range bases {
		b.WriteString(insertAt[i])
		b.WriteString(arpabetIPA[base])
	}
	return b.String()
}

// onsetStart returns the index where the syllable whose nucleus is at v
// begins: the longest legal onset among the consonants since the previous
// vowel, or the start of the word for the first syllable.
func onsetStart(bases []string, v int) int {
	prev := -1
	for i := v - 1; i >= 0; i-- {
		if vowels[bases[i]] {
			prev = i
			break
		}
	}
	if prev < 0 {
		return 0
	}
	start := v
	for i := v - 1; i > prev; i-- {
		if !legalOnset(bases[i:v]) {
			break
		}
		start = i
	}
	return start
}

func legalOnset(cluster []string) bool {
	switch len(cluster) {
	case 0:
		return true
	case 1:
		return cluster[0] != "NG"
	default:
		return onsets[strings.Join(cluster, " ")]
	}
}
