package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/phonocoach/pkg/phonetic"
)

// errNoConverter is returned when a tool needs phonemic conversion but the
// server was built without a converter.
var errNoConverter = errors.New("mcp: no phonemic converter configured")

// NormalizeInput is the argument of the normalize tool.
type NormalizeInput struct {
	Text string `json:"text" jsonschema:"the text to normalize"`
}

// NormalizeOutput is the result of the normalize tool.
type NormalizeOutput struct {
	Normalized string `json:"normalized"`
}

func (s *Server) normalize(_ context.Context, in NormalizeInput) (NormalizeOutput, error) {
	return NormalizeOutput{Normalized: phonetic.Normalize(in.Text)}, nil
}

// ToPhonemicInput is the argument of the to_phonemic tool.
type ToPhonemicInput struct {
	Text string `json:"text" jsonschema:"English text to convert"`
}

// ToPhonemicOutput is the result of the to_phonemic tool.
type ToPhonemicOutput struct {
	Normalized string `json:"normalized"`
	Phonemic   string `json:"phonemic"`
}

func (s *Server) toPhonemic(ctx context.Context, in ToPhonemicInput) (ToPhonemicOutput, error) {
	norm, ipa, err := s.convert(ctx, in.Text)
	if err != nil {
		return ToPhonemicOutput{}, err
	}
	return ToPhonemicOutput{Normalized: norm, Phonemic: ipa}, nil
}

// AlignInput is the argument of the align_and_score tool.
type AlignInput struct {
	Target     string `json:"target" jsonschema:"the intended pronunciation"`
	Recognized string `json:"recognized" jsonschema:"what was actually pronounced"`
	FromText   bool   `json:"from_text,omitempty" jsonschema:"treat target and recognized as plain text and convert both to phonemic form first"`
	Marker     string `json:"marker,omitempty" jsonschema:"mismatch marker style: bracket (default), markdown, html or ansi"`
}

// AlignOutput is the result of the align_and_score tool.
type AlignOutput struct {
	Target     string      `json:"target"`
	Recognized string      `json:"recognized"`
	Score      int         `json:"score"`
	Ratio      float64     `json:"ratio"`
	Grade      string      `json:"grade"`
	Message    string      `json:"message"`
	Rendered   string      `json:"rendered"`
	Opcodes    []OpcodeOut `json:"opcodes"`
}

// OpcodeOut is one alignment step with its tag spelled out.
type OpcodeOut struct {
	Tag             string `json:"tag"`
	TargetStart     int    `json:"target_start"`
	TargetEnd       int    `json:"target_end"`
	RecognizedStart int    `json:"recognized_start"`
	RecognizedEnd   int    `json:"recognized_end"`
}

func (s *Server) alignAndScore(ctx context.Context, in AlignInput) (AlignOutput, error) {
	marker, err := phonetic.MarkerByName(in.Marker)
	if err != nil {
		return AlignOutput{}, err
	}
	target, recognized := in.Target, in.Recognized
	if in.FromText {
		if _, target, err = s.convert(ctx, target); err != nil {
			return AlignOutput{}, fmt.Errorf("target: %w", err)
		}
		if _, recognized, err = s.convert(ctx, recognized); err != nil {
			return AlignOutput{}, fmt.Errorf("recognized: %w", err)
		}
	}

	a, err := phonetic.Align(target, recognized)
	if err != nil {
		return AlignOutput{}, err
	}
	rendered, err := phonetic.RenderDiff(recognized, a.Opcodes, marker)
	if err != nil {
		return AlignOutput{}, err
	}
	grade := s.grading().Grade(a.Score)

	out := AlignOutput{
		Target:     target,
		Recognized: recognized,
		Score:      a.Score,
		Ratio:      a.Ratio,
		Grade:      grade.String(),
		Message:    grade.Message(),
		Rendered:   rendered,
		Opcodes:    make([]OpcodeOut, len(a.Opcodes)),
	}
	for i, op := range a.Opcodes {
		out.Opcodes[i] = OpcodeOut{
			Tag:             op.Tag.String(),
			TargetStart:     op.TargetStart,
			TargetEnd:       op.TargetEnd,
			RecognizedStart: op.RecognizedStart,
			RecognizedEnd:   op.RecognizedEnd,
		}
	}
	return out, nil
}

// convert normalizes text and converts it to phonemic form. Blank text
// converts to the empty string without calling the converter.
func (s *Server) convert(ctx context.Context, text string) (norm, ipa string, err error) {
	norm = phonetic.Normalize(text)
	if norm == "" {
		return "", "", nil
	}
	if s.converter == nil {
		return "", "", errNoConverter
	}
	ipa, err = s.converter.ToPhonemic(ctx, norm)
	if err != nil {
		return "", "", err
	}
	return norm, ipa, nil
}
