package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"voicehub/errors"
)

const maskChar = '*'

func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	dictionary := []string{"badger", "snake", "mushroom"}
	mod, err := NewModerator(dictionary, maskChar)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "simple word and spacing preserved",
			input:    "The badger is here",
			expected: "The ****** is here",
			words:    []string{"badger"},
		},
		{
			name:     "multiple occurrences",
			input:    "badger badger badger",
			expected: "****** ****** ******",
			words:    []string{"badger", "badger", "badger"},
		},
		{
			name:     "case insensitive match",
			input:    "A SNAKE and a Badger",
			expected: "A ***** and a ******",
			words:    []string{"snake", "badger"},
		},
		{
			name:     "clean text untouched",
			input:    "nothing to see here",
			expected: "nothing to see here",
			words:    nil,
		},
		{
			name:     "utf-8 text around a match",
			input:    "Un été avec un badger",
			expected: "Un été avec un ******",
			words:    []string{"badger"},
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
			words:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := mod.Censor(tt.input)
			require.Equal(t, tt.expected, got)
			require.Equal(t, tt.words, found)
		})
	}
}

func TestNewModerator_EmptyDictionary(t *testing.T) {
	_, err := NewModerator(nil, maskChar)
	require.ErrorIs(t, err, errors.ErrEmptyWords)

	_, err = NewModerator([]string{""}, maskChar)
	require.ErrorIs(t, err, errors.ErrEmptyWords)
}
