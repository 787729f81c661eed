package moderation

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	mod, err := NewModerator([]string{"spam", "phishing", "spam"}, '*', log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain word", input: "no spam here", expected: "no **** here"},
		{name: "repeated", input: "spam spam", expected: "**** ****"},
		{name: "case", input: "SPAM and Phishing", expected: "**** and ********"},
		{name: "leet", input: "free 5p4m now", expected: "free **** now"},
		{name: "interleaved punctuation", input: "s.p.a.m", expected: "*******"},
		{name: "multibyte neighbours", input: "été spam été", expected: "été **** été"},
		{name: "clean", input: "hello there", expected: "hello there"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, mod.Censor(tt.input))
		})
	}
}

func TestModerator_EmptyWordList(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	mod, err := NewModerator(nil, '*', log)
	req.NoError(err)
	req.Equal("anything goes", mod.Censor("anything goes"))

	mod, err = NewModerator([]string{"", "..."}, '#', log)
	req.NoError(err)
	req.Equal("still fine...", mod.Censor("still fine..."))
}

func TestModerator_CustomReplacement(t *testing.T) {
	req := require.New(t)
	mod, err := NewModerator([]string{"darn"}, '#', logs.GetLoggerFromLevel(slog.LevelError))
	req.NoError(err)

	req.Equal("oh ####!", mod.Censor("oh darn!"))
}

func TestModerator_ConcurrentCensor(t *testing.T) {
	req := require.New(t)
	mod, err := NewModerator([]string{"spam"}, '*', logs.GetLoggerFromLevel(slog.LevelError))
	req.NoError(err)

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = mod.Censor("spam again")
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		req.Equal("**** again", got)
	}
}

func TestFold_TracksSourcePositions(t *testing.T) {
	req := require.New(t)

	text := fold([]rune("Fr-3é $!"))

	req.Equal([]rune("freési"), text.runes)
	req.Equal([]int{0, 1, 3, 4, 6, 7}, text.source)
}
